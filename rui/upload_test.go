package rui

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/go-playground/assert/v2"
)

// frameRecorder captures the paired binary and message frames in write order.
type frameRecorder struct {
	mutex    sync.Mutex
	binary   [][]byte
	messages []any
}

func (self *frameRecorder) WriteBinaryFrame(p []byte) error {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.binary = append(self.binary, append([]byte{}, p...))
	return nil
}

func (self *frameRecorder) WriteMessageFrame(message any) error {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.messages = append(self.messages, message)
	return nil
}

func TestUploadSingleFile(t *testing.T) {
	recorder := &frameRecorder{}
	uploader := NewUploader(recorder, &UploadSettings{
		ChunkSize: 1000,
	})

	content := bytes.Repeat([]byte("x"), 2500)
	err := uploader.Send(context.Background(), &Selection{
		Source: "files",
		Files: []*UploadFile{
			{
				Name:   "a.bin",
				Size:   ByteCount(len(content)),
				Reader: bytes.NewReader(content),
			},
		},
	})
	assert.Equal(t, nil, err)

	assert.Equal(t, 3, len(recorder.binary))
	assert.Equal(t, 1000, len(recorder.binary[0]))
	assert.Equal(t, 1000, len(recorder.binary[1]))
	// only the last chunk is short
	assert.Equal(t, 500, len(recorder.binary[2]))

	assert.Equal(t, 4, len(recorder.messages))
	for i := 0; i < 3; i += 1 {
		chunk, ok := recorder.messages[i].(*ChunkMessage)
		assert.Equal(t, true, ok)
		assert.Equal(t, OpcodeContinue, chunk.Opcode)
		assert.Equal(t, "a.bin", chunk.Name)
		assert.Equal(t, ByteCount(2500), chunk.Size)
		assert.Equal(t, i, chunk.Sequence)
		assert.Equal(t, ByteCount(1000), chunk.ChunkSize)
		assert.Equal(t, "files", chunk.Source)
	}
	finish, ok := recorder.messages[3].(*FinishMessage)
	assert.Equal(t, true, ok)
	assert.Equal(t, OpcodeFinished, finish.Opcode)
	assert.Equal(t, 1, finish.Volume)
	assert.Equal(t, "files", finish.Source)
}

func TestUploadEmptyFile(t *testing.T) {
	recorder := &frameRecorder{}
	uploader := NewUploaderWithDefaults(recorder)

	err := uploader.Send(context.Background(), &Selection{
		Source: "files",
		Files: []*UploadFile{
			{
				Name:   "empty.txt",
				Size:   0,
				Reader: bytes.NewReader(nil),
			},
		},
	})
	assert.Equal(t, nil, err)

	// no chunks, still one finished frame
	assert.Equal(t, 0, len(recorder.binary))
	assert.Equal(t, 1, len(recorder.messages))
	finish, ok := recorder.messages[0].(*FinishMessage)
	assert.Equal(t, true, ok)
	assert.Equal(t, 1, finish.Volume)
}

func TestUploadMultipleFiles(t *testing.T) {
	recorder := &frameRecorder{}
	uploader := NewUploader(recorder, &UploadSettings{
		ChunkSize: 4,
	})

	err := uploader.Send(context.Background(), &Selection{
		Source: "files",
		Files: []*UploadFile{
			{Name: "a.txt", Size: 10, Reader: bytes.NewReader([]byte("aaaaaaaaaa"))},
			{Name: "b.txt", Size: 6, Reader: bytes.NewReader([]byte("bbbbbb"))},
		},
	})
	assert.Equal(t, nil, err)

	// 3 chunks for a, 2 for b, interleaving unspecified
	assert.Equal(t, 5, len(recorder.binary))
	assert.Equal(t, 6, len(recorder.messages))

	// each binary frame pairs with the message frame written right after it
	sequences := map[string][]int{}
	transferred := map[string]int{}
	for i := 0; i < 5; i += 1 {
		chunk, ok := recorder.messages[i].(*ChunkMessage)
		assert.Equal(t, true, ok)
		sequences[chunk.Name] = append(sequences[chunk.Name], chunk.Sequence)
		transferred[chunk.Name] += len(recorder.binary[i])
	}
	assert.Equal(t, []int{0, 1, 2}, sequences["a.txt"])
	assert.Equal(t, []int{0, 1}, sequences["b.txt"])
	assert.Equal(t, 10, transferred["a.txt"])
	assert.Equal(t, 6, transferred["b.txt"])

	// the finished frame comes after every file completed
	finish, ok := recorder.messages[5].(*FinishMessage)
	assert.Equal(t, true, ok)
	assert.Equal(t, 2, finish.Volume)
}

func TestUploadCanceled(t *testing.T) {
	recorder := &frameRecorder{}
	uploader := NewUploaderWithDefaults(recorder)

	cancelCtx, cancel := context.WithCancel(context.Background())
	cancel()

	content := []byte("data")
	err := uploader.Send(cancelCtx, &Selection{
		Source: "files",
		Files: []*UploadFile{
			{Name: "a.txt", Size: ByteCount(len(content)), Reader: bytes.NewReader(content)},
		},
	})
	assert.NotEqual(t, nil, err)
	// no finished frame after a canceled selection
	assert.Equal(t, 0, len(recorder.messages))
}
