package rui

import (
	"context"
	"io"
	"sync"
)

type ByteCount = int64

// protocol-level constant. Every chunk but the last carries exactly this many
// bytes.
const DefaultChunkSize = ByteCount(1000000)

// FrameWriter is the outbound side of the socket as the upload sub-protocol
// sees it: raw binary frames and json message frames.
type FrameWriter interface {
	WriteBinaryFrame(p []byte) error
	WriteMessageFrame(message any) error
}

type UploadFile struct {
	Name   string
	Size   ByteCount
	Reader io.ReaderAt
}

// Selection is one user file selection. All files of a selection share the
// logical input reference `Source`.
type Selection struct {
	Source string
	Files  []*UploadFile
}

type UploadSettings struct {
	ChunkSize ByteCount
}

func DefaultUploadSettings() *UploadSettings {
	return &UploadSettings{
		ChunkSize: DefaultChunkSize,
	}
}

// Uploader streams file selections over a frame writer: per chunk one binary
// frame followed by the `continue` metadata frame describing it, and one
// `finished` frame per selection after the last chunk of the last file.
type Uploader struct {
	writer   FrameWriter
	settings *UploadSettings
	log      LogFunction

	// a binary frame and its metadata frame form one pairwise unit
	writeLock sync.Mutex
}

func NewUploaderWithDefaults(writer FrameWriter) *Uploader {
	return NewUploader(writer, DefaultUploadSettings())
}

func NewUploader(writer FrameWriter, settings *UploadSettings) *Uploader {
	return &Uploader{
		writer:   writer,
		settings: settings,
		log:      LogFn(LogLevelDebug, "upload"),
	}
}

// each chunk is one explicit task value handed to the asynchronous read,
// never a closure over loop variables
type chunkTask struct {
	fileIndex int
	sequence  int
	offset    ByteCount
	length    ByteCount
}

// Send streams every file of the selection. Chunk order within one file is
// preserved and sequence numbers start at 0. Cross-file interleaving order is
// unspecified; the files are scheduled independently.
func (self *Uploader) Send(ctx context.Context, selection *Selection) error {
	results := make(chan error, len(selection.Files))
	for i := range selection.Files {
		go func(fileIndex int) {
			results <- self.sendFile(ctx, selection, fileIndex)
		}(i)
	}
	var firstErr error
	for range selection.Files {
		if err := <-results; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return firstErr
	}
	return self.writer.WriteMessageFrame(&FinishMessage{
		Opcode: OpcodeFinished,
		Volume: len(selection.Files),
		Source: selection.Source,
	})
}

func (self *Uploader) sendFile(ctx context.Context, selection *Selection, fileIndex int) error {
	file := selection.Files[fileIndex]
	tasks := chunkTasks(fileIndex, file.Size, self.settings.ChunkSize)
	self.log("send %s chunks=%d", file.Name, len(tasks))
	for _, task := range tasks {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := self.sendChunk(selection, task); err != nil {
			return err
		}
	}
	return nil
}

func chunkTasks(fileIndex int, size ByteCount, chunkSize ByteCount) []chunkTask {
	tasks := []chunkTask{}
	sequence := 0
	for offset := ByteCount(0); offset < size; offset += chunkSize {
		length := chunkSize
		if size < offset+length {
			length = size - offset
		}
		tasks = append(tasks, chunkTask{
			fileIndex: fileIndex,
			sequence:  sequence,
			offset:    offset,
			length:    length,
		})
		sequence += 1
	}
	return tasks
}

func (self *Uploader) sendChunk(selection *Selection, task chunkTask) error {
	file := selection.Files[task.fileIndex]
	buffer := make([]byte, task.length)
	if _, err := file.Reader.ReadAt(buffer, task.offset); err != nil && err != io.EOF {
		return err
	}

	self.writeLock.Lock()
	defer self.writeLock.Unlock()
	if err := self.writer.WriteBinaryFrame(buffer); err != nil {
		return err
	}
	return self.writer.WriteMessageFrame(&ChunkMessage{
		Opcode:    OpcodeContinue,
		Name:      file.Name,
		Size:      file.Size,
		Sequence:  task.sequence,
		ChunkSize: self.settings.ChunkSize,
		Source:    selection.Source,
	})
}
