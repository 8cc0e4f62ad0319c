package rui

import (
	"archive/tar"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/glog"

	bolt "go.etcd.io/bbolt"
)

// Receiving side of the upload sub-protocol: chunk streams are reassembled
// into files, files into documents, documents into a shelf archive.

// FileSink reassembles one chunk stream. Chunks are accepted in any order and
// written at sequence*chunkSize; bytes past the declared size are dropped.
type FileSink struct {
	destination string
	size        ByteCount
	chunkSize   ByteCount
	transferred ByteCount
}

func NewFileSink(destination string, size ByteCount, chunkSize ByteCount) (*FileSink, error) {
	f, err := os.OpenFile(destination, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if 0 < size {
		if err := f.Truncate(int64(size)); err != nil {
			return nil, err
		}
	}
	return &FileSink{
		destination: destination,
		size:        size,
		chunkSize:   chunkSize,
	}, nil
}

func (self *FileSink) WriteChunk(data []byte, sequence int) error {
	offset := ByteCount(sequence) * self.chunkSize
	self.transferred += ByteCount(len(data))
	if self.size < self.transferred {
		data = data[:len(data)-int(self.transferred-self.size)]
	}
	f, err := os.OpenFile(self.destination, os.O_RDWR, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteAt(data, int64(offset))
	return err
}

// Progress is the transferred share after the given chunk, in whole percent,
// capped at 100.
func (self *FileSink) Progress(sequence int) int {
	if self.size == 0 {
		return 100
	}
	percent := ByteCount(sequence+1) * self.chunkSize * 100 / self.size
	if 100 < percent {
		percent = 100
	}
	return int(percent)
}

func (self *FileSink) Complete() bool {
	return self.size <= self.transferred
}

type ManifestFile struct {
	Source string    `json:"source"`
	Name   string    `json:"name"`
	Size   ByteCount `json:"size"`
	Type   string    `json:"type"`
}

// Manifest describes one document: its attributes and the files embedded in
// it, grouped by source.
type Manifest struct {
	Document map[string]string `json:"document"`
	Files    []*ManifestFile   `json:"files"`
}

// Document collects the chunk streams of one document until every declared
// source delivered its volume of files.
type Document struct {
	title     string
	dir       string
	sources   []string
	manifest  *Manifest
	files     map[string]*FileSink
	bySource  map[string][]string
	doneCount int
	finished  bool
}

func NewDocument(dir string, title string, attributes map[string]string, sources []string) *Document {
	document := map[string]string{
		"title": title,
	}
	for name, value := range attributes {
		document[name] = value
	}
	return &Document{
		title:   title,
		dir:     dir,
		sources: sources,
		manifest: &Manifest{
			Document: document,
			Files:    []*ManifestFile{},
		},
		files:    map[string]*FileSink{},
		bySource: map[string][]string{},
	}
}

func (self *Document) Title() string {
	return self.title
}

func (self *Document) Manifest() *Manifest {
	return self.manifest
}

func (self *Document) Finished() bool {
	return self.finished
}

// HandleChunk stores one chunk and returns the progress of the affected file
// as a percent string, the way the progress target expects it.
func (self *Document) HandleChunk(chunk *ChunkMessage, data []byte) (string, error) {
	sink, ok := self.files[chunk.Name]
	if !ok {
		dir := filepath.Join(self.dir, self.title)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", err
		}
		var err error
		sink, err = NewFileSink(filepath.Join(dir, chunk.Name), chunk.Size, chunk.ChunkSize)
		if err != nil {
			return "", err
		}
		self.files[chunk.Name] = sink
		self.bySource[chunk.Source] = append(self.bySource[chunk.Source], chunk.Name)
		self.manifest.Files = append(self.manifest.Files, &ManifestFile{
			Source: chunk.Source,
			Name:   chunk.Name,
			Size:   chunk.Size,
			Type:   filepath.Ext(chunk.Name),
		})
	}
	if err := sink.WriteChunk(data, chunk.Sequence); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d%%", sink.Progress(chunk.Sequence)), nil
}

// HandleFinish accounts one finished selection. The document is finished when
// every declared source delivered its volume of files; it is then archived on
// the shelf.
func (self *Document) HandleFinish(finish *FinishMessage, shelf *DocumentShelf) (bool, error) {
	if len(self.bySource[finish.Source]) == finish.Volume {
		self.doneCount += 1
	}
	if self.doneCount < len(self.sources) {
		return false, nil
	}
	if err := shelf.Archive(self); err != nil {
		return false, err
	}
	self.finished = true
	glog.V(2).Infof("[doc]finished %s\n", self.title)
	return true, nil
}

const manifestBucket = "manifests"

// DocumentShelf archives finished documents as tar files and indexes their
// manifests in a bolt bucket keyed by title.
type DocumentShelf struct {
	path string
	db   *bolt.DB
}

func OpenDocumentShelf(path string) (*DocumentShelf, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(filepath.Join(path, "shelf.db"), 0644, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(manifestBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &DocumentShelf{
		path: path,
		db:   db,
	}, nil
}

func (self *DocumentShelf) Close() error {
	return self.db.Close()
}

// Archive writes the manifest and the document files into one tar, the
// manifest first, and indexes the manifest.
func (self *DocumentShelf) Archive(document *Document) error {
	manifestBytes, err := json.MarshalIndent(document.manifest, "", "    ")
	if err != nil {
		return err
	}

	destination := filepath.Join(self.path, document.title+".tar")
	out, err := os.Create(destination)
	if err != nil {
		return err
	}
	defer out.Close()

	archive := tar.NewWriter(out)
	defer archive.Close()

	header := &tar.Header{
		Name:    filepath.Join(document.title, "Manifest"),
		Size:    int64(len(manifestBytes)),
		Mode:    0644,
		ModTime: time.Now(),
	}
	if err := archive.WriteHeader(header); err != nil {
		return err
	}
	if _, err := archive.Write(manifestBytes); err != nil {
		return err
	}

	for _, manifestFile := range document.manifest.Files {
		source := filepath.Join(document.dir, document.title, manifestFile.Name)
		in, err := os.Open(source)
		if err != nil {
			return err
		}
		header := &tar.Header{
			Name:    filepath.Join(document.title, manifestFile.Name),
			Size:    int64(manifestFile.Size),
			Mode:    0644,
			ModTime: time.Now(),
		}
		if err := archive.WriteHeader(header); err != nil {
			in.Close()
			return err
		}
		if _, err := io.Copy(archive, in); err != nil {
			in.Close()
			return err
		}
		in.Close()
	}

	return self.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(manifestBucket)).Put([]byte(document.title), manifestBytes)
	})
}

func (self *DocumentShelf) Manifest(title string) (*Manifest, error) {
	var manifest *Manifest
	err := self.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(manifestBucket)).Get([]byte(title))
		if b == nil {
			return fmt.Errorf("No manifest for %q.", title)
		}
		manifest = &Manifest{}
		return json.Unmarshal(b, manifest)
	})
	if err != nil {
		return nil, err
	}
	return manifest, nil
}

func (self *DocumentShelf) Titles() ([]string, error) {
	titles := []string{}
	err := self.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(manifestBucket)).ForEach(func(k []byte, v []byte) error {
			titles = append(titles, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return titles, nil
}
