package segment

import (
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"
)

// Writer persists snapshot documents to a fixed path.
type Writer struct {
	path        string
	codec       Codec
	compression Compression
}

// NewWriter creates a Writer for path using the given payload encoding.
func NewWriter(path string, codec Codec, compression Compression) *Writer {
	return &Writer{path: path, codec: codec, compression: compression}
}

// Path returns the snapshot file path.
func (w *Writer) Path() string {
	return w.path
}

// Write atomically replaces the snapshot file. It writes to a .tmp file
// first, syncs, and renames on success.
func (w *Writer) Write(doc *Document) (Header, error) {
	raw, err := encode(w.codec, doc)
	if err != nil {
		return Header{}, fmt.Errorf("encoding snapshot: %w", err)
	}
	payload, used, err := compress(w.compression, raw)
	if err != nil {
		return Header{}, fmt.Errorf("compressing snapshot: %w", err)
	}

	header := Header{
		Magic:       MagicBytes,
		Version:     FormatVersion,
		Codec:       w.codec,
		Compression: used,
		DocCount:    uint32(doc.N),
		TermCount:   uint32(len(doc.Terms)),
		Checksum:    crc32.ChecksumIEEE(payload),
		PayloadSize: uint64(len(payload)),
		RawSize:     uint64(len(raw)),
		CreatedAt:   time.Now(),
	}

	if dir := filepath.Dir(w.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return Header{}, fmt.Errorf("creating snapshot directory: %w", err)
		}
	}
	tmpPath := w.path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return Header{}, fmt.Errorf("creating temp snapshot file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(header.marshal()); err != nil {
		return Header{}, fmt.Errorf("writing header: %w", err)
	}
	if _, err := f.Write(payload); err != nil {
		return Header{}, fmt.Errorf("writing payload: %w", err)
	}
	if err := f.Sync(); err != nil {
		return Header{}, fmt.Errorf("syncing snapshot file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, w.path); err != nil {
		return Header{}, fmt.Errorf("renaming snapshot file: %w", err)
	}
	return header, nil
}
