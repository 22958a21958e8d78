package segment

import (
	"fmt"
	"hash/crc32"
	"io"
	"os"

	apperrors "github.com/Adithya-Monish-Kumar-K/carsearch/pkg/errors"
)

// ReadHeader reads only the fixed header of the snapshot at path.
func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, fmt.Errorf("opening snapshot file: %w", err)
	}
	defer f.Close()

	b := make([]byte, HeaderSize)
	if _, err := io.ReadFull(f, b); err != nil {
		return Header{}, fmt.Errorf("reading header: %w: %w", err, apperrors.ErrCorruptSnapshot)
	}
	return unmarshalHeader(b)
}

// Read loads and verifies the snapshot at path.
func Read(path string) (*Document, Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Header{}, fmt.Errorf("reading snapshot file: %w", err)
	}
	header, err := unmarshalHeader(data)
	if err != nil {
		return nil, Header{}, err
	}

	payload := data[HeaderSize:]
	if uint64(len(payload)) != header.PayloadSize {
		return nil, Header{}, fmt.Errorf("payload is %d bytes, header says %d: %w",
			len(payload), header.PayloadSize, apperrors.ErrCorruptSnapshot)
	}
	if sum := crc32.ChecksumIEEE(payload); sum != header.Checksum {
		return nil, Header{}, fmt.Errorf("checksum %08x, header says %08x: %w",
			sum, header.Checksum, apperrors.ErrCorruptSnapshot)
	}

	if err := checkRawSize(header.Compression, header.PayloadSize, header.RawSize); err != nil {
		return nil, Header{}, fmt.Errorf("%w: %w", err, apperrors.ErrCorruptSnapshot)
	}
	raw, err := decompress(header.Compression, payload, int(header.RawSize))
	if err != nil {
		return nil, Header{}, fmt.Errorf("%w: %w", err, apperrors.ErrCorruptSnapshot)
	}
	doc, err := decode(header.Codec, raw)
	if err != nil {
		return nil, Header{}, fmt.Errorf("decoding %s payload: %w: %w", header.Codec, err, apperrors.ErrCorruptSnapshot)
	}
	if doc.N != int(header.DocCount) || len(doc.Terms) != int(header.TermCount) {
		return nil, Header{}, fmt.Errorf("document has %d docs and %d terms, header says %d and %d: %w",
			doc.N, len(doc.Terms), header.DocCount, header.TermCount, apperrors.ErrCorruptSnapshot)
	}
	return doc, header, nil
}
