// Package segment persists a built index and its display metadata as a
// single snapshot file: a fixed binary header followed by the interchange
// document, encoded as JSON or CBOR and optionally compressed.
package segment

import (
	"encoding/binary"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/carsearch/pkg/errors"
)

// MagicBytes identifies a snapshot file ("CSIX").
const (
	MagicBytes    uint32 = 0x43534958
	FormatVersion uint32 = 1
	HeaderSize    int    = 48
)

// Codec selects the payload encoding.
type Codec uint8

const (
	CodecJSON Codec = iota + 1
	CodecCBOR
)

func (c Codec) String() string {
	switch c {
	case CodecJSON:
		return "json"
	case CodecCBOR:
		return "cbor"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

// ParseCodec maps a config value to a Codec. Empty means JSON.
func ParseCodec(s string) (Codec, error) {
	switch s {
	case "", "json":
		return CodecJSON, nil
	case "cbor":
		return CodecCBOR, nil
	default:
		return 0, fmt.Errorf("unknown snapshot codec %q: %w", s, apperrors.ErrInvalidInput)
	}
}

// Compression selects how the encoded payload is compressed.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionLZ4
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression maps a config value to a Compression. Empty means none.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("unknown snapshot compression %q: %w", s, apperrors.ErrInvalidInput)
	}
}

// Header is the fixed-size prefix of every snapshot file.
type Header struct {
	Magic       uint32
	Version     uint32
	Codec       Codec
	Compression Compression
	DocCount    uint32
	TermCount   uint32
	Checksum    uint32
	PayloadSize uint64
	RawSize     uint64
	CreatedAt   time.Time
}

func (h Header) marshal() []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	b[8] = byte(h.Codec)
	b[9] = byte(h.Compression)
	binary.LittleEndian.PutUint32(b[12:16], h.DocCount)
	binary.LittleEndian.PutUint32(b[16:20], h.TermCount)
	binary.LittleEndian.PutUint32(b[20:24], h.Checksum)
	binary.LittleEndian.PutUint64(b[24:32], h.PayloadSize)
	binary.LittleEndian.PutUint64(b[32:40], h.RawSize)
	binary.LittleEndian.PutUint64(b[40:48], uint64(h.CreatedAt.UnixNano()))
	return b
}

func unmarshalHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("header is %d bytes: %w", len(b), apperrors.ErrCorruptSnapshot)
	}
	h := Header{
		Magic:       binary.LittleEndian.Uint32(b[0:4]),
		Version:     binary.LittleEndian.Uint32(b[4:8]),
		Codec:       Codec(b[8]),
		Compression: Compression(b[9]),
		DocCount:    binary.LittleEndian.Uint32(b[12:16]),
		TermCount:   binary.LittleEndian.Uint32(b[16:20]),
		Checksum:    binary.LittleEndian.Uint32(b[20:24]),
		PayloadSize: binary.LittleEndian.Uint64(b[24:32]),
		RawSize:     binary.LittleEndian.Uint64(b[32:40]),
		CreatedAt:   time.Unix(0, int64(binary.LittleEndian.Uint64(b[40:48]))),
	}
	if h.Magic != MagicBytes {
		return Header{}, fmt.Errorf("bad magic bytes %x: %w", h.Magic, apperrors.ErrCorruptSnapshot)
	}
	if h.Version != FormatVersion {
		return Header{}, fmt.Errorf("unsupported format version %d: %w", h.Version, apperrors.ErrCorruptSnapshot)
	}
	return h, nil
}
