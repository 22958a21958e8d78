package segment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/corpus"
)

// cborEnc uses Core Deterministic Encoding so the same index always
// produces the same bytes. cborDec decodes untyped maps as map[string]any,
// which is what the metadata records expect.
var (
	cborEnc     cbor.EncMode
	cborDec     cbor.DecMode
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("segment: CBOR encoder initialization failed: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("segment: CBOR decoder initialization failed: " + err.Error())
	}
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("segment: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("segment: zstd decoder initialization failed: " + err.Error())
	}
}

func encode(c Codec, doc *Document) ([]byte, error) {
	switch c {
	case CodecJSON:
		return json.Marshal(doc)
	case CodecCBOR:
		cp := *doc
		cp.Metadata = mapMetadata(doc.Metadata, numberToCBOR)
		return cborEnc.Marshal(&cp)
	default:
		return nil, fmt.Errorf("unsupported codec %s", c)
	}
}

func decode(c Codec, data []byte) (*Document, error) {
	var doc Document
	switch c {
	case CodecJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return nil, err
		}
	case CodecCBOR:
		if err := cborDec.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		doc.Metadata = mapMetadata(doc.Metadata, numberFromCBOR)
	default:
		return nil, fmt.Errorf("unsupported codec %s", c)
	}
	return &doc, nil
}

// mapMetadata applies f to every scalar in records, returning copies. CBOR
// has no json.Number, so metadata numbers are stored as CBOR integers or
// floats and read back as json.Number; both codecs then hand callers the
// same value types.
func mapMetadata(records []corpus.Record, f func(any) any) []corpus.Record {
	if records == nil {
		return nil
	}
	out := make([]corpus.Record, len(records))
	for i, r := range records {
		if r != nil {
			out[i] = mapValue(map[string]any(r), f).(map[string]any)
		}
	}
	return out
}

func mapValue(v any, f func(any) any) any {
	switch x := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, e := range x {
			m[k] = mapValue(e, f)
		}
		return m
	case corpus.Record:
		return mapValue(map[string]any(x), f)
	case []any:
		s := make([]any, len(x))
		for i, e := range x {
			s[i] = mapValue(e, f)
		}
		return s
	default:
		return f(v)
	}
}

func numberToCBOR(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

func numberFromCBOR(v any) any {
	switch x := v.(type) {
	case uint64:
		return json.Number(strconv.FormatUint(x, 10))
	case int64:
		return json.Number(strconv.FormatInt(x, 10))
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return x
		}
		return json.Number(strconv.FormatFloat(x, 'g', -1, 64))
	default:
		return v
	}
}

// compress returns the stored payload and the compression actually used.
// LZ4 falls back to none when the block does not shrink.
func compress(c Compression, raw []byte) ([]byte, Compression, error) {
	switch c {
	case CompressionNone:
		return raw, CompressionNone, nil
	case CompressionZstd:
		return zstdEncoder.EncodeAll(raw, nil), CompressionZstd, nil
	case CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := lz4.CompressBlock(raw, dst, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("lz4 compress: %w", err)
		}
		if n == 0 || n >= len(raw) {
			return raw, CompressionNone, nil
		}
		return dst[:n], CompressionLZ4, nil
	default:
		return nil, 0, fmt.Errorf("unsupported compression %s", c)
	}
}

const (
	// maxExpansion bounds RawSize relative to the payload. LZ4 block
	// format cannot exceed 255x; index documents compress far below that.
	maxExpansion = 255
	maxRawSize   = 1 << 32
)

// checkRawSize rejects a header RawSize that cannot describe payloadSize
// bytes of the given compression, before anything is allocated from it.
func checkRawSize(c Compression, payloadSize, rawSize uint64) error {
	if c == CompressionNone {
		if rawSize != payloadSize {
			return fmt.Errorf("raw size %d differs from uncompressed payload size %d", rawSize, payloadSize)
		}
		return nil
	}
	if rawSize > maxRawSize || rawSize > payloadSize*maxExpansion {
		return fmt.Errorf("raw size %d is implausible for a %d byte %s payload", rawSize, payloadSize, c)
	}
	return nil
}

func decompress(c Compression, payload []byte, rawSize int) ([]byte, error) {
	switch c {
	case CompressionNone:
		return payload, nil
	case CompressionZstd:
		out, err := zstdDecoder.DecodeAll(payload, make([]byte, 0, rawSize))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(out) != rawSize {
			return nil, fmt.Errorf("zstd produced %d bytes, header says %d", len(out), rawSize)
		}
		return out, nil
	case CompressionLZ4:
		dst := make([]byte, rawSize)
		n, err := lz4.UncompressBlock(payload, dst)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if n != rawSize {
			return nil, fmt.Errorf("lz4 produced %d bytes, header says %d", n, rawSize)
		}
		return dst[:n], nil
	default:
		return nil, fmt.Errorf("unsupported compression %s", c)
	}
}
