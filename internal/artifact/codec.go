package artifact

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies how an artifact payload is stored on disk.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZSTD Compression = 2
)

// ParseCompression maps a configured name to a Compression.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}

func (c Compression) String() string {
	switch c {
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return "none"
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() (*zstd.Encoder, error) {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil)
}

// header: [compression uint8][uncompressed uint32][stored uint32]
const headerSize = 9

// encode gob-encodes v and compresses the result. Payloads that do not
// shrink are stored uncompressed.
func encode(v any, c Compression) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	raw := buf.Bytes()

	stored, used, err := compress(raw, c)
	if err != nil {
		return nil, err
	}
	out := make([]byte, headerSize+len(stored))
	out[0] = byte(used)
	binary.LittleEndian.PutUint32(out[1:], uint32(len(raw)))
	binary.LittleEndian.PutUint32(out[5:], uint32(len(stored)))
	copy(out[headerSize:], stored)
	return out, nil
}

func compress(raw []byte, c Compression) ([]byte, Compression, error) {
	var compressed []byte
	switch c {
	case CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := lz4.CompressBlock(raw, dst, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("lz4 compress: %w", err)
		}
		compressed = dst[:n]
	case CompressionZSTD:
		enc, err := getZstdEncoder()
		if err != nil {
			return nil, 0, fmt.Errorf("zstd encoder: %w", err)
		}
		compressed = enc.EncodeAll(raw, nil)
		zstdEncoderPool.Put(enc)
	default:
		return raw, CompressionNone, nil
	}
	if len(compressed) == 0 || len(compressed) >= len(raw) {
		return raw, CompressionNone, nil
	}
	return compressed, c, nil
}

// decode reverses encode into v, whatever compression was used to write it.
func decode(data []byte, v any) error {
	if len(data) < headerSize {
		return errors.New("artifact too small for header")
	}
	c := Compression(data[0])
	size := binary.LittleEndian.Uint32(data[1:])
	stored := binary.LittleEndian.Uint32(data[5:])
	if uint32(len(data)-headerSize) < stored {
		return errors.New("artifact truncated")
	}
	payload := data[headerSize : headerSize+int(stored)]

	var raw []byte
	switch c {
	case CompressionNone:
		raw = payload
	case CompressionLZ4:
		raw = make([]byte, size)
		n, err := lz4.UncompressBlock(payload, raw)
		if err != nil {
			return fmt.Errorf("lz4 decompress: %w", err)
		}
		raw = raw[:n]
	case CompressionZSTD:
		dec, err := getZstdDecoder()
		if err != nil {
			return fmt.Errorf("zstd decoder: %w", err)
		}
		raw, err = dec.DecodeAll(payload, make([]byte, 0, size))
		zstdDecoderPool.Put(dec)
		if err != nil {
			return fmt.Errorf("zstd decompress: %w", err)
		}
	default:
		return fmt.Errorf("unknown compression tag %d", c)
	}
	if uint32(len(raw)) != size {
		return errors.New("decompressed size mismatch")
	}
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(v); err != nil {
		return fmt.Errorf("gob decode: %w", err)
	}
	return nil
}
