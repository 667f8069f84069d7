package storage

import (
	"bytes"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"
)

// Compression selects how the chunk payload is stored.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionLZ4
	CompressionZstd
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression maps a config value to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "none", "":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", s)
	}
}

const (
	chunkVersion = 1
	checksumSize = 32

	// magic(4) version(1) compression(1) generation(8) length(4) checksum(32)
	headerSize = 4 + 1 + 1 + 8 + 4 + checksumSize
)

var chunkMagic = [4]byte{'L', 'L', 'C', 'K'}

// chunkKey domain-separates chunk checksums from every other BLAKE3 use.
var chunkKey = blake3.Sum256([]byte("linkledger.storage.chunk.v1"))

// ErrCorrupt is returned for chunks that fail structural or checksum checks.
var ErrCorrupt = errors.New("storage: corrupt chunk")

var errIncompressible = errors.New("incompressible")

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("storage: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("storage: zstd decoder initialization failed: " + err.Error())
	}
}

// Chunk is one decoded replica.
type Chunk struct {
	Generation uint64
	Payload    []byte
}

// EncodeChunk frames payload with a header and keyed checksum. If the
// requested compression does not shrink the payload it is stored raw.
func EncodeChunk(generation uint64, c Compression, payload []byte) ([]byte, error) {
	if len(payload) > math.MaxUint32 {
		return nil, fmt.Errorf("payload too large: %d bytes", len(payload))
	}

	body, tag, err := compress(c, payload)
	if err != nil {
		return nil, err
	}

	out := make([]byte, headerSize+len(body))
	copy(out[0:4], chunkMagic[:])
	out[4] = chunkVersion
	out[5] = byte(tag)
	binary.BigEndian.PutUint64(out[6:14], generation)
	binary.BigEndian.PutUint32(out[14:18], uint32(len(payload)))
	copy(out[headerSize:], body)

	sum, err := checksum(out[4:18], body)
	if err != nil {
		return nil, err
	}
	copy(out[18:headerSize], sum)
	return out, nil
}

// DecodeChunk validates raw and returns its payload.
func DecodeChunk(raw []byte) (*Chunk, error) {
	if len(raw) < headerSize {
		return nil, fmt.Errorf("%w: short chunk (%d bytes)", ErrCorrupt, len(raw))
	}
	if !bytes.Equal(raw[0:4], chunkMagic[:]) {
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	if raw[4] != chunkVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, raw[4])
	}

	body := raw[headerSize:]
	want, err := checksum(raw[4:18], body)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare(want, raw[18:headerSize]) != 1 {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	tag := Compression(raw[5])
	size := int(binary.BigEndian.Uint32(raw[14:18]))
	payload, err := decompress(tag, body, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	return &Chunk{
		Generation: binary.BigEndian.Uint64(raw[6:14]),
		Payload:    payload,
	}, nil
}

func checksum(header, body []byte) ([]byte, error) {
	h, err := blake3.NewKeyed(chunkKey[:])
	if err != nil {
		return nil, fmt.Errorf("blake3 keyed hash initialization failed: %w", err)
	}
	h.Write(header)
	h.Write(body)
	return h.Sum(nil), nil
}

func compress(c Compression, data []byte) ([]byte, Compression, error) {
	var (
		out []byte
		err error
	)
	if len(data) == 0 {
		return data, CompressionNone, nil
	}
	switch c {
	case CompressionNone:
		return data, CompressionNone, nil
	case CompressionLZ4:
		out, err = compressLZ4(data)
	case CompressionZstd:
		out, err = compressZstd(data)
	default:
		return nil, 0, fmt.Errorf("unsupported compression tag: %d", c)
	}
	if errors.Is(err, errIncompressible) {
		return data, CompressionNone, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return out, c, nil
}

func decompress(c Compression, data []byte, size int) ([]byte, error) {
	switch c {
	case CompressionNone:
		if len(data) != size {
			return nil, fmt.Errorf("raw payload: got %d bytes, expected %d", len(data), size)
		}
		out := make([]byte, size)
		copy(out, data)
		return out, nil
	case CompressionLZ4:
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if n != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", n, size)
		}
		return out, nil
	case CompressionZstd:
		out, err := zstdDecoder.DecodeAll(data, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(out) != size {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(out), size)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", c)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// 0 means lz4 judged the input incompressible
	if n == 0 || n >= len(data) {
		return nil, errIncompressible
	}
	return dst[:n], nil
}

func compressZstd(data []byte) ([]byte, error) {
	out := zstdEncoder.EncodeAll(data, nil)
	if len(out) >= len(data) {
		return nil, errIncompressible
	}
	return out, nil
}
