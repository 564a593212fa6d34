package store

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

const (
	compressionNone = "none"
	compressionZstd = "zstd"
)

// minCompressSize is the size below which code is stored uncompressed; the
// zstd frame overhead outweighs any gain.
const minCompressSize = 64

// zstdEncoder and zstdDecoder are reused across calls. zstd.Encoder and
// zstd.Decoder are safe for concurrent use with EncodeAll/DecodeAll.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("store: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("store: zstd decoder initialization failed: " + err.Error())
	}
}

// compressCode returns the stored form of code and its compression tag.
func compressCode(code []byte) ([]byte, string) {
	if len(code) < minCompressSize {
		return code, compressionNone
	}
	compressed := zstdEncoder.EncodeAll(code, make([]byte, 0, len(code)))
	if len(compressed) >= len(code) {
		return code, compressionNone
	}
	return compressed, compressionZstd
}

// decompressCode restores code from its stored form.
func decompressCode(data []byte, compression string, size int) ([]byte, error) {
	switch compression {
	case compressionNone:
		return data, nil
	case compressionZstd:
		out, err := zstdDecoder.DecodeAll(data, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(out) != size {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(out), size)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown compression %q", compression)
	}
}
