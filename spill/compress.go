package spill

import (
	"fmt"
	"strings"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

type Compression int

const (
	NoCompression Compression = iota
	SnappyCompression
	ZstdCompression
)

var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return NoCompression, nil
	case "snappy":
		return SnappyCompression, nil
	case "zstd":
		return ZstdCompression, nil
	}
	return NoCompression, fmt.Errorf("spill: unknown compression: %s", s)
}

func (c Compression) String() string {
	switch c {
	case NoCompression:
		return "none"
	case SnappyCompression:
		return "snappy"
	case ZstdCompression:
		return "zstd"
	}
	return fmt.Sprintf("compression-%d", int(c))
}

func initZstd() error {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil)
		if zstdErr != nil {
			return
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil)
	})
	return zstdErr
}

func (c Compression) Compress(dst, src []byte) ([]byte, error) {
	switch c {
	case NoCompression:
		return append(dst[:0], src...), nil
	case SnappyCompression:
		return snappy.Encode(dst[:cap(dst)], src), nil
	case ZstdCompression:
		if err := initZstd(); err != nil {
			return nil, err
		}
		return zstdEncoder.EncodeAll(src, dst[:0]), nil
	}
	panic(fmt.Sprintf("spill: unexpected compression: %d", c))
}

func (c Compression) Decompress(dst, src []byte) ([]byte, error) {
	switch c {
	case NoCompression:
		return append(dst[:0], src...), nil
	case SnappyCompression:
		return snappy.Decode(dst[:cap(dst)], src)
	case ZstdCompression:
		if err := initZstd(); err != nil {
			return nil, err
		}
		return zstdDecoder.DecodeAll(src, dst[:0])
	}
	panic(fmt.Sprintf("spill: unexpected compression: %d", c))
}
