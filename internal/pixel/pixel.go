package pixel

import (
	"context"
	"errors"
)

// ErrOutOfMemory is returned by decoders that cannot allocate the decoded
// pixel buffer. Preload treats it as fatal for the current task only and
// as a hint to shrink future window estimates.
var ErrOutOfMemory = errors.New("pixel: out of memory")

// Buffer holds one instance's decoded pixel data.
type Buffer struct {
	Data            []byte
	Rows            int
	Columns         int
	BitsAllocated   int
	SamplesPerPixel int
}

// Size returns the buffer's byte length.
func (b *Buffer) Size() int64 {
	if b == nil {
		return 0
	}
	return int64(len(b.Data))
}

// InstanceInfo is the decode-facing view of one instance: identity plus
// the pixel geometry needed for size estimation.
type InstanceInfo struct {
	SOPInstanceUID  string
	Rows            int
	Columns         int
	BitsAllocated   int
	SamplesPerPixel int
}

// EstimateSize predicts the decoded byte size of an instance from its
// geometry attributes. Zero when any attribute is missing; estimation
// inaccuracy degrades prefetch quality, never correctness.
func EstimateSize(info InstanceInfo) int64 {
	if info.Rows <= 0 || info.Columns <= 0 || info.BitsAllocated <= 0 || info.SamplesPerPixel <= 0 {
		return 0
	}
	return int64(info.Rows) * int64(info.Columns) * int64(info.SamplesPerPixel) * int64(info.BitsAllocated) / 8
}

// Decoder produces decoded pixel data for an instance. Implementations
// must honor ctx cancellation; the preload worker blocks only here and on
// its own cancellation check.
type Decoder interface {
	Decode(ctx context.Context, info InstanceInfo) (*Buffer, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(ctx context.Context, info InstanceInfo) (*Buffer, error)

func (f DecoderFunc) Decode(ctx context.Context, info InstanceInfo) (*Buffer, error) {
	return f(ctx, info)
}

// SyntheticDecoder synthesizes a zeroed buffer of the estimated size.
// Useful for dry-run preloading and tests; it never fails unless the
// context is cancelled.
func SyntheticDecoder() Decoder {
	return DecoderFunc(func(ctx context.Context, info InstanceInfo) (*Buffer, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n := EstimateSize(info)
		if n <= 0 {
			n = 1
		}
		return &Buffer{
			Data:            make([]byte, n),
			Rows:            info.Rows,
			Columns:         info.Columns,
			BitsAllocated:   info.BitsAllocated,
			SamplesPerPixel: info.SamplesPerPixel,
		}, nil
	})
}
