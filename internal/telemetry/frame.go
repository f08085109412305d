package telemetry

import (
	"encoding/binary"
	"fmt"

	"github.com/berrythewa/ifmctl/internal/errors"
	"github.com/berrythewa/ifmctl/internal/types"
)

// Frame layout, all little-endian:
//
//	+-----------+------------------------------------------+
//	| count u32 | count x (x i16, y i16, z i16)             |
//	+-----------+------------------------------------------+
const (
	headerSize = 4
	sampleSize = 6
)

// DecodeFrame averages every sample of one telemetry frame per axis.
// An empty frame is reported as ErrEmptyFrame instead of dividing by zero.
// Bytes past the last declared sample are ignored.
func DecodeFrame(b []byte) (types.FrameAverage, error) {
	if len(b) < headerSize {
		return types.FrameAverage{}, errors.WrapFrame(
			fmt.Errorf("%w: %d bytes", errors.ErrFrameTooShort, len(b)), "telemetry", "DecodeFrame")
	}

	count := binary.LittleEndian.Uint32(b[0:headerSize])
	if count == 0 {
		return types.FrameAverage{}, errors.WrapFrame(errors.ErrEmptyFrame, "telemetry", "DecodeFrame")
	}

	need := uint64(headerSize) + uint64(sampleSize)*uint64(count)
	if uint64(len(b)) < need {
		return types.FrameAverage{}, errors.WrapFrame(
			fmt.Errorf("%w: count %d needs %d bytes, got %d", errors.ErrFrameTruncated, count, need, len(b)),
			"telemetry", "DecodeFrame")
	}

	var sx, sy, sz int64
	off := headerSize
	for i := uint32(0); i < count; i++ {
		sx += int64(int16(binary.LittleEndian.Uint16(b[off:])))
		sy += int64(int16(binary.LittleEndian.Uint16(b[off+2:])))
		sz += int64(int16(binary.LittleEndian.Uint16(b[off+4:])))
		off += sampleSize
	}

	n := float64(count)
	return types.FrameAverage{
		Count: count,
		X:     float64(sx) / n,
		Y:     float64(sy) / n,
		Z:     float64(sz) / n,
	}, nil
}

// EncodeFrame lays samples out in the wire format read by DecodeFrame
func EncodeFrame(samples []types.Sample) []byte {
	b := make([]byte, headerSize+sampleSize*len(samples))
	binary.LittleEndian.PutUint32(b[0:headerSize], uint32(len(samples)))
	off := headerSize
	for _, s := range samples {
		binary.LittleEndian.PutUint16(b[off:], uint16(s.X))
		binary.LittleEndian.PutUint16(b[off+2:], uint16(s.Y))
		binary.LittleEndian.PutUint16(b[off+4:], uint16(s.Z))
		off += sampleSize
	}
	return b
}

// decodeErrorReason maps a decode failure to a short metrics label
func decodeErrorReason(err error) string {
	switch {
	case errors.Is(err, errors.ErrEmptyFrame):
		return "empty"
	case errors.Is(err, errors.ErrFrameTooShort):
		return "too_short"
	case errors.Is(err, errors.ErrFrameTruncated):
		return "truncated"
	default:
		return "other"
	}
}
