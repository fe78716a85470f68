package metric

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/x448/float16"
)

// encodeChunk is the number of coordinate values staged per Write call.
const encodeChunk = 4096

// WritePositions streams a flat xyz buffer to w as little-endian binary at
// the requested precision. Float16 halves the payload at the cost of about
// three significant digits, which is fine for display geometry.
func WritePositions(w io.Writer, positions []float32, p Precision) error {
	switch p {
	case Float32, "":
		buf := make([]byte, 4*encodeChunk)
		for len(positions) > 0 {
			n := len(positions)
			if n > encodeChunk {
				n = encodeChunk
			}
			for i, v := range positions[:n] {
				binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
			}
			if _, err := w.Write(buf[:4*n]); err != nil {
				return err
			}
			positions = positions[n:]
		}
		return nil
	case Float16:
		buf := make([]byte, 2*encodeChunk)
		for len(positions) > 0 {
			n := len(positions)
			if n > encodeChunk {
				n = encodeChunk
			}
			for i, v := range positions[:n] {
				binary.LittleEndian.PutUint16(buf[2*i:], float16.Fromfloat32(v).Bits())
			}
			if _, err := w.Write(buf[:2*n]); err != nil {
				return err
			}
			positions = positions[n:]
		}
		return nil
	default:
		return fmt.Errorf("metric: unknown precision %q", p)
	}
}

// DecodePositions parses a buffer produced by WritePositions back into
// float32 coordinates.
func DecodePositions(data []byte, p Precision) ([]float32, error) {
	size := p.ValueSize()
	if len(data)%size != 0 {
		return nil, fmt.Errorf("metric: %d bytes is not a multiple of the %d-byte %s encoding", len(data), size, p)
	}
	out := make([]float32, len(data)/size)
	switch p {
	case Float32, "":
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
		}
	case Float16:
		for i := range out {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(data[2*i:])).Float32()
		}
	default:
		return nil, fmt.Errorf("metric: unknown precision %q", p)
	}
	return out, nil
}
