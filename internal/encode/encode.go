// Package encode writes arrays of DAP4 atomic values as bytes.
//
// Fixed-size values are written in the encoder's byte order. Strings and
// opaques are written as an 8-byte count followed by their bytes.
package encode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Encoder writes values to an io.Writer. The first write error sticks;
// later writes do nothing and Err reports it.
type Encoder struct {
	w       io.Writer
	order   binary.ByteOrder
	written int64
	err     error
	scratch [8]byte
}

// NewEncoder returns an encoder writing to w in the given byte order.
func NewEncoder(w io.Writer, order binary.ByteOrder) *Encoder {
	return &Encoder{w: w, order: order}
}

// Err returns the first write error.
func (e *Encoder) Err() error { return e.err }

// Order returns the byte order of fixed-size values.
func (e *Encoder) Order() binary.ByteOrder { return e.order }

// Written returns the number of bytes written.
func (e *Encoder) Written() int64 { return e.written }

// WriteBytes writes raw bytes.
func (e *Encoder) WriteBytes(data []byte) error {
	if e.err != nil || len(data) == 0 {
		return e.err
	}
	n, err := e.w.Write(data)
	e.written += int64(n)
	e.err = err
	return err
}

// WriteUint8 writes an unsigned 8-bit integer.
func (e *Encoder) WriteUint8(v uint8) error {
	e.scratch[0] = v
	return e.WriteBytes(e.scratch[:1])
}

// WriteUint16 writes an unsigned 16-bit integer.
func (e *Encoder) WriteUint16(v uint16) error {
	e.order.PutUint16(e.scratch[:2], v)
	return e.WriteBytes(e.scratch[:2])
}

// WriteUint32 writes an unsigned 32-bit integer.
func (e *Encoder) WriteUint32(v uint32) error {
	e.order.PutUint32(e.scratch[:4], v)
	return e.WriteBytes(e.scratch[:4])
}

// WriteUint64 writes an unsigned 64-bit integer.
func (e *Encoder) WriteUint64(v uint64) error {
	e.order.PutUint64(e.scratch[:8], v)
	return e.WriteBytes(e.scratch[:8])
}

// WriteCount writes the 8-byte count that precedes variable-length data
// and sequence records.
func (e *Encoder) WriteCount(n int64) error {
	return e.WriteUint64(uint64(n))
}

// WriteArray writes every value of arr, which must be one of []byte,
// []int8, []int16, []int32, []int64, []float32, []float64, []string or
// [][]byte.
func (e *Encoder) WriteArray(arr interface{}) error {
	switch vals := arr.(type) {
	case []byte:
		return e.WriteBytes(vals)
	case []int8:
		for _, v := range vals {
			e.WriteUint8(uint8(v))
		}
	case []int16:
		for _, v := range vals {
			e.WriteUint16(uint16(v))
		}
	case []int32:
		for _, v := range vals {
			e.WriteUint32(uint32(v))
		}
	case []int64:
		for _, v := range vals {
			e.WriteUint64(uint64(v))
		}
	case []float32:
		for _, v := range vals {
			e.WriteUint32(math.Float32bits(v))
		}
	case []float64:
		for _, v := range vals {
			e.WriteUint64(math.Float64bits(v))
		}
	case []string:
		for _, v := range vals {
			e.WriteCount(int64(len(v)))
			e.WriteBytes([]byte(v))
		}
	case [][]byte:
		for _, v := range vals {
			e.WriteCount(int64(len(v)))
			e.WriteBytes(v)
		}
	default:
		return fmt.Errorf("cannot encode %T", arr)
	}
	return e.err
}

// Encode returns the encoding of arr in the given byte order.
func Encode(arr interface{}, order binary.ByteOrder) ([]byte, error) {
	var buf bytes.Buffer
	if err := NewEncoder(&buf, order).WriteArray(arr); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
