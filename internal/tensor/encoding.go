package tensor

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// magic prefixes every serialized tensor
var magic = [4]byte{'M', 'C', 'T', '1'}

var ErrBadEncoding = errors.New("tensor: bad encoding")

// MarshalBinary encodes the tensor as magic, rank, dims and little-endian float32 data
func (t *Tensor) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(8 + 4*len(t.Shape) + 4*len(t.Data))
	buf.Write(magic[:])
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(t.Shape)))
	for _, d := range t.Shape {
		_ = binary.Write(&buf, binary.LittleEndian, uint32(d))
	}
	word := make([]byte, 4)
	for _, v := range t.Data {
		binary.LittleEndian.PutUint32(word, math.Float32bits(v))
		buf.Write(word)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes data produced by MarshalBinary
func (t *Tensor) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)

	var head [4]byte
	if _, err := io.ReadFull(r, head[:]); err != nil || head != magic {
		return ErrBadEncoding
	}
	var rank uint32
	if err := binary.Read(r, binary.LittleEndian, &rank); err != nil {
		return fmt.Errorf("%w: rank: %v", ErrBadEncoding, err)
	}
	if rank > 16 {
		return fmt.Errorf("%w: rank %d", ErrBadEncoding, rank)
	}
	shape := make([]int, rank)
	for i := range shape {
		var d uint32
		if err := binary.Read(r, binary.LittleEndian, &d); err != nil {
			return fmt.Errorf("%w: dims: %v", ErrBadEncoding, err)
		}
		shape[i] = int(d)
	}

	n := numel(shape)
	if r.Len() != 4*n {
		return fmt.Errorf("%w: expected %d values, have %d bytes", ErrBadEncoding, n, r.Len())
	}
	values := make([]float32, n)
	rest := data[len(data)-r.Len():]
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(rest[4*i:]))
	}

	t.Shape = shape
	t.Data = values
	return nil
}
