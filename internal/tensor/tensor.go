package tensor

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// Tensor is a dense row-major float32 array
type Tensor struct {
	Shape []int
	Data  []float32
}

// New allocates a zero-filled tensor with the given shape
func New(shape ...int) *Tensor {
	return &Tensor{
		Shape: append([]int(nil), shape...),
		Data:  make([]float32, numel(shape)),
	}
}

// FromData wraps data in a tensor, checking that the shape matches its length
func FromData(data []float32, shape ...int) (*Tensor, error) {
	if n := numel(shape); n != len(data) {
		return nil, fmt.Errorf("shape %v needs %d values, got %d", shape, n, len(data))
	}
	return &Tensor{Shape: append([]int(nil), shape...), Data: data}, nil
}

// Randn fills a new tensor with standard normal samples drawn from rng
func Randn(rng *rand.Rand, shape ...int) *Tensor {
	t := New(shape...)
	for i := range t.Data {
		t.Data[i] = float32(rng.NormFloat64())
	}
	return t
}

// ZerosLike returns a zero tensor with t's shape
func ZerosLike(t *Tensor) *Tensor {
	return New(t.Shape...)
}

func numel(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Len returns the number of elements
func (t *Tensor) Len() int {
	return len(t.Data)
}

// Rank returns the number of dimensions
func (t *Tensor) Rank() int {
	return len(t.Shape)
}

// Clone returns a deep copy
func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		Shape: append([]int(nil), t.Shape...),
		Data:  append([]float32(nil), t.Data...),
	}
}

// SameShape reports whether t and o have identical dimensions
func (t *Tensor) SameShape(o *Tensor) bool {
	if len(t.Shape) != len(o.Shape) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != o.Shape[i] {
			return false
		}
	}
	return true
}

func (t *Tensor) strides() []int {
	s := make([]int, len(t.Shape))
	acc := 1
	for i := len(t.Shape) - 1; i >= 0; i-- {
		s[i] = acc
		acc *= t.Shape[i]
	}
	return s
}

func (t *Tensor) offset(idx []int) int {
	if len(idx) != len(t.Shape) {
		panic(fmt.Sprintf("tensor: index rank %d for shape %v", len(idx), t.Shape))
	}
	off, stride := 0, 1
	for i := len(t.Shape) - 1; i >= 0; i-- {
		if idx[i] < 0 || idx[i] >= t.Shape[i] {
			panic(fmt.Sprintf("tensor: index %v out of range for shape %v", idx, t.Shape))
		}
		off += idx[i] * stride
		stride *= t.Shape[i]
	}
	return off
}

// At returns the element at idx
func (t *Tensor) At(idx ...int) float32 {
	return t.Data[t.offset(idx)]
}

// Set stores v at idx
func (t *Tensor) Set(v float32, idx ...int) {
	t.Data[t.offset(idx)] = v
}

// Reshape returns a view with a new shape over the same data.
// A single -1 dimension is inferred.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	out := append([]int(nil), shape...)
	infer := -1
	known := 1
	for i, d := range out {
		if d == -1 {
			if infer >= 0 {
				return nil, fmt.Errorf("reshape %v: more than one inferred dimension", shape)
			}
			infer = i
			continue
		}
		known *= d
	}
	if infer >= 0 {
		if known == 0 || t.Len()%known != 0 {
			return nil, fmt.Errorf("cannot reshape %v into %v", t.Shape, shape)
		}
		out[infer] = t.Len() / known
	}
	if numel(out) != t.Len() {
		return nil, fmt.Errorf("cannot reshape %v into %v", t.Shape, shape)
	}
	return &Tensor{Shape: out, Data: t.Data}, nil
}

// Unsqueeze inserts a unit axis at position axis
func (t *Tensor) Unsqueeze(axis int) *Tensor {
	if axis < 0 {
		axis += len(t.Shape) + 1
	}
	shape := make([]int, 0, len(t.Shape)+1)
	shape = append(shape, t.Shape[:axis]...)
	shape = append(shape, 1)
	shape = append(shape, t.Shape[axis:]...)
	return &Tensor{Shape: shape, Data: t.Data}
}

// Transpose permutes the axes of t into a new tensor
func (t *Tensor) Transpose(perm ...int) (*Tensor, error) {
	if len(perm) != len(t.Shape) {
		return nil, fmt.Errorf("transpose: permutation %v for shape %v", perm, t.Shape)
	}
	seen := make([]bool, len(perm))
	shape := make([]int, len(perm))
	for i, p := range perm {
		if p < 0 || p >= len(perm) || seen[p] {
			return nil, fmt.Errorf("transpose: invalid permutation %v", perm)
		}
		seen[p] = true
		shape[i] = t.Shape[p]
	}

	out := New(shape...)
	src := t.strides()
	idx := make([]int, len(shape))
	for o := range out.Data {
		off := 0
		for i, p := range perm {
			off += idx[i] * src[p]
		}
		out.Data[o] = t.Data[off]

		for d := len(idx) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < shape[d] {
				break
			}
			idx[d] = 0
		}
	}
	return out, nil
}

// Slice copies the half-open range [start, end) along axis
func (t *Tensor) Slice(axis, start, end int) (*Tensor, error) {
	if axis < 0 || axis >= len(t.Shape) {
		return nil, fmt.Errorf("slice: axis %d for shape %v", axis, t.Shape)
	}
	if start < 0 || end > t.Shape[axis] || start > end {
		return nil, fmt.Errorf("slice: range [%d,%d) for axis %d of %v", start, end, axis, t.Shape)
	}
	return t.Gather(axis, rangeIndices(start, end))
}

// Gather copies the listed positions along axis, in order
func (t *Tensor) Gather(axis int, indices []int) (*Tensor, error) {
	if axis < 0 || axis >= len(t.Shape) {
		return nil, fmt.Errorf("gather: axis %d for shape %v", axis, t.Shape)
	}
	outer := numel(t.Shape[:axis])
	inner := numel(t.Shape[axis+1:])
	dim := t.Shape[axis]

	shape := append([]int(nil), t.Shape...)
	shape[axis] = len(indices)
	out := New(shape...)

	dst := 0
	for o := 0; o < outer; o++ {
		base := o * dim * inner
		for _, i := range indices {
			if i < 0 || i >= dim {
				return nil, fmt.Errorf("gather: index %d out of range for axis %d of %v", i, axis, t.Shape)
			}
			copy(out.Data[dst:dst+inner], t.Data[base+i*inner:base+(i+1)*inner])
			dst += inner
		}
	}
	return out, nil
}

// Concat joins tensors along axis. All other dimensions must agree.
func Concat(axis int, ts ...*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("concat: no tensors")
	}
	first := ts[0]
	if axis < 0 || axis >= len(first.Shape) {
		return nil, fmt.Errorf("concat: axis %d for shape %v", axis, first.Shape)
	}
	shape := append([]int(nil), first.Shape...)
	shape[axis] = 0
	for _, t := range ts {
		if len(t.Shape) != len(first.Shape) {
			return nil, fmt.Errorf("concat: rank mismatch %v vs %v", t.Shape, first.Shape)
		}
		for d := range t.Shape {
			if d != axis && t.Shape[d] != first.Shape[d] {
				return nil, fmt.Errorf("concat: shape mismatch %v vs %v on axis %d", t.Shape, first.Shape, d)
			}
		}
		shape[axis] += t.Shape[axis]
	}

	out := New(shape...)
	outer := numel(first.Shape[:axis])
	inner := numel(first.Shape[axis+1:])
	dst := 0
	for o := 0; o < outer; o++ {
		for _, t := range ts {
			n := t.Shape[axis] * inner
			copy(out.Data[dst:dst+n], t.Data[o*n:(o+1)*n])
			dst += n
		}
	}
	return out, nil
}

// Stack joins equally shaped tensors along a new axis
func Stack(axis int, ts ...*Tensor) (*Tensor, error) {
	expanded := make([]*Tensor, len(ts))
	for i, t := range ts {
		expanded[i] = t.Unsqueeze(axis)
	}
	return Concat(axis, expanded...)
}

// Clamp limits every element to [lo, hi] in place and returns t
func (t *Tensor) Clamp(lo, hi float32) *Tensor {
	for i, v := range t.Data {
		if v < lo || math.IsNaN(float64(v)) {
			t.Data[i] = lo
		} else if v > hi {
			t.Data[i] = hi
		}
	}
	return t
}

// MinMax returns the smallest and largest element
func (t *Tensor) MinMax() (float32, float32) {
	if len(t.Data) == 0 {
		return 0, 0
	}
	lo, hi := t.Data[0], t.Data[0]
	for _, v := range t.Data[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return lo, hi
}

func rangeIndices(start, end int) []int {
	idx := make([]int, 0, end-start)
	for i := start; i < end; i++ {
		idx = append(idx, i)
	}
	return idx
}
