// Package frames turns decoded video tensors into displayable frame batches.
package frames

import (
	"fmt"
	"image"
	"image/color"

	"github.com/bdougie/motionctrl/internal/tensor"
)

// frameAxis is the temporal axis of a (1, T, H, W, 3) batch
const frameAxis = 1

// Batch is a (1, T, H, W, 3) stack of RGB frames with values in [0, 1]
type Batch struct {
	Pixels *tensor.Tensor
}

// NewBatch wraps a (1, T, H, W, 3) tensor
func NewBatch(t *tensor.Tensor) (*Batch, error) {
	if t == nil || t.Rank() != 5 || t.Shape[0] != 1 || t.Shape[4] != 3 {
		var shape []int
		if t != nil {
			shape = t.Shape
		}
		return nil, fmt.Errorf("frame batch must be (1, T, H, W, 3), got %v", shape)
	}
	return &Batch{Pixels: t}, nil
}

// Len returns the number of frames
func (b *Batch) Len() int { return b.Pixels.Shape[frameAxis] }

// Height returns the frame height in pixels
func (b *Batch) Height() int { return b.Pixels.Shape[2] }

// Width returns the frame width in pixels
func (b *Batch) Width() int { return b.Pixels.Shape[3] }

// Frame converts frame i to an 8-bit image
func (b *Batch) Frame(i int) *image.RGBA {
	h, w := b.Height(), b.Width()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	base := i * h * w * 3
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := base + (y*w+x)*3
			img.SetRGBA(x, y, color.RGBA{
				R: toByte(b.Pixels.Data[p]),
				G: toByte(b.Pixels.Data[p+1]),
				B: toByte(b.Pixels.Data[p+2]),
				A: 255,
			})
		}
	}
	return img
}

// BatchFromImages stacks equally sized images into a batch; alpha is dropped
func BatchFromImages(imgs []*image.RGBA) (*Batch, error) {
	if len(imgs) == 0 {
		return nil, fmt.Errorf("no frames to stack")
	}
	bounds := imgs[0].Bounds()
	h, w := bounds.Dy(), bounds.Dx()
	out := tensor.New(1, len(imgs), h, w, 3)
	for i, img := range imgs {
		if img.Bounds().Dx() != w || img.Bounds().Dy() != h {
			return nil, fmt.Errorf("frame %d is %v, want %dx%d", i, img.Bounds().Size(), w, h)
		}
		origin := img.Bounds().Min
		base := i * h * w * 3
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := img.RGBAAt(origin.X+x, origin.Y+y)
				p := base + (y*w+x)*3
				out.Data[p] = float32(c.R) / 255
				out.Data[p+1] = float32(c.G) / 255
				out.Data[p+2] = float32(c.B) / 255
			}
		}
	}
	return NewBatch(out)
}

func toByte(v float32) uint8 {
	v = min(max(v, 0), 1)
	return uint8(v*255 + 0.5)
}
