package flow

import (
	"fmt"
	"math"

	"github.com/bdougie/motionctrl/internal/tensor"
)

const (
	defaultKernelSize = 99
	defaultSigma      = 10.0
)

// GaussianSynthesizer places each frame's displacement at the previous point
// and spreads it with a normalized isotropic Gaussian. Frame 0 carries no motion.
type GaussianSynthesizer struct {
	Size       int // square field resolution
	KernelSize int // odd
	Sigma      float64
}

// NewGaussianSynthesizer returns a synthesizer with the working resolution and 99px/sigma 10 blur
func NewGaussianSynthesizer() *GaussianSynthesizer {
	return &GaussianSynthesizer{
		Size:       WorkingSize,
		KernelSize: defaultKernelSize,
		Sigma:      defaultSigma,
	}
}

// Synthesize implements Synthesizer
func (g *GaussianSynthesizer) Synthesize(points []Point, frames int) (*tensor.Tensor, error) {
	if len(points) < frames {
		return nil, fmt.Errorf("need %d points, got %d", frames, len(points))
	}
	if g.KernelSize%2 == 0 || g.KernelSize <= 0 {
		return nil, fmt.Errorf("kernel size %d must be odd and positive", g.KernelSize)
	}

	size := g.Size
	out := tensor.New(frames, size, size, 2)
	kernel := g.kernel()
	for i := 1; i < frames; i++ {
		prev, cur := g.clamp(points[i-1]), g.clamp(points[i])
		dx := float32(cur.X - prev.X)
		dy := float32(cur.Y - prev.Y)
		if dx == 0 && dy == 0 {
			continue
		}

		wy := g.spread(prev.Y, kernel)
		wx := g.spread(prev.X, kernel)
		base := i * size * size * 2
		for y, ky := range wy {
			if ky == 0 {
				continue
			}
			row := base + y*size*2
			for x, kx := range wx {
				w := ky * kx
				out.Data[row+2*x] = dx * w
				out.Data[row+2*x+1] = dy * w
			}
		}
	}
	return out, nil
}

func (g *GaussianSynthesizer) clamp(p Point) Point {
	return Point{
		X: min(max(p.X, 0), g.Size-1),
		Y: min(max(p.Y, 0), g.Size-1),
	}
}

// kernel returns the normalized 1D Gaussian; the 2D kernel is its outer product
func (g *GaussianSynthesizer) kernel() []float32 {
	half := g.KernelSize / 2
	k := make([]float64, g.KernelSize)
	sum := 0.0
	for i := range k {
		d := float64(i - half)
		k[i] = math.Exp(-d * d / (2 * g.Sigma * g.Sigma))
		sum += k[i]
	}
	out := make([]float32, len(k))
	for i := range k {
		out[i] = float32(k[i] / sum)
	}
	return out
}

// spread filters a unit impulse at c along one axis with reflect-101 borders
func (g *GaussianSynthesizer) spread(c int, kernel []float32) []float32 {
	size := g.Size
	half := len(kernel) / 2
	centers := []int{c}
	if c != 0 {
		centers = append(centers, -c)
	}
	if c != size-1 {
		centers = append(centers, 2*(size-1)-c)
	}

	w := make([]float32, size)
	for _, m := range centers {
		for pos := max(m-half, 0); pos <= min(m+half, size-1); pos++ {
			w[pos] += kernel[pos-m+half]
		}
	}
	return w
}
