package flow

import (
	"math"
	"reflect"
	"testing"

	"github.com/bdougie/motionctrl/internal/keyframes"
	"github.com/bdougie/motionctrl/internal/tensor"
)

func TestRescale(t *testing.T) {
	got, err := Rescale(keyframes.Keyframes{{117, 102}, {1023, 0}, {4, 3.9}}, ReferenceExtent, WorkingSize)
	if err != nil {
		t.Fatalf("Rescale: %v", err)
	}
	want := []Point{{29, 25}, {255, 0}, {1, 0}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Rescale = %v, want %v", got, want)
	}
	if _, err := Rescale(keyframes.Keyframes{{1}}, ReferenceExtent, WorkingSize); err == nil {
		t.Fatalf("expected error for 1-value point")
	}
}

type recordingSynth struct {
	points []Point
}

func (r *recordingSynth) Synthesize(points []Point, frames int) (*tensor.Tensor, error) {
	r.points = points
	out := tensor.New(frames, 4, 4, 2)
	for i := range out.Data {
		out.Data[i] = float32(i)
	}
	return out, nil
}

func TestMaterialize_ChannelFirst(t *testing.T) {
	synth := &recordingSynth{}
	got, err := Materialize(keyframes.Keyframes{{512, 256}}, 3, synth)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if want := []int{2, 3, 4, 4}; !reflect.DeepEqual(got.Shape, want) {
		t.Fatalf("shape = %v, want %v", got.Shape, want)
	}
	if len(synth.points) != 3 || synth.points[2] != (Point{128, 64}) {
		t.Fatalf("synthesizer saw %v", synth.points)
	}
	// channel 1 of frame 2, pixel (3,1)
	if got.At(1, 2, 3, 1) != float32(((2*4+3)*4+1)*2+1) {
		t.Fatalf("transpose misplaced values")
	}
}

func TestGaussianSynthesizer_StaticPointHasNoFlow(t *testing.T) {
	g := NewGaussianSynthesizer()
	points := make([]Point, 4)
	for i := range points {
		points[i] = Point{29, 25}
	}
	field, err := g.Synthesize(points, 4)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if want := []int{4, 256, 256, 2}; !reflect.DeepEqual(field.Shape, want) {
		t.Fatalf("shape = %v", field.Shape)
	}
	lo, hi := field.MinMax()
	if lo != 0 || hi != 0 {
		t.Fatalf("static trajectory produced flow in [%v,%v]", lo, hi)
	}
}

func TestGaussianSynthesizer_DisplacementMass(t *testing.T) {
	g := NewGaussianSynthesizer()
	points := []Point{{100, 120}, {110, 115}}
	field, err := g.Synthesize(points, 2)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	var sumX, sumY float64
	for y := 0; y < 256; y++ {
		for x := 0; x < 256; x++ {
			sumX += float64(field.At(1, y, x, 0))
			sumY += float64(field.At(1, y, x, 1))
			if field.At(0, y, x, 0) != 0 {
				t.Fatalf("frame 0 must carry no motion")
			}
		}
	}
	// interior impulse: normalized kernel preserves the displacement
	if math.Abs(sumX-10) > 1e-2 || math.Abs(sumY+5) > 1e-2 {
		t.Fatalf("flow mass = (%v, %v), want (10, -5)", sumX, sumY)
	}
	if peak := field.At(1, 120, 100, 0); peak <= field.At(1, 120, 130, 0) {
		t.Fatalf("flow does not peak at the previous point")
	}
}

func TestGaussianSynthesizer_BorderReflects(t *testing.T) {
	g := NewGaussianSynthesizer()
	field, err := g.Synthesize([]Point{{3, 128}, {6, 128}}, 2)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	var sum float64
	for y := 0; y < 256; y++ {
		for x := 0; x < 256; x++ {
			sum += float64(field.At(1, y, x, 0))
		}
	}
	// the mirrored tail folds back in, so mass near the edge slightly exceeds the displacement
	if sum <= 3 || sum > 3.2 {
		t.Fatalf("border flow mass = %v, want just above 3", sum)
	}
	if field.At(1, 128, 0, 0) <= field.At(1, 128, 6, 0) {
		t.Fatalf("reflection did not raise the edge column")
	}
}
