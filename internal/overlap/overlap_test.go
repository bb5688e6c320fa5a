package overlap

import (
	"errors"
	"math/rand/v2"
	"reflect"
	"testing"

	"github.com/bdougie/motionctrl/internal/keyframes"
	"github.com/bdougie/motionctrl/internal/models"
	"github.com/bdougie/motionctrl/internal/tensor"
)

func frames(start, n int) keyframes.Keyframes {
	kf := make(keyframes.Keyframes, n)
	for i := range kf {
		kf[i] = []float64{float64(start + i), float64(start + i)}
	}
	return kf
}

func TestStitch_ZeroOverlapPassesThrough(t *testing.T) {
	state := &Continuation{Camera: frames(100, 4), Trajectory: frames(200, 4)}
	cam, traj := frames(0, 4), frames(10, 4)

	gotCam, gotTraj, err := Stitch(state, cam, traj, 0)
	if err != nil {
		t.Fatalf("Stitch: %v", err)
	}
	if !reflect.DeepEqual(gotCam, cam) || !reflect.DeepEqual(gotTraj, traj) {
		t.Fatalf("k=0 modified keyframes: %v %v", gotCam, gotTraj)
	}
	if state.Camera[0][0] != 100 || state.Trajectory[0][0] != 200 {
		t.Fatalf("k=0 wrote state: %+v", state)
	}
}

func TestStitch_BlendsWithPrevious(t *testing.T) {
	state := &Continuation{Camera: frames(100, 6), Trajectory: frames(200, 6)}
	cam, traj := frames(0, 6), frames(10, 6)

	gotCam, gotTraj, err := Stitch(state, cam, traj, 2)
	if err != nil {
		t.Fatalf("Stitch: %v", err)
	}
	wantCam := append(frames(100, 2), frames(0, 4)...)
	wantTraj := append(frames(200, 2), frames(10, 4)...)
	if !reflect.DeepEqual(gotCam, wantCam) {
		t.Fatalf("camera = %v, want %v", gotCam, wantCam)
	}
	if !reflect.DeepEqual(gotTraj, wantTraj) {
		t.Fatalf("trajectory = %v, want %v", gotTraj, wantTraj)
	}
	if len(gotCam) != len(cam) {
		t.Fatalf("blended length %d, want %d", len(gotCam), len(cam))
	}
	if !reflect.DeepEqual(state.Camera, wantCam) || !reflect.DeepEqual(state.Trajectory, wantTraj) {
		t.Fatalf("state not updated with blended sequences")
	}
	gotCam[0][0] = -1
	if state.Camera[0][0] != 100 {
		t.Fatalf("state shares storage with returned keyframes")
	}
}

func TestStitch_FirstCallStoresInput(t *testing.T) {
	state := &Continuation{}
	cam, traj := frames(0, 4), frames(10, 4)
	gotCam, gotTraj, err := Stitch(state, cam, traj, 2)
	if err != nil {
		t.Fatalf("Stitch: %v", err)
	}
	if !reflect.DeepEqual(gotCam, cam) || !reflect.DeepEqual(gotTraj, traj) {
		t.Fatalf("first call modified keyframes")
	}
	if !reflect.DeepEqual(state.Camera, cam) || !reflect.DeepEqual(state.Trajectory, traj) {
		t.Fatalf("first call did not seed the chain: %+v", state)
	}
}

func TestStitch_OverlapRange(t *testing.T) {
	for _, k := range []int{-1, 33} {
		if _, _, err := Stitch(&Continuation{}, frames(0, 1), frames(0, 1), k); !errors.Is(err, ErrOverlapRange) {
			t.Fatalf("k=%d: err = %v, want ErrOverlapRange", k, err)
		}
	}
}

func TestSeedLatents(t *testing.T) {
	shape := models.NoiseShape{Batch: 1, Channels: 2, Frames: 5, Height: 2, Width: 2}
	rng := rand.New(rand.NewPCG(7, 7))
	prevX0 := tensor.Randn(rng, shape.Dims()...)
	prevXT := tensor.Randn(rng, shape.Dims()...)
	state := &Continuation{PredX0: prevX0, XInter: prevXT}

	x0, xT, err := SeedLatents(state, shape, 2, rand.New(rand.NewPCG(1, 1)))
	if err != nil {
		t.Fatalf("SeedLatents: %v", err)
	}
	if !reflect.DeepEqual(x0.Shape, shape.Dims()) || !reflect.DeepEqual(xT.Shape, shape.Dims()) {
		t.Fatalf("shapes = %v %v", x0.Shape, xT.Shape)
	}
	for c := 0; c < 2; c++ {
		for f := 0; f < 2; f++ {
			if x0.At(0, c, f, 1, 1) != prevX0.At(0, c, 3+f, 1, 1) {
				t.Fatalf("x0 frame %d is not the carried tail", f)
			}
			if xT.At(0, c, f, 0, 1) != prevXT.At(0, c, 3+f, 0, 1) {
				t.Fatalf("xT frame %d is not the carried tail", f)
			}
		}
		for f := 2; f < 5; f++ {
			if x0.At(0, c, f, 0, 0) != xT.At(0, c, f, 0, 0) {
				t.Fatalf("fresh frames must share one noise draw")
			}
		}
	}
}

func TestSeedLatents_NothingToContinue(t *testing.T) {
	shape := models.NoiseShape{Batch: 1, Channels: 4, Frames: 16, Height: 4, Width: 4}
	rng := rand.New(rand.NewPCG(1, 1))
	for name, state := range map[string]*Continuation{
		"nil":          nil,
		"no latents":   {Camera: frames(0, 16)},
		"only pred x0": {PredX0: tensor.New(shape.Dims()...)},
	} {
		x0, xT, err := SeedLatents(state, shape, 4, rng)
		if err != nil || x0 != nil || xT != nil {
			t.Fatalf("%s: got %v %v %v", name, x0, xT, err)
		}
	}

	full := &Continuation{PredX0: tensor.New(shape.Dims()...), XInter: tensor.New(shape.Dims()...)}
	if x0, _, err := SeedLatents(full, shape, 0, rng); err != nil || x0 != nil {
		t.Fatalf("k=0 seeded latents")
	}
	if _, _, err := SeedLatents(full, shape.WithFrames(4), 4, rng); !errors.Is(err, ErrOverlapTooLong) {
		t.Fatalf("err = %v, want ErrOverlapTooLong", err)
	}
}

func TestCapture_KeepsLastIntermediate(t *testing.T) {
	a, b := tensor.New(1), tensor.New(1)
	b.Data[0] = 3
	state := &Continuation{}
	if err := Capture(state, []*tensor.Tensor{a, b}, []*tensor.Tensor{b, a}); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if state.PredX0.Data[0] != 3 || state.XInter.Data[0] != 0 {
		t.Fatalf("captured %v %v", state.PredX0.Data, state.XInter.Data)
	}
	if err := Capture(state, nil, nil); err == nil {
		t.Fatalf("expected error for empty intermediates")
	}
}

func TestStitch_NilChannelKeepsStoredSequence(t *testing.T) {
	state := &Continuation{Camera: frames(100, 4), Trajectory: frames(200, 4)}
	gotCam, gotTraj, err := Stitch(state, frames(0, 4), nil, 1)
	if err != nil {
		t.Fatalf("Stitch: %v", err)
	}
	if gotTraj != nil {
		t.Fatalf("nil trajectory became %v", gotTraj)
	}
	if gotCam[0][0] != 100 || gotCam[1][0] != 0 {
		t.Fatalf("camera = %v", gotCam)
	}
	if !reflect.DeepEqual(state.Trajectory, frames(200, 4)) {
		t.Fatalf("stored trajectory changed: %v", state.Trajectory)
	}
}
