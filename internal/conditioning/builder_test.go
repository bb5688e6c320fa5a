package conditioning

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/bdougie/motionctrl/internal/keyframes"
	"github.com/bdougie/motionctrl/internal/model/preview"
	"github.com/bdougie/motionctrl/internal/overlap"
	"github.com/bdougie/motionctrl/internal/tensor"
)

var (
	roseCamera     = keyframes.Keyframes{{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0.2}}
	roseTrajectory = keyframes.Keyframes{{117, 102}}
)

// recordingModel wraps the preview model and records prompts
type recordingModel struct {
	*preview.Model
	prompts [][]string
}

func (m *recordingModel) LearnedConditioning(ctx context.Context, prompts []string) (*tensor.Tensor, error) {
	m.prompts = append(m.prompts, append([]string(nil), prompts...))
	return m.Model.LearnedConditioning(ctx, prompts)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"control camera poses", ModeCamera},
		{"control object trajectory", ModeTrajectory},
		{"control both camera and object motion", ModeBoth},
		{"camera", ModeCamera},
		{" Trajectory ", ModeTrajectory},
		{"both", ModeBoth},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseMode(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseMode("neither"); err == nil {
		t.Errorf("expected error for unknown mode")
	}
}

func TestBuild_Both(t *testing.T) {
	m := &recordingModel{Model: preview.New(4, 16)}
	b := NewBuilder(m, nil, nil)

	bundle, err := b.Build(context.Background(), Request{
		Prompt:     "a rose swaying in the wind",
		Mode:       ModeBoth,
		Camera:     roseCamera,
		Trajectory: roseTrajectory,
		Height:     256,
		Width:      256,
	}, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if got := bundle.Shape.Dims(); !reflect.DeepEqual(got, []int{1, 4, 16, 32, 32}) {
		t.Fatalf("noise shape = %v", got)
	}
	if _, ok := bundle.Motion.(CombinedMotion); !ok {
		t.Fatalf("motion = %T, want CombinedMotion", bundle.Motion)
	}
	if got := bundle.Pose().Shape; !reflect.DeepEqual(got, []int{1, 16, 12, 1}) {
		t.Fatalf("pose shape = %v", got)
	}
	if bundle.Pose().At(0, 15, 11, 0) != 0.2 {
		t.Fatalf("last pose translation = %v", bundle.Pose().At(0, 15, 11, 0))
	}
	if got := bundle.Features().Shape; !reflect.DeepEqual(got, []int{1, 2, 16, 32, 32}) {
		t.Fatalf("feature shape = %v", got)
	}
	if bundle.Negative.Features == nil {
		t.Fatalf("trajectory mode must carry unconditional features")
	}
	if lo, hi := bundle.Negative.Features.MinMax(); lo != 0 || hi != 0 {
		t.Fatalf("unconditional features of zero flow = [%v, %v]", lo, hi)
	}
	if len(bundle.TrajectoryPoints()) != 16 {
		t.Fatalf("trajectory points = %d, want 16", len(bundle.TrajectoryPoints()))
	}

	if len(m.prompts) != 2 {
		t.Fatalf("embedded %d prompt batches, want 2", len(m.prompts))
	}
	if want := "a rose swaying in the wind, " + PostPrompt; m.prompts[0][0] != want {
		t.Fatalf("positive prompt = %q", m.prompts[0][0])
	}
	if !reflect.DeepEqual(m.prompts[1], []string{DefaultNegativePrompt}) {
		t.Fatalf("negative prompts = %v", m.prompts[1])
	}
}

func TestBuild_SingleModes(t *testing.T) {
	b := NewBuilder(preview.New(4, 8), nil, nil)
	ctx := context.Background()

	cam, err := b.Build(ctx, Request{Prompt: "p", Mode: ModeCamera, Camera: roseCamera, Height: 64, Width: 64}, nil)
	if err != nil {
		t.Fatalf("camera: %v", err)
	}
	if _, ok := cam.Motion.(CameraMotion); !ok || cam.Features() != nil || cam.Negative.Features != nil {
		t.Fatalf("camera bundle carries trajectory data: %+v", cam)
	}

	traj, err := b.Build(ctx, Request{Prompt: "p", Mode: ModeTrajectory, Trajectory: roseTrajectory, Height: 64, Width: 64}, nil)
	if err != nil {
		t.Fatalf("trajectory: %v", err)
	}
	if _, ok := traj.Motion.(TrajectoryMotion); !ok || traj.Pose() != nil {
		t.Fatalf("trajectory bundle carries a pose: %+v", traj)
	}

	// the second build reuses the negative prompt embedding
	if hits, _ := b.TextCache().Stats(); hits == 0 {
		t.Fatalf("negative prompt was not served from the cache")
	}
}

func TestBuild_Errors(t *testing.T) {
	b := NewBuilder(preview.New(4, 16), nil, nil)
	ctx := context.Background()
	base := Request{Prompt: "p", Mode: ModeBoth, Camera: roseCamera, Trajectory: roseTrajectory, Height: 256, Width: 256}

	tests := []struct {
		name   string
		mutate func(*Request)
		want   error
	}{
		{"height", func(r *Request) { r.Height = 250 }, ErrImageSize},
		{"width", func(r *Request) { r.Width = 0 }, ErrImageSize},
		{"empty camera", func(r *Request) { r.Camera = nil }, keyframes.ErrEmpty},
		{"empty trajectory", func(r *Request) { r.Trajectory = keyframes.Keyframes{} }, keyframes.ErrEmpty},
		{"overlap", func(r *Request) { r.Overlap = 40 }, overlap.ErrOverlapRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.mutate(&req)
			if _, err := b.Build(ctx, req, nil); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	req := base
	req.Mode = 0
	if _, err := b.Build(ctx, req, nil); err == nil || !strings.Contains(err.Error(), "mode") {
		t.Fatalf("err = %v, want mode error", err)
	}
	req = base
	req.Camera = keyframes.Keyframes{{1, 2, 3}}
	if _, err := b.Build(ctx, req, nil); err == nil {
		t.Fatalf("expected error for a camera keyframe without 12 values")
	}
}

func TestBuild_ChainsWithContinuation(t *testing.T) {
	b := NewBuilder(preview.New(4, 4), nil, nil)
	ctx := context.Background()
	state := &overlap.Continuation{}

	first := Request{Prompt: "p", Mode: ModeTrajectory, Trajectory: keyframes.Keyframes{{0, 0}, {4, 4}, {8, 8}, {12, 12}}, Height: 64, Width: 64, Overlap: 1}
	if _, err := b.Build(ctx, first, state); err != nil {
		t.Fatalf("first: %v", err)
	}
	if len(state.Trajectory) != 4 || state.Camera != nil {
		t.Fatalf("state after first call = %+v", state)
	}

	second := first
	second.Trajectory = keyframes.Keyframes{{100, 100}}
	bundle, err := b.Build(ctx, second, state)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	want := keyframes.Keyframes{{0, 0}, {100, 100}, {100, 100}, {100, 100}}
	if !reflect.DeepEqual(bundle.TrajectoryPoints(), want) {
		t.Fatalf("stitched trajectory = %v, want %v", bundle.TrajectoryPoints(), want)
	}
	if bundle.Continuation != state {
		t.Fatalf("bundle does not carry the continuation")
	}
}

func TestBuild_FailureLeavesContinuation(t *testing.T) {
	b := NewBuilder(preview.New(4, 4), nil, nil)
	stored := keyframes.Keyframes{{9, 9}, {9, 9}, {9, 9}, {9, 9}}
	state := &overlap.Continuation{Trajectory: stored.Clone()}

	_, err := b.Build(context.Background(), Request{
		Prompt:     "p",
		Mode:       ModeBoth,
		Camera:     keyframes.Keyframes{{1, 2, 3}},
		Trajectory: keyframes.Keyframes{{100, 100}},
		Height:     64,
		Width:      64,
		Overlap:    2,
	}, state)
	if err == nil {
		t.Fatalf("expected error for a camera keyframe without 12 values")
	}
	if state.Camera != nil {
		t.Fatalf("failed build stored camera %v", state.Camera)
	}
	if !reflect.DeepEqual(state.Trajectory, stored) {
		t.Fatalf("failed build advanced trajectory to %v", state.Trajectory)
	}
}
