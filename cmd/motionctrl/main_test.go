package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/bdougie/motionctrl/internal/config"
	"github.com/bdougie/motionctrl/internal/models"
	"github.com/bdougie/motionctrl/internal/storage"
)

func TestWithStore_ClosesOnError(t *testing.T) {
	failed := errors.New("sampling failed")
	tests := []struct {
		name string
		err  error
	}{
		{"success", nil},
		{"failure", failed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			closed := false
			err := withStore(func() (storage.Store, func(), error) {
				return storage.NewFileStore(t.TempDir()), func() { closed = true }, nil
			}, func(storage.Store) error {
				if closed {
					t.Fatalf("store closed before use")
				}
				return tt.err
			})
			if !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			if !closed {
				t.Fatalf("store left open")
			}
		})
	}
}

func TestWithStore_OpenError(t *testing.T) {
	ran := false
	err := withStore(func() (storage.Store, func(), error) {
		return nil, nil, errors.New("connection refused")
	}, func(storage.Store) error {
		ran = true
		return nil
	})
	if err == nil || ran {
		t.Fatalf("err = %v, ran = %v", err, ran)
	}
}

func TestGenerate_WritesSelectedFrames(t *testing.T) {
	dir := t.TempDir()
	ckpt := filepath.Join(dir, "motionctrl.pth")
	cfg := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(ckpt, []byte("weights"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfg, []byte("model:\n  params:\n    channels: 4\n    image_size: [8, 8]\n"), 0644); err != nil {
		t.Fatal(err)
	}
	settings := config.Settings{
		Root:            dir,
		CheckpointPath:  ckpt,
		ModelConfigPath: cfg,
		Backend:         config.DefaultBackend,
	}
	req := models.GenerationRequest{
		Prompt:     "a rose",
		Camera:     "[[1,0,0,0,0,1,0,0,0,0,1,0.2]]",
		Trajectory: "[[117, 102]]",
		Frames:     4,
		Steps:      2,
		Seed:       1,
	}
	out := filepath.Join(dir, "out")

	err := generate(context.Background(), slog.Default(), storage.NewFileStore(filepath.Join(dir, "state")), settings, req, generateOptions{
		reset:     true,
		selector:  "1:3,bogus",
		outputDir: out,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	written, err := filepath.Glob(filepath.Join(out, "*.png"))
	if err != nil {
		t.Fatal(err)
	}
	if len(written) != 2 {
		t.Fatalf("wrote %d frames, want 2", len(written))
	}

	settings.Backend = "xla"
	if err := generate(context.Background(), slog.Default(), storage.NewFileStore(filepath.Join(dir, "state")), settings, req, generateOptions{outputDir: out}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
