package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/lmittmann/tint"

	"github.com/bdougie/motionctrl/internal/config"
	"github.com/bdougie/motionctrl/internal/frames"
	"github.com/bdougie/motionctrl/internal/generator"
	"github.com/bdougie/motionctrl/internal/keyframes"
	"github.com/bdougie/motionctrl/internal/models"
	"github.com/bdougie/motionctrl/internal/storage"
)

const usage = `Usage: motionctrl --prompt "a rose swaying in the wind" [options]

  --camera JSON          camera keyframes, list of 12-number poses
  --camera-preset NAME   load camera keyframes from the preset directory
  --traj JSON            trajectory keyframes, list of [x, y] in 1024 space
  --traj-preset NAME     load trajectory keyframes from the preset directory
  --traj-reverse         reverse a trajectory preset
  --mode MODE            camera, trajectory or both (default both)
  --frames N             frame count (default 16)
  --steps N              denoising steps (default 50)
  --seed N               random seed (default 1234)
  --samples N            variants side by side, 1 to 4 (default 1)
  --overlap K            frames blended with the previous call, 0 to 32
  --reset                start a new chain before generating
  --chain NAME           continuation slot name for the PostgreSQL store
  --draw-traj            draw the trajectory trail on every frame
  --draw-camera          draw the camera path in the top-left corner
  --select SPEC          keep only these frames, e.g. "0:8,12"
  --backend NAME         model backend (default preview)
  --output DIR           output directory (default output_frames)`

func main() {
	ctx := context.Background()
	settings := config.Load()

	// Configure logger
	logger := slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      settings.LogLevel,
			TimeFormat: "15:04:05",
		}),
	)

	req := models.GenerationRequest{
		Camera:     "[[1,0,0,0,0,1,0,0,0,0,1,0.2]]",
		Trajectory: "[[117, 102]]",
		Frames:     config.DefaultFrames,
		Steps:      config.DefaultSteps,
		Seed:       config.DefaultSeed,
		Samples:    1,
	}
	var (
		cameraPreset, trajPreset string
		trajReverse, reset       bool
		selector                 string
		chain                    = "default"
		outputDir                = "output_frames"
	)

	// Parse command line arguments
	args := os.Args
	next := func(i *int) string {
		if *i+1 < len(args) {
			*i++
			return args[*i]
		}
		log.Fatalf("%s needs a value\n\n%s", args[*i], usage)
		return ""
	}
	number := func(i *int) int {
		name := args[*i]
		v, err := strconv.Atoi(next(i))
		if err != nil {
			log.Fatalf("%s: %v", name, err)
		}
		return v
	}
	for i := 1; i < len(args); i++ {
		switch args[i] {
		case "--prompt":
			req.Prompt = next(&i)
		case "--camera":
			req.Camera = next(&i)
		case "--camera-preset":
			cameraPreset = next(&i)
		case "--traj":
			req.Trajectory = next(&i)
		case "--traj-preset":
			trajPreset = next(&i)
		case "--traj-reverse":
			trajReverse = true
		case "--mode":
			req.Mode = next(&i)
		case "--frames":
			req.Frames = number(&i)
		case "--steps":
			req.Steps = number(&i)
		case "--seed":
			req.Seed = int64(number(&i))
		case "--samples":
			req.Samples = number(&i)
		case "--overlap":
			req.Overlap = number(&i)
		case "--reset":
			reset = true
		case "--chain":
			chain = next(&i)
		case "--draw-traj":
			req.DrawTrajectory = true
		case "--draw-camera":
			req.DrawCamera = true
		case "--select":
			selector = next(&i)
		case "--backend":
			settings.Backend = next(&i)
		case "--output":
			outputDir = next(&i)
		case "-h", "--help":
			fmt.Println(usage)
			return
		default:
			log.Fatalf("unknown argument %s\n\n%s", args[i], usage)
		}
	}

	// Ensure a prompt is provided
	if req.Prompt == "" {
		fmt.Println(usage)
		os.Exit(1)
	}

	presets := keyframes.NewPresetLibrary(settings.PresetDir)
	if cameraPreset != "" {
		camera, err := presets.Camera(cameraPreset)
		if err != nil {
			log.Fatalf("Failed to load camera preset: %v", err)
		}
		req.Camera = camera
	}
	if trajPreset != "" {
		traj, err := presets.Trajectory(trajPreset, req.Frames, trajReverse)
		if err != nil {
			log.Fatalf("Failed to load trajectory preset: %v", err)
		}
		req.Trajectory = traj.String()
	}

	// Generate with the continuation store open; it is closed before exiting
	err := withStore(func() (storage.Store, func(), error) {
		return openStore(ctx, settings, chain)
	}, func(store storage.Store) error {
		return generate(ctx, logger, store, settings, req, generateOptions{
			chain:     chain,
			reset:     reset,
			selector:  selector,
			outputDir: outputDir,
		})
	})
	if err != nil {
		logger.Error("generation failed", "error", err)
		os.Exit(1)
	}
	fmt.Println("Generation completed successfully!")
}

type generateOptions struct {
	chain     string
	reset     bool
	selector  string
	outputDir string
}

// withStore opens the continuation store, runs fn and closes the store whatever fn returns
func withStore(open func() (storage.Store, func(), error), fn func(storage.Store) error) error {
	store, closeStore, err := open()
	if err != nil {
		return fmt.Errorf("failed to open continuation store: %w", err)
	}
	defer closeStore()
	return fn(store)
}

// generate runs one pipeline call and writes the selected frames to opts.outputDir
func generate(ctx context.Context, logger *slog.Logger, store storage.Store, settings config.Settings, req models.GenerationRequest, opts generateOptions) error {
	if opts.reset {
		if err := store.Reset(ctx); err != nil {
			return fmt.Errorf("failed to reset continuation: %w", err)
		}
		logger.Info("continuation reset", "chain", opts.chain)
	}

	factory, err := generator.FactoryFor(settings.Backend)
	if err != nil {
		return err
	}
	pipeline := generator.NewPipeline(generator.NewLoader(factory, logger), store, settings, logger)

	logger.Info("starting generation", "prompt", req.Prompt, "frames", req.Frames, "overlap", req.Overlap)
	batch, err := pipeline.Run(ctx, req)
	if err != nil {
		return err
	}

	if opts.selector != "" {
		for _, tok := range frames.ParseSelector(opts.selector) {
			if tok.Err != nil {
				logger.Warn("skipping selector token", "token", tok.Raw, "error", tok.Err)
			}
		}
		selected := frames.Select(batch, opts.selector)
		if selected == batch {
			logger.Info("selected no frames, passthrough")
		} else {
			logger.Info("selected frames", "count", selected.Len())
		}
		batch = selected
	}

	if _, err := frames.Export(ctx, batch, opts.outputDir, logger); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	return nil
}

// openStore returns the PostgreSQL store when a DSN is configured and the file store otherwise
func openStore(ctx context.Context, settings config.Settings, chain string) (storage.Store, func(), error) {
	if settings.StateDSN == "" {
		return storage.NewFileStore(settings.StateDir), func() {}, nil
	}
	if err := storage.InitSchema(ctx, settings.StateDSN); err != nil {
		return nil, nil, err
	}
	pg, err := storage.NewPostgresStore(ctx, settings.StateDSN, chain)
	if err != nil {
		return nil, nil, err
	}
	return pg, pg.Close, nil
}
