// Command showroomsim walks a camera down a virtual store aisle and reports
// how the showroom texture manager keeps artwork resident.
//
// It runs headless: textures are CPU images and time is simulated, so a
// minute of browsing finishes in seconds. With -config the manager settings
// are read from a TOML file, and edits to that file rebuild the manager
// while the simulation runs.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gogpu/showroom"
)

func main() {
	var (
		items      = flag.Int("items", 120, "number of products on the shelves")
		seconds    = flag.Float64("seconds", 60, "simulated browsing time")
		fps        = flag.Int("fps", 60, "simulated frames per second")
		speed      = flag.Float64("speed", 1.2, "walking speed in world units per second")
		missing    = flag.Float64("missing", 0.1, "fraction of products without artwork")
		corrupt    = flag.Float64("corrupt", 0.05, "fraction of products with corrupt artwork")
		seed       = flag.Int64("seed", 1, "artwork generator seed")
		configPath = flag.String("config", "", "TOML config file (watched for changes)")
		realtime   = flag.Bool("realtime", false, "sleep between frames")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	showroom.SetLogger(logger)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	reloads := make(chan showroom.Config, 1)
	if *configPath != "" {
		stop, err := watchConfig(*configPath, reloads, logger)
		if err != nil {
			logger.Error("watch config", "error", err)
			os.Exit(1)
		}
		defer stop()
	}

	store := newStore(*items, *seed, *missing, *corrupt)
	sim := &simulation{
		store:  store,
		clock:  newSimClock(),
		fps:    *fps,
		speed:  *speed,
		logger: logger,
	}
	if err := sim.start(cfg); err != nil {
		logger.Error("start", "error", err)
		os.Exit(1)
	}

	frames := int(*seconds * float64(*fps))
	frame := time.Second / time.Duration(*fps)
	for i := range frames {
		select {
		case next := <-reloads:
			if err := sim.restart(next); err != nil {
				logger.Error("reload config", "error", err)
			}
		default:
		}

		sim.step(i)
		if *realtime {
			time.Sleep(frame)
		}
	}

	sim.finish()
}

// loadConfig reads path, or returns the defaults if path is empty.
func loadConfig(path string) (showroom.Config, error) {
	if path == "" {
		return showroom.DefaultConfig(), nil
	}
	return showroom.LoadConfig(path)
}

// watchConfig sends a freshly parsed Config on out whenever path is written.
// Invalid edits are logged and ignored.
func watchConfig(path string, out chan showroom.Config, logger *slog.Logger) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors often replace the file instead of
	// writing it in place.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	name := filepath.Clean(path)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != name ||
					!event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				cfg, err := showroom.LoadConfig(path)
				if err != nil {
					logger.Warn("config change ignored", "path", path, "error", err)
					continue
				}
				// Keep only the newest config.
				select {
				case <-out:
				default:
				}
				out <- cfg
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher", "error", err)
			}
		}
	}()

	return func() {
		close(done)
		_ = watcher.Close()
	}, nil
}

// drainTimeout bounds the wait for outstanding decodes at shutdown.
const drainTimeout = 5 * time.Second

// finish waits for outstanding decodes and prints final statistics.
func (s *simulation) finish() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := s.m.Drain(ctx); err != nil && !errors.Is(err, showroom.ErrClosed) {
		s.logger.Warn("drain", "error", err)
	}
	s.m.CleanupOffScreenTextures()
	s.logger.Info("done", "stats", s.m.GetStats().String())
	s.m.Close()
}
