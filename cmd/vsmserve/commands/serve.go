package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xupit3r/vsmserve/internal/device"
	"github.com/xupit3r/vsmserve/internal/gate"
	"github.com/xupit3r/vsmserve/internal/gguf"
	"github.com/xupit3r/vsmserve/internal/llm"
	"github.com/xupit3r/vsmserve/internal/model"
	"github.com/xupit3r/vsmserve/internal/server"
	"github.com/xupit3r/vsmserve/internal/system"
	"github.com/xupit3r/vsmserve/internal/tokenizer"
)

// Partial downloads untouched for this long are not worth resuming.
const staleDownloadAge = 7 * 24 * time.Hour

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Load the model and serve POST /generate",
	Long: `Authenticate to the hub, make sure the model is cached locally, load it on
the selected device and serve HTTP until interrupted.

The hub token is read from the config file, VSMSERVE_HUB_TOKEN or HF_TOKEN.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveAddr   string
	serveDevice string
	serveRepo   string
	serveFile   string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	serveCmd.Flags().StringVar(&serveDevice, "device", "", "device: auto, cpu, gpu, cuda, metal (overrides model.device)")
	serveCmd.Flags().StringVar(&serveRepo, "model", "", "hub repository (overrides model.repo)")
	serveCmd.Flags().StringVar(&serveFile, "file", "", "GGUF file in the repository (overrides model.file)")
}

// applyServeFlags lets explicit flags win over file and environment.
func applyServeFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Server.Addr = serveAddr
	}
	if flags.Changed("device") {
		cfg.Model.Device = serveDevice
	}
	if flags.Changed("model") {
		cfg.Model.Repo = serveRepo
	}
	if flags.Changed("file") {
		cfg.Model.File = serveFile
	}
	return cfg.Validate()
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := applyServeFlags(cmd); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dev, err := device.Select(cfg.Model.Device)
	if err != nil {
		return fmt.Errorf("selecting device: %w", err)
	}
	log.WithField("device", dev.String()).Info("Device selected")

	cached, err := ensureModel(ctx, cfg.Model.Repo, cfg.Model.File, cfg.Model.Revision, cfg.Model.Offline)
	if err != nil {
		return err
	}

	gen, g, err := loadGenerator(cached, dev)
	if err != nil {
		return err
	}
	defer func() {
		if err := gen.Close(); err != nil {
			log.WithError(err).Warn("Failed to release model")
		}
	}()
	defer g.Close()

	srv := server.New(cfg.Server, gen, g, log)

	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return srv.Run(gctx)
	})
	eg.Go(func() error {
		<-gctx.Done()
		log.Info("Shutdown requested, draining in-flight requests")
		return nil
	})

	if err := eg.Wait(); err != nil {
		return fmt.Errorf("serving: %w", err)
	}
	log.Info("Server stopped")
	return nil
}

// ensureModel returns a verified local copy of the configured artifact.
func ensureModel(ctx context.Context, repo, file, revision string, offline bool) (*model.CachedModel, error) {
	cache, err := model.NewCache(cfg.Model.CacheDir)
	if err != nil {
		return nil, err
	}
	if n, err := cache.CleanupPartial(staleDownloadAge); err != nil {
		log.WithError(err).Warn("Failed to clean up stale partial downloads")
	} else if n > 0 {
		log.WithField("count", n).Info("Removed stale partial downloads")
	}
	hub := newHub()

	loader := model.NewLoader(hub, cache, model.LoaderOptions{
		Repo:     repo,
		File:     file,
		Revision: revision,
		Offline:  offline,
	}, newProgressPrinter(os.Stderr), log)

	cached, err := loader.Ensure(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading model %s: %w", repo, err)
	}
	return cached, nil
}

// loadGenerator reads tokenizer metadata, loads the weights and wires the
// admission gate.
func loadGenerator(cached *model.CachedModel, dev device.Device) (*llm.Generator, *gate.Gate, error) {
	gf, err := gguf.Open(cached.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading model metadata: %w", err)
	}
	tok, err := tokenizer.FromGGUF(gf)
	if err != nil {
		return nil, nil, fmt.Errorf("loading tokenizer: %w", err)
	}
	log.WithFields(logrus.Fields{
		"architecture": gf.Architecture(),
		"vocab":        tok.VocabSize(),
		"tokenizer":    tok.ModelType(),
	}).Info("Model metadata loaded")

	warnIfLowMemory(cached.SizeBytes)

	opts := llm.LoadOptions{
		ContextSize: cfg.Model.ContextSize,
		Threads:     cfg.Model.Threads,
		BatchSize:   cfg.Model.BatchSize,
		GPULayers:   dev.GPULayers(cfg.Model.GPULayers),
		UseMMap:     cfg.Model.UseMMap,
	}
	backend, err := llm.Open(cached.Path, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("loading model weights: %w", err)
	}
	log.WithFields(logrus.Fields{
		"path":       cached.Path,
		"gpu_layers": opts.GPULayers,
		"context":    opts.ContextSize,
	}).Info("Model loaded")

	g := gate.New(cfg.Generation.MaxConcurrent, cfg.Generation.QueueTimeout, log)
	gen := llm.NewGenerator(backend, tok, g, llm.Info{Model: cached.ID(), Device: dev.String()}, log)
	return gen, g, nil
}

func warnIfLowMemory(size int64) {
	fits, usable, err := system.Fits(size)
	if err != nil {
		log.WithError(err).Debug("Could not read system memory")
		return
	}
	if !fits {
		log.WithFields(logrus.Fields{
			"model":  system.FormatBytes(size),
			"usable": system.FormatBytes(usable),
		}).Warn("Model may not fit in available memory")
	}
}
