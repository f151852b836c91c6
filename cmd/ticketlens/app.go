package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/kalambet/ticketlens/internal/analysis"
	"github.com/kalambet/ticketlens/internal/azure"
	"github.com/kalambet/ticketlens/internal/backup"
	"github.com/kalambet/ticketlens/internal/config"
	"github.com/kalambet/ticketlens/internal/enhance"
	"github.com/kalambet/ticketlens/internal/extract"
	"github.com/kalambet/ticketlens/internal/logging"
	"github.com/kalambet/ticketlens/internal/ollama"
	"github.com/kalambet/ticketlens/internal/pipeline"
	"github.com/kalambet/ticketlens/internal/report"
	"github.com/kalambet/ticketlens/internal/templates"
	"github.com/kalambet/ticketlens/internal/ticketstore"
)

// loadConfig reads the configuration and installs the logger.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	logging.Setup(cfg.Log.Level, os.Stderr)
	return cfg, nil
}

// app is the wired analysis stack shared by the commands and the server.
type app struct {
	cfg      config.Config
	engine   *ticketstore.Engine
	analyzer *pipeline.Analyzer
}

type appOptions struct {
	// serving pulls a missing Ollama model instead of skipping enhancement.
	serving bool
	// progress receives model pull output.
	progress io.Writer
}

func openEngine(ctx context.Context, cfg config.Config) (*ticketstore.Engine, error) {
	opts := []ticketstore.Option{
		ticketstore.WithRenderer(report.NewRenderer(report.Options{MaxItemsPerSection: cfg.Report.MaxItems})),
		ticketstore.WithSearchLimit(cfg.Search.DefaultLimit),
	}
	if cfg.Backup.S3Bucket != "" {
		up, err := backup.NewS3UploaderFromEnv(ctx, cfg.Backup.S3Bucket, cfg.Backup.S3Prefix)
		if err != nil {
			slog.Warn("s3 backup upload disabled", "bucket", cfg.Backup.S3Bucket, "error", err)
		} else {
			opts = append(opts, ticketstore.WithUploader(up))
		}
	}

	e, err := ticketstore.Open(ctx, cfg.Storage.DataDir, opts...)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	return e, nil
}

func openApp(ctx context.Context, cfg config.Config, o appOptions) (*app, error) {
	e, err := openEngine(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var genOpts []analysis.Option
	chatter, err := newChatter(ctx, cfg, o)
	if err != nil {
		e.Close()
		return nil, err
	}
	if chatter != nil {
		genOpts = append(genOpts, analysis.WithEnhancer(enhance.New(chatter, enhance.WithTimeout(cfg.LLMTimeout()))))
	}
	g, err := analysis.NewGenerator(templates.Default(), genOpts...)
	if err != nil {
		e.Close()
		return nil, err
	}

	return &app{
		cfg:    cfg,
		engine: e,
		analyzer: pipeline.NewAnalyzer(g,
			pipeline.WithStore(e),
			pipeline.WithCollector(newCollector(cfg)),
		),
	}, nil
}

func (a *app) Close() error {
	return a.engine.Close()
}

// newChatter returns the configured LLM backend, or nil when enhancement is
// off or unavailable.
func newChatter(ctx context.Context, cfg config.Config, o appOptions) (enhance.Chatter, error) {
	switch cfg.LLM.Backend {
	case config.BackendOllama:
		c := ollama.New(cfg.Ollama.BaseURL, cfg.Ollama.Model)
		if o.serving {
			w := o.progress
			if w == nil {
				w = io.Discard
			}
			if err := ollama.EnsureReady(ctx, c, w); err != nil {
				return nil, err
			}
			return c, nil
		}
		if !c.IsRunning(ctx) {
			slog.Warn("ollama not reachable, question enhancement disabled", "base_url", cfg.Ollama.BaseURL)
			return nil, nil
		}
		return c, nil
	case config.BackendAzure:
		c, err := azure.NewClient(cfg.Azure.Endpoint, cfg.Azure.APIKey, cfg.Azure.Deployment)
		if err != nil {
			return nil, fmt.Errorf("configuring azure backend: %w", err)
		}
		return c, nil
	default:
		return nil, nil
	}
}

// newCollector returns a collector for the configured context sources. PDF
// extraction needs no configuration, so a collector is always returned.
func newCollector(cfg config.Config) *extract.Collector {
	c := &extract.Collector{}
	if cfg.Figma.Token != "" {
		c.Figma = extract.NewFigmaClient(cfg.Figma.Token)
	}
	if cfg.Confluence.Dir != "" {
		docs, err := extract.LoadConfluence(cfg.Confluence.Dir)
		if err != nil {
			slog.Warn("confluence export not loaded", "dir", cfg.Confluence.Dir, "error", err)
		} else {
			c.Confluence = docs
		}
	}
	return c
}
