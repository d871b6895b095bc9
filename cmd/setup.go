package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/vkravcenko/attendance/internal/codec"
	"github.com/vkravcenko/attendance/internal/config"
	"github.com/vkravcenko/attendance/internal/gallery"
	"github.com/vkravcenko/attendance/internal/ledger"
	"github.com/vkravcenko/attendance/internal/ledger/postgres"
	"github.com/vkravcenko/attendance/internal/session"
)

// core bundles the wired components shared by the CLI commands.
type core struct {
	cfg        *config.Config
	encoder    codec.Encoder
	gallery    *gallery.Gallery
	ledger     *ledger.Ledger
	controller *session.Controller
	pg         *postgres.Store
}

// setupCore loads config and wires the gallery, ledger and session
// controller. The gallery directory is created on first use, matching the
// original single-machine deployment.
func setupCore(ctx context.Context, progress func()) (*core, error) {
	cfg := config.Load()

	if err := os.MkdirAll(cfg.Gallery.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating gallery directory: %w", err)
	}

	enc := codec.NewClient(cfg.Codec.URL, cfg.Codec.MaxImageSize)

	gal, report, err := gallery.Load(ctx, cfg.Gallery.Dir, enc, &gallery.LoadOptions{
		Concurrency: cfg.Gallery.Concurrency,
		Progress:    progress,
	})
	if err != nil {
		return nil, fmt.Errorf("loading gallery: %w", err)
	}
	for _, warn := range report.Warnings {
		fmt.Fprintf(os.Stderr, "gallery warning: %s\n", warn)
	}

	led, info, err := ledger.Open(cfg.Ledger.AuditLogPath, cfg.Ledger.CSVPath)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	if info.RecoveredFromAudit {
		fmt.Fprintf(os.Stderr, "ledger state rebuilt from audit log (%d records)\n", info.Records)
	}

	c := &core{
		cfg:     cfg,
		encoder: enc,
		gallery: gal,
		ledger:  led,
	}

	if cfg.Database.URL != "" {
		pg, err := postgres.NewStore(postgres.Config{
			URL:          cfg.Database.URL,
			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting attendance mirror: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("migrating attendance mirror: %w", err)
		}
		led.SetMirror(pg)
		c.pg = pg
	}

	c.controller = session.NewController(
		gal, led, enc,
		cfg.Matcher.Threshold,
		cfg.Matcher.IndexCutoff,
		session.MultiFacePolicy(cfg.Session.MultiFacePolicy),
		nil,
	)

	return c, nil
}

// close releases resources held by the core.
func (c *core) close() {
	if c.pg != nil {
		if err := c.pg.Close(); err != nil {
			log.Printf("closing attendance mirror: %v", err)
		}
	}
}

// countGalleryImages returns how many supported reference images dir holds,
// for sizing progress bars before the load starts.
func countGalleryImages(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			n++
		}
	}
	return n
}
