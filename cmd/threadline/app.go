package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/alphabot-ai/threadline/internal/client"
	"github.com/alphabot-ai/threadline/internal/config"
	"github.com/alphabot-ai/threadline/internal/decode"
	"github.com/alphabot-ai/threadline/internal/logging"
	"github.com/alphabot-ai/threadline/internal/metrics"
	"github.com/alphabot-ai/threadline/internal/rate"
	"github.com/alphabot-ai/threadline/internal/session"
	"github.com/alphabot-ai/threadline/internal/store"
	"github.com/alphabot-ai/threadline/internal/store/natskv"
	"github.com/alphabot-ai/threadline/internal/store/sqlite"
	"github.com/alphabot-ai/threadline/internal/tree"
)

// app is everything a command needs, built from flags and config.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	client  *client.Client
	store   store.Store
	session *session.Session
}

func newApp(ctx context.Context, cmd *cli.Command) (*app, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	if lvl := cmd.String("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	logger, err := logging.Init(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	c := client.New(cfg.Client(), rate.NewMemory(), logger)
	sess, err := session.New(c, st, session.Options{
		Caches:    cfg.Cache,
		Tree:      tree.Options{AutoExpandDepth: cfg.Tree.AutoExpandDepth},
		Decode:    decode.Options{AllowNSFW: cfg.AllowNSFW},
		PageLimit: cfg.API.PageLimit,
		MoreChunk: cfg.API.MoreChunk,
		Sort:      cmd.String("sort"),
		Account:   cfg.OAuth.Account,
	}, logger)
	if err != nil {
		_ = c.Close()
		if st != nil {
			_ = st.Close()
		}
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, client: c, store: st, session: sess}
	if st != nil {
		if _, err := sess.RestoreToken(ctx); err != nil && !errors.Is(err, store.ErrNotFound) {
			logger.Warn("failed to restore token", "error", err)
		}
	}
	if cfg.MetricsAddr != "" {
		srv := metrics.NewServer(cfg.MetricsAddr, nil, logger)
		go func() {
			if err := srv.Run(ctx); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}
	return a, nil
}

func (a *app) Close() error {
	errs := []error{a.session.Close(), a.client.Close()}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}

func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (store.Store, error) {
	switch cfg.Driver {
	case config.StoreSQLite:
		st, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.Path, err)
		}
		return st, nil
	case config.StoreNATS:
		st, err := natskv.Open(ctx, cfg.NATSURL, cfg.Bucket, logger)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	return nil, nil
}

// withApp wraps a command action with app setup and teardown.
func withApp(action func(ctx context.Context, cmd *cli.Command, a *app) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		a, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer func() {
			if err := a.Close(); err != nil {
				a.logger.Warn("shutdown failed", "error", err)
			}
		}()
		return action(ctx, cmd, a)
	}
}
