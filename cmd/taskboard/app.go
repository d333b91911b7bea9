package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/mschirtzinger/taskboard/internal/config"
	"github.com/mschirtzinger/taskboard/internal/logging"
	"github.com/mschirtzinger/taskboard/internal/remote"
	"github.com/mschirtzinger/taskboard/internal/store"
	"github.com/mschirtzinger/taskboard/internal/sync"
)

var errNotLoggedIn = errors.New("not logged in (run 'taskboard login')")

// app is the sync layer wired to the configured backend.
type app struct {
	cfg       *config.Config
	logs      *logging.Factory
	db        *store.DB
	client    remote.Client
	gate      *sync.Gate
	queries   *sync.Queries
	mutations *sync.Mutations
}

// loadConfig resolves configuration and applies command line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if remoteURL != "" {
		cfg.Remote.URL = remoteURL
	}
	return cfg, nil
}

// openApp builds the client, gate and coordinators and resolves the stored
// session. The caller must Close the app.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logs: logging.NewFactory(cfg.Log)}

	opts := remote.Options{
		SessionFile: remote.NewSessionFile(cfg.Session.File),
		Logger:      a.logs.Logger("remote"),
	}

	if cfg.Remote.URL != "" {
		client, err := remote.NewHTTPClient(cfg.Remote.URL, opts)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.client = client
	} else {
		db, err := store.Open(cfg.Store.Path)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.db = db
		if err := db.InitSchemaContext(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize store: %w", err)
		}
		a.client = remote.NewLocalClient(db, opts)
	}

	a.gate = sync.NewGate(a.client, a.logs.Logger("gate"))
	a.queries = sync.NewQueries(a.client, a.gate, &sync.QueryConfig{
		FetchTimeout: cfg.Sync.FetchTimeout,
		Logger:       a.logs.Logger("query"),
	})
	a.mutations = sync.NewMutations(a.client, a.gate, a.queries, &sync.MutationConfig{
		RefetchAfterMutation: cfg.Sync.RefetchAfterMutation,
		Logger:               a.logs.Logger("mutation"),
	})

	if err := a.gate.Start(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// requireSession fails unless a user is signed in.
func (a *app) requireSession() error {
	if !a.gate.Current().Active() {
		return errNotLoggedIn
	}
	return nil
}

// Close waits for background reads and releases the store and log file.
func (a *app) Close() {
	if a.queries != nil {
		a.queries.Close()
	}
	if a.gate != nil {
		a.gate.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
}
