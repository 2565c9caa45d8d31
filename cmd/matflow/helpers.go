package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/Veraticus/matflow/internal/api"
	"github.com/Veraticus/matflow/internal/cli"
	"github.com/Veraticus/matflow/internal/common"
	"github.com/Veraticus/matflow/internal/config"
	"github.com/Veraticus/matflow/internal/model"
	"github.com/Veraticus/matflow/internal/storage"
	"github.com/spf13/viper"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, common.NewUserError("invalid configuration", err)
	}
	return cfg, nil
}

// initStorage opens the local database and brings its schema up to date.
func initStorage(ctx context.Context, cfg *config.Config) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// newClient builds an API client. The token comes from configuration or,
// failing that, from the last login against the same backend.
func newClient(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage) (*api.Client, error) {
	token := cfg.Token
	if token == "" && store != nil {
		saved, err := store.Token(ctx, cfg.BaseURL)
		switch {
		case errors.Is(err, common.ErrNotFound):
			return nil, common.NewUserError(
				fmt.Sprintf("not logged in to %s; run 'matflow login' first", cfg.BaseURL),
				common.ErrNoToken)
		case err != nil:
			return nil, fmt.Errorf("failed to load saved token: %w", err)
		}
		token = saved
	}
	if token == "" {
		return nil, common.NewUserError("no API token configured", common.ErrNoToken)
	}
	return api.NewClient(cfg.BaseURL, api.StaticToken(token))
}

// collectFiles turns arguments into files. Directories contribute their
// regular files, not recursively, in name order. Duplicate names are
// rejected because suggestions and progress are keyed by file name.
func collectFiles(args []string) ([]model.File, error) {
	var paths []string
	for _, arg := range args {
		path := config.ExpandPath(arg)
		info, err := os.Stat(path)
		if err != nil {
			return nil, common.NewUserError("cannot read "+arg, err)
		}
		if !info.IsDir() {
			paths = append(paths, path)
			continue
		}

		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", arg, err)
		}
		var found []string
		for _, e := range entries {
			if e.Type().IsRegular() {
				found = append(found, filepath.Join(path, e.Name()))
			}
		}
		sort.Strings(found)
		paths = append(paths, found...)
	}

	if len(paths) == 0 {
		return nil, common.ErrNoFiles
	}

	seen := make(map[string]string, len(paths))
	files := make([]model.File, 0, len(paths))
	for _, path := range paths {
		f, err := model.NewLocalFile(path)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[f.Name]; ok {
			return nil, common.NewUserError(
				fmt.Sprintf("%s and %s share the file name %s", prev, path, f.Name),
				common.ErrDuplicateEntry)
		}
		seen[f.Name] = path
		files = append(files, f)
	}
	return files, nil
}

// withInterrupts returns a context canceled on SIGINT/SIGTERM and a release
// function for the signal handler.
func withInterrupts(ctx context.Context, message string) (context.Context, func()) {
	handler := cli.NewInterruptHandler(os.Stderr)
	if message != "" {
		handler.SetMessage(message)
	}
	return handler.HandleInterrupts(ctx), handler.Release
}
