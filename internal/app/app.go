package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/lordkekz/KosmikAutoUpdate/internal/config"
	"github.com/lordkekz/KosmikAutoUpdate/internal/database"
	"github.com/lordkekz/KosmikAutoUpdate/internal/httpapi"
	"github.com/lordkekz/KosmikAutoUpdate/internal/snapshot"
	"github.com/lordkekz/KosmikAutoUpdate/internal/store"
	"github.com/lordkekz/KosmikAutoUpdate/internal/update"
)

// App is the application layer between the CLI and the update manager.
// It constructs all dependencies from config and manages the index
// lifecycle on Close.
type App struct {
	cfg     *config.Config
	index   update.Index
	store   update.Store
	manager *update.Manager
	logger  *slog.Logger
	logFile *os.File
}

// New creates a fully wired App from the given config. The caller must
// call Close when done.
func New(cfg *config.Config) (*App, error) {
	st, err := store.NewStoreFromConfig(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}

	index, err := database.NewIndexFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating index: %w", err)
	}

	logger, logFile, err := newLogger(cfg.LogDir, cfg.ServerID)
	if err != nil {
		index.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	ttl := time.Duration(cfg.Tokens.TTLMinutes) * time.Minute
	manager := update.NewManager(
		index, st, &slogAdapter{l: logger},
		update.RealClock{}, update.RandomTokenGenerator{}, update.UUIDGenerator{},
		ttl,
	)

	return &App{
		cfg:     cfg,
		index:   index,
		store:   st,
		manager: manager,
		logger:  logger,
		logFile: logFile,
	}, nil
}

// Manager returns the update manager facade.
func (a *App) Manager() *update.Manager { return a.manager }

// AddVersion ingests a new version from a directory of release files.
func (a *App) AddVersion(versionID, dir string) (*update.Manifest, error) {
	return a.manager.AddVersion(versionID, dir)
}

// SetChannel points a channel at a version.
func (a *App) SetChannel(name, versionID string) error {
	return a.manager.SetChannel(name, versionID)
}

// ListChannels returns all channels.
func (a *App) ListChannels() ([]update.ChannelRecord, error) {
	return a.manager.ListChannels()
}

// GetVersionManifest returns the manifest for a version id.
func (a *App) GetVersionManifest(versionID string) (*update.Manifest, error) {
	return a.manager.GetVersionManifest(versionID)
}

// PurgeExpiredTokens removes expired download tokens.
func (a *App) PurgeExpiredTokens() (int64, error) {
	return a.manager.PurgeExpiredTokens()
}

// Snapshot writes a passphrase-encrypted copy of the index to outPath.
func (a *App) Snapshot(outPath, passphrase string) error {
	return snapshot.Write(a.index, outPath, passphrase)
}

// Serve validates the store and runs the HTTP API until ctx is
// cancelled, then shuts the server down gracefully.
func (a *App) Serve(ctx context.Context) error {
	if err := a.store.ValidateSetup(); err != nil {
		return fmt.Errorf("validating store: %w", err)
	}

	handler := httpapi.New(a.manager, a.store, a.cfg.DownloadHost, a.logger)
	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		a.logger.Info("serving", "addr", a.cfg.ListenAddr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Close closes the index and log file.
func (a *App) Close() error {
	var firstErr error

	if err := a.index.Close(); err != nil {
		firstErr = fmt.Errorf("closing index: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
