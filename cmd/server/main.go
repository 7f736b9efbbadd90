// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/osa030/19radio/internal/api/httpapi"
	"github.com/osa030/19radio/internal/app/filter"
	"github.com/osa030/19radio/internal/app/notification"
	"github.com/osa030/19radio/internal/app/radio"
	"github.com/osa030/19radio/internal/app/session"
	"github.com/osa030/19radio/internal/infra/catalog"
	"github.com/osa030/19radio/internal/infra/config"
	"github.com/osa030/19radio/internal/infra/environment"
	"github.com/osa030/19radio/internal/infra/lastfm"
	"github.com/osa030/19radio/internal/infra/logger"
	"github.com/osa030/19radio/internal/infra/prefstore"
	"github.com/osa030/19radio/internal/infra/scanner"
	"github.com/osa030/19radio/internal/infra/spotify"
)

const hookTimeout = 30 * time.Second

var (
	app        = kingpin.New("19radio-server", "19radio priority radio server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	startCmd       = app.Command("start", "Start the server (default)").Default()
	listFiltersCmd = app.Command("list-filters", "List available filters and exit")

	importCmd       = app.Command("import", "Import content into the catalog and exit")
	importDirs      = importCmd.Flag("dir", "Directory to scan (repeatable, default: catalog.dirs)").Strings()
	importPlaylists = importCmd.Flag("playlist", "Spotify playlist URL or ID (repeatable, default: spotify.playlists)").Strings()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	loggerConfig := logger.Config{Output: "stdout", Level: "info"}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	closer, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer closer.Close()

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	switch command {
	case importCmd.FullCommand():
		err = runImport(cfg)
	case startCmd.FullCommand():
		err = run(cfg)
	}
	if err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		closer.Close()
		os.Exit(1)
	}
}

// run serves until SIGINT or SIGTERM. Deferred cleanup runs on every
// return path.
func run(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if _, err := session.BuildFilters(cfg); err != nil {
		return errors.Wrap(err, "invalid filter config")
	}

	cat, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		return errors.Wrap(err, "catalog unavailable")
	}
	defer cat.Close()
	if err := cat.Ping(ctx); err != nil {
		return errors.Wrap(err, "catalog unreachable")
	}

	sc := scanner.New(cat, newEnricher(cfg, cat), cfg.Catalog.Dirs, cfg.Catalog.Extensions)
	if len(cfg.Catalog.Dirs) > 0 {
		if _, err := sc.ScanAll(ctx); err != nil {
			zlog.Error().Msgf("Failed to scan catalog dirs: %v", err)
		}
	}
	importSpotify(ctx, cfg, cat, cfg.Spotify.Playlists)

	count, err := cat.Count(ctx)
	if err != nil {
		return errors.Wrap(err, "catalog unreachable")
	}
	zlog.Info().Msgf("Catalog ready: path=%s items=%d", cfg.Catalog.Path, count)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	var prefs radio.PreferenceStore
	if store, err := prefstore.New(ctx, rdb, cfg.Redis.Prefix); err != nil {
		zlog.Warn().Msgf("Preference store unavailable, preferences and ratings disabled: %v", err)
	} else {
		prefs = store
	}

	notifier := notification.NewManager()
	registry, err := session.NewRegistry(cfg, session.Deps{
		Catalog:     cat,
		Preferences: prefs,
		Notifier:    notifier,
		NewEnvironment: func(id string) session.Environment {
			return environment.NewVirtual(id, nil)
		},
	})
	if err != nil {
		return errors.Wrap(err, "failed to create sessions")
	}
	if err := registry.Start(ctx); err != nil {
		return err
	}

	if cfg.Catalog.Watch && len(cfg.Catalog.Dirs) > 0 {
		go func() {
			if err := sc.Watch(ctx); err != nil {
				zlog.Error().Msgf("Catalog watch stopped: %v", err)
			}
		}()
	}

	api := httpapi.NewServer(cfg, registry, notifier)
	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: h2c.NewHandler(api.Router(), &http2.Server{}),
	}

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		registry.Stop()
		return errors.Wrapf(err, "failed to listen on %s", cfg.Server.Addr)
	}
	serveErr := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Serving: addr=%s sessions=%d", ln.Addr(), len(cfg.Sessions))
		if err := server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	hookEnv := []string{"RADIO_ADDR=" + ln.Addr().String()}
	executeHooks(cfg.Server.Hooks.OnStarted, "on_started", hookEnv)

	var runErr error
	select {
	case <-ctx.Done():
		zlog.Info().Msg("Shutting down...")
	case err := <-serveErr:
		runErr = errors.Wrap(err, "server error")
	}

	cancel()
	registry.Stop()
	notifier.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}
	zlog.Info().Msg("Server stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped", hookEnv)
	return runErr
}

// runImport scans directories and imports playlists once.
func runImport(cfg *config.Config) error {
	ctx := context.Background()

	cat, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		return errors.Wrap(err, "catalog unavailable")
	}
	defer cat.Close()

	dirs := *importDirs
	if len(dirs) == 0 {
		dirs = cfg.Catalog.Dirs
	}
	if len(dirs) > 0 {
		sc := scanner.New(cat, newEnricher(cfg, cat), dirs, cfg.Catalog.Extensions)
		n, err := sc.ScanAll(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d files from %s\n", n, strings.Join(dirs, ", "))
	}

	playlists := *importPlaylists
	if len(playlists) == 0 {
		playlists = cfg.Spotify.Playlists
	}
	importSpotify(ctx, cfg, cat, playlists)

	count, err := cat.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Catalog now holds %d items\n", count)
	return nil
}

// newEnricher returns the Last.fm keyword enricher, nil without an API key.
func newEnricher(cfg *config.Config, cat *catalog.Catalog) scanner.Enricher {
	if cfg.LastFM.APIKey == "" {
		return nil
	}
	client, err := lastfm.New(lastfm.Config{APIKey: cfg.LastFM.APIKey})
	if err != nil {
		zlog.Warn().Msgf("Last.fm enrichment disabled: %v", err)
		return nil
	}
	return lastfm.NewEnricher(client, cat, cfg.LastFM.MaxTags, cfg.LastFM.MinCount)
}

// importSpotify imports playlists when Spotify credentials are configured.
// Failures are logged; the catalog keeps what was imported before.
func importSpotify(ctx context.Context, cfg *config.Config, cat *catalog.Catalog, playlists []string) {
	if len(playlists) == 0 {
		return
	}
	if !cfg.SpotifyEnabled() {
		zlog.Warn().Msg("Spotify playlists configured but credentials are missing, skipping import")
		return
	}

	client, err := spotify.New(ctx, spotify.Config{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		Market:       cfg.Spotify.Market,
	})
	if err != nil {
		zlog.Error().Msgf("Failed to create Spotify client: %v", err)
		return
	}

	var enricher spotify.Enricher
	if e := newEnricher(cfg, cat); e != nil {
		enricher = e
	}
	importer := spotify.NewImporter(client, cat, enricher)
	for _, p := range playlists {
		n, err := importer.ImportPlaylist(ctx, p)
		if err != nil {
			zlog.Error().Msgf("Failed to import playlist %s: %v", p, err)
			continue
		}
		zlog.Info().Msgf("Imported Spotify playlist: ref=%s items=%d", p, n)
	}
}

// printFilters prints available filters.
func printFilters() {
	fmt.Println("Available Filters:")
	all := []filter.Filter{&filter.AcceptingFilter{}}
	for _, name := range filter.Names() {
		f, _ := filter.New(name)
		all = append(all, f)
	}
	for _, f := range all {
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}

// executeHooks runs each hook through sh with env added to the server's
// environment. A hook that fails or outlives hookTimeout is logged and the
// rest still run.
func executeHooks(hooks []string, stage string, env []string) {
	for i, hook := range hooks {
		zlog.Info().Msgf("Running %s hook %d/%d: %s", stage, i+1, len(hooks), hook)

		ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
		cmd := exec.CommandContext(ctx, "sh", "-c", hook)
		cmd.Env = append(os.Environ(), env...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Hook failed: stage=%s hook=%s", stage, hook)
		}
		cancel()
	}
}
