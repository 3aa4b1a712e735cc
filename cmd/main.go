package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"elevation_service/internal/api"
	"elevation_service/internal/config"
	"elevation_service/internal/core"
	"elevation_service/internal/domain/model"
	"elevation_service/internal/domain/repository"
	"elevation_service/internal/infrastructure/cache"
	"elevation_service/internal/infrastructure/events"
	"elevation_service/internal/infrastructure/provider"
	"elevation_service/internal/infrastructure/tilestore"
	"elevation_service/internal/logging"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const usage = `usage: elevation_service <command> [flags]

commands:
  serve         run the HTTP serving API
  acquire       run acquisition workers
  seed-grid     enqueue grid units for the configured region
  seed-roads    enqueue road units from Overpass
  export-tiles  aggregate samples into tiles and upload them
  stats         print acquisition statistics`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]
	if err := run(ctx, cmd, args, cfg, logger); err != nil {
		logger.Error("command failed", zap.String("command", cmd), zap.Error(err))
		stop()
		logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string, args []string, cfg *config.Config, logger *zap.Logger) error {
	switch cmd {
	case "serve", "acquire", "seed-grid", "seed-roads", "export-tiles", "stats":
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}

	db, err := repository.Open(ctx, cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()

	a, err := newApp(ctx, cfg, db, logger)
	if err != nil {
		return err
	}
	defer a.close()

	switch cmd {
	case "serve":
		return a.serve(ctx)
	case "acquire":
		return a.acquire(ctx, args)
	case "seed-grid":
		return a.seedGrid(ctx)
	case "seed-roads":
		return a.seedRoads(ctx, args)
	case "export-tiles":
		return a.exportTiles(ctx, args)
	default:
		return a.printStats(ctx)
	}
}

// app holds the components shared by every command.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	samples   *repository.SQLElevationRepository
	units     *repository.SQLWorkUnitRepository
	profiles  *repository.SQLProfileRepository
	store     *core.ElevationStore
	fetcher   *core.Fetcher
	builder   *core.ProfileBuilder
	scheduler *core.Scheduler
	service   *core.ElevationService
	closers   []func() error
}

func newApp(ctx context.Context, cfg *config.Config, db *sqlx.DB, logger *zap.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		samples:  repository.NewSQLElevationRepository(db),
		units:    repository.NewSQLWorkUnitRepository(db),
		profiles: repository.NewSQLProfileRepository(db),
	}

	a.store = core.NewElevationStore(a.samples, core.DefaultRegionTable(), core.LookupOptions{
		ExactRadius:    cfg.Lookup.ExactRadius,
		NeighborRadius: cfg.Lookup.NeighborRadius,
		NeighborLimit:  cfg.Lookup.NeighborLimit,
	}, logger.Named("store"))

	ranked := make([]core.RankedProvider, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		ranked = append(ranked, core.RankedProvider{
			Provider: provider.NewHTTPProvider(provider.Options{
				Name:      p.Name,
				Endpoint:  p.URL,
				BatchSize: p.BatchSize,
				Accuracy:  p.Accuracy,
				Timeout:   p.Timeout,
			}),
			RPS: p.RPS,
		})
	}
	fetcher, err := core.NewFetcher(ranked, logger.Named("fetcher"))
	if err != nil {
		return nil, err
	}
	a.fetcher = fetcher
	a.builder = core.NewProfileBuilder(a.store, fetcher, logger.Named("profiles"))

	var publisher core.EventPublisher = events.NopPublisher{}
	if cfg.NATS.URL != "" {
		nc, err := events.Connect(cfg.NATS.URL)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, nc.Close)
		publisher = nc
	}
	a.scheduler = core.NewScheduler(a.units, publisher, core.SchedulerOptions{
		MaxErrors:     cfg.Scheduler.MaxErrors,
		RetryCooldown: cfg.Scheduler.RetryCooldown,
		StaleAfter:    cfg.Scheduler.StaleAfter,
	}, logger.Named("scheduler"))

	var profileCache core.ProfileCache
	if cfg.Redis.URL != "" {
		rdb, err := cache.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, rdb.Close)
		profileCache = cache.NewRedisProfileCache(rdb, cfg.Redis.ProfileTTL)
	}

	a.service = core.NewElevationService(
		a.store,
		a.samples,
		a.builder,
		a.profiles,
		profileCache,
		a.scheduler,
		cfg.Profile.SampleInterval,
		logger.Named("service"),
	)
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("failed to close resource", zap.Error(err))
		}
	}
}

func (a *app) serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           api.NewRouter(a.service, a.logger.Named("api")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (a *app) acquire(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("acquire", flag.ContinueOnError)
	workers := fs.Int("workers", a.cfg.Scheduler.Workers, "number of concurrent workers")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", *workers)
	}

	opts := core.WorkerOptions{
		PollInterval:   a.cfg.Scheduler.PollInterval,
		UnitDelay:      a.cfg.Scheduler.UnitDelay,
		ErrorDelay:     a.cfg.Scheduler.ErrorDelay,
		SampleInterval: a.cfg.Profile.SampleInterval,
	}
	pool := make([]*core.Worker, *workers)
	for i := range pool {
		pool[i] = core.NewWorker(a.scheduler, a.fetcher, a.store, a.builder, a.profiles, opts, a.logger.Named("worker"))
	}

	a.logger.Info("starting acquisition", zap.Int("workers", len(pool)), zap.Int("providers", len(a.cfg.Providers)))
	return core.RunWorkers(ctx, a.scheduler, pool)
}

func (a *app) seedGrid(ctx context.Context) error {
	units, err := core.GenerateGridUnits(a.cfg.Grid.Region, a.cfg.Grid.CellSize, a.cfg.Grid.Regions)
	if err != nil {
		return err
	}
	added, err := a.scheduler.Enqueue(ctx, units)
	if err != nil {
		return err
	}
	a.logger.Info("seeded grid", zap.Int("cells", len(units)), zap.Int("added", added))
	return nil
}

func (a *app) seedRoads(ctx context.Context, args []string) error {
	bounds, err := parseBoundsFlag("seed-roads", args, a.cfg.Grid.Region)
	if err != nil {
		return err
	}

	source := repository.NewOverpassRoadSource(a.cfg.Overpass.URL, a.cfg.Overpass.Timeout, a.logger.Named("overpass"))
	roads, err := source.GetRoads(ctx, bounds)
	if err != nil {
		return err
	}
	units := core.GenerateRoadUnits(roads)
	added, err := a.scheduler.Enqueue(ctx, units)
	if err != nil {
		return err
	}
	a.logger.Info("seeded roads", zap.Int("roads", len(roads)), zap.Int("added", added))
	return nil
}

func (a *app) exportTiles(ctx context.Context, args []string) error {
	bounds, err := parseBoundsFlag("export-tiles", args, a.cfg.Grid.Region)
	if err != nil {
		return err
	}

	sink, err := tilestore.NewMinioSink(tilestore.Options{
		Endpoint:  a.cfg.Minio.Endpoint,
		AccessKey: a.cfg.Minio.AccessKey,
		SecretKey: a.cfg.Minio.SecretKey,
		Bucket:    a.cfg.Minio.Bucket,
		Prefix:    a.cfg.Tiles.Prefix,
		UseSSL:    a.cfg.Minio.UseSSL,
	})
	if err != nil {
		return err
	}
	if err := sink.EnsureBucket(ctx); err != nil {
		return err
	}

	n, err := core.NewTileExporter(a.samples, sink, a.cfg.Tiles.Size, a.logger.Named("tiles")).Export(ctx, bounds)
	if err != nil {
		return err
	}
	a.logger.Info("exported tiles", zap.Int("tiles", n), zap.String("bucket", a.cfg.Minio.Bucket))
	return nil
}

func (a *app) printStats(ctx context.Context) error {
	stats, err := a.service.Stats(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}

// parseBoundsFlag reads -bbox "minLat,minLon,maxLat,maxLon", falling back to
// def when the flag is absent.
func parseBoundsFlag(name string, args []string, def model.Bounds) (model.Bounds, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	bbox := fs.String("bbox", "", "minLat,minLon,maxLat,maxLon")
	if err := fs.Parse(args); err != nil {
		return model.Bounds{}, err
	}
	if *bbox == "" {
		return def, nil
	}
	minLat, minLon, maxLat, maxLon, err := repository.ParseBBox(*bbox)
	if err != nil {
		return model.Bounds{}, err
	}
	b := model.Bounds{MinLat: minLat, MinLon: minLon, MaxLat: maxLat, MaxLon: maxLon}
	if !b.Valid() {
		return model.Bounds{}, fmt.Errorf("invalid bbox %q", *bbox)
	}
	return b, nil
}
