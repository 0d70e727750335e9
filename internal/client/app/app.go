// Package app wires the client components together for the CLI and the
// background sync daemon.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/clinicsync/internal/client/api"
	"github.com/iudanet/clinicsync/internal/client/auth"
	"github.com/iudanet/clinicsync/internal/client/cache"
	"github.com/iudanet/clinicsync/internal/client/connectivity"
	"github.com/iudanet/clinicsync/internal/client/data"
	"github.com/iudanet/clinicsync/internal/client/events"
	"github.com/iudanet/clinicsync/internal/client/extractor"
	"github.com/iudanet/clinicsync/internal/client/queue"
	"github.com/iudanet/clinicsync/internal/client/realtime"
	"github.com/iudanet/clinicsync/internal/client/storage/boltdb"
	"github.com/iudanet/clinicsync/internal/config"
	"github.com/iudanet/clinicsync/internal/metrics"
	"github.com/iudanet/clinicsync/internal/models"
	pkgapi "github.com/iudanet/clinicsync/pkg/api"
)

// OwnerColumn is the feed filter column that scopes changes to the caller
const OwnerColumn = "owner_id"

// App holds the client components
type App struct {
	Config    *config.Client
	Logger    *slog.Logger
	Store     *boltdb.Storage
	Bus       *events.Bus
	Auth      *auth.TokenService
	API       *api.Client
	Monitor   *connectivity.Monitor
	Processor *queue.Processor
	Cache     *cache.Cache
	Data      data.Service
	Bridge    *realtime.Bridge
}

// New opens the local store and builds every component
func New(ctx context.Context, cfg *config.Client, logger *slog.Logger) (*App, error) {
	store, err := boltdb.New(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	bus := events.NewBus()
	authService := auth.NewService(auth.NewTokenStore(store, cfg.TokenSecret), logger)
	apiClient := api.NewClient(cfg.ServerURL, api.WithTokenProvider(authService))

	policy := queue.PolicyDeadLetter
	if cfg.Policy == config.PolicyRetain {
		policy = queue.PolicyRetainExhausted
	}

	// Начальное состояние - offline до первой успешной проверки
	monitor := connectivity.NewMonitor(apiClient, false, cfg.ProbeInterval, logger)
	processor := queue.NewProcessor(store, apiClient, logger,
		queue.WithInterval(cfg.DrainInterval),
		queue.WithDeliveryTimeout(cfg.DeliveryTimeout),
		queue.WithMaxRetries(cfg.MaxRetries),
		queue.WithPolicy(policy),
		queue.WithOnlineChecker(monitor),
		queue.WithPublisher(bus),
	)

	var extractorOpts []extractor.Option
	if cfg.StrictDates {
		extractorOpts = append(extractorOpts, extractor.WithStrictDates())
	}

	a := &App{
		Config:    cfg,
		Logger:    logger,
		Store:     store,
		Bus:       bus,
		Auth:      authService,
		API:       apiClient,
		Monitor:   monitor,
		Processor: processor,
		Cache:     cache.New(store, logger),
		Data: data.NewService(store, processor, extractor.New(extractorOpts...), logger,
			data.WithIdentity(authService),
			data.WithPublisher(bus),
		),
		Bridge: realtime.NewBridge(cfg.ServerURL, logger,
			realtime.WithTokenProvider(authService),
			realtime.WithPublisher(bus),
		),
	}

	monitor.OnOnline(processor.HandleOnline)
	monitor.OnOnline(func() { a.connectivityChanged(true) })
	monitor.OnOffline(func() { a.connectivityChanged(false) })

	return a, nil
}

// Close closes the local store
func (a *App) Close() error {
	return a.Store.Close()
}

func (a *App) connectivityChanged(online bool) {
	metrics.SetOnline(online)
	a.Bus.Emit(events.TopicConnectivity, online)
}

// RemoteRecords lists server records of entity through the response cache
func (a *App) RemoteRecords(ctx context.Context, entity string, refresh bool) ([]pkgapi.RecordResponse, error) {
	key := "GET " + pkgapi.RecordsPath(entity)
	if refresh {
		if err := a.Cache.Invalidate(ctx, key); err != nil {
			return nil, err
		}
	}

	var resp pkgapi.RecordListResponse
	err := a.Cache.Fetch(ctx, key, a.Config.CacheTTL, &resp, func(ctx context.Context, out any) error {
		return a.API.Get(ctx, pkgapi.RecordsPath(entity), out)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", entity, err)
	}
	return resp.Records, nil
}

// CleanupCache removes expired response cache entries
func (a *App) CleanupCache(ctx context.Context) (int, error) {
	return a.Cache.Cleanup(ctx)
}

// Run starts the daemon and blocks until ctx is cancelled:
// connectivity probing, periodic and reconnect drains, cache cleanup,
// change feeds for the caller's records and the local API (writes and metrics).
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	unsubscribe := a.Bus.Subscribe(events.Wildcard, func(ev events.Event) {
		a.Logger.Debug("Event", "topic", ev.Topic)
	})
	defer unsubscribe()

	if err := a.Processor.Start(ctx); err != nil {
		return err
	}
	defer a.Processor.Stop()

	if err := a.Cache.Start(ctx, a.Config.CacheCleanupInterval); err != nil {
		return err
	}
	defer a.Cache.Stop()

	a.Monitor.Start(ctx)
	defer a.Monitor.Stop()

	filter := realtime.Filter{}
	if identity, err := a.Auth.Identity(ctx); err == nil {
		filter = realtime.Filter{Column: OwnerColumn, Value: identity.UserID}
	} else {
		a.Logger.Warn("Change feeds disabled: no caller identity", "error", err)
	}

	feedsDone := make(chan struct{})
	go func() {
		defer close(feedsDone)
		if filter.Column == "" {
			return
		}
		done := make(chan struct{}, len(a.Config.FeedEntities))
		for _, entity := range a.Config.FeedEntities {
			go func(entity string) {
				a.watchFeed(ctx, entity, filter)
				done <- struct{}{}
			}(entity)
		}
		for range a.Config.FeedEntities {
			<-done
		}
	}()

	var srv *http.Server
	if a.Config.LocalAddr != "" {
		srv = &http.Server{Addr: a.Config.LocalAddr, Handler: a.LocalHandler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.Logger.Error("Local API server failed", "error", err)
			}
		}()
	}

	a.Logger.Info("Sync daemon started", "server", a.Config.ServerURL, "db", a.Config.DBPath)
	<-ctx.Done()

	if srv != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		_ = srv.Shutdown(shutdownCtx)
	}
	<-feedsDone

	a.Logger.Info("Sync daemon stopped")
	return nil
}

// watchFeed keeps a change feed open, resubscribing after failures
func (a *App) watchFeed(ctx context.Context, entity string, filter realtime.Filter) {
	logChange := func(ev models.ChangeEvent) {
		a.Logger.Info("Remote change", "entity", ev.EntityType, "kind", ev.Kind, "id", ev.Record["id"])
	}

	for ctx.Err() == nil {
		failed := make(chan error, 1)
		sub, err := a.Bridge.Subscribe(ctx, entity, filter, realtime.Handlers{
			OnInsert: logChange,
			OnUpdate: logChange,
			OnDelete: logChange,
			OnError:  func(err error) { failed <- err },
		})
		if err == nil {
			select {
			case err = <-failed:
				a.Logger.Warn("Change feed dropped", "entity", entity, "error", err)
			case <-ctx.Done():
				sub.Unsubscribe()
				return
			}
		} else {
			a.Logger.Debug("Change feed unavailable", "entity", entity, "error", err)
		}

		select {
		case <-time.After(a.Config.ProbeInterval):
		case <-ctx.Done():
			return
		}
	}
}
