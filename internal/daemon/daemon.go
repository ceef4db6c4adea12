// Package daemon wires the engine together and runs its background loops:
// the admin HTTP server, the agent health sweep, the periodic queue drain,
// and config hot-reload.
package daemon

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kelhray/dispatch/internal/config"
	"github.com/kelhray/dispatch/internal/gateway"
	"github.com/kelhray/dispatch/internal/httpapi"
	"github.com/kelhray/dispatch/internal/log"
	"github.com/kelhray/dispatch/internal/monitor"
	"github.com/kelhray/dispatch/internal/orchestrator"
	"github.com/kelhray/dispatch/internal/registry"
	"github.com/kelhray/dispatch/internal/report"
	"github.com/kelhray/dispatch/internal/state"
)

// AgentSeedFile is the default seed file consulted at startup.
const AgentSeedFile = "agents.yaml"

// Daemon owns the assembled engine and its background loops.
type Daemon struct {
	cfg      *config.Config
	store    state.Store
	registry *registry.Registry
	monitor  *monitor.Monitor
	orch     *orchestrator.Orchestrator
}

// New assembles the engine from config: store backend, gateway client,
// registry, monitor, and orchestrator.
func New(cfg *config.Config) (*Daemon, error) {
	store, err := openStore(cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, err
	}

	gw := gateway.NewHTTPClient(cfg.Gateway.URL, cfg.Gateway.Timeout)
	reg := registry.New(store)
	mon := monitor.New(store, gw, cfg.Monitor.PollInterval)
	orch := orchestrator.New(store, reg, mon, gw)

	return &Daemon{
		cfg:      cfg,
		store:    store,
		registry: reg,
		monitor:  mon,
		orch:     orch,
	}, nil
}

// openStore builds the configured persistence backend.
func openStore(cfg config.StoreConfig) (state.Store, error) {
	switch cfg.Backend {
	case "postgres":
		return state.NewPostgresStore(cfg.DSN)
	case "memory":
		return state.NewMemoryStore(), nil
	default:
		path := cfg.Path
		if path == "" {
			path = state.DefaultDBPath()
		}
		return state.Open(path)
	}
}

// Orchestrator exposes the orchestrator for embedding callers.
func (d *Daemon) Orchestrator() *orchestrator.Orchestrator {
	return d.orch
}

// Run starts every loop and blocks until the context is cancelled or a loop
// fails. Shutdown is graceful: the HTTP server drains, session monitors stop,
// and the store closes.
func (d *Daemon) Run(ctx context.Context) error {
	logger := log.GetLogger()
	d.seedAgents()

	srv := &http.Server{
		Addr:    d.cfg.HTTP.Addr,
		Handler: httpapi.NewServer(d.orch, d.registry, d.store, d.cfg.Health.Threshold).Handler(),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Infof("[daemon] admin API listening on %s", d.cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(d.cfg.Health.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if offlined := d.registry.HealthSweep(d.cfg.Health.Threshold); offlined > 0 {
					logger.Infof("[daemon] health sweep took %d agents offline", offlined)
				}
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(d.cfg.Queue.DrainInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if _, err := d.orch.ProcessNextTask(ctx); err != nil {
					logger.Warnf("[daemon] queue drain: %v", err)
				}
			}
		}
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev := <-d.orch.Events():
				logger.Debugf("[daemon] event %s task=%s agent=%s", ev.Type, ev.TaskID, ev.AgentID)
			}
		}
	})

	if d.cfg.Report.Interval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(d.cfg.Report.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					rep, err := report.Generate(d.store)
					if err != nil {
						logger.Warnf("[daemon] generate report: %v", err)
						continue
					}
					logger.Infof("[daemon] activity: %d pending, %d in progress, %d completed, %d failed, %d agents",
						rep.Queue.Pending, rep.Queue.InProgress, rep.Queue.Completed, rep.Queue.Failed, len(rep.Agents))
				}
			}
		})
	}

	if userConfig := config.GetUserConfigPath(); fileExists(userConfig) {
		g.Go(func() error {
			return config.Watch(ctx, userConfig, d.applyConfig)
		})
	}

	err := g.Wait()
	d.monitor.Stop()
	if cerr := d.store.Close(); cerr != nil {
		logger.Warnf("[daemon] close store: %v", cerr)
	}
	logger.Info("[daemon] shut down")
	return err
}

// applyConfig picks up the hot-reloadable settings from a fresh config.
// Listen addresses and store backends need a restart; they are ignored here.
func (d *Daemon) applyConfig(cfg *config.Config) {
	d.monitor.SetInterval(cfg.Monitor.PollInterval)
	log.SetLevel(cfg.Log.Level)
	d.cfg.Health.Threshold = cfg.Health.Threshold
}

// seedAgents registers agents from the seed file, skipping names that are
// already registered so repeated boots stay idempotent.
func (d *Daemon) seedAgents() {
	logger := log.GetLogger()
	seeds, err := config.LoadAgentSeeds(AgentSeedFile)
	if err != nil {
		logger.Warnf("[daemon] load agent seeds: %v", err)
		return
	}
	if len(seeds) == 0 {
		return
	}

	existing, err := d.registry.List(state.AgentFilter{})
	if err != nil {
		logger.Warnf("[daemon] list agents for seeding: %v", err)
		return
	}
	known := make(map[string]bool, len(existing))
	for _, a := range existing {
		known[a.Name] = true
	}

	for _, seed := range seeds {
		if known[seed.Name] {
			continue
		}
		if _, err := d.registry.Register(seed.Name, seed.Capabilities, seed.Config); err != nil {
			logger.Warnf("[daemon] seed agent %q: %v", seed.Name, err)
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
