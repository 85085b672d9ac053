// Package main is the entry point for the galaxy simulation server.
// It only handles dependency injection and server initialization.
// NO business logic belongs here.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/MRamiBalles/GalacticCiv/internal/cognition"
	"github.com/MRamiBalles/GalacticCiv/internal/domain/simulation"
	"github.com/MRamiBalles/GalacticCiv/internal/engine"
	"github.com/MRamiBalles/GalacticCiv/internal/events"
	"github.com/MRamiBalles/GalacticCiv/internal/infra/ai"
	"github.com/MRamiBalles/GalacticCiv/internal/infra/storage"
	"github.com/MRamiBalles/GalacticCiv/internal/network"
	"github.com/MRamiBalles/GalacticCiv/internal/platform/config"
	"github.com/MRamiBalles/GalacticCiv/internal/platform/logger"
	"github.com/MRamiBalles/GalacticCiv/internal/platform/metrics"
	"github.com/MRamiBalles/GalacticCiv/internal/platform/optimization"
	"github.com/MRamiBalles/GalacticCiv/internal/platform/otel"
	"github.com/MRamiBalles/GalacticCiv/internal/world"
)

func main() {
	appLogger := logger.NewLogger()
	if err := run(appLogger); err != nil {
		appLogger.Errorf("galaxy-server: %v", err)
		os.Exit(1)
	}
}

func run(appLogger *logger.Logger) error {
	appLogger.Info("Initializing galaxy simulation server...")

	srvCfg, err := config.LoadServer()
	if err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	engCfg, err := config.LoadEngine(srvCfg.Profile)
	if err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Setup(ctx, otel.Settings{
		ServiceName: srvCfg.OTelServiceName,
		Endpoint:    srvCfg.OTelEndpoint,
		Enabled:     srvCfg.OTelEnabled,
		SampleRatio: srvCfg.OTelSampleRatio,
		Profile:     srvCfg.Profile,
	})
	if err != nil {
		appLogger.Warnf("Tracing disabled: %v", err)
	}
	defer shutdownTracing(context.Background())

	collector := metrics.NewCollector()
	state := world.NewState()

	appLogger.Info("Bootstrapping AI cognition...")
	modules := cognition.DefaultModuleSpecs(cognition.ModuleOptions{
		Provider:   newProvider(srvCfg, collector),
		LLMModules: srvCfg.LLMModules,
		ShadowMode: srvCfg.ShadowMode,
	}, appLogger)

	eng, err := engine.New(engCfg,
		engine.WithLogger(appLogger),
		engine.WithState(state),
		engine.WithMetrics(collector),
		engine.WithModules(modules),
	)
	if err != nil {
		return err
	}
	if err := eng.Initialize(ctx); err != nil {
		return err
	}

	appLogger.Infof("Opening %s storage...", srvCfg.DBDriver)
	store, err := openStore(ctx, srvCfg)
	if err != nil {
		return err
	}
	defer store.Close()

	eventLog := events.NewEventLog(journalFor(store, state), appLogger)
	detachLog := eventLog.Attach(eng)
	defer detachLog()

	if err := bootstrapGalaxy(ctx, store, eng, appLogger); err != nil {
		return err
	}

	appLogger.Info("Bootstrapping WebSocket Hub...")
	hub := network.NewHub(eng, appLogger)
	go hub.Run(ctx)
	detachHub := hub.Attach(eng)
	defer detachHub()

	if err := eng.Start(ctx); err != nil {
		return err
	}
	go tune(ctx, eng, srvCfg.TuneInterval, appLogger)

	server := &http.Server{
		Addr:              srvCfg.Addr,
		Handler:           routes(eng, hub, eventLog, store, appLogger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		appLogger.Infof("HTTP API & WS server listening on %s", srvCfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		appLogger.Info("Shutting down...")
	case err := <-serverErr:
		appLogger.Errorf("HTTP server failed: %v", err)
	case <-eng.Done():
		appLogger.Error("Engine stopped on its own, shutting down.")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Warnf("HTTP shutdown: %v", err)
	}
	// Close drains every subscriber, so the journal sees the stopped event
	return eng.Close(shutdownCtx)
}

func newProvider(cfg config.ServerConfig, usage ai.UsageRecorder) ai.LLMProvider {
	if cfg.OpenAIKey == "" {
		return nil
	}
	gate := ai.NewBudgetGate(cfg.DailyBudgetUSD, cfg.MonthlyBudgetUSD)
	return ai.NewOpenAIProvider(cfg.OpenAIKey, gate,
		ai.WithModel(cfg.OpenAIModel),
		ai.WithUsageRecorder(usage),
	)
}

// store bundles the repositories of one backend.
type store struct {
	events    storage.EventRepository
	snapshots storage.SnapshotRepository
	closer    func() error
}

func (s *store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

func openStore(ctx context.Context, cfg config.ServerConfig) (*store, error) {
	switch cfg.DBDriver {
	case "sqlite":
		db, err := storage.InitSQLite(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		return &store{
			events:    storage.NewSQLiteEventRepository(db),
			snapshots: storage.NewSQLiteSnapshotRepository(db),
			closer:    db.Close,
		}, nil
	case "postgres":
		db, err := storage.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		var sqlDB *sql.DB
		if sqlDB, err = db.DB(); err != nil {
			return nil, err
		}
		return &store{
			events:    storage.NewGormEventRepository(db),
			snapshots: storage.NewGormSnapshotRepository(db),
			closer:    sqlDB.Close,
		}, nil
	case "none", "":
		return &store{}, nil
	default:
		return nil, fmt.Errorf("unknown db driver %q", cfg.DBDriver)
	}
}

func journalFor(s *store, view world.View) events.EventPersister {
	if s.events == nil {
		return nil
	}
	return storage.NewJournal(s.events, s.snapshots, view)
}

// bootstrapGalaxy resumes from storage, or seeds the starter empires on a fresh database.
func bootstrapGalaxy(ctx context.Context, s *store, eng *engine.Engine, log *logger.Logger) error {
	if s.events != nil {
		tick, entities, err := storage.NewReconstructor(s.events, s.snapshots).Restore(ctx)
		if err != nil {
			return fmt.Errorf("restore: %w", err)
		}
		if len(entities) > 0 {
			log.Info("Reconstructing galaxy from storage...")
			return eng.Restore(tick, entities)
		}
	}

	log.Info("Database empty. Seeding starter empires...")
	return eng.Seed(
		world.Entity{ID: "TERRAN_UNION", Kind: "empire", Location: "Sol", Resources: 500, Population: 12000,
			Relationships: map[string]float64{"VEGAN_COLLECTIVE": 60, "KRYL_HEGEMONY": -40}},
		world.Entity{ID: "VEGAN_COLLECTIVE", Kind: "empire", Location: "Vega", Resources: 350, Population: 8000,
			Relationships: map[string]float64{"TERRAN_UNION": 60}},
		world.Entity{ID: "KRYL_HEGEMONY", Kind: "empire", Location: "Kryl Prime", Resources: 800, Population: 20000,
			Relationships: map[string]float64{"TERRAN_UNION": -40}},
		world.Entity{ID: "ORION_TRADERS", Kind: "business", Location: "Orion Belt", Resources: 1200, Population: 300},
		world.Entity{ID: "ADMIRAL_REYES", Kind: "character", Location: "Sol", Resources: 40, Population: 1,
			Relationships: map[string]float64{"TERRAN_UNION": 80}},
	)
}

// tune periodically logs configuration recommendations. The running engine
// keeps its configuration; operators apply them on the next restart.
func tune(ctx context.Context, eng *engine.Engine, every time.Duration, log *logger.Logger) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			cfg := eng.Config()
			rec := optimization.Analyze(eng.Snapshot(), cfg, eng.GetPerformanceMetrics().DroppedEvents)
			if rec.Empty() {
				continue
			}
			next := optimization.ApplyRecommendations(cfg, rec)
			for _, note := range rec.Notes {
				log.Warn("Tuning: " + note)
			}
			log.Infof("Suggested engine config: tick=%s concurrency=%d ai_timeout=%s cache=%d events=%d",
				next.TickRate, next.MaxConcurrency, next.AITimeout, next.CacheSize, next.EventBuffer)
		}
	}
}

func routes(eng *engine.Engine, hub *network.Hub, eventLog *events.EventLog, s *store, log *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", network.ServeWS(hub))
	mux.Handle("/metrics", metrics.Handler(eng))
	mux.Handle("/metrics/prometheus", metrics.PrometheusHandler(eng))

	mux.HandleFunc("GET /api/state", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, eng.GetGameState())
	})

	mux.HandleFunc("GET /api/performance", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, eng.GetPerformanceMetrics())
	})

	mux.HandleFunc("POST /api/actions", func(w http.ResponseWriter, r *http.Request) {
		var req network.ActionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}
		id, err := eng.QueueAction(simulation.Action{
			Kind:      req.Kind,
			Domain:    simulation.Domain(req.Domain),
			Category:  req.Category,
			SubjectID: req.SubjectID,
			TargetID:  req.TargetID,
			Payload:   req.Payload,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "action_id": id})
	})

	mux.HandleFunc("GET /api/events", func(w http.ResponseWriter, r *http.Request) {
		since, _ := strconv.ParseUint(r.URL.Query().Get("since"), 10, 64)
		if actor := r.URL.Query().Get("actor"); actor != "" {
			writeJSON(w, http.StatusOK, eventLog.GetByActor(actor))
			return
		}
		writeJSON(w, http.StatusOK, eventLog.Since(since))
	})

	mux.HandleFunc("GET /api/recap/{actor}", func(w http.ResponseWriter, r *http.Request) {
		if s.events == nil {
			http.Error(w, "storage disabled", http.StatusNotFound)
			return
		}
		since, _ := strconv.ParseUint(r.URL.Query().Get("since"), 10, 64)
		recap, err := storage.NewReconstructor(s.events, s.snapshots).Recap(r.Context(), r.PathValue("actor"), since)
		if err != nil {
			log.Errorf("recap: %v", err)
			http.Error(w, "recap failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, recap)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
