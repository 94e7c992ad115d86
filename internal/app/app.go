// Package app assembles the server: logging router, telemetry registry,
// checkpoint store, remediation client, simulation loop, and the HTTP
// surface. It is the only package that knows about every other one.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"time"

	servernet "emberfall/server/internal/net"
	"emberfall/server/internal/persist"
	"emberfall/server/internal/remed"
	"emberfall/server/internal/sim"
	"emberfall/server/internal/telemetry"
	"emberfall/server/internal/world"
	"emberfall/server/logging"
	loggingSinks "emberfall/server/logging/sinks"
)

const (
	defaultAddr               = ":8080"
	defaultKeyframeInterval   = 120
	defaultCheckpointInterval = 30 * time.Second
)

// Config carries the knobs callers set before Run. Zero values fall back to
// defaults; environment variables override on top.
type Config struct {
	Addr string

	Logger telemetry.Logger

	// World selects the boot context. Zero value means top-down defaults.
	World world.Config

	// KeyframeInterval is the tick period between journal keyframes.
	KeyframeInterval int

	// CheckpointPath is the sqlite file for boot restore. Empty disables
	// persistence.
	CheckpointPath     string
	CheckpointInterval time.Duration

	// Remediation configures the external elimination authority. An empty
	// BaseURL leaves eliminations resolving by deadline sweep only.
	Remediation remed.Config
}

func (cfg Config) withEnv(logger telemetry.Logger) Config {
	out := cfg
	if raw := os.Getenv("EMBERFALL_ADDR"); raw != "" {
		out.Addr = raw
	}
	if raw := os.Getenv("EMBERFALL_KEYFRAME_INTERVAL"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			out.KeyframeInterval = value
		} else {
			logger.Printf("invalid EMBERFALL_KEYFRAME_INTERVAL=%q: %v", raw, err)
		}
	}
	if raw := os.Getenv("EMBERFALL_CHECKPOINT_PATH"); raw != "" {
		out.CheckpointPath = raw
	}
	if raw := os.Getenv("EMBERFALL_REMEDIATION_URL"); raw != "" {
		out.Remediation.BaseURL = raw
	}
	if raw := os.Getenv("EMBERFALL_REMEDIATION_SECRET"); raw != "" {
		out.Remediation.Secret = []byte(raw)
	}
	if out.Addr == "" {
		out.Addr = defaultAddr
	}
	if out.KeyframeInterval <= 0 {
		out.KeyframeInterval = defaultKeyframeInterval
	}
	if out.CheckpointInterval <= 0 {
		out.CheckpointInterval = defaultCheckpointInterval
	}
	return out
}

// Run boots the server and blocks until the HTTP listener fails or ctx is
// cancelled.
func Run(ctx context.Context, cfg Config) error {
	telemetryLogger := cfg.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}
	cfg = cfg.withEnv(telemetryLogger)

	logCfg := logging.DefaultConfig()
	namedSinks := []logging.NamedSink{
		{Name: "console", Sink: loggingSinks.NewConsole(os.Stdout, logCfg.Console)},
	}
	if path := os.Getenv("EMBERFALL_LOG_JSON"); path != "" {
		file, ferr := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if ferr != nil {
			telemetryLogger.Printf("cannot open json log %q: %v", path, ferr)
		} else {
			defer file.Close()
			namedSinks = append(namedSinks, logging.NamedSink{Name: "json", Sink: loggingSinks.NewJSON(file, logCfg.JSON.FlushInterval)})
		}
	}

	router, err := logging.NewRouter(logging.SystemClock{}, logCfg, namedSinks)
	if err != nil {
		return fmt.Errorf("app: construct logging router: %w", err)
	}
	defer func() {
		if cerr := router.Close(context.Background()); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	metrics := logging.NewMetrics()

	wctx, err := world.NewContext(cfg.World)
	if err != nil {
		return fmt.Errorf("app: world context: %w", err)
	}

	core, err := sim.NewCore(sim.CoreConfig{}, sim.Deps{
		Logger:    telemetryLogger,
		Metrics:   telemetry.WrapMetrics(metrics),
		Publisher: router,
		Clock:     logging.SystemClock{},
		RNG:       rand.New(rand.NewSource(world.SeedSource(wctx.Seed()))),
	}, wctx)
	if err != nil {
		return fmt.Errorf("app: simulation core: %w", err)
	}

	var store *persist.Store
	if cfg.CheckpointPath != "" {
		store, err = persist.Open(cfg.CheckpointPath)
		if err != nil {
			return fmt.Errorf("app: open checkpoint store: %w", err)
		}
		defer store.Close()

		tick, views, lerr := store.LoadCheckpoint(ctx)
		switch {
		case lerr == nil:
			core.RestoreSnapshot(views)
			telemetryLogger.Printf("restored checkpoint from tick %d (%d actors)", tick, len(views))
		case errors.Is(lerr, sql.ErrNoRows):
			// Fresh database, nothing to restore.
		default:
			return fmt.Errorf("app: load checkpoint: %w", lerr)
		}
	}

	if cfg.Remediation.BaseURL != "" {
		client := remed.NewClient(cfg.Remediation, core.Pipeline(), telemetryLogger)
		core.Pipeline().AttachRemediator(client)
	}

	hub := servernet.NewHub(telemetryLogger)
	defer hub.Close()

	var loop *sim.Loop
	var lastKeyframeSeq uint64
	var lastCheckpoint time.Time
	hooks := sim.LoopHooks{
		AfterStep: func(result sim.LoopStepResult) {
			if cfg.KeyframeInterval > 0 && result.Tick%uint64(cfg.KeyframeInterval) == 0 {
				record := loop.RecordKeyframe()
				lastKeyframeSeq = record.NewestSequence
			}
			hub.BroadcastState(servernet.StateMessage{
				Type:        "state",
				Tick:        result.Tick,
				Snapshot:    result.Snapshot,
				Patches:     result.Patches,
				KeyframeSeq: lastKeyframeSeq,
			})
			if store != nil && result.Now.Sub(lastCheckpoint) >= cfg.CheckpointInterval {
				lastCheckpoint = result.Now
				if serr := store.SaveCheckpoint(context.Background(), result.Snapshot); serr != nil {
					telemetryLogger.Printf("checkpoint save failed: %v", serr)
					metrics.TelemetryAdd("app_checkpoint_failures_total", 1)
				}
			}
		},
	}
	loop = sim.NewLoop(core, sim.LoopConfig{}, hooks)

	stop := make(chan struct{})
	go loop.Run(stop)
	defer close(stop)

	handler := servernet.NewHTTPHandler(servernet.HandlerConfig{
		Gateway:  loop,
		Hub:      hub,
		PlayerID: core.PlayerID,
		Logger:   telemetryLogger,
		Metrics:  metrics,
	})

	srv := &http.Server{Addr: cfg.Addr, Handler: handler}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	telemetryLogger.Printf("server listening on %s (world=%s)", srv.Addr, wctx.Kind())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("app: server failed: %w", err)
	}
	return nil
}
