// Command voceria is the Voceria call-session gateway: it answers the
// carrier's voice webhook, bridges each call's media stream into the
// recognizer/model/synthesizer pipeline, and serves the operator surface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atelic-ai/voceria/internal/admin"
	"github.com/atelic-ai/voceria/internal/config"
	"github.com/atelic-ai/voceria/internal/engine"
	"github.com/atelic-ai/voceria/internal/health"
	"github.com/atelic-ai/voceria/internal/integration"
	"github.com/atelic-ai/voceria/internal/observe"
	"github.com/atelic-ai/voceria/internal/session"
	"github.com/atelic-ai/voceria/internal/telephony"
	"github.com/atelic-ai/voceria/internal/tools"
	"github.com/atelic-ai/voceria/internal/tools/calendar"
	"github.com/atelic-ai/voceria/internal/tools/intent"
	"github.com/atelic-ai/voceria/internal/tools/leadstore"
	"github.com/atelic-ai/voceria/internal/weather"
	"github.com/atelic-ai/voceria/pkg/provider/llm"
	"github.com/atelic-ai/voceria/pkg/provider/llm/groq"
	"github.com/atelic-ai/voceria/pkg/provider/stt"
	"github.com/atelic-ai/voceria/pkg/provider/stt/deepgram"
	"github.com/atelic-ai/voceria/pkg/provider/tts"
	"github.com/atelic-ai/voceria/pkg/provider/tts/elevenlabs"
	"github.com/atelic-ai/voceria/pkg/types"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Environment + configuration ───────────────────────────────────────────
	// .env is loaded first so ${VAR} references in the YAML resolve.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "voceria: load .env: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voceria: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voceria: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voceria starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────────
	shutdownOTel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	recognizer, err := deepgram.New(cfg.Providers.STT.APIKey,
		deepgram.WithModel(cfg.Providers.STT.Model),
		deepgram.WithLanguage(cfg.Providers.STT.Language),
	)
	if err != nil {
		slog.Error("failed to create recognizer", "err", err)
		return 1
	}

	synthesizer, err := elevenlabs.New(cfg.Providers.TTS.APIKey,
		elevenlabs.WithModel(cfg.Providers.TTS.Model),
		elevenlabs.WithOutputFormat("ulaw_8000"),
	)
	if err != nil {
		slog.Error("failed to create synthesizer", "err", err)
		return 1
	}
	defer synthesizer.Close()

	var llmOpts []groq.Option
	if cfg.Providers.LLM.BaseURL != "" {
		llmOpts = append(llmOpts, groq.WithBaseURL(cfg.Providers.LLM.BaseURL))
	}
	model, err := groq.New(cfg.Providers.LLM.APIKey, cfg.Providers.LLM.Model, llmOpts...)
	if err != nil {
		slog.Error("failed to create model provider", "err", err)
		return 1
	}

	slog.Info("providers ready",
		"stt", cfg.Providers.STT.Model,
		"tts", cfg.Providers.TTS.Model,
		"llm", cfg.Providers.LLM.Model,
	)

	// ── Lead store (optional) ─────────────────────────────────────────────────
	var (
		pool  *pgxpool.Pool
		leads *leadstore.Store
	)
	if cfg.Postgres.DSN != "" {
		pool, err = pgxpool.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			slog.Error("failed to open postgres pool", "err", err)
			return 1
		}
		defer pool.Close()

		leads = leadstore.NewStore(pool, logger)
		if err := leads.Migrate(ctx); err != nil {
			slog.Error("lead store migration failed", "err", err)
			return 1
		}
		slog.Info("lead store ready")
	} else {
		slog.Warn("postgres.dsn not configured — lead capture disabled")
	}

	// ── Calendar (optional) ───────────────────────────────────────────────────
	loc, err := time.LoadLocation(cfg.Agent.Timezone)
	if err != nil {
		slog.Error("invalid timezone", "timezone", cfg.Agent.Timezone, "err", err)
		return 1
	}

	var cal *calendar.Service
	if cfg.Calendar.WebhookURL != "" {
		var calOpts []calendar.ClientOption
		if cfg.Calendar.AuthToken != "" {
			calOpts = append(calOpts, calendar.WithAuthToken(cfg.Calendar.AuthToken))
		}
		client, err := calendar.NewClient(cfg.Calendar.WebhookURL, logger, calOpts...)
		if err != nil {
			slog.Error("failed to create calendar client", "err", err)
			return 1
		}
		cache := calendar.NewSlotCache(client, loc, logger)
		if err := cache.Reload(ctx); err != nil {
			slog.Warn("initial availability fetch failed", "err", err)
		}
		cal = calendar.NewService(cache, client, logger)
		slog.Info("calendar ready", "webhook", cfg.Calendar.WebhookURL)
	} else {
		slog.Warn("calendar.webhook_url not configured — appointment tools disabled")
	}

	// ── Weather ───────────────────────────────────────────────────────────────
	var weatherOpts []weather.Option
	if cfg.Weather.CacheMinutes > 0 {
		weatherOpts = append(weatherOpts, weather.WithTTL(time.Duration(cfg.Weather.CacheMinutes)*time.Minute))
	}
	wsvc := weather.New(cfg.Weather.URL, logger, weatherOpts...)

	// ── Hangup control (optional) ─────────────────────────────────────────────
	var hangup session.HangupControl
	if cfg.Telephony.AccountSID != "" {
		hc, err := telephony.NewHangupClient(cfg.Telephony.AccountSID, cfg.Telephony.AuthToken)
		if err != nil {
			slog.Error("failed to create hangup client", "err", err)
			return 1
		}
		hangup = hc
	} else {
		slog.Warn("telephony credentials not configured — calls end when the caller hangs up")
	}

	// ── Hold tone (optional) ──────────────────────────────────────────────────
	var holdTone []byte
	if cfg.Telephony.HoldTonePath != "" {
		holdTone, err = session.LoadHoldTone(cfg.Telephony.HoldTonePath)
		if err != nil {
			slog.Warn("failed to load hold tone", "path", cfg.Telephony.HoldTonePath, "err", err)
		}
	}

	// ── Call assembly ─────────────────────────────────────────────────────────
	detector := intent.New()
	manager := session.NewManager(cfg.Limits.DailyCallCap)

	gw := &gateway{
		cfg:         cfg,
		log:         logger,
		metrics:     metrics,
		manager:     manager,
		recognizer:  recognizer,
		synthesizer: synthesizer,
		model:       model,
		detector:    detector,
		leads:       leads,
		calendar:    cal,
		weather:     wsvc,
		hangup:      hangup,
		holdTone:    holdTone,
	}

	// ── HTTP routes ───────────────────────────────────────────────────────────
	apiMux := http.NewServeMux()

	streamURL := "wss://" + cfg.Server.PublicHost + "/voice/stream"
	if cfg.Server.PublicHost == "" {
		slog.Warn("server.public_host not configured — inbound TwiML will carry an invalid stream URL")
	}
	apiMux.HandleFunc("POST /voice/inbound", telephony.InboundHandler(
		streamURL,
		manager.Admit,
		func() { metrics.CallsRejected.Add(ctx, 1) },
		logger,
	))

	var cache admin.CacheReloader
	if cal != nil {
		cache = cal.Cache()
	}
	admin.New(manager, cache, logger).Register(apiMux)

	var checkers []health.Checker
	if pool != nil {
		checkers = append(checkers, health.Postgres(pool))
	}
	if cfg.Calendar.WebhookURL != "" {
		checkers = append(checkers, health.Endpoint("calendar", cfg.Calendar.WebhookURL, nil))
	}
	health.New(logger, checkers...).Register(apiMux)

	apiMux.Handle("GET /metrics", promhttp.Handler())

	// The media WebSocket bypasses the metrics middleware: the wrapped
	// ResponseWriter would hide the Hijacker the upgrade needs.
	root := http.NewServeMux()
	root.HandleFunc("GET /voice/stream", gw.handleStream)
	root.Handle("/", observe.Middleware(metrics, logger)(apiMux))

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server ready", "addr", cfg.Server.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		slog.Error("server error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("server shutdown error", "err", err)
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// ─── Gateway ─────────────────────────────────────────────────────────────────

// gateway holds the process-wide pieces each call session is assembled from.
type gateway struct {
	cfg     *config.Config
	log     *slog.Logger
	metrics *observe.Metrics
	manager *session.Manager

	recognizer  stt.Provider
	synthesizer tts.Provider
	model       llm.Provider

	detector *intent.Detector
	leads    *leadstore.Store
	calendar *calendar.Service
	weather  *weather.Service
	hangup   session.HangupControl
	holdTone []byte

	connSeq atomic.Uint64
}

// handleStream upgrades the media WebSocket and runs one call to completion.
func (g *gateway) handleStream(w http.ResponseWriter, r *http.Request) {
	link, err := telephony.Accept(w, r)
	if err != nil {
		g.log.Error("media stream upgrade failed", "err", err)
		return
	}

	ctrl, err := g.buildSession(link)
	if err != nil {
		g.log.Error("session assembly failed", "err", err)
		link.Close()
		return
	}

	id := fmt.Sprintf("conn-%d", g.connSeq.Add(1))
	g.manager.Register(id, ctrl)
	g.metrics.ActiveCalls.Add(r.Context(), 1)

	summary := ctrl.Run(r.Context())

	g.metrics.ActiveCalls.Add(context.Background(), -1)
	g.metrics.RecordCallEnd(context.Background(), summary.EndReason)
	g.manager.Unregister(id)

	g.log.Info("call finished",
		"call_id", summary.CallID,
		"stream_id", summary.StreamID,
		"end_reason", summary.EndReason,
		"end_detail", summary.EndDetail,
		"duration", summary.Duration,
		"turns", summary.Turns,
	)
}

// buildSession wires the per-call pipeline: tool registry, decision engine,
// synthesizer client, and the session controller.
func (g *gateway) buildSession(link *telephony.Link) (*session.Controller, error) {
	reg := tools.NewRegistry(g.log, tools.WithMetrics(g.metrics))

	// The controller does not exist yet when the registry is built; the
	// closure resolves it at call time.
	var ctrl *session.Controller
	if err := tools.RegisterBuiltins(reg, func(m types.ConversationMode) {
		if ctrl != nil {
			ctrl.SetMode(m)
		}
	}); err != nil {
		return nil, err
	}

	if err := reg.Register(g.detector.Definition(), g.detector.Handle); err != nil {
		return nil, err
	}
	if g.leads != nil {
		if err := reg.Register(g.leads.Definition(), g.leads.Handle); err != nil {
			return nil, err
		}
	}
	if g.calendar != nil {
		if err := registerCalendar(reg, g.calendar); err != nil {
			return nil, err
		}
	}
	if err := reg.Register(g.weather.Definition(), g.weather.Handle); err != nil {
		return nil, err
	}

	prompts, err := engine.NewPromptBuilder(g.cfg.Agent.Persona, reg.Definitions())
	if err != nil {
		return nil, err
	}
	eng := engine.New(g.model, reg, prompts, g.weather.Snippet, g.log,
		engine.WithMetrics(g.metrics))

	voice := types.VoiceProfile{
		ID:       g.cfg.Providers.TTS.VoiceID,
		Provider: "elevenlabs",
	}
	speaker := integration.NewTTSClient(g.synthesizer, voice, g.log)

	sttCfg := stt.StreamConfig{
		SampleRate:     8000,
		Encoding:       "mulaw",
		Channels:       1,
		Language:       g.cfg.Providers.STT.Language,
		InterimResults: true,
	}

	callCfg := session.Config{
		Greeting:        g.cfg.Agent.Greeting,
		Farewell:        g.cfg.Agent.Farewell,
		MaxCallDuration: time.Duration(g.cfg.Limits.MaxCallSeconds) * time.Second,
		SilenceTimeout:  time.Duration(g.cfg.Limits.SilenceSeconds) * time.Second,
		HoldTone:        g.holdTone,
	}

	ctrl = session.New(link, g.recognizer, sttCfg, speaker, eng, g.hangup, callCfg, g.log,
		session.WithMetrics(g.metrics),
		session.WithSupervisorOptions(integration.WithMetrics(g.metrics)))
	return ctrl, nil
}

// registerCalendar wires every calendar tool definition to its handler.
func registerCalendar(reg *tools.Registry, cal *calendar.Service) error {
	handlers := map[string]tools.Handler{
		"process_appointment_request":    cal.HandleProcessAppointment,
		"create_calendar_event":          cal.HandleCreate,
		"search_calendar_event_by_phone": cal.HandleSearch,
		"edit_calendar_event":            cal.HandleEdit,
		"delete_calendar_event":          cal.HandleDelete,
	}
	for _, def := range cal.Definitions() {
		h, ok := handlers[def.Name]
		if !ok {
			return fmt.Errorf("no handler for calendar tool %q", def.Name)
		}
		if err := reg.Register(def, h); err != nil {
			return err
		}
	}
	return nil
}

// ─── Logger ──────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
