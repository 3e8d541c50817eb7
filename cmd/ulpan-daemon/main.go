package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/lmittmann/tint"
	log "log/slog"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"ulpan/internal/audio"
	"ulpan/internal/bot"
	"ulpan/internal/config"
	"ulpan/internal/dictionary"
	"ulpan/internal/httpapi"
	"ulpan/internal/ipc"
	"ulpan/internal/llm"
	"ulpan/internal/metrics"
	"ulpan/internal/proxy"
	"ulpan/internal/relay"
	"ulpan/internal/session"
	"ulpan/internal/stt"
	"ulpan/internal/tts"
	"ulpan/pkg/telegram"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	proxyAddr := cli.StringP("proxy", "p", "", "Socks proxy address, direct when empty")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	controlPath := cli.StringP("control", "c", ipc.DefaultSocketPath, "Control socket path")
	cli.Parse()

	level, ok := logLevelMap[*logLevel]
	if !ok {
		level = log.LevelInfo
	}
	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
	})))

	log.Info("Booting up")

	if err := godotenv.Load(*envFile); err != nil {
		log.Debug("No env file loaded", "path", *envFile, "err", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Error("Invalid configuration", "err", err)
		os.Exit(1)
	}

	httpClient, err := proxy.NewHTTPClient(*proxyAddr, cfg.Telegram.PollTimeout+2*cfg.Relay.AdapterTimeout)
	if err != nil {
		log.Error("Failed to dial socks proxy", "proxy", *proxyAddr, "err", err)
		os.Exit(1)
	}
	log.Debug("Loaded http client", "proxy", *proxyAddr)

	aiOpts := []option.RequestOption{
		option.WithAPIKey(cfg.OpenAI.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if cfg.OpenAI.BaseURL != "" {
		aiOpts = append(aiOpts, option.WithBaseURL(cfg.OpenAI.BaseURL))
	}
	ai := openai.NewClient(aiOpts...)

	stager, err := audio.NewStager(cfg.Relay.StagingDir)
	if err != nil {
		log.Error("Failed to prepare staging", "err", err)
		os.Exit(1)
	}
	log.Debug("Loaded staging", "dir", stager.Dir())

	sessions := session.NewStore()
	m := metrics.New(cfg.MetricsNamespace, sessions.Len)

	synth := tts.New(tts.Config{
		APIKey:       cfg.ElevenLabs.APIKey,
		BaseURL:      cfg.ElevenLabs.BaseURL,
		WSBaseURL:    cfg.ElevenLabs.WSBaseURL,
		VoiceID:      cfg.ElevenLabs.VoiceID,
		ModelID:      cfg.ElevenLabs.ModelID,
		OutputFormat: cfg.ElevenLabs.OutputFormat,
		Transport:    cfg.ElevenLabs.Transport,
		Settings: &tts.VoiceSettings{
			Stability:       cfg.ElevenLabs.Stability,
			SimilarityBoost: cfg.ElevenLabs.SimilarityBoost,
		},
		Timeout:    cfg.Relay.AdapterTimeout,
		HTTPClient: httpClient,
	})
	if !tts.Available(synth) {
		log.Warn("ELEVENLABS_API_KEY not set, replies will be sent as text")
	}

	tg := telegram.NewClient(httpClient, cfg.Telegram.BaseURL, cfg.Telegram.Token)
	keyboard := relay.Keyboard{MiniAppURL: cfg.MiniAppURL}

	deliverer := relay.NewDeliverer(relay.DeliveryConfig{
		Gateway:     tg,
		Sessions:    sessions,
		Synthesizer: synth,
		Stager:      stager,
		Keyboard:    keyboard,
		Metrics:     m,
	})
	pipeline := relay.NewPipeline(relay.PipelineConfig{
		Gateway: tg,
		Transcriber: stt.NewTranscriber(ai, stt.Options{
			Model:   cfg.OpenAI.TranscriptionModel,
			Timeout: cfg.Relay.AdapterTimeout,
		}),
		Completer: llm.NewCompleter(ai, llm.Options{
			Model:       cfg.OpenAI.ChatModel,
			Temperature: &cfg.OpenAI.Temperature,
			Timeout:     cfg.Relay.AdapterTimeout,
		}),
		Deliverer:     deliverer,
		Stager:        stager,
		Language:      cfg.Relay.Language,
		MaxVoiceBytes: cfg.Telegram.MaxVoiceBytes,
		Timeout:       cfg.Relay.AdapterTimeout,
		Metrics:       m,
	})
	b := bot.New(bot.Config{
		Gateway:        tg,
		Voice:          pipeline,
		Replier:        deliverer,
		Keyboard:       keyboard,
		MaxConcurrency: cfg.Telegram.MaxConcurrency,
		Metrics:        m,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	me, err := tg.GetMe(ctx)
	if err != nil {
		log.Error("Failed to reach Telegram", "err", err)
		os.Exit(1)
	}
	log.Info("Authorized", "bot", me.Username)

	// in-flight updates finish after shutdown starts
	work := context.WithoutCancel(ctx)
	handle := func(_ context.Context, u telegram.Update) { b.Handle(work, u) }

	started := time.Now()
	status := func() map[string]any {
		return map[string]any{
			"uptime":    time.Since(started).Round(time.Second).String(),
			"sessions":  sessions.Len(),
			"synthesis": tts.Available(synth),
			"mode":      cfg.Telegram.Mode,
		}
	}

	apiCfg := httpapi.Config{
		Analyzer: dictionary.NewAnalyzer(ai, cfg.OpenAI.ChatModel, cfg.Relay.AdapterTimeout),
		Metrics:  m.Handler(),
		Health:   status,
	}
	if cfg.Telegram.Mode == config.ModeWebhook {
		apiCfg.Webhook = handle
		apiCfg.WebhookSecret = cfg.Telegram.WebhookSecret
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.New(apiCfg).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctl, err := ipc.Listen(*controlPath, func(_ context.Context, msg ipc.ControlMessage) (any, error) {
		switch msg.Cmd {
		case "status":
			return status(), nil
		case "ping":
			return nil, nil
		default:
			log.Warn("Unknown command", "cmd", msg.Cmd)
			return nil, ipc.ErrUnknownCommand
		}
	})
	if err != nil {
		log.Error("Failed ipc server", "err", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	g.Go(func() error { return ctl.Serve(gctx) })
	g.Go(func() error {
		if cfg.Telegram.Mode == config.ModeWebhook {
			if err := tg.SetWebhook(gctx, cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret); err != nil {
				return err
			}
			log.Info("Webhook registered", "url", cfg.Telegram.WebhookURL)
			return nil
		}
		if err := tg.DeleteWebhook(gctx); err != nil {
			return err
		}
		poller := &telegram.Poller{Client: tg, Timeout: cfg.Telegram.PollTimeout}
		log.Info("Polling for updates")
		return poller.Run(gctx, handle)
	})

	log.Info("Boot up - successful")

	err = g.Wait()
	log.Info("Shutting down, waiting for in-flight updates")
	b.Wait()
	if err != nil {
		log.Error("Daemon stopped", "err", err)
		os.Exit(1)
	}
}
