// Package relay runs the voice conversation loop: a voice message is
// transcribed, answered by the chat model and sent back as speech, or as
// text when speech is not available.
package relay

import (
	"context"
	log "log/slog"
	"time"

	"github.com/google/uuid"

	"ulpan/internal/audio"
	"ulpan/internal/fault"
	"ulpan/internal/metrics"
	"ulpan/pkg/telegram"
)

type Stage uint8

const (
	StageNone Stage = iota
	Received
	Transcribing
	Composing
	Completing
	Delivering
	Done
	Failed
)

func (s Stage) String() string {
	switch s {
	case Received:
		return "received"
	case Transcribing:
		return "transcribing"
	case Composing:
		return "composing"
	case Completing:
		return "completing"
	case Delivering:
		return "delivering"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return ""
	}
}

type VoiceEvent struct {
	ChatID int64
	FileID string
	// Duration in seconds as reported by Telegram, logged with the run.
	Duration int
}

// Result is the terminal state of one run. FailedAt is set only when
// Final is Failed.
type Result struct {
	Final      Stage
	FailedAt   Stage
	Delivery   DeliveryKind
	Transcript string
	Reply      string
}

type Transcriber interface {
	Transcribe(ctx context.Context, clip audio.Clip, language string) (string, error)
}

type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// DefaultMaxVoiceBytes matches the Bot API download limit.
const DefaultMaxVoiceBytes = 20 << 20

type PipelineConfig struct {
	Gateway       Gateway
	Transcriber   Transcriber
	Completer     Completer
	Deliverer     *Deliverer
	Stager        *audio.Stager
	Language      string
	MaxVoiceBytes int64
	// Timeout bounds the voice download. Adapters carry their own.
	Timeout time.Duration
	Metrics *metrics.Metrics
	Logger  *log.Logger
}

type Pipeline struct {
	gw        Gateway
	stt       Transcriber
	llm       Completer
	deliverer *Deliverer
	stager    *audio.Stager
	language  string
	maxBytes  int64
	timeout   time.Duration
	metrics   *metrics.Metrics
	logger    *log.Logger
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.MaxVoiceBytes <= 0 {
		cfg.MaxVoiceBytes = DefaultMaxVoiceBytes
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Pipeline{
		gw:        cfg.Gateway,
		stt:       cfg.Transcriber,
		llm:       cfg.Completer,
		deliverer: cfg.Deliverer,
		stager:    cfg.Stager,
		language:  cfg.Language,
		maxBytes:  cfg.MaxVoiceBytes,
		timeout:   cfg.Timeout,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger.With("component", "relay.pipeline"),
	}
}

// HandleVoice drives one voice event to exactly one terminal state.
//
// A transcription failure sends the recognition notice and stops the run
// without touching the chat session; the returned error is nil unless the
// notice itself could not be sent. A completion failure is replaced by the
// apology. A delivery failure ends the run in Failed(Delivering) and is
// returned.
func (p *Pipeline) HandleVoice(ctx context.Context, ev VoiceEvent) (Result, error) {
	r := &run{
		p:      p,
		logger: p.logger.With("chat_id", ev.ChatID, "run", uuid.NewString()[:8]),
		start:  time.Now(),
	}
	if p.metrics != nil {
		p.metrics.InFlight.Inc()
		defer p.metrics.InFlight.Dec()
	}
	r.enter(Received)
	r.logger.Info("Voice received", "seconds", ev.Duration)

	r.enter(Transcribing)
	transcript, err := p.transcribe(ctx, ev)
	r.adapter("stt", err)
	if err != nil {
		r.logger.Warn("Failed to transcribe", "err", err)
		if sendErr := p.gw.SendMessage(ctx, telegram.TextMessage{
			ChatID: ev.ChatID,
			Text:   RecognitionFailed,
		}); sendErr != nil {
			return r.fail(Transcribing, fault.New(fault.Delivery, "relay.notice", sendErr))
		}
		return r.fail(Transcribing, nil)
	}
	r.res.Transcript = transcript
	r.logger.Info("Transcribed", "text", transcript)

	r.enter(Composing)
	prompt := transcript

	r.enter(Completing)
	reply, err := p.llm.Complete(ctx, prompt)
	r.adapter("llm", err)
	if err != nil {
		r.logger.Warn("Failed to complete, using apology", "err", err)
		reply = Apology
	}
	r.res.Reply = reply

	r.enter(Delivering)
	kind, err := p.deliverer.Deliver(ctx, ev.ChatID, reply, ReplyCaption(transcript))
	r.res.Delivery = kind
	if err != nil {
		r.logger.Error("Failed to deliver", "err", err)
		return r.fail(Delivering, err)
	}
	return r.done()
}

// transcribe stages the voice file for the duration of the call only.
func (p *Pipeline) transcribe(ctx context.Context, ev VoiceEvent) (string, error) {
	clip := p.stager.Reserve("voice", audio.OggOpus)
	defer func() {
		if err := clip.Release(); err != nil {
			p.logger.Warn("Failed to release staged voice", "path", clip.Path, "err", err)
		}
	}()

	dctx, cancel := context.WithTimeout(ctx, p.timeout)
	_, err := p.gw.DownloadFile(dctx, ev.FileID, clip.Path, p.maxBytes)
	cancel()
	if err != nil {
		return "", fault.New(fault.Transcription, "relay.download", err)
	}
	return p.stt.Transcribe(ctx, clip, p.language)
}

// run tracks the state of a single HandleVoice call.
type run struct {
	p      *Pipeline
	logger *log.Logger
	start  time.Time
	since  time.Time
	res    Result
}

func (r *run) enter(s Stage) {
	r.logger.Debug("Stage", "stage", s.String())
	r.since = time.Now()
	if r.p.metrics != nil {
		r.p.metrics.Stages.WithLabelValues(s.String()).Inc()
	}
}

func (r *run) adapter(name string, err error) {
	took := time.Since(r.since)
	if fault.TimedOut(err) {
		r.logger.Warn("Adapter timed out", "adapter", name, "after", took)
	}
	if r.p.metrics == nil {
		return
	}
	kind := ""
	if err != nil {
		kind = fault.KindOf(err).String()
	}
	r.p.metrics.ObserveAdapter(name, took, kind)
}

func (r *run) fail(at Stage, err error) (Result, error) {
	r.res.Final = Failed
	r.res.FailedAt = at
	r.enter(Failed)
	r.finish()
	return r.res, err
}

func (r *run) done() (Result, error) {
	r.res.Final = Done
	r.enter(Done)
	r.finish()
	return r.res, nil
}

func (r *run) finish() {
	r.logger.Info("Run finished",
		"final", r.res.Final.String(),
		"failed_at", r.res.FailedAt.String(),
		"delivery", r.res.Delivery.String(),
		"took", time.Since(r.start))
	if r.p.metrics != nil {
		r.p.metrics.ObserveRun(r.res.Final.String(), r.res.FailedAt.String(), time.Since(r.start))
	}
}
