package relay

import (
	"context"
	log "log/slog"
	"math"
	"time"

	"ulpan/internal/audio"
	"ulpan/internal/fault"
	"ulpan/internal/metrics"
	"ulpan/internal/notify"
	"ulpan/internal/session"
	"ulpan/internal/tts"
	"ulpan/pkg/audioconv"
	"ulpan/pkg/telegram"
)

// Gateway is the slice of the Telegram Bot API the relay talks to.
type Gateway interface {
	SendMessage(ctx context.Context, m telegram.TextMessage) error
	SendVoice(ctx context.Context, m telegram.VoiceMessage) error
	SendChatAction(ctx context.Context, chatID int64, action string) error
	DownloadFile(ctx context.Context, fileID, dst string, maxBytes int64) (int64, error)
}

type DeliveryKind uint8

const (
	NotDelivered DeliveryKind = iota
	DeliveredVoice
	DeliveredText
)

func (k DeliveryKind) String() string {
	switch k {
	case DeliveredVoice:
		return "voice"
	case DeliveredText:
		return "text"
	default:
		return "none"
	}
}

type DeliveryConfig struct {
	Gateway          Gateway
	Sessions         *session.Store
	Synthesizer      tts.Synthesizer
	Stager           *audio.Stager
	Keyboard         Keyboard
	PresenceInterval time.Duration
	Metrics          *metrics.Metrics
	Logger           *log.Logger
}

// Deliverer sends a reply to a chat, voiced when synthesis works and as
// text otherwise.
type Deliverer struct {
	gw       Gateway
	sessions *session.Store
	synth    tts.Synthesizer
	stager   *audio.Stager
	keyboard Keyboard
	presence time.Duration
	metrics  *metrics.Metrics
	logger   *log.Logger
}

func NewDeliverer(cfg DeliveryConfig) *Deliverer {
	if cfg.Synthesizer == nil {
		cfg.Synthesizer = tts.Disabled{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Deliverer{
		gw:       cfg.Gateway,
		sessions: cfg.Sessions,
		synth:    cfg.Synthesizer,
		stager:   cfg.Stager,
		keyboard: cfg.Keyboard,
		presence: cfg.PresenceInterval,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.With("component", "relay.delivery"),
	}
}

// Deliver records text as the chat's last response, then sends it. Only a
// failed transmission is an error, and it is always a fault.Delivery.
func (d *Deliverer) Deliver(ctx context.Context, chatID int64, text, caption string) (DeliveryKind, error) {
	d.sessions.SetLastResponse(chatID, text)

	markup := d.keyboard.For(text)

	stop := notify.Presence(ctx, d.gw, chatID, telegram.ActionRecordVoice, d.presence)
	clip, seconds, err := d.prepareVoice(ctx, text)
	stop()

	if err == nil {
		defer d.release(clip)
		if err := d.gw.SendVoice(ctx, telegram.VoiceMessage{
			ChatID:      chatID,
			Path:        clip.Path,
			Caption:     truncate(caption, maxCaption),
			Duration:    seconds,
			ReplyMarkup: markup,
		}); err != nil {
			return NotDelivered, fault.New(fault.Delivery, "relay.send_voice", err)
		}
		d.delivered(DeliveredVoice)
		return DeliveredVoice, nil
	}

	if fault.KindOf(err) == fault.SynthesisUnavailable {
		d.logger.Debug("Synthesis unavailable, sending text", "chat_id", chatID)
	} else {
		d.logger.Warn("Synthesis failed, sending text", "chat_id", chatID, "err", err)
	}

	if err := d.gw.SendMessage(ctx, telegram.TextMessage{
		ChatID:      chatID,
		Text:        truncate(FallbackText(caption, text), maxText),
		ReplyMarkup: markup,
	}); err != nil {
		return NotDelivered, fault.New(fault.Delivery, "relay.send_text", err)
	}
	d.delivered(DeliveredText)
	return DeliveredText, nil
}

// prepareVoice synthesizes text and stages the audio for upload. A staging
// failure counts as a synthesis failure.
func (d *Deliverer) prepareVoice(ctx context.Context, text string) (audio.Clip, int, error) {
	start := time.Now()
	payload, err := d.synth.Synthesize(ctx, text)
	if fault.TimedOut(err) {
		d.logger.Warn("Synthesis timed out", "after", time.Since(start))
	}
	if d.metrics != nil {
		kind := ""
		if err != nil {
			kind = fault.KindOf(err).String()
		}
		d.metrics.ObserveAdapter("tts", time.Since(start), kind)
	}
	if err != nil {
		return audio.Clip{}, 0, err
	}
	if payload.Empty() {
		return audio.Clip{}, 0, fault.Newf(fault.Synthesis, "relay.stage", "empty audio")
	}

	clip, err := d.stager.Write("reply", payload)
	if err != nil {
		return audio.Clip{}, 0, fault.New(fault.Synthesis, "relay.stage", err)
	}
	return clip, payloadSeconds(payload), nil
}

func (d *Deliverer) release(clip audio.Clip) {
	if err := clip.Release(); err != nil {
		d.logger.Warn("Failed to release staged reply", "path", clip.Path, "err", err)
	}
}

func (d *Deliverer) delivered(kind DeliveryKind) {
	if d.metrics != nil {
		d.metrics.Deliveries.WithLabelValues(kind.String()).Inc()
	}
}

// payloadSeconds reports the length for the voice message header, or 0
// when it cannot be measured.
func payloadSeconds(p audio.Payload) int {
	if p.Format != audio.MP3 && audioconv.Sniff(p.Data) != audioconv.ContainerMP3 {
		return 0
	}
	dur, err := audioconv.MP3Duration(p.Data)
	if err != nil {
		return 0
	}
	return int(math.Ceil(dur.Seconds()))
}
