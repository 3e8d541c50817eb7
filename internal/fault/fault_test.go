package fault

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewFlattensVendorError(t *testing.T) {
	vendor := errors.New("429 Too Many Requests")
	err := New(Transcription, "stt.openai", vendor)

	assert.Equal(t, "transcription: stt.openai: 429 Too Many Requests", err.Error())
	assert.False(t, errors.Is(err, vendor), "vendor error must not be reachable")
	assert.True(t, errors.Is(err, ErrTranscription))
	assert.False(t, errors.Is(err, ErrCompletion))
}

func TestKindOfThroughWrapping(t *testing.T) {
	err := fmt.Errorf("deliver: %w", New(Delivery, "sendVoice", errors.New("boom")))
	assert.Equal(t, Delivery, KindOf(err))
	assert.Equal(t, Unknown, KindOf(errors.New("plain")))
	assert.Equal(t, Unknown, KindOf(nil))
}

func TestNewRecordsTimeout(t *testing.T) {
	err := New(Completion, "llm", fmt.Errorf("post: %w", context.DeadlineExceeded))
	assert.True(t, err.Timeout)
	assert.Equal(t, Completion, KindOf(err))
	assert.True(t, TimedOut(fmt.Errorf("run: %w", err)))

	assert.False(t, TimedOut(New(Completion, "llm", errors.New("http 500"))))
	assert.False(t, TimedOut(context.DeadlineExceeded))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "synthesis_unavailable", SynthesisUnavailable.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
