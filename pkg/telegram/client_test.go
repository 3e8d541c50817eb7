package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.Client(), srv.URL, "TOKEN")
}

func TestSendMessageEncodesMarkup(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":7}}`)
	})

	err := c.SendMessage(context.Background(), TextMessage{
		ChatID: 42,
		Text:   "hi",
		ReplyMarkup: &InlineKeyboardMarkup{InlineKeyboard: [][]InlineKeyboardButton{{
			{Text: "help", CallbackData: "help"},
			{Text: "dict", WebApp: &WebAppInfo{URL: "https://x/?text=a"}},
		}}},
	})
	require.NoError(t, err)

	assert.EqualValues(t, 42, got["chat_id"])
	assert.Equal(t, "hi", got["text"])
	_, hasParse := got["parse_mode"]
	assert.False(t, hasParse)
	rows := got["reply_markup"].(map[string]any)["inline_keyboard"].([]any)
	row := rows[0].([]any)
	assert.Equal(t, "help", row[0].(map[string]any)["callback_data"])
	assert.Equal(t, "https://x/?text=a", row[1].(map[string]any)["web_app"].(map[string]any)["url"])
}

func TestAPIErrorFromEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
	})

	err := c.SendChatAction(context.Background(), 1, ActionRecordVoice)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "sendChatAction", apiErr.Method)
	assert.Equal(t, 400, apiErr.Code)
	assert.Contains(t, apiErr.Error(), "chat not found")
	assert.NotContains(t, apiErr.Error(), "TOKEN")
}

func TestDownloadFile(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/botTOKEN/getFile":
			_, _ = io.WriteString(w, `{"ok":true,"result":{"file_id":"f1","file_size":8,"file_path":"voice/file_1.oga"}}`)
		case "/file/botTOKEN/voice/file_1.oga":
			_, _ = io.WriteString(w, "OggS1234")
		default:
			http.NotFound(w, r)
		}
	})

	dst := filepath.Join(t.TempDir(), "in.ogg")
	n, err := c.DownloadFile(context.Background(), "f1", dst, 1024)
	require.NoError(t, err)
	assert.EqualValues(t, 8, n)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "OggS1234", string(data))
}

func TestDownloadFileTooLargeLeavesNothing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/botTOKEN/getFile":
			_, _ = io.WriteString(w, `{"ok":true,"result":{"file_id":"f1","file_path":"v.oga"}}`)
		default:
			_, _ = io.WriteString(w, "0123456789")
		}
	})

	dst := filepath.Join(t.TempDir(), "in.ogg")
	_, err := c.DownloadFile(context.Background(), "f1", dst, 4)
	require.Error(t, err)
	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSendVoiceMultipart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendVoice", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "42", r.FormValue("chat_id"))
		assert.Equal(t, "🔊 caption", r.FormValue("caption"))
		assert.Equal(t, "3", r.FormValue("duration"))
		assert.Contains(t, r.FormValue("reply_markup"), `"callback_data":"help"`)

		f, hdr, err := r.FormFile("voice")
		require.NoError(t, err)
		defer f.Close()
		body, _ := io.ReadAll(f)
		assert.Equal(t, "ID3audio", string(body))
		assert.Equal(t, "out.mp3", hdr.Filename)
		_, _ = io.WriteString(w, `{"ok":true,"result":{}}`)
	})

	path := filepath.Join(t.TempDir(), "out.mp3")
	require.NoError(t, os.WriteFile(path, []byte("ID3audio"), 0o600))

	err := c.SendVoice(context.Background(), VoiceMessage{
		ChatID:   42,
		Path:     path,
		Caption:  "🔊 caption",
		Duration: 3,
		ReplyMarkup: &InlineKeyboardMarkup{InlineKeyboard: [][]InlineKeyboardButton{{
			{Text: "help", CallbackData: "help"},
		}}},
	})
	require.NoError(t, err)
}

func TestGetUpdatesAdvancesOffset(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 10, body["offset"])
		_, _ = io.WriteString(w, `{"ok":true,"result":[{"update_id":10},{"update_id":12,"message":{"message_id":1,"chat":{"id":5},"voice":{"file_id":"v"}}}]}`)
	})

	updates, next, err := c.GetUpdates(context.Background(), 10, time.Second)
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.EqualValues(t, 13, next)
	assert.EqualValues(t, 5, updates[1].Message.ChatID())
	assert.Equal(t, "v", updates[1].Message.Voice.FileID)
}

func TestPollerDeliversUntilCancelled(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n == 1 {
			_, _ = io.WriteString(w, `{"ok":true,"result":[{"update_id":1,"message":{"message_id":1,"chat":{"id":9},"text":"/help"}}]}`)
			return
		}
		_, _ = io.WriteString(w, `{"ok":true,"result":[]}`)
	})

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan Update, 1)
	p := &Poller{Client: c, Timeout: time.Second}

	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx, func(_ context.Context, u Update) {
			got <- u
			cancel()
		})
	}()

	select {
	case u := <-got:
		assert.Equal(t, "/help", u.Message.Text)
	case <-time.After(5 * time.Second):
		t.Fatal("no update delivered")
	}
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop")
	}
}
