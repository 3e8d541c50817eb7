package relay

import (
	log "log/slog"
	"net/url"
	"strings"

	"ulpan/pkg/telegram"
)

const (
	HelpCallback = "help"

	dictionaryLabel = "📖 Открыть словарь"
	helpLabel       = "🆘 Помощь"
)

// Keyboard builds the action row attached to every reply: the dictionary
// mini app opened on the reply text, and the help button.
type Keyboard struct {
	MiniAppURL string
}

func (k Keyboard) For(text string) *telegram.InlineKeyboardMarkup {
	row := make([]telegram.InlineKeyboardButton, 0, 2)
	u, err := DictionaryURL(k.MiniAppURL, text)
	switch {
	case err != nil:
		log.Warn("Dropping dictionary button", "mini_app_url", k.MiniAppURL, "err", err)
	case u != "":
		row = append(row, telegram.InlineKeyboardButton{
			Text:   dictionaryLabel,
			WebApp: &telegram.WebAppInfo{URL: u},
		})
	}
	row = append(row, telegram.InlineKeyboardButton{Text: helpLabel, CallbackData: HelpCallback})
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{row}}
}

// DictionaryURL sets the text query parameter on base, encoding spaces as
// %20. An empty base yields an empty URL.
func DictionaryURL(base, text string) (string, error) {
	if base == "" {
		return "", nil
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("text", text)
	u.RawQuery = strings.ReplaceAll(q.Encode(), "+", "%20")
	return u.String(), nil
}
