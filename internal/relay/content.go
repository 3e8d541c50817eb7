package relay

import "unicode/utf8"

// User-facing wording. Russian for the interface, Hebrew for practice.
const (
	Apology           = "סליחה, אני לא מצליח להבין. תוכל לחזור שוב?"
	RecognitionFailed = "⚠️ Не удалось распознать речь"

	Greeting        = "שלום! אני הבוט שלך ללימוד עברית. שלח לי הודעת קול ואני אעזור לך."
	GreetingCaption = "👋 Приветствие"
	Welcome         = "Добро пожаловать в бота для изучения иврита! Отправьте голосовое сообщение на иврите."

	HelpText = `
📚 *Помощь по боту:*

1. Просто отправьте голосовое сообщение на иврите, и бот ответит вам
2. Используйте кнопку "📖 Открыть словарь" для анализа текста
3. Команды:
   /start - начать работу с ботом
   /help - показать это сообщение

Бот поможет вам практиковать разговорный иврит!
`
)

// Telegram limits, in characters.
const (
	maxCaption = 1024
	maxText    = 4096
)

func ReplyCaption(transcript string) string {
	return "🔊 Ответ на: " + transcript
}

// FallbackText is what a chat sees when the reply cannot be voiced.
func FallbackText(caption, text string) string {
	return "🔊 " + caption + "\n\n" + text
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
