// Package dictionary backs the mini app: spelling checks for a whole reply
// and a lookup card for a single word.
package dictionary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const temperature = 0.3

const textPrompt = `Ты эксперт по ивриту. Проанализируй текст и верни JSON объект вида {"analysis": [...]}, где каждый элемент массива содержит:
- word: слово
- isCorrect: boolean (правильно ли написано)
- correction: предложенное исправление (если есть ошибка)`

const wordPrompt = "Ты помощник для изучения иврита. Дай транскрипцию, перевод, объяснение и синонимы для слова."

const wordRequest = `Слово: %s

Дай:
1. Транскрипцию на русском
2. Перевод
3. Краткое объяснение
4. Синонимы (если есть)

Начни каждый пункт с метки: "Транскрипция:", "Перевод:", "Объяснение:", "Синонимы:".`

var ErrEmptyInput = errors.New("empty input")

type WordCheck struct {
	Word       string `json:"word"`
	IsCorrect  bool   `json:"isCorrect"`
	Correction string `json:"correction,omitempty"`
}

// WordCard fields are nil when the model left that part out.
type WordCard struct {
	Transcription *string `json:"transcription"`
	Translation   *string `json:"translation"`
	Explanation   *string `json:"explanation"`
	Synonyms      *string `json:"synonyms"`
}

type Analyzer struct {
	client  openai.Client
	model   openai.ChatModel
	timeout time.Duration
}

func NewAnalyzer(client openai.Client, model string, timeout time.Duration) *Analyzer {
	if model == "" {
		model = "gpt-4o-mini"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Analyzer{client: client, model: openai.ChatModel(model), timeout: timeout}
}

// AnalyzeText checks every word of text.
func (a *Analyzer) AnalyzeText(ctx context.Context, text string) ([]WordCheck, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	content, err := a.complete(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(textPrompt),
			openai.UserMessage(text),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return nil, err
	}

	var out struct {
		Analysis []WordCheck `json:"analysis"`
	}
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("unmarshal analysis: %w (raw: %s)", err, content)
	}
	return out.Analysis, nil
}

// AnalyzeWord builds a lookup card for word.
func (a *Analyzer) AnalyzeWord(ctx context.Context, word string) (WordCard, error) {
	word = strings.TrimSpace(word)
	if word == "" {
		return WordCard{}, ErrEmptyInput
	}
	content, err := a.complete(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(wordPrompt),
			openai.UserMessage(fmt.Sprintf(wordRequest, word)),
		},
	})
	if err != nil {
		return WordCard{}, err
	}
	return WordCard{
		Transcription: extractPart(content, "Транскрипция:"),
		Translation:   extractPart(content, "Перевод:"),
		Explanation:   extractPart(content, "Объяснение:"),
		Synonyms:      extractPart(content, "Синонимы:"),
	}, nil
}

func (a *Analyzer) complete(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	params.Model = a.model
	params.Temperature = openai.Float(temperature)
	resp, err := a.client.Chat.Completions.New(ctx, params, option.WithMaxRetries(0))
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", errors.New("empty message content")
	}
	return content, nil
}

// extractPart returns the rest of the line following the first prefix.
func extractPart(text, prefix string) *string {
	_, after, ok := strings.Cut(text, prefix)
	if !ok {
		return nil
	}
	line, _, _ := strings.Cut(after, "\n")
	line = strings.TrimSpace(line)
	return &line
}
