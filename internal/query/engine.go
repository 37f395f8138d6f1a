// Package query reads participant history and renders it either as a plain
// listing or, through an LLM, as a narrative summary.
package query

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"mafia-dossier/internal/analytics"
	"mafia-dossier/internal/llm"
	"mafia-dossier/internal/storage"
)

var (
	ErrEmptyHistory = errors.New("no records for player")
	ErrService      = errors.New("summarization service failed")
)

const (
	DefaultTimeLayout = "02.01.2006 15:04"
	DefaultTimeout    = 60 * time.Second

	DefaultSystemPrompt = "Ты помогаешь игрокам в спортивную мафию. Тебе передают заметки о том, как конкретный игрок " +
		"вёл себя в разных играх: дата, тип игры, карта, номер за столом и описание действий. " +
		"Составь краткий связный портрет игрока на русском языке: типичные паттерны игры за красных и за чёрных, " +
		"сильные и слабые стороны, на что обратить внимание за столом. Не выдумывай фактов, которых нет в заметках."
)

// Reader is the read side of the record store.
type Reader interface {
	ReadAll(ctx context.Context, nickname string) ([]storage.Record, error)
}

type Options struct {
	SystemPrompt string
	TimeLayout   string
	Location     *time.Location
	// Timeout bounds a single summarization call.
	Timeout time.Duration
}

type Engine struct {
	store        Reader
	llm          llm.Client
	systemPrompt string
	layout       string
	loc          *time.Location
	timeout      time.Duration
}

func NewEngine(store Reader, client llm.Client, opts Options) *Engine {
	e := &Engine{
		store:        store,
		llm:          client,
		systemPrompt: opts.SystemPrompt,
		layout:       opts.TimeLayout,
		loc:          opts.Location,
		timeout:      opts.Timeout,
	}
	if strings.TrimSpace(e.systemPrompt) == "" {
		e.systemPrompt = DefaultSystemPrompt
	}
	if e.layout == "" {
		e.layout = DefaultTimeLayout
	}
	if e.loc == nil {
		e.loc = time.UTC
	}
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}
	return e
}

// LoadSystemPrompt reads the summarization instruction from path.
// An empty result makes the engine fall back to DefaultSystemPrompt.
func LoadSystemPrompt(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("summary prompt file not found or unreadable at %s: %v", path, err)
		return ""
	}
	return string(data)
}

func (e *Engine) records(ctx context.Context, nickname string) ([]storage.Record, error) {
	recs, err := e.store.ReadAll(ctx, nickname)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	if len(recs) == 0 {
		return nil, ErrEmptyHistory
	}
	return recs, nil
}

// ListRaw formats every record of nickname in insertion order.
func (e *Engine) ListRaw(ctx context.Context, nickname string) (string, error) {
	recs, err := e.records(ctx, nickname)
	if err != nil {
		return "", err
	}
	return e.Listing(nickname, recs), nil
}

// Listing renders recs the way ListRaw does, for callers that already hold
// the records.
func (e *Engine) Listing(nickname string, recs []storage.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Информация об игроке %s:\n\n", nickname)
	for _, r := range recs {
		fmt.Fprintf(&b, "Игра: %s\n", e.formatTime(r.Timestamp))
		fmt.Fprintf(&b, "Тип игры: %s\n", r.Category.Label())
		fmt.Fprintf(&b, "Карта: %s\n", r.Role.Label())
		fmt.Fprintf(&b, "Место: %d\n", r.Seat)
		fmt.Fprintf(&b, "Описание: %s\n\n", r.Narrative)
	}
	return strings.TrimSpace(b.String())
}

// Summarize asks the LLM for a narrative portrait of nickname.
// The completion is returned verbatim; failures are reported as ErrService.
func (e *Engine) Summarize(ctx context.Context, nickname string) (string, error) {
	recs, err := e.records(ctx, nickname)
	if err != nil {
		return "", err
	}
	if e.llm == nil {
		return "", fmt.Errorf("%w: no llm client configured", ErrService)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: e.systemPrompt},
		{Role: llm.RoleUser, Content: e.Prompt(nickname, recs)},
	}
	resp, err := e.llm.Generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrService, err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "", fmt.Errorf("%w: empty completion", ErrService)
	}
	log.Printf("LLM summary for %q [model=%s, tokens: prompt=%d, completion=%d, total=%d]",
		nickname, resp.Model, resp.PromptTokens, resp.CompletionTokens, resp.TotalTokens)
	return resp.Content, nil
}

// Prompt renders the user block sent to the LLM: a statistics header and one
// block per record.
func (e *Engine) Prompt(nickname string, recs []storage.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Игрок: %s\n", nickname)
	b.WriteString(analytics.ForParticipant(recs).String())
	for i, r := range recs {
		fmt.Fprintf(&b, "\n### Игра %d\n", i+1)
		fmt.Fprintf(&b, "Дата: %s\n", e.formatTime(r.Timestamp))
		fmt.Fprintf(&b, "Тип игры: %s\n", r.Category.Label())
		fmt.Fprintf(&b, "Карта: %s\n", r.Role.Label())
		fmt.Fprintf(&b, "Номер: %d\n", r.Seat)
		fmt.Fprintf(&b, "Описание: %s\n", r.Narrative)
	}
	return b.String()
}

func (e *Engine) formatTime(t time.Time) string {
	return t.In(e.loc).Format(e.layout)
}
