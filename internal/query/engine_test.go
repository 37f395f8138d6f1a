package query

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mafia-dossier/internal/game"
	"mafia-dossier/internal/llm"
	"mafia-dossier/internal/storage"
)

type fakeLLM struct {
	resp  llm.Response
	err   error
	calls int
	got   []llm.Message
	// block waits for ctx cancellation before returning
	block bool
}

func (f *fakeLLM) Generate(ctx context.Context, msgs []llm.Message) (llm.Response, error) {
	f.calls++
	f.got = msgs
	if f.block {
		<-ctx.Done()
		return llm.Response{}, ctx.Err()
	}
	return f.resp, f.err
}

var gameTime = time.Date(2024, 5, 1, 19, 30, 0, 0, time.UTC)

func seeded(t *testing.T) *storage.MemoryStore {
	t.Helper()
	s := storage.NewMemoryStore()
	err := s.Append(context.Background(), "Ivan", storage.Record{
		ID: "1", Timestamp: gameTime, Category: game.CategoryClub, Role: game.RoleSheriff, Seat: 7, Narrative: "active search",
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return s
}

func TestListRaw(t *testing.T) {
	moscow := time.FixedZone("MSK", 3*60*60)
	e := NewEngine(seeded(t), nil, Options{Location: moscow})

	out, err := e.ListRaw(context.Background(), "Ivan")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := "Информация об игроке Ivan:\n\n" +
		"Игра: 01.05.2024 22:30\n" +
		"Тип игры: Клуб\n" +
		"Карта: Шериф\n" +
		"Место: 7\n" +
		"Описание: active search"
	if out != want {
		t.Fatalf("unexpected listing:\n%s\nwant:\n%s", out, want)
	}

	again, err := e.ListRaw(context.Background(), "Ivan")
	if err != nil || again != out {
		t.Fatalf("listing is not stable: %q vs %q (%v)", again, out, err)
	}
}

func TestListingMatchesListRaw(t *testing.T) {
	store := seeded(t)
	e := NewEngine(store, nil, Options{})
	recs, err := store.ReadAll(context.Background(), "Ivan")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	raw, err := e.ListRaw(context.Background(), "Ivan")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := e.Listing("Ivan", recs); got != raw {
		t.Fatalf("listing differs from ListRaw:\n%s\nvs\n%s", got, raw)
	}
}

func TestListRaw_UnknownNickname(t *testing.T) {
	e := NewEngine(seeded(t), nil, Options{})
	if _, err := e.ListRaw(context.Background(), "ivan"); !errors.Is(err, ErrEmptyHistory) {
		t.Fatalf("want ErrEmptyHistory, got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	f := &fakeLLM{resp: llm.Response{Content: "Осторожный шериф.", Model: "m"}}
	e := NewEngine(seeded(t), f, Options{SystemPrompt: "be brief"})

	out, err := e.Summarize(context.Background(), "Ivan")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if out != "Осторожный шериф." {
		t.Fatalf("completion not returned verbatim: %q", out)
	}
	if len(f.got) != 2 || f.got[0].Role != llm.RoleSystem || f.got[0].Content != "be brief" {
		t.Fatalf("unexpected system message: %+v", f.got)
	}
	user := f.got[1].Content
	for _, want := range []string{"Игрок: Ivan", "Всего игр: 1", "Дата: 01.05.2024 19:30", "Тип игры: Клуб", "Карта: Шериф", "Номер: 7", "Описание: active search"} {
		if !strings.Contains(user, want) {
			t.Fatalf("prompt missing %q:\n%s", want, user)
		}
	}
}

func TestSummarize_EmptyHistoryDoesNotCallLLM(t *testing.T) {
	f := &fakeLLM{resp: llm.Response{Content: "made up"}}
	e := NewEngine(storage.NewMemoryStore(), f, Options{})
	if _, err := e.Summarize(context.Background(), "Ghost"); !errors.Is(err, ErrEmptyHistory) {
		t.Fatalf("want ErrEmptyHistory, got %v", err)
	}
	if f.calls != 0 {
		t.Fatalf("llm must not be called for empty history")
	}
}

func TestSummarize_ServiceErrors(t *testing.T) {
	cause := errors.New("connection reset")
	cases := map[string]*fakeLLM{
		"error": {err: cause},
		"empty": {resp: llm.Response{Content: "  "}},
	}
	for name, f := range cases {
		e := NewEngine(seeded(t), f, Options{})
		_, err := e.Summarize(context.Background(), "Ivan")
		if !errors.Is(err, ErrService) {
			t.Fatalf("%s: want ErrService, got %v", name, err)
		}
		if f.calls != 1 {
			t.Fatalf("%s: expected a single call, no retry; got %d", name, f.calls)
		}
	}
	e := NewEngine(seeded(t), &fakeLLM{err: cause}, Options{})
	if _, err := e.Summarize(context.Background(), "Ivan"); !errors.Is(err, cause) {
		t.Fatalf("cause should stay reachable: %v", err)
	}
	if _, err := NewEngine(seeded(t), nil, Options{}).Summarize(context.Background(), "Ivan"); !errors.Is(err, ErrService) {
		t.Fatalf("missing client should be a service error: %v", err)
	}
}

func TestSummarize_Timeout(t *testing.T) {
	f := &fakeLLM{block: true}
	e := NewEngine(seeded(t), f, Options{Timeout: 20 * time.Millisecond})
	start := time.Now()
	_, err := e.Summarize(context.Background(), "Ivan")
	if !errors.Is(err, ErrService) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline service error, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("timeout not applied")
	}
}

func TestLoadSystemPrompt(t *testing.T) {
	p := filepath.Join(t.TempDir(), "prompt.txt")
	if err := os.WriteFile(p, []byte("custom"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := LoadSystemPrompt(p); got != "custom" {
		t.Fatalf("unexpected prompt %q", got)
	}
	if got := LoadSystemPrompt(filepath.Join(t.TempDir(), "missing.txt")); got != "" {
		t.Fatalf("missing file should yield empty prompt, got %q", got)
	}
	e := NewEngine(storage.NewMemoryStore(), nil, Options{SystemPrompt: ""})
	if e.systemPrompt != DefaultSystemPrompt {
		t.Fatalf("default prompt not applied")
	}
}
