package telegram

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"mafia-dossier/internal/auth"
	"mafia-dossier/internal/clock"
	"mafia-dossier/internal/game"
	"mafia-dossier/internal/llm"
	"mafia-dossier/internal/query"
	"mafia-dossier/internal/session"
	"mafia-dossier/internal/storage"
)

type fakeSender struct {
	sent     []tgbotapi.Chattable
	requests int
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.requests++
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) texts() []string {
	var out []string
	for _, c := range f.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, m.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *fakeSender) last() tgbotapi.Chattable { return f.sent[len(f.sent)-1] }

func (f *fakeSender) reset() { f.sent = nil }

type fakeLLM struct {
	resp llm.Response
	err  error
}

func (f fakeLLM) Generate(ctx context.Context, msgs []llm.Message) (llm.Response, error) {
	return f.resp, f.err
}

type harness struct {
	b     *Bot
	fs    *fakeSender
	store *storage.MemoryStore
	clk   *clock.Fake
}

func newHarness(t *testing.T) harness {
	t.Helper()
	svc, err := auth.NewWithRepo(nil, []string{"player"}, []string{"boss"})
	if err != nil {
		t.Fatalf("auth init: %v", err)
	}
	store := storage.NewMemoryStore()
	clk := clock.NewFake(time.Date(2024, 5, 1, 19, 0, 0, 0, time.UTC))
	engine := query.NewEngine(store, fakeLLM{resp: llm.Response{Content: "Осторожный игрок."}}, query.Options{})
	mgr := session.NewManager(store, engine, session.Options{Clock: clk})
	fs := &fakeSender{}
	return harness{b: newBot(fs, svc, mgr, store, Options{}), fs: fs, store: store, clk: clk}
}

func command(username, text string) *tgbotapi.Message {
	cmd := strings.Fields(text)[0]
	return &tgbotapi.Message{
		From:     &tgbotapi.User{ID: 42, UserName: username},
		Chat:     &tgbotapi.Chat{ID: 100},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}
}

func text(username, s string) *tgbotapi.Message {
	return &tgbotapi.Message{From: &tgbotapi.User{ID: 42, UserName: username}, Chat: &tgbotapi.Chat{ID: 100}, Text: s}
}

func press(username, data string) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: 42, UserName: username},
		Message: &tgbotapi.Message{MessageID: 7, Chat: &tgbotapi.Chat{ID: 100}},
		Data:    data,
	}
}

func TestUnauthorizedUserIsRefused(t *testing.T) {
	h := newHarness(t)
	h.b.handleIncomingMessage(context.Background(), command("stranger", "/submit"))
	got := h.fs.texts()
	if len(got) != 1 || got[0] != msgUnauthorized {
		t.Fatalf("unexpected replies %+v", got)
	}
	if _, ok := h.b.sessions.Active(42); ok {
		t.Fatalf("no session must be started for unknown users")
	}
}

func TestSubmitConversation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.b.handleIncomingMessage(ctx, command("player", "/submit"))
	if got := h.fs.texts(); len(got) != 1 || got[0] != "Пожалуйста, введите ник игрока." {
		t.Fatalf("unexpected nickname prompt %+v", got)
	}

	h.fs.reset()
	h.b.handleIncomingMessage(ctx, text("player", "Ivan"))
	m, ok := h.fs.last().(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("expected a new message, got %T", h.fs.last())
	}
	kb, ok := m.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok || len(kb.InlineKeyboard) != 3 || *kb.InlineKeyboard[0][0].CallbackData != string(game.CategoryClub) {
		t.Fatalf("category keyboard missing: %+v", m.ReplyMarkup)
	}

	h.fs.reset()
	h.b.handleCallback(ctx, press("player", string(game.CategoryClub)))
	edit, ok := h.fs.last().(tgbotapi.EditMessageTextConfig)
	if !ok || edit.MessageID != 7 || edit.ReplyMarkup == nil || len(edit.ReplyMarkup.InlineKeyboard) != 2 {
		t.Fatalf("expected role keyboard edited in place, got %+v", h.fs.last())
	}
	if h.fs.requests != 1 {
		t.Fatalf("callback not answered")
	}

	h.b.handleCallback(ctx, press("player", string(game.RoleSheriff)))
	h.b.handleCallback(ctx, press("player", "7"))
	edit, ok = h.fs.last().(tgbotapi.EditMessageTextConfig)
	if !ok || edit.ReplyMarkup != nil || edit.Text != "Опишите действия игрока." {
		t.Fatalf("expected narrative prompt without keyboard, got %+v", h.fs.last())
	}

	h.fs.reset()
	h.b.handleIncomingMessage(ctx, text("player", "active search"))
	if got := h.fs.texts(); len(got) != 1 || got[0] != msgStored {
		t.Fatalf("unexpected completion replies %+v", got)
	}
	recs, _ := h.store.ReadAll(ctx, "Ivan")
	if len(recs) != 1 || recs[0].Seat != 7 || recs[0].Narrative != "active search" {
		t.Fatalf("unexpected stored records %+v", recs)
	}
}

func TestInvalidInputRepromptsSameStep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.b.handleIncomingMessage(ctx, command("player", "/submit Ivan"))

	h.fs.reset()
	h.b.handleIncomingMessage(ctx, text("player", "Клуб"))
	got := h.fs.texts()
	if len(got) != 2 || got[0] != msgInvalidSelection || got[1] != "Выберите тип игры." {
		t.Fatalf("unexpected replies %+v", got)
	}

	h.b.handleCallback(ctx, press("player", string(game.CategoryOnline)))
	h.b.handleCallback(ctx, press("player", string(game.RoleDon)))
	h.fs.reset()
	h.b.handleCallback(ctx, press("player", "11"))
	got = h.fs.texts()
	if len(got) != 2 || got[0] != msgInvalidSelection {
		t.Fatalf("seat 11 should be rejected: %+v", got)
	}
	snap, ok := h.b.sessions.Active(42)
	if !ok || snap.Partial.Step != "seat" {
		t.Fatalf("session should stay at seat step: %+v", snap)
	}
}

func TestResumeWithInlineNickname(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.store.Append(ctx, "Big Ivan", storage.Record{ID: "1", Timestamp: time.Date(2024, 5, 1, 19, 0, 0, 0, time.UTC), Category: game.CategoryClub, Role: game.RoleMafia, Seat: 2, Narrative: "calm"})

	h.b.handleIncomingMessage(ctx, command("player", "/resume Big Ivan"))
	got := h.fs.texts()
	if len(got) != 1 || !strings.HasPrefix(got[0], "Информация об игроке Big Ivan:") || !strings.Contains(got[0], "Карта: Мафия") {
		t.Fatalf("unexpected listing %+v", got)
	}

	h.fs.reset()
	h.b.handleIncomingMessage(ctx, command("player", "/resume Nobody"))
	if got := h.fs.texts(); len(got) != 1 || got[0] != "Об игроке Nobody нет информации." {
		t.Fatalf("unexpected empty history reply %+v", got)
	}
}

func TestSummaryFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.store.Append(ctx, "Ivan", storage.Record{ID: "1", Timestamp: time.Now(), Category: game.CategoryClub, Role: game.RoleSheriff, Seat: 1, Narrative: "n"})

	h.b.handleIncomingMessage(ctx, command("player", "/summary"))
	h.fs.reset()
	h.b.handleIncomingMessage(ctx, text("player", "Ivan"))
	got := h.fs.texts()
	if len(got) != 2 || got[0] != msgSummarizing || got[1] != "Осторожный игрок." {
		t.Fatalf("unexpected summary replies %+v", got)
	}
}

func TestSummaryBlankNicknameIsNotAnnounced(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.b.handleIncomingMessage(ctx, command("player", "/summary"))
	h.fs.reset()

	h.b.handleIncomingMessage(ctx, text("player", "   "))
	got := h.fs.texts()
	if len(got) == 0 || got[0] != msgEmptyInput {
		t.Fatalf("blank nickname should be rejected first: %+v", got)
	}
	for _, g := range got {
		if g == msgSummarizing {
			t.Fatalf("summary announced for a blank nickname: %+v", got)
		}
	}
}

func TestCancelAfterTimeoutReportsTimeout(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.b.handleIncomingMessage(ctx, command("player", "/submit Ivan"))
	h.clk.Advance(session.DefaultTTL)
	h.fs.reset()

	h.b.handleIncomingMessage(ctx, command("player", "/cancel"))
	h.b.handleIncomingMessage(ctx, command("player", "/cancel"))
	got := h.fs.texts()
	want := []string{msgTimeout, msgNothingToCancel}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected replies\n got %q\nwant %q", got, want)
	}
}

func TestCancelAndTimeoutMessages(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.b.handleIncomingMessage(ctx, command("player", "/cancel"))
	h.b.handleIncomingMessage(ctx, command("player", "/submit"))
	h.b.handleIncomingMessage(ctx, command("player", "/cancel"))
	h.b.handleIncomingMessage(ctx, text("player", "Ivan"))
	got := h.fs.texts()
	want := []string{msgNothingToCancel, "Пожалуйста, введите ник игрока.", msgCancelled, msgNoSession}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected replies\n got %q\nwant %q", got, want)
	}

	h.fs.reset()
	h.b.handleIncomingMessage(ctx, command("player", "/submit"))
	h.clk.Advance(session.DefaultTTL)
	h.b.handleIncomingMessage(ctx, text("player", "Ivan"))
	if got := h.fs.texts(); got[len(got)-1] != msgTimeout {
		t.Fatalf("expected timeout notice, got %+v", got)
	}
}

func TestAdminCommands(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.b.handleIncomingMessage(ctx, command("player", "/allow dave"))
	if got := h.fs.texts(); got[len(got)-1] != msgAdminOnly {
		t.Fatalf("non-admin must be refused: %+v", got)
	}

	h.b.handleIncomingMessage(ctx, command("boss", "/allow @Dave"))
	if !h.b.authSvc.IsUser("dave") {
		t.Fatalf("allow not effective")
	}
	h.b.handleIncomingMessage(ctx, command("boss", "/allowlist"))
	if got := h.fs.texts(); !strings.Contains(got[len(got)-1], "@dave (user, runtime)") {
		t.Fatalf("allowlist missing grant: %q", got[len(got)-1])
	}
	h.b.handleIncomingMessage(ctx, command("boss", "/revoke dave"))
	if h.b.authSvc.IsUser("dave") {
		t.Fatalf("revoke not effective")
	}

	_ = h.store.Append(ctx, "Ivan", storage.Record{ID: "1", Timestamp: time.Now(), Category: game.CategoryClub, Role: game.RoleSheriff, Seat: 1, Narrative: "n"})
	h.b.handleIncomingMessage(ctx, command("player", "/submit Petr"))
	h.fs.reset()
	h.b.handleIncomingMessage(ctx, command("boss", "/show"))
	out := h.fs.texts()[0]
	for _, want := range []string{"Игроков в базе: 1", "- Ivan: 1", "Активных диалогов: 1", "- 42: submit, шаг category", "игрок Petr"} {
		if !strings.Contains(out, want) {
			t.Fatalf("show output missing %q:\n%s", want, out)
		}
	}
}

func TestShowPlayerListing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 19, 30, 0, 0, time.UTC)
	_ = h.store.Append(ctx, "Ivan Petrov", storage.Record{ID: "1", Timestamp: at, Category: game.CategoryClub, Role: game.RoleDon, Seat: 2, Narrative: "calm"})

	h.b.handleIncomingMessage(ctx, command("player", "/show Ivan Petrov"))
	if got := h.fs.texts(); got[len(got)-1] != msgAdminOnly {
		t.Fatalf("non-admin must be refused: %+v", got)
	}

	h.fs.reset()
	h.b.handleIncomingMessage(ctx, command("boss", "/show Ivan Petrov"))
	h.b.handleIncomingMessage(ctx, command("boss", "/show Ghost"))
	got := h.fs.texts()
	if len(got) != 2 {
		t.Fatalf("want 2 replies, got %+v", got)
	}
	for _, want := range []string{"Информация об игроке Ivan Petrov:", "Игра: 01.05.2024 19:30", "Карта: Дон", "Место: 2", "Описание: calm"} {
		if !strings.Contains(got[0], want) {
			t.Fatalf("listing missing %q:\n%s", want, got[0])
		}
	}
	if got[1] != fmt.Sprintf(msgEmptyHistory, "Ghost") {
		t.Fatalf("unexpected reply for unknown player: %q", got[1])
	}
}

func TestSplitText(t *testing.T) {
	long := strings.Repeat("строка\n", 1000)
	parts := splitText(long, 4096)
	if len(parts) < 2 {
		t.Fatalf("expected several parts, got %d", len(parts))
	}
	if strings.Join(parts, "") != long {
		t.Fatalf("parts do not reassemble the text")
	}
	for _, p := range parts {
		if len([]rune(p)) > 4096 {
			t.Fatalf("part too long: %d", len([]rune(p)))
		}
		if !strings.HasSuffix(p, "\n") {
			t.Fatalf("part should break after a newline")
		}
	}
	if got := splitText("short", 4096); len(got) != 1 || got[0] != "short" {
		t.Fatalf("short text changed: %+v", got)
	}
}
