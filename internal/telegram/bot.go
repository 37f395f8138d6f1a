package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"mafia-dossier/internal/auth"
	"mafia-dossier/internal/flow"
	"mafia-dossier/internal/query"
	"mafia-dossier/internal/session"
	"mafia-dossier/internal/storage"
)

// Sessions is the dialogue engine the bot drives.
type Sessions interface {
	Start(ctx context.Context, userID int64, kind flow.Kind, args []string) (session.Outcome, error)
	Advance(ctx context.Context, userID int64, ev flow.Event) (session.Outcome, error)
	Abort(userID int64, reason session.Reason) (bool, error)
	Active(userID int64) (session.Snapshot, bool)
	Snapshots() []session.Snapshot
}

// History is the read side of the record store used by /show.
type History interface {
	Nicknames(ctx context.Context) ([]string, error)
	ReadAll(ctx context.Context, nickname string) ([]storage.Record, error)
}

type Bot struct {
	api      *tgbotapi.BotAPI
	s        sender
	authSvc  *auth.Service
	sessions Sessions
	history  History
	// listing renders /show <nickname> without an LLM.
	listing  *query.Engine
	loc      *time.Location
	layout   string
}

type Options struct {
	// Location and TimeLayout format timestamps in /show.
	Location   *time.Location
	TimeLayout string
}

func New(botToken string, authSvc *auth.Service, sessions Sessions, history History, opts Options) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, err
	}
	log.Printf("Authorized on account %s", api.Self.UserName)
	b := newBot(botAPISender{api: api}, authSvc, sessions, history, opts)
	b.api = api
	return b, nil
}

func newBot(s sender, authSvc *auth.Service, sessions Sessions, history History, opts Options) *Bot {
	b := &Bot{
		s:        s,
		authSvc:  authSvc,
		sessions: sessions,
		history:  history,
		loc:      opts.Location,
		layout:   opts.TimeLayout,
	}
	if b.loc == nil {
		b.loc = time.UTC
	}
	if b.layout == "" {
		b.layout = query.DefaultTimeLayout
	}
	b.listing = query.NewEngine(history, nil, query.Options{Location: b.loc, TimeLayout: b.layout})
	return b
}

// Start polls updates until ctx is done. Every update is handled on its own
// goroutine; the session manager serializes events of the same user.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		b.handleIncomingMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) handleIncomingMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	if !b.authSvc.IsUser(msg.From.UserName) {
		log.Printf("Unauthorized access attempt by user ID: %d, username: @%s", msg.From.ID, msg.From.UserName)
		b.sendMessage(msg.Chat.ID, msgUnauthorized)
		return
	}
	if msg.IsCommand() {
		log.Printf("Command from %d (@%s): /%s %q", msg.From.ID, msg.From.UserName, msg.Command(), msg.CommandArguments())
		b.handleCommand(ctx, msg)
		return
	}
	log.Printf("Incoming message from %d (@%s): %q", msg.From.ID, msg.From.UserName, msg.Text)
	if strings.TrimSpace(msg.Text) != "" {
		if snap, ok := b.sessions.Active(msg.From.ID); ok && snap.Partial.Flow == flow.KindSummary && snap.Partial.Step == flow.StepNickname {
			b.sendMessage(msg.Chat.ID, msgSummarizing)
		}
	}
	out, err := b.sessions.Advance(ctx, msg.From.ID, flow.Text(msg.Text, time.Now()))
	b.reply(msg.Chat.ID, 0, out, err)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if _, err := b.s.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.Printf("failed to answer callback: %v", err)
	}
	if cb.From == nil || cb.Message == nil {
		return
	}
	if !b.authSvc.IsUser(cb.From.UserName) {
		log.Printf("Unauthorized callback by user ID: %d, username: @%s", cb.From.ID, cb.From.UserName)
		b.sendMessage(cb.Message.Chat.ID, msgUnauthorized)
		return
	}
	log.Printf("Selection from %d (@%s): %q", cb.From.ID, cb.From.UserName, cb.Data)
	out, err := b.sessions.Advance(ctx, cb.From.ID, flow.Selection(cb.Data, time.Now()))
	b.reply(cb.Message.Chat.ID, cb.Message.MessageID, out, err)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	userID, chatID := msg.From.ID, msg.Chat.ID
	args := strings.Fields(msg.CommandArguments())

	switch msg.Command() {
	case "start", "help":
		text := msgHelp
		if b.authSvc.IsAdmin(msg.From.UserName) {
			text += msgAdminHelp
		}
		b.sendMessage(chatID, text)
		return
	case "submit":
		out, err := b.sessions.Start(ctx, userID, flow.KindSubmit, args)
		b.reply(chatID, 0, out, err)
		return
	case "resume":
		out, err := b.sessions.Start(ctx, userID, flow.KindResume, args)
		b.reply(chatID, 0, out, err)
		return
	case "summary":
		if len(args) > 0 {
			b.sendMessage(chatID, msgSummarizing)
		}
		out, err := b.sessions.Start(ctx, userID, flow.KindSummary, args)
		b.reply(chatID, 0, out, err)
		return
	case "cancel":
		aborted, err := b.sessions.Abort(userID, session.ReasonCancelled)
		switch {
		case err != nil:
			b.sendMessage(chatID, errorText(err))
		case aborted:
			b.sendMessage(chatID, msgCancelled)
		default:
			b.sendMessage(chatID, msgNothingToCancel)
		}
		return
	}

	// admin-only commands
	switch msg.Command() {
	case "show", "allow", "revoke", "allowlist":
		if !b.authSvc.IsAdmin(msg.From.UserName) {
			b.sendMessage(chatID, msgAdminOnly)
			return
		}
	default:
		b.sendMessage(chatID, msgUnknownCmd)
		return
	}
	switch msg.Command() {
	case "show":
		if len(args) > 0 {
			b.sendMessage(chatID, b.showPlayer(ctx, strings.Join(args, " ")))
			return
		}
		b.sendMessage(chatID, b.show(ctx))
	case "allowlist":
		var bld strings.Builder
		bld.WriteString("Allowlist:\n")
		for _, e := range b.authSvc.List() {
			src := "env"
			if e.Runtime {
				src = "runtime"
			}
			bld.WriteString(fmt.Sprintf("- @%s (%s, %s)\n", e.Username, e.Tier, src))
		}
		b.sendMessage(chatID, bld.String())
	case "allow":
		if len(args) != 1 {
			b.sendMessage(chatID, "Usage: /allow <username>")
			return
		}
		added, err := b.authSvc.Allow(args[0])
		switch {
		case err != nil:
			b.sendMessage(chatID, fmt.Sprintf("Ошибка сохранения: %v", err))
		case added:
			log.Printf("Admin @%s granted access to @%s", msg.From.UserName, auth.Normalize(args[0]))
			b.sendMessage(chatID, fmt.Sprintf("Пользователь @%s добавлен в allowlist", auth.Normalize(args[0])))
		default:
			b.sendMessage(chatID, fmt.Sprintf("У пользователя @%s уже есть доступ", auth.Normalize(args[0])))
		}
	case "revoke":
		if len(args) != 1 {
			b.sendMessage(chatID, "Usage: /revoke <username>")
			return
		}
		removed, err := b.authSvc.Revoke(args[0])
		switch {
		case err != nil:
			b.sendMessage(chatID, fmt.Sprintf("Ошибка удаления: %v", err))
		case removed:
			log.Printf("Admin @%s revoked access of @%s", msg.From.UserName, auth.Normalize(args[0]))
			b.sendMessage(chatID, fmt.Sprintf("Пользователь @%s удален из allowlist", auth.Normalize(args[0])))
		default:
			b.sendMessage(chatID, fmt.Sprintf("@%s нет среди выданных вручную доступов", auth.Normalize(args[0])))
		}
	}
}

// show renders the admin dump: record counts per nickname and live sessions.
func (b *Bot) show(ctx context.Context) string {
	var bld strings.Builder
	names, err := b.history.Nicknames(ctx)
	if err != nil {
		log.Printf("show: failed to list nicknames: %v", err)
		return msgInternal
	}
	bld.WriteString(fmt.Sprintf("Игроков в базе: %d\n", len(names)))
	for _, n := range names {
		recs, err := b.history.ReadAll(ctx, n)
		if err != nil {
			log.Printf("show: failed to read %q: %v", n, err)
			continue
		}
		bld.WriteString(fmt.Sprintf("- %s: %d\n", n, len(recs)))
	}
	snaps := b.sessions.Snapshots()
	bld.WriteString(fmt.Sprintf("\nАктивных диалогов: %d\n", len(snaps)))
	for _, s := range snaps {
		line := fmt.Sprintf("- %d: %s, шаг %s, до %s", s.UserID, s.Partial.Flow, s.Partial.Step, s.ExpiresAt.In(b.loc).Format(b.layout))
		if s.Partial.Nickname != "" {
			line += ", игрок " + s.Partial.Nickname
		}
		bld.WriteString(line + "\n")
	}
	return strings.TrimSpace(bld.String())
}

// showPlayer renders every record of one nickname for /show <nickname>.
func (b *Bot) showPlayer(ctx context.Context, nickname string) string {
	out, err := b.listing.ListRaw(ctx, nickname)
	switch {
	case errors.Is(err, query.ErrEmptyHistory):
		return fmt.Sprintf(msgEmptyHistory, nickname)
	case err != nil:
		log.Printf("show: failed to list %q: %v", nickname, err)
		return msgInternal
	}
	return out
}

// reply presents an outcome. A non-zero editID is the message carrying the
// keyboard the user just pressed; the next step replaces it in place.
func (b *Bot) reply(chatID int64, editID int, out session.Outcome, err error) {
	if err != nil {
		b.sendMessage(chatID, errorText(err))
		return
	}
	switch out.Status {
	case session.Continue:
		if editID != 0 {
			b.editStep(chatID, editID, out.Step)
			return
		}
		b.sendStep(chatID, out.Step)
	case session.Rejected:
		b.sendMessage(chatID, rejectionText(out))
		b.sendStep(chatID, out.Step)
	case session.Complete:
		b.sendMessage(chatID, resultText(out.Result))
	}
}

func errorText(err error) string {
	switch {
	case errors.Is(err, session.ErrSessionTimeout):
		return msgTimeout
	case errors.Is(err, session.ErrNoActiveSession):
		return msgNoSession
	case errors.Is(err, query.ErrService):
		log.Printf("summarization failed: %v", err)
		return msgServiceError
	default:
		log.Printf("request failed: %v", err)
		return msgInternal
	}
}

func rejectionText(out session.Outcome) string {
	switch {
	case errors.Is(out.Reason, flow.ErrEmptyInput):
		return msgEmptyInput
	case errors.Is(out.Reason, flow.ErrInvalidSelection) && out.Step.Shape == flow.ShapeText:
		return msgInvalidText
	default:
		return msgInvalidSelection
	}
}

func resultText(res session.Result) string {
	switch {
	case res.Flow == flow.KindSubmit:
		return msgStored
	case res.Empty:
		return fmt.Sprintf(msgEmptyHistory, res.Nickname)
	default:
		return res.Text
	}
}

func keyboard(def flow.StepDef) *tgbotapi.InlineKeyboardMarkup {
	if def.Shape != flow.ShapeChoice || len(def.Rows) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(def.Rows))
	for _, r := range def.Rows {
		btns := make([]tgbotapi.InlineKeyboardButton, 0, len(r))
		for _, o := range r {
			btns = append(btns, tgbotapi.NewInlineKeyboardButtonData(o.Label, o.Value))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(btns...))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}

func (b *Bot) sendStep(chatID int64, def flow.StepDef) {
	m := tgbotapi.NewMessage(chatID, def.Prompt)
	if kb := keyboard(def); kb != nil {
		m.ReplyMarkup = *kb
	}
	if _, err := b.s.Send(m); err != nil {
		log.Printf("failed to send prompt: %v", err)
	}
}

func (b *Bot) editStep(chatID int64, messageID int, def flow.StepDef) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, def.Prompt)
	edit.ReplyMarkup = keyboard(def)
	if _, err := b.s.Send(edit); err != nil {
		log.Printf("failed to edit prompt: %v", err)
	}
}

func (b *Bot) sendMessage(chatID int64, text string) {
	for _, part := range splitText(text, maxMessageLen) {
		msg := tgbotapi.NewMessage(chatID, part)
		if _, err := b.s.Send(msg); err != nil {
			log.Printf("failed to send message: %v", err)
			return
		}
	}
}

// maxMessageLen is Telegram's limit on message text, in UTF-16 units; runes
// are a safe approximation for the Cyrillic and Latin text sent here.
const maxMessageLen = 4096

// splitText cuts text into chunks of at most limit runes, preferring to break
// after a newline.
func splitText(text string, limit int) []string {
	r := []rune(text)
	var parts []string
	for len(r) > limit {
		cut := limit
		for i := limit - 1; i > limit/2; i-- {
			if r[i] == '\n' {
				cut = i + 1
				break
			}
		}
		parts = append(parts, string(r[:cut]))
		r = r[cut:]
	}
	return append(parts, string(r))
}
