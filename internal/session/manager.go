// Package session drives the per-user dialogues of the bot. A user has at most
// one session; every inbound event for that user is serialized on the user's
// slot, checked against the session's absolute expiry and then fed to the flow
// state machine. Finalization (store append, history lookup) runs after the
// slot is released, so slow summarization never blocks the user's next event.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mafia-dossier/internal/clock"
	"mafia-dossier/internal/flow"
	"mafia-dossier/internal/query"
	"mafia-dossier/internal/storage"
)

const DefaultTTL = 10 * time.Minute

// Lookup renders participant history for the retrieval flows.
type Lookup interface {
	ListRaw(ctx context.Context, nickname string) (string, error)
	Summarize(ctx context.Context, nickname string) (string, error)
}

type Options struct {
	// TTL is the lifetime of a session measured from its creation.
	TTL   time.Duration
	Clock clock.Clock
	// Repo persists in-progress sessions. Nil disables persistence.
	Repo Repository
}

type Manager struct {
	store  storage.Store
	lookup Lookup
	repo   Repository
	clock  clock.Clock
	ttl    time.Duration

	mu    sync.Mutex
	slots map[int64]*slot
}

// slot serializes everything that happens to one user's session.
type slot struct {
	mu     sync.Mutex
	userID int64
	sess   *Session
	// timedOut is set when the session was discarded while the user was away,
	// so the next event can explain why there is nothing to continue.
	timedOut bool
	// dead slots were pruned from the map and must not be used again.
	dead bool
}

func NewManager(store storage.Store, lookup Lookup, opts Options) *Manager {
	m := &Manager{
		store:  store,
		lookup: lookup,
		repo:   opts.Repo,
		clock:  opts.Clock,
		ttl:    opts.TTL,
		slots:  make(map[int64]*slot),
	}
	if m.clock == nil {
		m.clock = clock.Real()
	}
	if m.ttl <= 0 {
		m.ttl = DefaultTTL
	}
	return m
}

func (m *Manager) slot(userID int64) *slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	sl, ok := m.slots[userID]
	if !ok {
		sl = &slot{userID: userID}
		m.slots[userID] = sl
	}
	return sl
}

// lock returns the user's slot locked. A slot pruned by Sweep between lookup
// and locking is skipped in favor of a fresh one.
func (m *Manager) lock(userID int64) *slot {
	for {
		sl := m.slot(userID)
		sl.mu.Lock()
		if !sl.dead {
			return sl
		}
		sl.mu.Unlock()
	}
}

// Start opens a new session for kind, replacing any session the user had.
// Non-empty args are joined with spaces and submitted to the first step, which
// may complete the flow within this call.
func (m *Manager) Start(ctx context.Context, userID int64, kind flow.Kind, args []string) (Outcome, error) {
	if !kind.Valid() {
		return Outcome{}, fmt.Errorf("unknown flow %q", kind)
	}
	now := m.clock.Now()
	sl := m.lock(userID)
	if sl.sess != nil {
		log.Printf("session: user %d restarts %s, dropping %s at %s", userID, kind, sl.sess.State.Flow(), sl.sess.State.Step())
		m.dropLocked(sl, ReasonReplaced)
	}
	sl.timedOut = false
	sl.sess = &Session{
		UserID:    userID,
		State:     flow.Start(kind),
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	m.persist(sl.sess)
	log.Printf("session: user %d started %s", userID, kind)

	if len(args) == 0 {
		out := Outcome{Status: Continue, Step: flow.DefinitionFor(sl.sess.State)}
		sl.mu.Unlock()
		return out, nil
	}
	out, done := m.applyLocked(sl, flow.Text(strings.Join(args, " "), now))
	sl.mu.Unlock()
	if done != nil {
		return m.finalize(ctx, userID, done)
	}
	return out, nil
}

// Advance feeds one event to the user's session.
func (m *Manager) Advance(ctx context.Context, userID int64, ev flow.Event) (Outcome, error) {
	now := m.clock.Now()
	sl := m.lock(userID)
	if sl.sess == nil {
		timedOut := sl.timedOut
		sl.timedOut = false
		sl.mu.Unlock()
		if timedOut {
			return Outcome{}, ErrSessionTimeout
		}
		return Outcome{}, ErrNoActiveSession
	}
	if sl.sess.expired(now) {
		m.dropLocked(sl, ReasonTimeout)
		sl.mu.Unlock()
		return Outcome{}, ErrSessionTimeout
	}
	ev.At = now
	out, done := m.applyLocked(sl, ev)
	sl.mu.Unlock()
	if done != nil {
		return m.finalize(ctx, userID, done)
	}
	return out, nil
}

// Abort discards the user's session without persisting anything and reports
// whether one existed. A session that has already outlived its TTL, or was
// swept while the user was away, is reported as ErrSessionTimeout instead.
func (m *Manager) Abort(userID int64, reason Reason) (bool, error) {
	sl := m.lock(userID)
	defer sl.mu.Unlock()
	timedOut := sl.timedOut
	sl.timedOut = false
	if sl.sess == nil {
		if timedOut {
			return false, ErrSessionTimeout
		}
		return false, nil
	}
	if sl.sess.expired(m.clock.Now()) {
		m.dropLocked(sl, ReasonTimeout)
		return false, ErrSessionTimeout
	}
	m.dropLocked(sl, reason)
	return true, nil
}

// Sweep aborts every expired session and returns how many were dropped.
// The owners are told about the timeout on their next event. Slots left with
// nothing to report are pruned.
func (m *Manager) Sweep() int {
	now := m.clock.Now()
	m.mu.Lock()
	slots := make([]*slot, 0, len(m.slots))
	for _, sl := range m.slots {
		slots = append(slots, sl)
	}
	m.mu.Unlock()

	n := 0
	for _, sl := range slots {
		sl.mu.Lock()
		switch {
		case sl.dead:
		case sl.sess != nil && sl.sess.expired(now):
			m.dropLocked(sl, ReasonTimeout)
			sl.timedOut = true
			n++
		case sl.sess == nil && !sl.timedOut:
			m.prune(sl)
		}
		sl.mu.Unlock()
	}
	return n
}

// prune removes an idle slot from the map. Callers hold sl.mu.
func (m *Manager) prune(sl *slot) {
	m.mu.Lock()
	if m.slots[sl.userID] == sl {
		delete(m.slots, sl.userID)
	}
	m.mu.Unlock()
	sl.dead = true
}

// Recover discards sessions left behind by a previous process. They are
// treated as timed out.
func (m *Manager) Recover() (int, error) {
	if m.repo == nil {
		return 0, nil
	}
	snaps, err := m.repo.LoadAll()
	if err != nil {
		return 0, fmt.Errorf("load sessions: %w", err)
	}
	for _, s := range snaps {
		sl := m.lock(s.UserID)
		if sl.sess == nil {
			sl.timedOut = true
		}
		sl.mu.Unlock()
		if err := m.repo.Remove(s.UserID); err != nil {
			log.Printf("session: failed to remove stale session of user %d: %v", s.UserID, err)
		}
		log.Printf("session: discarded %s session of user %d left at %s by %s", s.Partial.Flow, s.UserID, s.Partial.Step, ReasonRestart)
	}
	return len(snaps), nil
}

// Active returns the user's live session, if any.
func (m *Manager) Active(userID int64) (Snapshot, bool) {
	now := m.clock.Now()
	m.mu.Lock()
	sl, ok := m.slots[userID]
	m.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.dead || sl.sess == nil || sl.sess.expired(now) {
		return Snapshot{}, false
	}
	return sl.sess.snapshot(), true
}

// Snapshots lists all live sessions ordered by user id.
func (m *Manager) Snapshots() []Snapshot {
	m.mu.Lock()
	ids := make([]int64, 0, len(m.slots))
	for id := range m.slots {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []Snapshot
	for _, id := range ids {
		if s, ok := m.Active(id); ok {
			out = append(out, s)
		}
	}
	return out
}

// applyLocked runs one transition. A terminal result leaves the slot empty
// so that a duplicate event cannot finalize the same flow twice.
func (m *Manager) applyLocked(sl *slot, ev flow.Event) (Outcome, flow.Terminal) {
	cur := sl.sess.State
	next, done, err := flow.Advance(cur, ev)
	if err != nil {
		log.Printf("session: user %d rejected at %s: %v", sl.userID, cur.Step(), err)
		return Outcome{Status: Rejected, Step: flow.DefinitionFor(cur), Reason: err}, nil
	}
	if done != nil {
		sl.sess = nil
		m.unpersist(sl.userID)
		return Outcome{}, done
	}
	sl.sess.State = next
	m.persist(sl.sess)
	return Outcome{Status: Continue, Step: flow.DefinitionFor(next)}, nil
}

func (m *Manager) dropLocked(sl *slot, reason Reason) {
	log.Printf("session: user %d aborted %s at %s: %s", sl.userID, sl.sess.State.Flow(), sl.sess.State.Step(), reason)
	sl.sess = nil
	m.unpersist(sl.userID)
}

func (m *Manager) finalize(ctx context.Context, userID int64, done flow.Terminal) (Outcome, error) {
	switch t := done.(type) {
	case flow.Submission:
		rec := storage.Record{
			ID:        uuid.NewString(),
			Timestamp: t.StartedAt,
			Category:  t.Category,
			Role:      t.Role,
			Seat:      t.Seat,
			Narrative: t.Narrative,
		}
		if err := m.store.Append(ctx, t.Nickname, rec); err != nil {
			return Outcome{}, fmt.Errorf("store record for %q: %w", t.Nickname, err)
		}
		log.Printf("session: user %d stored record %s for %q", userID, rec.ID, t.Nickname)
		return Outcome{Status: Complete, Result: Result{Flow: flow.KindSubmit, Nickname: t.Nickname, Record: &rec}}, nil
	case flow.Lookup:
		var (
			text string
			err  error
		)
		if t.Kind == flow.KindSummary {
			text, err = m.lookup.Summarize(ctx, t.Nickname)
		} else {
			text, err = m.lookup.ListRaw(ctx, t.Nickname)
		}
		res := Result{Flow: t.Kind, Nickname: t.Nickname, Text: text}
		switch {
		case errors.Is(err, query.ErrEmptyHistory):
			res.Empty = true
		case err != nil:
			return Outcome{}, fmt.Errorf("%s for %q: %w", t.Kind, t.Nickname, err)
		}
		log.Printf("session: user %d looked up %q (%s, empty=%t)", userID, t.Nickname, t.Kind, res.Empty)
		return Outcome{Status: Complete, Result: res}, nil
	default:
		return Outcome{}, fmt.Errorf("unknown terminal %T", done)
	}
}

func (m *Manager) persist(s *Session) {
	if m.repo == nil {
		return
	}
	if err := m.repo.Upsert(s.snapshot()); err != nil {
		log.Printf("session: failed to persist session of user %d: %v", s.UserID, err)
	}
}

func (m *Manager) unpersist(userID int64) {
	if m.repo == nil {
		return
	}
	if err := m.repo.Remove(userID); err != nil {
		log.Printf("session: failed to remove session of user %d: %v", userID, err)
	}
}
