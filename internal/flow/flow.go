// Package flow describes the two guided dialogues of the bot as explicit,
// linear state machines. Each state type carries exactly the fields that are
// known at that point; Advance is the total transition function.
package flow

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"mafia-dossier/internal/game"
)

// Kind identifies a flow.
type Kind string

const (
	KindSubmit  Kind = "submit"
	KindResume  Kind = "resume"
	KindSummary Kind = "summary"
)

func (k Kind) Valid() bool {
	return k == KindSubmit || k == KindResume || k == KindSummary
}

// IsLookup reports whether the flow ends in a read of participant history.
func (k Kind) IsLookup() bool { return k == KindResume || k == KindSummary }

// Step is a position within a flow.
type Step string

const (
	StepNickname  Step = "nickname"
	StepCategory  Step = "category"
	StepRole      Step = "role"
	StepSeat      Step = "seat"
	StepNarrative Step = "narrative"
)

// Steps returns the static step order of a flow.
func Steps(k Kind) []Step {
	if k == KindSubmit {
		return []Step{StepNickname, StepCategory, StepRole, StepSeat, StepNarrative}
	}
	return []Step{StepNickname}
}

var (
	ErrEmptyInput       = errors.New("empty input")
	ErrInvalidSelection = errors.New("invalid selection")
)

// EventKind is the shape of an inbound user event.
type EventKind int

const (
	EventText EventKind = iota + 1
	EventSelection
)

// Event is one validated-or-not user input for the current step.
type Event struct {
	Kind  EventKind
	Value string
	At    time.Time
}

func Text(v string, at time.Time) Event { return Event{Kind: EventText, Value: v, At: at} }
func Selection(v string, at time.Time) Event { return Event{Kind: EventSelection, Value: v, At: at} }

// State is an in-progress position of a flow.
type State interface {
	Flow() Kind
	Step() Step
	// Partial returns a flat view of the fields collected so far.
	Partial() Partial
}

// Terminal is the result of a completed flow.
type Terminal interface {
	terminal()
}

type AwaitNickname struct {
	Kind Kind
}

type AwaitCategory struct {
	Nickname  string
	StartedAt time.Time
}

type AwaitRole struct {
	Nickname  string
	StartedAt time.Time
	Category  game.Category
}

type AwaitSeat struct {
	Nickname  string
	StartedAt time.Time
	Category  game.Category
	Role      game.Role
}

type AwaitNarrative struct {
	Nickname  string
	StartedAt time.Time
	Category  game.Category
	Role      game.Role
	Seat      int
}

// Submission is a fully populated observation ready to be stored.
type Submission struct {
	Nickname  string
	StartedAt time.Time
	Category  game.Category
	Role      game.Role
	Seat      int
	Narrative string
}

// Lookup asks for the history of a nickname.
type Lookup struct {
	Kind     Kind
	Nickname string
}

func (Submission) terminal() {}
func (Lookup) terminal() {}

func (s AwaitNickname) Flow() Kind { return s.Kind }
func (AwaitCategory) Flow() Kind { return KindSubmit }
func (AwaitRole) Flow() Kind { return KindSubmit }
func (AwaitSeat) Flow() Kind { return KindSubmit }
func (AwaitNarrative) Flow() Kind { return KindSubmit }
func (AwaitNickname) Step() Step { return StepNickname }
func (AwaitCategory) Step() Step { return StepCategory }
func (AwaitRole) Step() Step { return StepRole }
func (AwaitSeat) Step() Step { return StepSeat }
func (AwaitNarrative) Step() Step { return StepNarrative }

// Start returns the initial state of a flow.
func Start(k Kind) State { return AwaitNickname{Kind: k} }

// Advance validates ev against the step of s and moves the flow forward.
// Exactly one of next and done is non-nil on success. On error the caller keeps s.
func Advance(s State, ev Event) (next State, done Terminal, err error) {
	switch st := s.(type) {
	case AwaitNickname:
		nick, err := textValue(ev)
		if err != nil {
			return nil, nil, err
		}
		if st.Kind.IsLookup() {
			return nil, Lookup{Kind: st.Kind, Nickname: nick}, nil
		}
		return AwaitCategory{Nickname: nick, StartedAt: ev.At}, nil, nil
	case AwaitCategory:
		v, err := selectionValue(StepCategory, ev)
		if err != nil {
			return nil, nil, err
		}
		return AwaitRole{Nickname: st.Nickname, StartedAt: st.StartedAt, Category: game.Category(v)}, nil, nil
	case AwaitRole:
		v, err := selectionValue(StepRole, ev)
		if err != nil {
			return nil, nil, err
		}
		return AwaitSeat{Nickname: st.Nickname, StartedAt: st.StartedAt, Category: st.Category, Role: game.Role(v)}, nil, nil
	case AwaitSeat:
		v, err := selectionValue(StepSeat, ev)
		if err != nil {
			return nil, nil, err
		}
		seat, convErr := strconv.Atoi(v)
		if convErr != nil || !game.ValidSeat(seat) {
			return nil, nil, fmt.Errorf("%w: seat %q", ErrInvalidSelection, v)
		}
		return AwaitNarrative{Nickname: st.Nickname, StartedAt: st.StartedAt, Category: st.Category, Role: st.Role, Seat: seat}, nil, nil
	case AwaitNarrative:
		text, err := textValue(ev)
		if err != nil {
			return nil, nil, err
		}
		return nil, Submission{
			Nickname:  st.Nickname,
			StartedAt: st.StartedAt,
			Category:  st.Category,
			Role:      st.Role,
			Seat:      st.Seat,
			Narrative: text,
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown flow state %T", s)
	}
}

// textValue accepts non-blank free text. The value is kept verbatim.
func textValue(ev Event) (string, error) {
	if ev.Kind != EventText {
		return "", fmt.Errorf("%w: text expected", ErrInvalidSelection)
	}
	if strings.TrimSpace(ev.Value) == "" {
		return "", ErrEmptyInput
	}
	return ev.Value, nil
}

func selectionValue(step Step, ev Event) (string, error) {
	if ev.Kind != EventSelection {
		return "", fmt.Errorf("%w: choose one of the options", ErrInvalidSelection)
	}
	if !Definition(step).HasOption(ev.Value) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSelection, ev.Value)
	}
	return ev.Value, nil
}
