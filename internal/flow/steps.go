package flow

import (
	"strconv"
	"time"

	"mafia-dossier/internal/game"
)

// Shape is the kind of input a step accepts.
type Shape int

const (
	ShapeText Shape = iota + 1
	ShapeChoice
)

// Option is one labeled choice of a selection step.
type Option struct {
	Label string
	Value string
}

// StepDef declares how a step is presented and which field it fills.
type StepDef struct {
	Step   Step
	Prompt string
	Shape  Shape
	// Rows groups options the way they are laid out on the keyboard.
	Rows  [][]Option
	Field string
}

func (d StepDef) HasOption(v string) bool {
	for _, row := range d.Rows {
		for _, o := range row {
			if o.Value == v {
				return true
			}
		}
	}
	return false
}

// Options returns every option of the step in presentation order.
func (d StepDef) Options() []Option {
	var out []Option
	for _, row := range d.Rows {
		out = append(out, row...)
	}
	return out
}

var definitions = map[Step]StepDef{
	StepNickname: {
		Step:   StepNickname,
		Prompt: "Пожалуйста, введите ник игрока.",
		Shape:  ShapeText,
		Field:  "nickname",
	},
	StepCategory: {
		Step:   StepCategory,
		Prompt: "Выберите тип игры.",
		Shape:  ShapeChoice,
		Rows: [][]Option{
			categoryOptions(game.CategoryClub, game.CategoryTournament),
			categoryOptions(game.CategoryOnline, game.CategoryOnlineTournament),
			categoryOptions(game.CategoryOther),
		},
		Field: "game_type",
	},
	StepRole: {
		Step:   StepRole,
		Prompt: "На какой карте играл игрок?",
		Shape:  ShapeChoice,
		Rows: [][]Option{
			roleOptions(game.RoleSheriff, game.RoleCitizen),
			roleOptions(game.RoleDon, game.RoleMafia),
		},
		Field: "card",
	},
	StepSeat: {
		Step:   StepSeat,
		Prompt: "На каком номере сыграл игрок?",
		Shape:  ShapeChoice,
		Rows:   [][]Option{seatOptions(1, 5), seatOptions(6, 10)},
		Field:  "number",
	},
	StepNarrative: {
		Step:   StepNarrative,
		Prompt: "Опишите действия игрока.",
		Shape:  ShapeText,
		Field:  "description",
	},
}

// lookupNicknamePrompt replaces the nickname prompt in the retrieval flows.
const lookupNicknamePrompt = "Введите никнейм игрока, информацию о котором вы хотите получить."

// Definition returns the declaration of a step.
func Definition(s Step) StepDef { return definitions[s] }

// DefinitionFor returns the declaration of the current step of st.
func DefinitionFor(st State) StepDef {
	d := Definition(st.Step())
	if st.Step() == StepNickname && st.Flow().IsLookup() {
		d.Prompt = lookupNicknamePrompt
	}
	return d
}

func categoryOptions(cs ...game.Category) []Option {
	out := make([]Option, 0, len(cs))
	for _, c := range cs {
		out = append(out, Option{Label: c.Label(), Value: string(c)})
	}
	return out
}

func roleOptions(rs ...game.Role) []Option {
	out := make([]Option, 0, len(rs))
	for _, r := range rs {
		out = append(out, Option{Label: r.Label(), Value: string(r)})
	}
	return out
}

func seatOptions(from, to int) []Option {
	out := make([]Option, 0, to-from+1)
	for n := from; n <= to; n++ {
		s := strconv.Itoa(n)
		out = append(out, Option{Label: s, Value: s})
	}
	return out
}

// Partial is a flat, serializable view of a flow state.
type Partial struct {
	Flow      Kind          `json:"flow"`
	Step      Step          `json:"step"`
	Nickname  string        `json:"nickname,omitempty"`
	StartedAt time.Time     `json:"started_at,omitempty"`
	Category  game.Category `json:"game_type,omitempty"`
	Role      game.Role     `json:"card,omitempty"`
	Seat      int           `json:"number,omitempty"`
}

func (s AwaitNickname) Partial() Partial {
	return Partial{Flow: s.Kind, Step: StepNickname}
}

func (s AwaitCategory) Partial() Partial {
	return Partial{Flow: KindSubmit, Step: StepCategory, Nickname: s.Nickname, StartedAt: s.StartedAt}
}

func (s AwaitRole) Partial() Partial {
	return Partial{Flow: KindSubmit, Step: StepRole, Nickname: s.Nickname, StartedAt: s.StartedAt, Category: s.Category}
}

func (s AwaitSeat) Partial() Partial {
	return Partial{Flow: KindSubmit, Step: StepSeat, Nickname: s.Nickname, StartedAt: s.StartedAt, Category: s.Category, Role: s.Role}
}

func (s AwaitNarrative) Partial() Partial {
	return Partial{Flow: KindSubmit, Step: StepNarrative, Nickname: s.Nickname, StartedAt: s.StartedAt, Category: s.Category, Role: s.Role, Seat: s.Seat}
}
