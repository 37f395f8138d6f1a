// Package game holds the closed sets of values describing a single Mafia game
// from the point of view of one player: the game format, the card dealt and the
// seat taken at the table.
package game

// Category is the format of the game session.
type Category string

const (
	CategoryClub             Category = "CLUB"
	CategoryTournament       Category = "TOURNAMENT"
	CategoryOnline           Category = "ONLINE"
	CategoryOnlineTournament Category = "ONLINE_TOURNAMENT"
	CategoryOther            Category = "OTHER"
)

// Categories lists every category in presentation order.
var Categories = []Category{
	CategoryClub,
	CategoryTournament,
	CategoryOnline,
	CategoryOnlineTournament,
	CategoryOther,
}

var categoryLabels = map[Category]string{
	CategoryClub:             "Клуб",
	CategoryTournament:       "Турнир",
	CategoryOnline:           "Онлайн",
	CategoryOnlineTournament: "Онлайн-турнир",
	CategoryOther:            "Другой",
}

func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// Label returns the human readable name, or the raw value for unknown categories.
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

// Role is the card a player held during the game. Exactly one per game.
type Role string

const (
	RoleSheriff Role = "SHERIFF"
	RoleCitizen Role = "CITIZEN"
	RoleDon     Role = "DON"
	RoleMafia   Role = "MAFIA"
)

// Roles lists every role in presentation order.
var Roles = []Role{RoleSheriff, RoleCitizen, RoleDon, RoleMafia}

var roleLabels = map[Role]string{
	RoleSheriff: "Шериф",
	RoleCitizen: "Мирный",
	RoleDon:     "Дон",
	RoleMafia:   "Мафия",
}

func (r Role) Valid() bool {
	_, ok := roleLabels[r]
	return ok
}

func (r Role) Label() string {
	if l, ok := roleLabels[r]; ok {
		return l
	}
	return string(r)
}

// IsRed reports whether the role belongs to the town team.
func (r Role) IsRed() bool { return r == RoleSheriff || r == RoleCitizen }

const (
	MinSeat = 1
	MaxSeat = 10
)

func ValidSeat(n int) bool { return n >= MinSeat && n <= MaxSeat }
