package analytics

import (
	"fmt"
	"strings"
	"time"

	"mafia-dossier/internal/game"
	"mafia-dossier/internal/storage"
)

// Stats aggregates one player's recorded games.
type Stats struct {
	Games      int
	ByRole     map[game.Role]int
	ByCategory map[game.Category]int
	AvgSeat    float64
	FirstGame  time.Time
	LastGame   time.Time
}

// ForParticipant computes statistics over a player's history.
func ForParticipant(records []storage.Record) Stats {
	st := Stats{
		ByRole:     make(map[game.Role]int),
		ByCategory: make(map[game.Category]int),
	}
	seatSum := 0
	for _, r := range records {
		st.Games++
		st.ByRole[r.Role]++
		st.ByCategory[r.Category]++
		seatSum += r.Seat
		if st.FirstGame.IsZero() || r.Timestamp.Before(st.FirstGame) {
			st.FirstGame = r.Timestamp
		}
		if r.Timestamp.After(st.LastGame) {
			st.LastGame = r.Timestamp
		}
	}
	if st.Games > 0 {
		st.AvgSeat = float64(seatSum) / float64(st.Games)
	}
	return st
}

// RedShare is the fraction of games played on a town card.
func (s Stats) RedShare() float64 {
	if s.Games == 0 {
		return 0
	}
	red := 0
	for r, n := range s.ByRole {
		if r.IsRed() {
			red += n
		}
	}
	return float64(red) / float64(s.Games)
}

// String renders the statistics as a short Russian text block.
func (s Stats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Всего игр: %d\n", s.Games)
	if s.Games == 0 {
		return b.String()
	}
	b.WriteString("Карты:")
	for _, r := range game.Roles {
		if n := s.ByRole[r]; n > 0 {
			fmt.Fprintf(&b, " %s — %d;", r.Label(), n)
		}
	}
	b.WriteString("\nТипы игр:")
	for _, c := range game.Categories {
		if n := s.ByCategory[c]; n > 0 {
			fmt.Fprintf(&b, " %s — %d;", c.Label(), n)
		}
	}
	fmt.Fprintf(&b, "\nСредний номер: %.1f\n", s.AvgSeat)
	fmt.Fprintf(&b, "Доля красных карт: %.0f%%\n", s.RedShare()*100)
	return b.String()
}
