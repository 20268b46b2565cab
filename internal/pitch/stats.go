package pitch

import "math"

// Stats summarizes a user's finished sessions.
type Stats struct {
	TotalSessions int     `json:"totalSessions"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	WinRate       float64 `json:"winRate"`
}

// NewStats derives the totals and the win rate (percent, two decimals).
func NewStats(wins, losses int) Stats {
	st := Stats{
		TotalSessions: wins + losses,
		Wins:          wins,
		Losses:        losses,
	}
	if st.TotalSessions > 0 {
		rate := float64(wins) / float64(st.TotalSessions) * 100
		st.WinRate = math.Round(rate*100) / 100
	}
	return st
}

// ComputeStats counts terminal sessions; active ones are ignored.
func ComputeStats(sessions []Session) Stats {
	var wins, losses int
	for _, s := range sessions {
		switch s.Status {
		case StatusWon:
			wins++
		case StatusLost:
			losses++
		}
	}
	return NewStats(wins, losses)
}
