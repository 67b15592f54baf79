package domain

import "time"

const (
	ResultWin  = "win"
	ResultLoss = "loss"
	ResultDraw = "draw"
)

type PlayerSummary struct {
	Identity    string `json:"identity"`
	DisplayName string `json:"displayName"`
	Side        string `json:"side"`
	IsBot       bool   `json:"isBot"`
	Result      string `json:"result"`
}

// CompletedMatchRecord is written once when a match ends and never updated.
type CompletedMatchRecord struct {
	SessionID  string          `json:"sessionId"`
	Mode       string          `json:"mode"`
	Players    []PlayerSummary `json:"players"`
	Winner     string          `json:"winner,omitempty"`
	Reason     string          `json:"reason"`
	MoveCount  int             `json:"moveCount"`
	DurationMs int64           `json:"durationMs"`
	FinalBoard [][]int         `json:"finalBoard"`
	CreatedAt  time.Time       `json:"createdAt"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt"`
}

// WinnerPlayer returns the winning player summary, if any.
func (r CompletedMatchRecord) WinnerPlayer() (PlayerSummary, bool) {
	for _, p := range r.Players {
		if p.Result == ResultWin {
			return p, true
		}
	}
	return PlayerSummary{}, false
}

type Standing struct {
	DisplayName string `json:"displayName"`
	Wins        int64  `json:"wins"`
}
