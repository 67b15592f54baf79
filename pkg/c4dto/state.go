package c4dto

import "time"

type Player struct {
	Identity    string `json:"identity"`
	DisplayName string `json:"displayName"`
	Side        string `json:"side"`
	IsBot       bool   `json:"isBot"`
}

type MoveEntry struct {
	Column int       `json:"column"`
	Row    int       `json:"row"`
	Side   string    `json:"side"`
	Seq    int       `json:"seq"`
	At     time.Time `json:"at"`
}

type Outcome struct {
	Kind   string `json:"kind"`
	Winner string `json:"winner,omitempty"`
	Loser  string `json:"loser,omitempty"`
}

// PublicState is the client-visible view of a session.
type PublicState struct {
	SessionID  string      `json:"sessionId"`
	Mode       string      `json:"mode"`
	Phase      string      `json:"phase"`
	Turn       string      `json:"turn,omitempty"`
	Board      [][]int     `json:"board"`
	Players    []Player    `json:"players"`
	Moves      []MoveEntry `json:"moves"`
	Outcome    *Outcome    `json:"outcome,omitempty"`
	Reason     string      `json:"reason,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
	StartedAt  *time.Time  `json:"startedAt,omitempty"`
	FinishedAt *time.Time  `json:"finishedAt,omitempty"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// LastMove returns the most recent move, if any.
func (p *PublicState) LastMove() (MoveEntry, bool) {
	if p == nil || len(p.Moves) == 0 {
		return MoveEntry{}, false
	}
	return p.Moves[len(p.Moves)-1], true
}

// SideOf returns the side held by identity, or "" when not seated.
func (p *PublicState) SideOf(identity string) string {
	if p == nil {
		return ""
	}
	for _, pl := range p.Players {
		if pl.Identity == identity && !pl.IsBot {
			return pl.Side
		}
	}
	return ""
}
