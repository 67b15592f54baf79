package gateway

import (
	"github.com/park285/connect4-server/internal/msgcat"
	"github.com/park285/connect4-server/pkg/c4dto"
)

// describe renders the human-readable line attached to an outbound event.
func describe(cat *msgcat.Catalog, identity string, ev c4dto.Event) string {
	st := ev.State
	mySide := st.SideOf(identity)
	yourTurn := st != nil && st.Turn != "" && st.Turn == mySide

	switch ev.Type {
	case c4dto.EventSessionWaiting:
		return cat.Text("event.session_waiting", nil, "")
	case c4dto.EventSessionStarted:
		return cat.Text("event.session_started", map[string]any{
			"Opponent": opponentName(st, identity),
			"Side":     mySide,
			"YourTurn": yourTurn,
		}, "")
	case c4dto.EventSessionUpdated:
		last, ok := st.LastMove()
		if !ok {
			return ""
		}
		return cat.Text("event.session_updated", map[string]any{
			"Mover":    nameOfSide(st, last.Side),
			"Column":   last.Column,
			"YourTurn": yourTurn,
		}, "")
	case c4dto.EventSessionEnded:
		return cat.Text(endedKey(ev, mySide), map[string]any{
			"Opponent": winnerName(ev, st),
			"Reason":   ev.Reason,
		}, "")
	case c4dto.EventError:
		if ev.Error == nil {
			return ""
		}
		return cat.Text("error."+ev.Error.Code, nil, ev.Error.Message)
	}
	return ""
}

func endedKey(ev c4dto.Event, mySide string) string {
	switch {
	case ev.Reason == "abandoned":
		return "event.session_ended.abandoned"
	case ev.Outcome == nil || ev.Outcome.Winner == "":
		return "event.session_ended.draw"
	case ev.Outcome.Winner == mySide:
		return "event.session_ended.win"
	default:
		return "event.session_ended.loss"
	}
}

func opponentName(st *c4dto.PublicState, identity string) string {
	if st == nil {
		return ""
	}
	for _, p := range st.Players {
		if p.Identity != identity {
			return p.DisplayName
		}
	}
	// local mode: both seats share one identity
	return "yourself"
}

func nameOfSide(st *c4dto.PublicState, side string) string {
	if st == nil {
		return side
	}
	for _, p := range st.Players {
		if p.Side == side {
			return p.DisplayName
		}
	}
	return side
}

func winnerName(ev c4dto.Event, st *c4dto.PublicState) string {
	if ev.Outcome == nil {
		return ""
	}
	return nameOfSide(st, ev.Outcome.Winner)
}
