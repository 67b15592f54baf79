package c4dto

const (
	EventConnected      = "connected"
	EventSessionWaiting = "session_waiting"
	EventSessionStarted = "session_started"
	EventSessionUpdated = "session_updated"
	EventSessionEnded   = "session_ended"
	EventError          = "error"
)

// Event is an outbound notification for a single participant.
type Event struct {
	Type      string       `json:"type"`
	Identity  string       `json:"identity,omitempty"`
	SessionID string       `json:"sessionId,omitempty"`
	State     *PublicState `json:"state,omitempty"`
	Outcome   *Outcome     `json:"outcome,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	Message   string       `json:"message,omitempty"`
	Error     *DomainError `json:"error,omitempty"`
}

// Command is an inbound client frame.
type Command struct {
	Type      string `json:"type"`
	Mode      string `json:"mode,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Column    *int   `json:"column,omitempty"`
}

const (
	CommandJoin   = "join"
	CommandMove   = "move"
	CommandRejoin = "rejoin"
	CommandLeave  = "leave"
)

type Health struct {
	Status         string `json:"status"`
	UptimeSeconds  int64  `json:"uptimeSeconds"`
	ActiveSessions int    `json:"activeSessions"`
	WaitingPlayers int    `json:"waitingPlayers"`
}
