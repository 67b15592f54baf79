package c4dto

const (
	CodeInvalidColumn    = "invalid_column"
	CodeNotYourTurn      = "not_your_turn"
	CodeNotPlaying       = "not_playing"
	CodeColumnFull       = "column_full"
	CodeNotFound         = "not_found"
	CodeAlreadyQueued    = "already_queued"
	CodeAlreadyInSession = "already_in_session"
	CodeInvalidMode      = "invalid_mode"
	CodeBadRequest       = "bad_request"
	CodeInternal         = "internal"
)

type DomainError struct {
	Code      string `json:"code"`
	Message   string `json:"message,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "connect4 service error"
}
