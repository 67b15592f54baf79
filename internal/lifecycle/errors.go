package lifecycle

import (
	"errors"

	"github.com/park285/connect4-server/internal/matchmaking"
	"github.com/park285/connect4-server/internal/session"
	"github.com/park285/connect4-server/pkg/c4dto"
)

// DomainError maps a rejection from the core onto its transport code.
func DomainError(err error) c4dto.DomainError {
	code := c4dto.CodeInternal
	switch {
	case errors.Is(err, session.ErrInvalidColumn):
		code = c4dto.CodeInvalidColumn
	case errors.Is(err, session.ErrNotYourTurn):
		code = c4dto.CodeNotYourTurn
	case errors.Is(err, session.ErrNotPlaying):
		code = c4dto.CodeNotPlaying
	case errors.Is(err, session.ErrColumnFull):
		code = c4dto.CodeColumnFull
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, session.ErrNotParticipant):
		code = c4dto.CodeNotFound
	case errors.Is(err, matchmaking.ErrAlreadyQueued):
		code = c4dto.CodeAlreadyQueued
	case errors.Is(err, ErrAlreadyInSession):
		code = c4dto.CodeAlreadyInSession
	case errors.Is(err, matchmaking.ErrInvalidMode):
		code = c4dto.CodeInvalidMode
	case errors.Is(err, matchmaking.ErrInvalidArgs):
		code = c4dto.CodeBadRequest
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return c4dto.DomainError{Code: code, Message: msg, Retryable: code == c4dto.CodeInternal}
}
