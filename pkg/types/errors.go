package types

import (
	"errors"
	"net/http"
)

// Code is the error category surfaced to callers.
type Code string

const (
	CodeNotFound     Code = "NOT_FOUND"
	CodeForbidden    Code = "FORBIDDEN"
	CodeInvalidState Code = "INVALID_STATE"
	CodeValidation   Code = "VALIDATION"
)

// Reason is the machine-readable cause within a category.
type Reason string

const (
	ReasonSessionNotFound       Reason = "SESSION_NOT_FOUND"
	ReasonRoundNotFound         Reason = "ROUND_NOT_FOUND"
	ReasonConfigNotFound        Reason = "CONFIG_NOT_FOUND"
	ReasonNotFacilitator        Reason = "NOT_FACILITATOR"
	ReasonNotAParticipant       Reason = "NOT_A_PARTICIPANT"
	ReasonNotConfigOwner        Reason = "NOT_CONFIG_OWNER"
	ReasonRoundAlreadyActive    Reason = "ROUND_ALREADY_ACTIVE"
	ReasonNoActiveRound         Reason = "NO_ACTIVE_ROUND"
	ReasonVotesAlreadyRevealed  Reason = "VOTES_ALREADY_REVEALED"
	ReasonVotesNotRevealed      Reason = "VOTES_NOT_REVEALED"
	ReasonRoundAlreadyCompleted Reason = "ROUND_ALREADY_COMPLETED"
	ReasonSessionCompleted      Reason = "SESSION_COMPLETED"
	ReasonInvalidVote           Reason = "INVALID_VOTE"
	ReasonInvalidEstimate       Reason = "INVALID_ESTIMATE"
	ReasonInvalidTitle          Reason = "INVALID_TITLE"
	ReasonInvalidDescription    Reason = "INVALID_DESCRIPTION"
	ReasonInvalidUsername       Reason = "INVALID_USERNAME"
	ReasonInvalidWheel          Reason = "INVALID_WHEEL"
	ReasonInvalidMessage        Reason = "INVALID_MESSAGE"
)

// Error is the domain error type shared by every layer.
// ARCHITECTURAL DISCOVERY: errors.Is against a category sentinel (no Reason)
// matches by Code; against a specific sentinel it matches by Reason.
type Error struct {
	Code    Code
	Reason  Reason
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by reason, or by code when
// target carries no reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Reason != "" {
		return e.Reason == t.Reason
	}
	return e.Code == t.Code
}

// NewError creates a domain error.
func NewError(code Code, reason Reason, message string) *Error {
	return &Error{Code: code, Reason: reason, Message: message}
}

// WrapError creates a domain error carrying an underlying cause.
func WrapError(code Code, reason Reason, message string, cause error) *Error {
	return &Error{Code: code, Reason: reason, Message: message, Cause: cause}
}

// Category sentinels
var (
	ErrNotFound     = &Error{Code: CodeNotFound, Message: "not found"}
	ErrForbidden    = &Error{Code: CodeForbidden, Message: "forbidden"}
	ErrInvalidState = &Error{Code: CodeInvalidState, Message: "invalid state"}
	ErrValidation   = &Error{Code: CodeValidation, Message: "validation failed"}
)

var (
	ErrSessionNotFound       = NewError(CodeNotFound, ReasonSessionNotFound, "session not found")
	ErrRoundNotFound         = NewError(CodeNotFound, ReasonRoundNotFound, "round not found")
	ErrConfigNotFound        = NewError(CodeNotFound, ReasonConfigNotFound, "wheel configuration not found")
	ErrNotFacilitator        = NewError(CodeForbidden, ReasonNotFacilitator, "only the facilitator can perform this action")
	ErrNotAParticipant       = NewError(CodeForbidden, ReasonNotAParticipant, "user is not a participant in this session")
	ErrNotConfigOwner        = NewError(CodeForbidden, ReasonNotConfigOwner, "wheel configuration belongs to another user")
	ErrRoundAlreadyActive    = NewError(CodeInvalidState, ReasonRoundAlreadyActive, "a round is already in progress")
	ErrNoActiveRound         = NewError(CodeInvalidState, ReasonNoActiveRound, "no round is in progress")
	ErrVotesAlreadyRevealed  = NewError(CodeInvalidState, ReasonVotesAlreadyRevealed, "votes have already been revealed")
	ErrVotesNotRevealed      = NewError(CodeInvalidState, ReasonVotesNotRevealed, "votes must be revealed first")
	ErrRoundAlreadyCompleted = NewError(CodeInvalidState, ReasonRoundAlreadyCompleted, "round is already completed")
	ErrSessionCompleted      = NewError(CodeInvalidState, ReasonSessionCompleted, "session is completed")
	ErrInvalidVote           = NewError(CodeValidation, ReasonInvalidVote, "vote is not a card in the deck")
	ErrInvalidEstimate       = NewError(CodeValidation, ReasonInvalidEstimate, "final estimate must be a card or a non-negative number")
	ErrInvalidTitle          = NewError(CodeValidation, ReasonInvalidTitle, "title must be 1-200 characters")
	ErrInvalidDescription    = NewError(CodeValidation, ReasonInvalidDescription, "description must be at most 1000 characters")
	ErrInvalidUsername       = NewError(CodeValidation, ReasonInvalidUsername, "username must be 1-50 characters: letters, digits, '_', '-', '.'")
	ErrInvalidWheel          = NewError(CodeValidation, ReasonInvalidWheel, "wheel needs a 1-100 character name and 1-50 items of 1-100 characters")
	ErrInvalidMessage        = NewError(CodeValidation, ReasonInvalidMessage, "message must be a JSON object of type \"message\" with at most 2000 bytes of content")
)

// HTTPStatus maps an error to the response status for the request/response surface.
func HTTPStatus(err error) int {
	var domainErr *Error
	if !errors.As(err, &domainErr) {
		return http.StatusInternalServerError
	}
	switch domainErr.Code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeInvalidState:
		return http.StatusConflict
	case CodeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ReasonOf returns the reason of a domain error, or "" for other errors.
func ReasonOf(err error) Reason {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Reason
	}
	return ""
}
