// Package errors defines the server's error taxonomy: handler-level
// errors that become a short ASCII wire token. Whether the session
// stays open after such a token, or the handler returns the boolean
// "fatal" signal that ends the read loop, is decided per handler.
//
// This mirrors the teacher's internal/errors design (a typed code with
// a central lookup table) but the lookup table here maps to wire
// tokens instead of HTTP status codes, since the transport is a raw
// encrypted TCP protocol rather than HTTP.
package errors

import (
	"fmt"
	"time"
)

// Code identifies one recoverable failure. Every Code here corresponds
// 1:1 to one of the fixed ASCII tokens listed in spec §7.
type Code string

const (
	CodeInvalidFormat           Code = "invalid_format"
	CodeMissingFields           Code = "missing_fields"
	CodeNotMember               Code = "not_member"
	CodeAlreadyMember           Code = "already_member"
	CodeCastingDeadlinePast     Code = "casting_deadline_past"
	CodeValidationBeforeCasting Code = "validation_before_casting"
	CodeCastingDeadlinePassed   Code = "casting_deadline_passed"
	CodeInvalidConfidence       Code = "invalid_confidence"
	CodeInvalidForecast         Code = "invalid_forecast"
	CodeAssertionComplete       Code = "assertion_complete"
	CodeAssertionNotFound       Code = "assertion_not_found"
	CodeVotingNotOpen           Code = "voting_not_open"
	CodeInvalidToken            Code = "invalid_token"
	CodeSecretFail              Code = "secret_fail"
	CodeInvalidChatID           Code = "invalid_chat_id"
	CodeInvalidName             Code = "invalid_name"
	CodeCreateFailed            Code = "create_failed"
	CodeMessageFailed           Code = "message_failed"
	CodeNoMembers               Code = "no_members"
	CodeVoteFailed              Code = "vote_failed"
	CodeAddFailed               Code = "add_failed"
	CodeInvalidDateFormat       Code = "invalid_date_format"
	CodeTokenFail               Code = "token_fail"
	CodeFail                    Code = "fail"
)

// tokens maps every Code to its exact wire-token bytes. The map exists
// (rather than just using string(Code) everywhere) so that a future
// token rename only touches one place, mirroring the teacher's
// StatusCodes indirection table.
var tokens = map[Code]string{
	CodeInvalidFormat:           "invalid_format",
	CodeMissingFields:           "missing_fields",
	CodeNotMember:               "not_member",
	CodeAlreadyMember:           "already_member",
	CodeCastingDeadlinePast:     "casting_deadline_past",
	CodeValidationBeforeCasting: "validation_before_casting",
	CodeCastingDeadlinePassed:   "casting_deadline_passed",
	CodeInvalidConfidence:       "invalid_confidence",
	CodeInvalidForecast:         "invalid_forecast",
	CodeAssertionComplete:       "assertion_complete",
	CodeAssertionNotFound:       "assertion_not_found",
	CodeVotingNotOpen:           "voting_not_open",
	CodeInvalidToken:            "invalid_token",
	CodeSecretFail:              "secret_fail",
	CodeInvalidChatID:           "invalid_chat_id",
	CodeInvalidName:             "invalid_name",
	CodeCreateFailed:            "create_failed",
	CodeMessageFailed:           "message_failed",
	CodeNoMembers:               "no_members",
	CodeVoteFailed:              "vote_failed",
	CodeAddFailed:               "add_failed",
	CodeInvalidDateFormat:       "invalid_date_format",
	CodeTokenFail:               "token_fail",
	CodeFail:                    "fail",
}

// WireError is a recoverable, handler-level failure: it carries enough
// to log (Message, Timestamp) and enough to reply on the wire (Token).
type WireError struct {
	Code      Code
	Message   string
	Timestamp time.Time
}

func (e *WireError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Token returns the exact ASCII bytes to send back to the client.
func (e *WireError) Token() []byte {
	if tok, ok := tokens[e.Code]; ok {
		return []byte(tok)
	}
	return []byte("fail")
}

// New creates a WireError for the given code.
func New(code Code, message string) *WireError {
	return &WireError{Code: code, Message: message, Timestamp: time.Now()}
}

// Wrap turns any error into a WireError under the given code, unless it
// already is one.
func Wrap(err error, code Code) *WireError {
	if we, ok := err.(*WireError); ok {
		return we
	}
	return New(code, err.Error())
}

// As reports whether err is a *WireError and returns it.
func As(err error) (*WireError, bool) {
	we, ok := err.(*WireError)
	return we, ok
}
