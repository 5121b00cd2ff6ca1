package game

import "fmt"

// ErrorCode is the stable identifier carried in error frames to clients.
type ErrorCode string

const (
	CodeBadMessage      ErrorCode = "bad_message"
	CodeNotYourTurn     ErrorCode = "not_your_turn"
	CodeOnlyHakem       ErrorCode = "only_hakem_may_choose_trump"
	CodeNotInHand       ErrorCode = "not_in_hand"
	CodeMustFollowSuit  ErrorCode = "must_follow_suit"
	CodeInvalidTrump    ErrorCode = "invalid_trump"
	CodeIllegalPhase    ErrorCode = "illegal_phase"
	CodeRoomFull        ErrorCode = "room_full"
	CodeNotInRoom       ErrorCode = "not_in_room"
	CodeRoomOverloaded  ErrorCode = "room_overloaded"
	CodeRoomAbandoned   ErrorCode = "room_abandoned"
	CodeUnauthenticated ErrorCode = "unauthenticated"
	CodeSessionExpired  ErrorCode = "session_expired"
	CodeServerError     ErrorCode = "server_error"
)

// Error is a rejected action: a rule, turn, phase, or message violation.
// It is reported to the offending player only and leaves state untouched.
type Error struct {
	Code    ErrorCode
	Reason  string
	Phase   Phase // current phase, set for illegal_phase
	LedSuit Suit  // set for must_follow_suit
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

var (
	ErrNotYourTurn     = &Error{Code: CodeNotYourTurn, Reason: "it is not your turn"}
	ErrOnlyHakem       = &Error{Code: CodeOnlyHakem, Reason: "only the hakem may choose trump"}
	ErrNotInHand       = &Error{Code: CodeNotInHand, Reason: "card is not in your hand"}
	ErrInvalidTrump    = &Error{Code: CodeInvalidTrump, Reason: "trump must be one of the four suits"}
	ErrRoomFull        = &Error{Code: CodeRoomFull, Reason: "room already has four players"}
	ErrNotInRoom       = &Error{Code: CodeNotInRoom, Reason: "player is not seated in this room"}
	ErrRoomOverloaded  = &Error{Code: CodeRoomOverloaded, Reason: "room is overloaded, try again"}
	ErrRoomAbandoned   = &Error{Code: CodeRoomAbandoned, Reason: "a player left or never returned, the room is closed"}
	ErrUnauthenticated = &Error{Code: CodeUnauthenticated, Reason: "connection has no valid session"}
	ErrSessionExpired  = &Error{Code: CodeSessionExpired, Reason: "session has expired, join again without a player id"}
)

// IllegalPhaseError reports an action attempted in the wrong phase. The
// current phase rides along so the client can resynchronize.
func IllegalPhaseError(current Phase) *Error {
	return &Error{
		Code:   CodeIllegalPhase,
		Reason: fmt.Sprintf("action not allowed in phase %q", current),
		Phase:  current,
	}
}

// FollowSuitError reports a play that ignored the follow-suit obligation.
func FollowSuitError(led Suit) *Error {
	return &Error{
		Code:    CodeMustFollowSuit,
		Reason:  fmt.Sprintf("you must follow the led suit %q", led),
		LedSuit: led,
	}
}

// BadMessageError reports a malformed or incomplete client message.
func BadMessageError(reason string) *Error {
	return &Error{Code: CodeBadMessage, Reason: reason}
}

// DealError reports a deal that asked for more cards than the deck holds.
type DealError struct {
	Requested int
	Available int
}

func (e *DealError) Error() string {
	return fmt.Sprintf("cannot deal %d cards from a deck of %d", e.Requested, e.Available)
}
