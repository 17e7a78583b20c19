package llm

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Kind classifies the outcome of an operation.
type Kind int

const (
	OK Kind = iota
	OutOfMemory
	InvalidArgument
	Transport
	Parse
	API
	Stream
	IllegalState
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "ok"
	case OutOfMemory:
		return "out of memory"
	case InvalidArgument:
		return "invalid argument"
	case Transport:
		return "transport error"
	case Parse:
		return "parse error"
	case API:
		return "api error"
	case Stream:
		return "stream error"
	case IllegalState:
		return "illegal state"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// maxErrorMessage is the longest message kept in an ErrorState, in bytes.
const maxErrorMessage = 511

// Error is returned by every failing operation in this package.
type Error struct {
	Kind       Kind
	Message    string
	HTTPStatus int
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Kind, msg, e.HTTPStatus)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind Kind, err error, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	if err != nil {
		msg = msg + ": " + err.Error()
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

// asError returns the *Error in err's chain, wrapping foreign errors as
// transport failures.
func asError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return wrapError(Transport, err, "unexpected failure")
}

// KindOf reports the Kind carried by err. A nil error is OK and an error chain
// without an *Error is treated as a transport failure.
func KindOf(err error) Kind {
	if err == nil {
		return OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Transport
}

// ErrorState is the outcome of the most recent request made on a conversation.
type ErrorState struct {
	Kind       Kind
	Message    string
	HTTPStatus int
}

func (s ErrorState) OK() bool {
	return s.Kind == OK
}

// ClearError resets the error slot to OK.
func (c *Conversation) ClearError() {
	c.lastErr = ErrorState{}
}

// LastError returns the outcome of the most recent request.
func (c *Conversation) LastError() ErrorState {
	return c.lastErr
}

// setError overwrites the error slot with err and returns it unchanged, so
// call sites can record and return in one statement.
func (c *Conversation) setError(err *Error) *Error {
	msg := err.Message
	if msg == "" && err.Err != nil {
		msg = err.Err.Error()
	}
	c.lastErr = ErrorState{
		Kind:       err.Kind,
		Message:    truncateMessage(msg, maxErrorMessage),
		HTTPStatus: err.HTTPStatus,
	}
	Logger().Warn("request failed",
		zap.String("conversation_id", c.id),
		zap.Stringer("kind", err.Kind),
		zap.Int("status", err.HTTPStatus),
		zap.String("message", c.lastErr.Message),
	)
	return err
}

// truncateMessage cuts s to at most n bytes without splitting a rune.
func truncateMessage(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
