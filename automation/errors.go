package automation

import (
	"errors"
	"fmt"
)

// ErrNotFound means no account or rule applies to an event; the event is dropped
var ErrNotFound = errors.New("automation: not found")

// SendError is a failed outbound call. The flow state for the rule is left unadvanced.
type SendError struct {
	RuleID uint
	Action string
	Err    error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send %s for rule %d: %v", e.Action, e.RuleID, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}
