package kernel

import (
	"errors"
	"fmt"
)

// Sentinel errors for the lifecycle and routing refusals an agent or
// coordinator can hit. Callers compare against these with errors.Is
// rather than matching on message text.
var (
	ErrNotRunning  = errors.New("agent not running")
	ErrUnknownCore = errors.New("unknown core index")
)

// WrapError attaches msg as context ahead of err, preserving err for
// errors.Is/errors.As the way %w always does.
func WrapError(err error, msg string) error {
	if err == nil {
		return errors.New(msg)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
