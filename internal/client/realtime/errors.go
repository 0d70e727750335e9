package realtime

import (
	"errors"
	"fmt"
)

// ErrChannel matches every subscription failure (see ChannelError)
var ErrChannel = errors.New("channel error")

// ChannelError reports that a feed or presence channel stopped delivering.
// It is passed to OnError; no further events arrive on that channel.
type ChannelError struct {
	Err     error
	Channel string
	Reason  string
}

func (e *ChannelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("channel %s: %s: %v", e.Channel, e.Reason, e.Err)
	}
	return fmt.Sprintf("channel %s: %s", e.Channel, e.Reason)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// Is reports ErrChannel as a match.
func (e *ChannelError) Is(target error) bool { return target == ErrChannel }
