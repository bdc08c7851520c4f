package transport

import (
	"context"
	"errors"
)

// ErrChannelGone reports that the configured announce channel cannot be
// resolved. Callers treat this as fatal: the bot exists to report
// results, and with no channel every cycle's output would be dropped
// silently.
var ErrChannelGone = errors.New("announce channel cannot be resolved")

// Sink delivers announcement messages to the configured chat channel.
type Sink interface {
	Announce(ctx context.Context, text string) error
}
