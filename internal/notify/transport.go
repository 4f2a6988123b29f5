// Package notify delivers alert text to a private recipient and to a shared
// broadcast destination. Private messages are held during quiet hours and
// queued durably when delivery fails; broadcast messages are best effort.
package notify

import (
	"context"
	"errors"
)

// MaxMessageRunes is the transport ceiling applied to every outbound text.
const MaxMessageRunes = 1900

// ErrNotConfigured is returned by a Transport when the destination or the
// credential for a channel is missing. Such messages are dropped, not queued.
var ErrNotConfigured = errors.New("notification channel not configured")

// Transport performs the network delivery for both channels.
type Transport interface {
	Private(ctx context.Context, text string) error
	Broadcast(ctx context.Context, text string) error
}

// Truncate cuts text to at most MaxMessageRunes runes.
func Truncate(text string) string {
	r := []rune(text)
	if len(r) <= MaxMessageRunes {
		return text
	}
	return string(r[:MaxMessageRunes])
}
