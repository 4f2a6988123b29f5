// Package event implements the filesystem mailbox through which external
// tools ask the supervisor to act. A producer writes a JSON payload to a
// well-known file; the supervisor polls the file's mtime, consumes the payload
// and deletes the file.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/loykin/dutywatch/internal/fileutil"
)

// ActionRestart is the only recognized action.
const ActionRestart = "restart"

// DefaultReason is used when a restart payload carries no reason.
const DefaultReason = "event_trigger"

var ErrUnknownAction = errors.New("unknown event action")

// Payload is the mailbox content.
type Payload struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}

func (p Payload) Validate() error {
	if p.Action != ActionRestart {
		return fmt.Errorf("%w %q (supported: %s)", ErrUnknownAction, p.Action, ActionRestart)
	}
	return nil
}

// Write publishes p into the mailbox at path. The file is replaced
// atomically so the supervisor never parses a half-written payload.
func Write(path string, p Payload) error {
	if err := p.Validate(); err != nil {
		return err
	}
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return fileutil.WriteAtomic(path, b, 0o640)
}

// Channel is the consumer side of the mailbox.
// Multiple writes between two polls collapse into one observed change; only
// the content present at poll time is processed.
type Channel struct {
	path   string
	last   time.Time
	logger *slog.Logger
}

func NewChannel(path string, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{path: path, logger: logger}
}

func (c *Channel) Path() string { return c.path }

// Poll returns the pending payload if the mailbox changed since the last
// poll. Unparsable or unsupported payloads are logged and discarded. A
// non-nil error is only returned for stat/read failures, which leave the
// mailbox untouched for the next poll.
func (c *Channel) Poll() (*Payload, error) {
	mt, exists, err := fileutil.ModTime(c.path)
	if err != nil {
		return nil, fmt.Errorf("stat event file: %w", err)
	}
	if !exists || mt.Equal(c.last) {
		return nil, nil
	}
	b, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("read event file: %w", err)
	}
	// After a successful delete any later file is a new write, even one
	// carrying the same mtime; the mtime is only remembered when the delete
	// failed so the same content is not processed twice.
	c.last = time.Time{}
	if !c.discard() {
		c.last = mt
	}

	var p Payload
	if err := json.Unmarshal(b, &p); err != nil {
		c.logger.Warn("discarding unparsable event file", "path", c.path, "error", err)
		return nil, nil
	}
	p.Action = strings.TrimSpace(p.Action)
	if err := p.Validate(); err != nil {
		c.logger.Warn("discarding event", "path", c.path, "error", err)
		return nil, nil
	}
	if strings.TrimSpace(p.Reason) == "" {
		p.Reason = DefaultReason
	}
	c.logger.Info("event received", "action", p.Action, "reason", p.Reason)
	return &p, nil
}

func (c *Channel) discard() bool {
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		c.logger.Warn("failed to remove event file", "path", c.path, "error", err)
		return false
	}
	return true
}
