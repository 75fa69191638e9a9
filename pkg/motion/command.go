package motion

import (
	"sync"
	"time"

	"github.com/teslashibe/go-embody/pkg/pose"
)

// Command holds an externally supplied target pose. It overrides every
// axis it sets; unset axes stay with the additive layers. A command
// may carry a hold duration, after which its axes release and decay
// back to the blended baseline.
type Command struct {
	mu     sync.Mutex
	target pose.Pose
	until  time.Time // zero means hold until Clear
}

// NewCommand creates an empty command source.
func NewCommand() *Command {
	return &Command{}
}

// Kind returns KindCommand.
func (c *Command) Kind() Kind {
	return KindCommand
}

// Set installs a target pose. A non-positive hold keeps the target
// until Clear.
func (c *Command) Set(p pose.Pose, hold time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = p
	if hold > 0 {
		c.until = time.Now().Add(hold)
	} else {
		c.until = time.Time{}
	}
}

// Clear releases the command target.
func (c *Command) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = pose.Pose{}
	c.until = time.Time{}
}

// Active reports whether a target is currently held.
func (c *Command) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.expiredLocked(time.Now()) && !c.target.IsZero()
}

// Sample returns the held target, or nothing once expired.
func (c *Command) Sample(now time.Time) pose.Pose {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.expiredLocked(now) {
		c.target = pose.Pose{}
		c.until = time.Time{}
	}
	return c.target
}

func (c *Command) expiredLocked(now time.Time) bool {
	return !c.until.IsZero() && now.After(c.until)
}
