package orders

import (
	"strconv"
	"sync"
	"time"
)

// msClock hands out unix-millisecond ids that strictly increase within the
// process, so two orders taken in the same millisecond never share an id.
type msClock struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
}

func newMSClock(now func() time.Time) *msClock {
	return &msClock{now: now}
}

func (c *msClock) next() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ms := c.now().UnixMilli()
	if ms <= c.last {
		ms = c.last + 1
	}
	c.last = ms
	return strconv.FormatInt(ms, 10)
}
