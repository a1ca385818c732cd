// Package notices collects shopper-facing messages raised while a request is
// served. Components never render them; the HTTP layer returns them with the
// response.
package notices

import (
	"context"
	"fmt"
	"sync"

	"github.com/angelmondragon/numberpool/pkg/enums"
)

type Notice struct {
	Message  string               `json:"message"`
	Severity enums.NoticeSeverity `json:"severity"`
}

// Collector is safe for concurrent use. A nil collector drops everything.
type Collector struct {
	mu    sync.Mutex
	items []Notice
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Add(severity enums.NoticeSeverity, message string) {
	if c == nil || message == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.items {
		if existing.Message == message && existing.Severity == severity {
			return
		}
	}
	c.items = append(c.items, Notice{Message: message, Severity: severity})
}

func (c *Collector) Successf(format string, args ...any) {
	c.Add(enums.NoticeSuccess, fmt.Sprintf(format, args...))
}

func (c *Collector) Infof(format string, args ...any) {
	c.Add(enums.NoticeInfo, fmt.Sprintf(format, args...))
}

func (c *Collector) Errorf(format string, args ...any) {
	c.Add(enums.NoticeError, fmt.Sprintf(format, args...))
}

// Drain returns the collected notices and clears the collector.
func (c *Collector) Drain() []Notice {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	items := c.items
	c.items = nil
	return items
}

type ctxKey struct{}

func WithCollector(ctx context.Context, c *Collector) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromContext returns the request's collector, or nil when none is attached.
func FromContext(ctx context.Context) *Collector {
	if ctx == nil {
		return nil
	}
	c, _ := ctx.Value(ctxKey{}).(*Collector)
	return c
}
