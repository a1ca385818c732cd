package events

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/angelmondragon/numberpool/pkg/logger"
)

type (
	OrderStatusHandler  func(ctx context.Context, event OrderStatusChanged) error
	CartLineHandler     func(ctx context.Context, event CartLineChanged) error
	TimerExpiredHandler func(ctx context.Context, event TimerExpired) error
)

// Bus fans events out to every subscriber. All handlers run even when one
// fails; their errors are combined.
type Bus struct {
	mu     sync.RWMutex
	orders []OrderStatusHandler
	lines  []CartLineHandler
	timers []TimerExpiredHandler
	logg   *logger.Logger
}

func NewBus(logg *logger.Logger) *Bus {
	return &Bus{logg: logg}
}

func (b *Bus) OnOrderStatusChanged(h OrderStatusHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders = append(b.orders, h)
}

func (b *Bus) OnCartLineChanged(h CartLineHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, h)
}

func (b *Bus) OnTimerExpired(h TimerExpiredHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timers = append(b.timers, h)
}

func (b *Bus) PublishOrderStatusChanged(ctx context.Context, event OrderStatusChanged) error {
	b.mu.RLock()
	handlers := append([]OrderStatusHandler(nil), b.orders...)
	b.mu.RUnlock()

	var errs error
	for _, h := range handlers {
		errs = multierr.Append(errs, b.call(ctx, KindOrderStatusChanged, func() error { return h(ctx, event) }))
	}
	return errs
}

func (b *Bus) PublishCartLineChanged(ctx context.Context, event CartLineChanged) error {
	b.mu.RLock()
	handlers := append([]CartLineHandler(nil), b.lines...)
	b.mu.RUnlock()

	var errs error
	for _, h := range handlers {
		errs = multierr.Append(errs, b.call(ctx, KindCartLineChanged, func() error { return h(ctx, event) }))
	}
	return errs
}

func (b *Bus) PublishTimerExpired(ctx context.Context, event TimerExpired) error {
	b.mu.RLock()
	handlers := append([]TimerExpiredHandler(nil), b.timers...)
	b.mu.RUnlock()

	var errs error
	for _, h := range handlers {
		errs = multierr.Append(errs, b.call(ctx, KindTimerExpired, func() error { return h(ctx, event) }))
	}
	return errs
}

func (b *Bus) call(ctx context.Context, kind Kind, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s handler panic: %v", kind, r)
		}
		if err != nil && b.logg != nil {
			b.logg.Error(b.logg.WithField(ctx, "event_kind", string(kind)), "event handler failed", err)
		}
	}()
	return fn()
}
