package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/numberpool/pkg/logger"
)

const (
	heartbeatInterval = 30 * time.Second
	pingTimeout       = 5 * time.Second
)

type pinger func(context.Context) error

type runner interface {
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Logger       *logger.Logger
	Dependencies map[string]pinger
	Consumer     runner
}

// Service refuses to start the order consumer until every dependency
// answers, then supervises it until ctx ends.
type Service struct {
	logg     *logger.Logger
	deps     map[string]pinger
	consumer runner
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.Consumer == nil:
		return nil, errors.New("order consumer is required")
	}
	return &Service{logg: params.Logger, deps: params.Dependencies, consumer: params.Consumer}, nil
}

// checkDependencies pings every dependency and reports all failures at once.
func (s *Service) checkDependencies(ctx context.Context) error {
	names := make([]string, 0, len(s.deps))
	for name := range s.deps {
		names = append(names, name)
	}
	slices.Sort(names)

	var errs error
	for _, name := range names {
		ping := s.deps[name]
		if ping == nil {
			continue
		}
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := ping(pingCtx)
		cancel()
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errs
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.checkDependencies(ctx); err != nil {
		s.logg.Error(ctx, "worker dependencies not ready", err)
		return err
	}
	s.logg.Info(ctx, "worker dependencies ready")

	done := make(chan error, 1)
	go func() { done <- s.consumer.Run(ctx) }()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	started := time.Now()
	for {
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logg.Error(ctx, "order consumer stopped", err)
			}
			return err
		case <-ctx.Done():
			return ctx.Err()
		case <-heartbeat.C:
			s.logg.Debug(s.logg.WithField(ctx, "uptime", time.Since(started).Round(time.Second).String()), "worker heartbeat")
		}
	}
}
