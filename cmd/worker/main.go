package main

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/numberpool/internal/bootstrap"
	"github.com/angelmondragon/numberpool/internal/orders"
	"github.com/angelmondragon/numberpool/pkg/enums"
	"github.com/angelmondragon/numberpool/pkg/outbox/idempotency"
	"github.com/angelmondragon/numberpool/pkg/outbox/payloads"
	"github.com/angelmondragon/numberpool/pkg/outbox/registry"
	"github.com/angelmondragon/numberpool/pkg/pubsub"
)

func main() {
	proc := bootstrap.Start("worker")
	defer proc.Close()

	cfg, logg := proc.Config, proc.Logger
	redisClient := proc.Redis()

	pubsubClient, err := pubsub.NewClient(proc.Context(), cfg.GCP, cfg.PubSub, pubsub.RoleOrderConsumer, logg)
	proc.Must("pubsub", err)
	proc.OnClose("pubsub", pubsubClient.Close)

	domain, err := bootstrap.NewDomain(bootstrap.Params{
		Config:     cfg,
		Logger:     logg,
		DB:         proc.DB.DB(),
		Tx:         proc.DB,
		Redis:      redisClient,
		Registerer: prometheus.DefaultRegisterer,
	})
	proc.Must("reservation domain", err)

	subscription := pubsubClient.OrdersSubscription()
	if subscription == nil {
		proc.Must("orders subscription", errors.New("subscription not configured"))
	}

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	proc.Must("idempotency manager", err)
	manager = manager.WithLease(cfg.Eventing.ConsumerLeaseTTL)

	decoders := registry.NewDecoderRegistry()
	registry.RegisterJSON[payloads.OrderStatusChangedEvent](decoders, enums.EventOrderStatusChanged, 1)

	consumer, err := orders.NewConsumer(domain.Orders, subscription, manager, decoders, logg)
	proc.Must("order consumer", err)

	service, err := NewService(ServiceParams{
		Logger: logg,
		Dependencies: map[string]pinger{
			"database": proc.DB.Ping,
			"redis":    redisClient.Ping,
			"pubsub":   pubsubClient.Ping,
		},
		Consumer: consumer,
	})
	proc.Must("worker service", err)

	proc.Run(service.Run)
}
