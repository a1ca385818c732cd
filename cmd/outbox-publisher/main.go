package main

import (
	"github.com/angelmondragon/numberpool/internal/bootstrap"
	"github.com/angelmondragon/numberpool/pkg/outbox"
	"github.com/angelmondragon/numberpool/pkg/outbox/registry"
	"github.com/angelmondragon/numberpool/pkg/pubsub"
)

func main() {
	proc := bootstrap.Start("outbox-publisher")
	defer proc.Close()
	proc.AutoMigrate()

	cfg, logg := proc.Config, proc.Logger
	pubsubClient, err := pubsub.NewClient(proc.Context(), cfg.GCP, cfg.PubSub, pubsub.RoleReservationPublisher, logg)
	proc.Must("pubsub", err)
	proc.OnClose("pubsub", pubsubClient.Close)

	events, err := registry.NewEventRegistry(cfg.PubSub)
	proc.Must("event registry", err)

	conn := proc.DB.DB()
	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            proc.DB,
		PubSub:        pubsubClient,
		Repository:    outbox.NewRepository(conn),
		Registry:      events,
		DLQRepository: outbox.NewDLQRepository(conn),
	})
	proc.Must("outbox publisher", err)

	proc.Run(service.Run)
}
