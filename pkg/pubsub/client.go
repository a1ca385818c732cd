// Package pubsub wraps the Pub/Sub v2 client with the topic and subscription
// names from config and verifies at startup that they exist.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/numberpool/pkg/config"
	"github.com/angelmondragon/numberpool/pkg/logger"
)

// Role selects which resources a process depends on.
type Role int

const (
	// RoleOrderConsumer reads order status changes.
	RoleOrderConsumer Role = 1 << iota
	// RoleReservationPublisher emits reservation lifecycle events.
	RoleReservationPublisher
)

type resourceKind string

const (
	kindTopic        resourceKind = "topics"
	kindSubscription resourceKind = "subscriptions"
)

type resource struct {
	kind resourceKind
	name string
}

type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
	required  []resource
}

var errProjectIDRequired = errors.New("gcp project id is required")

// NewClient connects and checks that every resource the role needs exists.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, role Role, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	required, err := requiredResources(cfg, role)
	if err != nil {
		return nil, err
	}

	psClient, err := pubsub.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{client: psClient, projectID: projectID, cfg: cfg, required: required}
	if err := c.Ping(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "pubsub_resources", len(required)), "pubsub client initialized")
	}
	return c, nil
}

// clientOptions prefers inline credentials over a credentials file and falls
// back to application default credentials when neither is set.
func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(gcp.ApplicationCredentials)}
	}
	return nil
}

func requiredResources(cfg config.PubSubConfig, role Role) ([]resource, error) {
	var out []resource
	add := func(kind resourceKind, name, env string) error {
		name = strings.TrimSpace(name)
		if name == "" {
			return fmt.Errorf("%s is required", env)
		}
		out = append(out, resource{kind: kind, name: name})
		return nil
	}
	if role&RoleOrderConsumer != 0 {
		if err := add(kindSubscription, cfg.OrdersSubscription, "NUMBERPOOL_PUBSUB_ORDERS_SUBSCRIPTION"); err != nil {
			return nil, err
		}
	}
	if role&RoleReservationPublisher != 0 {
		if err := add(kindTopic, cfg.ReservationTopic, "NUMBERPOOL_PUBSUB_RESERVATION_TOPIC"); err != nil {
			return nil, err
		}
	}
	if len(out) == 0 {
		return nil, errors.New("pubsub role selects no resources")
	}
	return out, nil
}

// Ping verifies that the role's topics and subscriptions still exist.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	for _, r := range c.required {
		if err := c.exists(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) exists(ctx context.Context, r resource) error {
	full := c.resourceName(r.kind, r.name)
	var err error
	switch r.kind {
	case kindTopic:
		_, err = c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: full})
	case kindSubscription:
		_, err = c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: full})
	}
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("pubsub %s %q does not exist", strings.TrimSuffix(string(r.kind), "s"), r.name)
	}
	return fmt.Errorf("checking pubsub %s: %w", full, err)
}

// Subscription returns a subscriber for an id or full resource name.
func (c *Client) Subscription(name string) *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	full := c.resourceName(kindSubscription, name)
	if full == "" {
		return nil
	}
	return c.client.Subscriber(full)
}

// OrdersSubscription returns the subscriber for order status changes coming from the shop.
func (c *Client) OrdersSubscription() *pubsub.Subscriber {
	if c == nil {
		return nil
	}
	return c.Subscription(c.cfg.OrdersSubscription)
}

// Publisher returns a publisher for a topic id or full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := c.resourceName(kindTopic, name)
	if full == "" {
		return nil
	}
	return c.client.Publisher(full)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// resourceName expands a short id to projects/<project>/<kind>/<id>. Full
// names of the same kind pass through, even for another project.
func (c *Client) resourceName(kind resourceKind, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+string(kind)+"/") {
		return n
	}
	if c.projectID == "" {
		return ""
	}
	return "projects/" + c.projectID + "/" + string(kind) + "/" + n
}
