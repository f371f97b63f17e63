package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/barter-backend/pkg/config"
	"github.com/angelmondragon/barter-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errTopicRequired     = errors.New("pubsub trade events topic is required")
	errNotReady          = errors.New("pubsub client not initialized")
)

// Client is the outbox publisher's handle on Pub/Sub. Trade, item and
// friendship events all ship on one topic.
type Client struct {
	gcp     *pubsub.Client
	project string
	topic   string
}

// NewClient refuses to start unless the trade events topic already exists.
// Topics are provisioned out of band.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errProjectIDRequired
	}
	raw, err := pubsub.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{gcp: raw, project: project, topic: cfg.TradeEventsTopic}
	if err := c.checkTopic(ctx, c.topic); err != nil {
		_ = raw.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"project": project, "topic": c.topic}), "pubsub ready")
	}
	return c, nil
}

func (c *Client) checkTopic(ctx context.Context, name string) error {
	resource := TopicResourceName(c.project, name)
	if resource == "" {
		return errTopicRequired
	}
	_, err := c.gcp.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: resource})
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("topic %q does not exist", name)
	default:
		return fmt.Errorf("checking topic %q: %w", name, err)
	}
}

// Publisher returns nil for a nil client or a name that cannot be resolved.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.gcp == nil {
		return nil
	}
	resource := TopicResourceName(c.project, name)
	if resource == "" {
		return nil
	}
	return c.gcp.Publisher(resource)
}

func (c *Client) TradeEventsPublisher() *pubsub.Publisher {
	if c == nil {
		return nil
	}
	return c.Publisher(c.topic)
}

// Ping is the publisher's readiness check: the topic must still exist.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.gcp == nil {
		return errNotReady
	}
	return c.checkTopic(ctx, c.topic)
}

func (c *Client) Close() error {
	if c == nil || c.gcp == nil {
		return nil
	}
	return c.gcp.Close()
}

// TopicResourceName turns a topic id into projects/<p>/topics/<id>. Full
// resource names pass through; a blank id or project yields "".
func TopicResourceName(projectID, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/topics/") {
		return name
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return ""
	}
	return "projects/" + projectID + "/topics/" + name
}
