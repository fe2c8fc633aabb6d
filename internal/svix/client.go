package svix

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/ledgerline/ledgerline/internal/config"
	ierr "github.com/ledgerline/ledgerline/internal/errors"
	svix "github.com/svix/svix-webhooks/go"
	"github.com/svix/svix-webhooks/go/models"
)

// Client delivers payment receipts to the client-facing webhook portal
type Client struct {
	client  *svix.Svix
	appID   string
	enabled bool
}

// NewClient creates a new Svix client. A disabled client accepts every send
// and does nothing.
func NewClient(cfg *config.Configuration) (*Client, error) {
	if !cfg.Notifications.Svix.Enabled {
		return &Client{enabled: false}, nil
	}

	opts := &svix.SvixOptions{}
	if cfg.Notifications.Svix.BaseURL != "" {
		serverURL, err := url.Parse(cfg.Notifications.Svix.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL: %w", err)
		}
		opts.ServerUrl = serverURL
	}

	svixClient, err := svix.New(cfg.Notifications.Svix.AuthToken, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create svix client: %w", err)
	}

	return &Client{
		client:  svixClient,
		appID:   cfg.Notifications.Svix.AppID,
		enabled: true,
	}, nil
}

func (c *Client) Enabled() bool {
	return c != nil && c.enabled && c.client != nil
}

// EnsureApplication gets or creates the application receipts are sent to
func (c *Client) EnsureApplication(ctx context.Context) (string, error) {
	if !c.Enabled() {
		return "", nil
	}

	if _, err := c.client.Application.Get(ctx, c.appID); err == nil {
		return c.appID, nil
	}

	app, err := c.client.Application.Create(ctx, models.ApplicationIn{
		Name: c.appID,
		Uid:  &c.appID,
	}, &svix.ApplicationCreateOptions{})
	if err != nil {
		return "", ierr.WithError(err).
			WithHint("Could not create the notification application").
			Mark(ierr.ErrExternalService)
	}

	return app.Id, nil
}

// SendMessage sends one event. eventID deduplicates redeliveries of the same
// payment fact on the svix side.
func (c *Client) SendMessage(ctx context.Context, eventType, eventID string, payload interface{}) error {
	if !c.Enabled() {
		return nil
	}

	payloadMap, err := toPayloadMap(payload)
	if err != nil {
		return err
	}

	in := models.MessageIn{
		EventType: eventType,
		Payload:   payloadMap,
	}
	if eventID != "" {
		in.EventId = &eventID
	}

	if _, err := c.client.Message.Create(ctx, c.appID, in, &svix.MessageCreateOptions{}); err != nil {
		return ierr.WithError(err).
			WithHint("Could not deliver the receipt notification").
			WithReportableDetails(map[string]any{"event_type": eventType}).
			Mark(ierr.ErrExternalService)
	}

	return nil
}

func toPayloadMap(payload interface{}) (map[string]interface{}, error) {
	var payloadMap map[string]interface{}

	switch p := payload.(type) {
	case map[string]interface{}:
		return p, nil
	case json.RawMessage:
		if err := json.Unmarshal(p, &payloadMap); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
	case []byte:
		if err := json.Unmarshal(p, &payloadMap); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		if err := json.Unmarshal(data, &payloadMap); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
	}

	return payloadMap, nil
}
