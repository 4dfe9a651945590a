package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

var (
	// ErrStatus is returned when the hub answers with a non-2xx status.
	ErrStatus = errors.New("unexpected status")
	// ErrEmptyBody is returned when a 2xx body decodes to JSON null.
	ErrEmptyBody = errors.New("empty response body")
)

// Source is what the dashboard needs from the hub.
type Source interface {
	Sensors(ctx context.Context) ([]Sensor, error)
	Live(ctx context.Context) (map[string]ReadingPoint, error)
	History(ctx context.Context, id string) ([]ReadingPoint, error)
}

// Client talks to the hub over HTTP.
type Client struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewClient creates a hub client. Failed requests are not retried; the next
// poll cycle is the retry.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: client,
		logger:     logger,
	}
}

// Sensors fetches the sensor list.
func (c *Client) Sensors(ctx context.Context) ([]Sensor, error) {
	var sensors []Sensor
	if err := c.get(ctx, "/api/sensors", nil, &sensors); err != nil {
		return nil, err
	}
	if sensors == nil {
		return nil, fmt.Errorf("get /api/sensors: %w", ErrEmptyBody)
	}
	return sensors, nil
}

// Live fetches the latest reading per sensor. Sensors without a reading
// (missing or null entries) are left out of the map.
func (c *Client) Live(ctx context.Context) (map[string]ReadingPoint, error) {
	var raw map[string]*ReadingPoint
	if err := c.get(ctx, "/api/live", nil, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("get /api/live: %w", ErrEmptyBody)
	}
	live := make(map[string]ReadingPoint, len(raw))
	for id, p := range raw {
		if p != nil {
			live[id] = *p
		}
	}
	return live, nil
}

// History fetches the rolling history of one sensor, oldest first.
func (c *Client) History(ctx context.Context, id string) ([]ReadingPoint, error) {
	var points []ReadingPoint
	if err := c.get(ctx, "/api/history/{id}", map[string]string{"id": id}, &points); err != nil {
		return nil, err
	}
	if points == nil {
		return nil, fmt.Errorf("get /api/history/%s: %w", id, ErrEmptyBody)
	}
	return points, nil
}

// get decodes a 2xx body into out. The body is always decoded as JSON
// whatever Content-Type the hub sends, so an HTML error page is an error.
func (c *Client) get(ctx context.Context, path string, params map[string]string, out any) error {
	req := c.httpClient.R().
		SetContext(ctx).
		SetResult(out).
		ForceContentType("application/json")
	if params != nil {
		req.SetPathParams(params)
	}

	resp, err := req.Get(path)
	if err != nil {
		c.logger.Debug("hub request failed",
			zap.String("path", path),
			zap.Error(err),
		)
		return fmt.Errorf("get %s: %w", path, err)
	}
	if resp.IsError() {
		c.logger.Debug("hub returned error status",
			zap.String("path", path),
			zap.Int("status_code", resp.StatusCode()),
		)
		return fmt.Errorf("get %s: %w: %d", path, ErrStatus, resp.StatusCode())
	}
	return nil
}
