package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ayoisaiah/tally/internal/apperr"
	"github.com/ayoisaiah/tally/internal/models"
)

const clientTimeout = 90 * time.Second

var errRemote = &apperr.Error{
	Message: "daemon returned status %d",
}

// Client talks to a running daemon's control server.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient returns a client for the server at addr ("host:port" or a URL).
func NewClient(addr string) *Client {
	base := addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	return &Client{
		baseURL:    strings.TrimSuffix(base, "/"),
		httpClient: &http.Client{Timeout: clientTimeout},
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body bytes.Buffer

	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &body)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("unable to reach the tally daemon: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e errorResponse

		_ = json.NewDecoder(resp.Body).Decode(&e)

		return errRemote.Fmt(resp.StatusCode).Wrap(errors.New(e.Error))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// Pending lists the daemon's pending segments.
func (c *Client) Pending(ctx context.Context) ([]*models.PendingSegment, error) {
	var list []*models.PendingSegment

	if err := c.do(ctx, http.MethodGet, "/pending", nil, &list); err != nil {
		return nil, err
	}

	return list, nil
}

// Confirm registers a pending segment through the daemon.
func (c *Client) Confirm(
	ctx context.Context,
	key, label, project string,
) (models.Outcome, error) {
	var o models.Outcome

	err := c.do(ctx, http.MethodPost, "/pending/confirm", ConfirmRequest{
		Key:     key,
		Label:   label,
		Project: project,
	}, &o)

	return o, err
}

// Dismiss drops a pending segment through the daemon.
func (c *Client) Dismiss(ctx context.Context, key string) (models.Outcome, error) {
	var o models.Outcome

	err := c.do(ctx, http.MethodPost, "/pending/dismiss", ConfirmRequest{Key: key}, &o)

	return o, err
}

// Records lists the registrations that end within [start, end].
func (c *Client) Records(
	ctx context.Context,
	start, end time.Time,
) ([]*models.RegistrationRecord, error) {
	q := url.Values{}
	q.Set("start", start.Format(time.RFC3339Nano))
	q.Set("end", end.Format(time.RFC3339Nano))

	var list []*models.RegistrationRecord

	if err := c.do(ctx, http.MethodGet, "/records?"+q.Encode(), nil, &list); err != nil {
		return nil, err
	}

	return list, nil
}
