// Package teclient implements C2: a signed, retrying HTTP client for the
// Ticket Evolution listings/events API. One method per upstream call
// builds and signs a request, decodes the JSON response, and retries
// transient failures on a fixed 1s/2s/4s backoff schedule before giving
// up.
package teclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/Nick-Wu5/HistoricalTicketData/internal/config"
	"github.com/Nick-Wu5/HistoricalTicketData/internal/httpclient"
	"github.com/Nick-Wu5/HistoricalTicketData/internal/signer"
	"github.com/Nick-Wu5/HistoricalTicketData/internal/teerr"

	"github.com/sirupsen/logrus"
)

// backoffSchedule is spec §4.2's fixed exponential backoff.
var backoffSchedule = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// Client is a signed, retrying TE API client.
type Client struct {
	baseURL     string
	hostname    string
	versionPath string
	token       string
	secret      string
	httpClient  *http.Client
	maxRetries  int
	logger      *logrus.Logger
}

// New builds a Client from configuration.
func New(cfg config.TEConfig, maxRetries int, logger *logrus.Logger) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("te: invalid base url %q: %w", cfg.BaseURL, err)
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		hostname:    u.Host,
		versionPath: strings.TrimRight(u.Path, "/"),
		token:       cfg.Token,
		secret:      cfg.Secret,
		httpClient:  httpclient.New(cfg, logger),
		maxRetries:  maxRetries,
		logger:      logger,
	}, nil
}

// Listings calls GET /listings?event_id=<id>&type=event and returns the
// raw ticket_groups/listings array for the aggregator to normalize.
func (c *Client) Listings(ctx context.Context, teEventID int64) ([]Listing, error) {
	params := map[string]string{
		"event_id": fmt.Sprintf("%d", teEventID),
		"type":     "event",
	}
	var payload listingsPayload
	if err := c.getJSON(ctx, "/listings", params, &payload); err != nil {
		return nil, err
	}
	if len(payload.TicketGroups) > 0 {
		return payload.TicketGroups, nil
	}
	return payload.Listings, nil
}

// Event calls GET /events/<id> and returns the upstream event payload.
func (c *Client) Event(ctx context.Context, teEventID int64) (*EventPayload, error) {
	var ev EventPayload
	path := fmt.Sprintf("/events/%d", teEventID)
	if err := c.getJSON(ctx, path, nil, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// EventsByPerformer pages through GET /events?performer_id=<id> for bulk
// discovery (§6, §10's eventctl discover).
func (c *Client) EventsByPerformer(ctx context.Context, performerID int64, page, perPage int) ([]EventPayload, error) {
	params := map[string]string{
		"performer_id": fmt.Sprintf("%d", performerID),
		"page":         fmt.Sprintf("%d", page),
		"per_page":     fmt.Sprintf("%d", perPage),
	}
	var payload eventsListPayload
	if err := c.getJSON(ctx, "/events", params, &payload); err != nil {
		return nil, err
	}
	return payload.Events, nil
}

// getJSON performs a signed GET with retry/backoff and decodes the JSON
// body into out. params may be nil.
func (c *Client) getJSON(ctx context.Context, path string, params map[string]string, out interface{}) error {
	if params == nil {
		params = map[string]string{}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return teerr.Transport(ctx.Err())
			case <-time.After(backoffDelay(attempt)):
			}
		}

		status, body, err := c.doRequest(ctx, path, params)
		if err != nil {
			lastErr = teerr.Transport(err)
			continue
		}

		if status >= 200 && status < 300 {
			if err := json.Unmarshal(body, out); err != nil {
				return teerr.Decode(err)
			}
			return nil
		}

		if !teerr.IsTransientStatus(status) {
			return teerr.PermanentHTTP(status, fmt.Errorf("unexpected status %d", status))
		}

		lastErr = fmt.Errorf("transient status %d", status)
		c.logger.WithFields(logrus.Fields{"path": path, "status": status, "attempt": attempt}).
			Warn("te: transient failure, will retry")
	}

	return teerr.RetryExhausted(lastErr)
}

// backoffDelay returns the delay before the given attempt number
// (1-indexed retry, not the initial try), clamped to the last entry of
// the fixed schedule for any attempt beyond it.
func backoffDelay(attempt int) time.Duration {
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(backoffSchedule) {
		idx = len(backoffSchedule) - 1
	}
	return backoffSchedule[idx]
}

func (c *Client) doRequest(ctx context.Context, path string, params map[string]string) (int, []byte, error) {
	// The signed path must match the path actually requested below
	// (baseURL, which already carries the API version prefix, plus
	// path) or TE rejects the signature with a 401.
	sig := signer.Sign(c.secret, http.MethodGet, c.hostname, c.versionPath+path, params)

	u := c.baseURL + path
	if len(params) > 0 {
		q := url.Values{}
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			q.Set(k, params[k])
		}
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("X-Token", c.token)
	req.Header.Set("X-Signature", sig)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := readAll(resp)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}
