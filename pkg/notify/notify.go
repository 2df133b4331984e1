// Package notify reports finished deployments to a webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout   = 10 * time.Second
	maxErrorBodySize = 4096
)

// ErrUnauthorized indicates the webhook rejected the token.
var ErrUnauthorized = errors.New("deploy notification unauthorized")

// ErrInvalidArgument indicates the webhook rejected the payload.
var ErrInvalidArgument = errors.New("deploy notification invalid argument")

// Emitter posts deploy events to a webhook URL.
type Emitter struct {
	url    string
	token  string
	client *http.Client
	now    func() time.Time
}

// Event describes one finished deployment.
type Event struct {
	Target      string
	Environment string
	Result      map[string]string
	OccurredAt  time.Time
}

// NewEmitter creates an emitter for url. The token, if any, is sent as a
// bearer token.
func NewEmitter(url, token string, client *http.Client) (*Emitter, error) {
	trimmed := strings.TrimSpace(url)
	if trimmed == "" {
		return nil, errors.New("deploy notification url required")
	}
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	} else if client.Timeout == 0 {
		client.Timeout = defaultTimeout
	}
	return &Emitter{
		url:    trimmed,
		token:  strings.TrimSpace(token),
		client: client,
		now:    time.Now,
	}, nil
}

// Emit sends the event.
func (e *Emitter) Emit(ctx context.Context, event Event) error {
	if e == nil {
		return errors.New("deploy notification emitter not initialised")
	}
	if strings.TrimSpace(event.Target) == "" {
		return errors.New("deploy notification requires target")
	}
	body, err := json.Marshal(buildPayload(event, e.now))
	if err != nil {
		return fmt.Errorf("marshal deploy notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build deploy notification: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("send deploy notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return errorForStatus(resp)
	}
	return nil
}

func errorForStatus(resp *http.Response) error {
	buf, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	summary := strings.TrimSpace(string(buf))
	if summary == "" {
		summary = resp.Status
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, summary)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ErrInvalidArgument, summary)
	default:
		return fmt.Errorf("deploy notification failed: %s", summary)
	}
}

func buildPayload(event Event, nowFn func() time.Time) map[string]any {
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = nowFn()
	}
	result := event.Result
	if result == nil {
		result = map[string]string{}
	}
	return map[string]any{
		"target":      strings.TrimSpace(event.Target),
		"environment": strings.TrimSpace(event.Environment),
		"result":      result,
		"occurred_at": occurred.UTC().Format(time.RFC3339Nano),
	}
}
