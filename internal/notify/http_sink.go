package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// HTTPSink posts events to the analytics service and then to the user-service stats webhook.
type HTTPSink struct {
	analyticsURL string
	userURL      string
	client       *http.Client
}

// NewHTTPSink builds a sink. Either URL may be empty to skip that collaborator.
func NewHTTPSink(analyticsURL, userServiceURL string, client *http.Client) *HTTPSink {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSink{
		analyticsURL: strings.TrimRight(analyticsURL, "/"),
		userURL:      strings.TrimRight(userServiceURL, "/"),
		client:       client,
	}
}

func (s *HTTPSink) Name() string { return "http" }

type analyticsEvent struct {
	EventType         string         `json:"eventType"`
	UserID            string         `json:"userId,omitempty"`
	RelatedEntityType string         `json:"relatedEntityType"`
	RelatedEntityID   string         `json:"relatedEntityId"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

type statsUpdate struct {
	UserID    string         `json:"userId"`
	EventType string         `json:"eventType"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (s *HTTPSink) Deliver(ctx context.Context, e Event) error {
	meta := withSession(e)
	if s.analyticsURL != "" {
		err := s.post(ctx, s.analyticsURL+"/events", analyticsEvent{
			EventType:         e.Type,
			UserID:            e.UserID,
			RelatedEntityType: "game",
			RelatedEntityID:   e.SessionID,
			Metadata:          meta,
		})
		if err != nil {
			return err
		}
	}
	// the stats webhook rejects anonymous events
	if s.userURL == "" || e.UserID == "" {
		return nil
	}
	return s.post(ctx, s.userURL+"/webhook/update-stats", statsUpdate{
		UserID:    e.UserID,
		EventType: e.Type,
		Metadata:  meta,
	})
}

func (s *HTTPSink) post(ctx context.Context, url string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request %s: %w", url, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("post %s: unexpected status %d", url, resp.StatusCode)
	}
	return nil
}

func withSession(e Event) map[string]any {
	meta := make(map[string]any, len(e.Metadata)+2)
	for k, v := range e.Metadata {
		meta[k] = v
	}
	meta["sessionCode"] = e.SessionCode
	meta["occurredAt"] = e.OccurredAt
	return meta
}
