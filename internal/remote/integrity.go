package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// IntegritySummary is the completed result of one metadata integrity check.
type IntegritySummary struct {
	Name string `json:"name"`
	Code string `json:"code"`

	// Count is kept raw: platforms report it as a number, a numeric string
	// or blank.
	Count json.RawMessage `json:"count"`
}

// CountValue parses Count. ok is false for blank, non-integer or negative
// counts.
func (s IntegritySummary) CountValue() (n int64, ok bool) {
	raw := strings.Trim(string(bytes.TrimSpace(s.Count)), `"`)
	if raw == "" || raw == "null" {
		return 0, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func checksQuery(checks []string) url.Values {
	if len(checks) == 0 {
		return nil
	}
	return url.Values{"checks": {strings.Join(checks, ",")}}
}

// TriggerIntegritySummaries starts the summary run of the named checks.
func (c *Client) TriggerIntegritySummaries(ctx context.Context, checks []string) error {
	if _, err := c.do(ctx, http.MethodPost, "/api/dataIntegrity/summary", checksQuery(checks), nil, nil); err != nil {
		return fmt.Errorf("remote: trigger integrity summaries: %w", err)
	}
	return nil
}

// IntegrityRunning reports whether any integrity summary is still running.
func (c *Client) IntegrityRunning(ctx context.Context) (bool, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, "/api/dataIntegrity/summary/running", nil, &raw); err != nil {
		return false, fmt.Errorf("remote: running integrity summaries: %w", err)
	}
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", "{}", "[]":
		return false, nil
	}
	return true, nil
}

// IntegritySummaries fetches the completed summaries of the named checks,
// keyed by check name.
func (c *Client) IntegritySummaries(ctx context.Context, checks []string) (map[string]IntegritySummary, error) {
	out := make(map[string]IntegritySummary)
	if err := c.getJSON(ctx, "/api/dataIntegrity/summary", checksQuery(checks), &out); err != nil {
		return nil, fmt.Errorf("remote: integrity summaries: %w", err)
	}
	return out, nil
}
