package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/dqworkbench/dqsync/internal/config"
	"github.com/dqworkbench/dqsync/pkg/types"
)

// Notifier delivers run summaries to the configured webhooks.
type Notifier struct {
	cfg    config.NotifyConfig
	client *http.Client
}

// New returns a Notifier for cfg.
func New(cfg config.NotifyConfig) *Notifier {
	return &Notifier{cfg: cfg, client: &http.Client{Timeout: 10 * time.Second}}
}

// Record sends s to every webhook, unless notifications are limited to
// failures and s succeeded. Delivery errors are logged and returned together.
func (n *Notifier) Record(ctx context.Context, s types.RunSummary) error {
	if n.cfg.On != "always" && s.Succeeded() {
		return nil
	}

	var result *multierror.Error
	for _, wh := range n.cfg.Webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		var err error
		switch wh.Type {
		case "slack":
			err = n.sendSlack(ctx, url, s)
		case "teams":
			err = n.sendTeams(ctx, url, s)
		case "http":
			err = n.sendHTTP(ctx, url, s)
		default:
			slog.Warn("notify: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		if err != nil {
			slog.Error("notify: webhook delivery failed", "type", wh.Type, "run_id", s.ID, "err", err)
			result = multierror.Append(result, fmt.Errorf("notify: %s: %w", wh.Type, err))
		} else {
			slog.Debug("notify: webhook delivered", "type", wh.Type, "run_id", s.ID)
		}
	}
	return result.ErrorOrNil()
}

func headline(s types.RunSummary) string {
	if s.Succeeded() {
		return fmt.Sprintf("dqsync run %s succeeded in %s", s.ID, s.Duration().Round(time.Second))
	}
	return fmt.Sprintf("dqsync run %s failed: %s", s.ID, s.FirstError)
}

func details(s types.RunSummary) string {
	c := s.Counters
	return fmt.Sprintf("valid=%d missing=%d errors=%d fallbacks=%d invalid=%d imputed=%d imported=%d ignored=%d deleted=%d",
		c.Valid, c.Missing, c.Errors, c.Fallbacks, c.Invalid, c.Imputed, c.Imported, c.Ignored, c.Deleted)
}

func (n *Notifier) sendSlack(ctx context.Context, url string, s types.RunSummary) error {
	label := "[OK]"
	if !s.Succeeded() {
		label = "[FAILED]"
	}
	body, _ := json.Marshal(map[string]string{
		"text": fmt.Sprintf("*%s* %s\n%s", label, headline(s), details(s)),
	})
	return n.post(ctx, url, body)
}

func (n *Notifier) sendTeams(ctx context.Context, url string, s types.RunSummary) error {
	color := "2EB67D"
	if !s.Succeeded() {
		color = "FF4F6A"
	}
	body, _ := json.Marshal(map[string]any{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": color,
		"summary":    headline(s),
		"title":      headline(s),
		"text":       details(s),
	})
	return n.post(ctx, url, body)
}

func (n *Notifier) sendHTTP(ctx context.Context, url string, s types.RunSummary) error {
	body, _ := json.Marshal(map[string]any{"run": s})
	return n.post(ctx, url, body)
}

func (n *Notifier) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}
