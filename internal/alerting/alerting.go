package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Webhook payload formats.
const (
	TypeSlack   = "slack"
	TypeDiscord = "discord"
	TypeGeneric = "generic"
)

// Config holds alerting configuration.
type Config struct {
	// WebhookURL is a Slack, Discord or custom endpoint; empty disables alerts.
	WebhookURL string
	// WebhookType is slack, discord or generic; empty detects it from the URL.
	WebhookType string
	Timeout     time.Duration
}

// DetectType guesses the payload format from the webhook host.
func DetectType(url string) string {
	switch {
	case strings.Contains(url, "slack.com"):
		return TypeSlack
	case strings.Contains(url, "discord.com"):
		return TypeDiscord
	default:
		return TypeGeneric
	}
}

// Alerter sends alerts to configured webhooks.
type Alerter struct {
	cfg    Config
	client *http.Client
	log    zerolog.Logger
}

// NewAlerter creates a new alerter instance.
func NewAlerter(cfg Config, logger zerolog.Logger) *Alerter {
	if cfg.WebhookType == "" {
		cfg.WebhookType = DetectType(cfg.WebhookURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    logger.With().Str("component", "alerting").Logger(),
	}
}

// Enabled reports whether a webhook is configured.
func (a *Alerter) Enabled() bool { return a.cfg.WebhookURL != "" }

// TransitionAlert announces a change of the displayed tariff.
type TransitionAlert struct {
	Schedule string
	From     string
	To       string
	Label    string
	Live     bool
	// NextClock and NextIn describe the following change, when known.
	NextClock string
	NextIn    string
	Price     *float64
	Currency  string
	Timestamp time.Time
}

// JobFailureAlert reports a failed run of a periodic job.
type JobFailureAlert struct {
	JobName   string
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

// SendTransition posts a tariff change to the webhook.
func (a *Alerter) SendTransition(ctx context.Context, alert TransitionAlert) error {
	if !a.Enabled() {
		a.log.Debug().Str("schedule", alert.Schedule).Msg("alerts disabled, skipping transition")
		return nil
	}
	var payload any
	switch a.cfg.WebhookType {
	case TypeSlack:
		payload = slackTransition(alert)
	case TypeDiscord:
		payload = discordTransition(alert)
	default:
		payload = genericTransition(alert)
	}
	if err := a.post(ctx, payload); err != nil {
		return err
	}
	a.log.Info().Str("schedule", alert.Schedule).Str("to", alert.To).Msg("sent transition alert")
	return nil
}

// SendJobFailure posts a job failure to the webhook.
func (a *Alerter) SendJobFailure(ctx context.Context, alert JobFailureAlert) error {
	if !a.Enabled() {
		return nil
	}
	var payload any
	switch a.cfg.WebhookType {
	case TypeSlack:
		payload = map[string]any{
			"text": fmt.Sprintf(":x: Job *%s* failed after %s: %s",
				alert.JobName, alert.Duration.Round(time.Millisecond), alert.Error),
		}
	case TypeDiscord:
		payload = map[string]any{
			"embeds": []map[string]any{{
				"title":       fmt.Sprintf("Job failed: %s", alert.JobName),
				"description": alert.Error,
				"color":       16711680,
				"timestamp":   alert.Timestamp.Format(time.RFC3339),
			}},
		}
	default:
		payload = map[string]any{
			"alert_type":  "job_failure",
			"job_name":    alert.JobName,
			"error":       alert.Error,
			"duration_ms": alert.Duration.Milliseconds(),
			"timestamp":   alert.Timestamp.Format(time.RFC3339),
		}
	}
	if err := a.post(ctx, payload); err != nil {
		return err
	}
	a.log.Warn().Str("job", alert.JobName).Msg("sent job failure alert")
	return nil
}

func (a *Alerter) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("build payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (t TransitionAlert) headline() string {
	src := "planning"
	if t.Live {
		src = "compteur"
	}
	return fmt.Sprintf("%s: %s → %s (%s)", t.Schedule, t.From, t.To, src)
}

func (t TransitionAlert) priceText() string {
	if t.Price == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f %s/kWh", *t.Price, t.Currency)
}

func (t TransitionAlert) nextText() string {
	if t.NextClock == "" {
		return "-"
	}
	return fmt.Sprintf("%s (dans %s)", t.NextClock, t.NextIn)
}

// tierEmoji and tierColor follow the dashboard palette: red for peak, blue
// for off-peak, green for super-off-peak.
func tierEmoji(status string) string {
	switch status {
	case "HC":
		return ":large_blue_circle:"
	case "HSC":
		return ":large_green_circle:"
	default:
		return ":red_circle:"
	}
}

func tierColor(status string) int {
	switch status {
	case "HC":
		return 0x3b82f6
	case "HSC":
		return 0x22c55e
	default:
		return 0xef4444
	}
}

func slackTransition(t TransitionAlert) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			{
				"type": "header",
				"text": map[string]string{
					"type": "plain_text",
					"text": fmt.Sprintf("%s %s", tierEmoji(t.To), t.Label),
				},
			},
			{
				"type": "section",
				"fields": []map[string]string{
					{"type": "mrkdwn", "text": fmt.Sprintf("*Changement:*\n%s", t.headline())},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Prix:*\n%s", t.priceText())},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Prochain:*\n%s", t.nextText())},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Heure:*\n%s", t.Timestamp.Format(time.RFC3339))},
				},
			},
		},
	}
}

func discordTransition(t TransitionAlert) map[string]any {
	return map[string]any{
		"embeds": []map[string]any{{
			"title":       t.Label,
			"description": t.headline(),
			"color":       tierColor(t.To),
			"fields": []map[string]any{
				{"name": "Prix", "value": t.priceText(), "inline": true},
				{"name": "Prochain", "value": t.nextText(), "inline": true},
			},
			"timestamp": t.Timestamp.Format(time.RFC3339),
		}},
	}
}

func genericTransition(t TransitionAlert) map[string]any {
	return map[string]any{
		"alert_type": "tariff_transition",
		"schedule":   t.Schedule,
		"from":       t.From,
		"to":         t.To,
		"label":      t.Label,
		"live":       t.Live,
		"next_clock": t.NextClock,
		"next_in":    t.NextIn,
		"price":      t.Price,
		"currency":   t.Currency,
		"timestamp":  t.Timestamp.Format(time.RFC3339),
	}
}
