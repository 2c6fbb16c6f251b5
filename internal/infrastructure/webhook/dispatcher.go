package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/tweenim/capauth/internal/domain/models"
	"github.com/tweenim/capauth/internal/domain/service"
	"github.com/tweenim/capauth/pkg/constants"
	"github.com/tweenim/capauth/pkg/logger"
)

const maxAttempts = 3

type dispatcher struct {
	http *http.Client
	log  logger.Logger
	now  func() time.Time
}

// NewDispatcher creates the outbound webhook dispatcher. Delivery is
// best-effort with bounded retries; the caller treats failures as
// non-fatal.
func NewDispatcher(log logger.Logger) service.WebhookDispatcher {
	return &dispatcher{
		http: &http.Client{Timeout: constants.WebhookDispatchTimeout},
		log:  log.WithComponent("webhook_dispatcher"),
		now:  time.Now,
	}
}

type revocationPayload struct {
	Event     string   `json:"event"`
	Subject   string   `json:"subject"`
	ClientID  string   `json:"client_id"`
	Scopes    []string `json:"scopes"`
	RevokedAt int64    `json:"revoked_at"`
	Version   string   `json:"version"`
}

func (d *dispatcher) NotifyRevocation(ctx context.Context, app *models.MiniApp, subject string, scopes []string, revokedAt time.Time) error {
	if app.WebhookURL == "" {
		return nil
	}

	body, err := json.Marshal(revocationPayload{
		Event:     "permissions.revoked",
		Subject:   subject,
		ClientID:  app.AppID,
		Scopes:    scopes,
		RevokedAt: revokedAt.UTC().Unix(),
		Version:   constants.WebhookVersion,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	idempotencyKey := uuid.NewString()
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := d.deliver(ctx, app, body, idempotencyKey); err != nil {
			lastErr = err
			d.log.Warn(ctx, "webhook delivery failed", logger.Fields{
				"app":     app.AppID,
				"attempt": attempt,
				"error":   err.Error(),
			})
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("webhook delivery to %s failed after %d attempts: %w", app.AppID, maxAttempts, lastErr)
}

// deliver sends one signed attempt. Every retry reuses the idempotency key
// so the receiver can deduplicate.
func (d *dispatcher) deliver(ctx context.Context, app *models.MiniApp, body []byte, idempotencyKey string) error {
	timestamp := d.now().Unix()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, app.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(constants.WebhookTimestampHeader, strconv.FormatInt(timestamp, 10))
	req.Header.Set(constants.WebhookSignatureHeader, Sign(app.WebhookSecret, timestamp, body))
	req.Header.Set(constants.WebhookIdempotencyHeader, idempotencyKey)

	resp, err := d.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("receiver returned %d", resp.StatusCode)
	}
	return nil
}
