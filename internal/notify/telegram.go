package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"noisewatch/internal/config"
	"noisewatch/internal/logger"
	"noisewatch/internal/metrics"
	"noisewatch/internal/models"
)

// Dispatcher errors
var (
	ErrDispatchFailed = errors.New("notification dispatch failed")
)

// TelegramDispatcher sends alerts to a fixed chat through the bot
// sendMessage API. Success is an HTTP 200 from the API; anything else
// is a failure the caller must handle.
type TelegramDispatcher struct {
	cfg    config.TelegramConfig
	client *http.Client
}

// sendMessageRequest is the sendMessage JSON body.
type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// NewTelegramDispatcher creates a dispatcher from config. Missing
// credentials are allowed; Dispatch reports ErrNotConfigured.
func NewTelegramDispatcher(cfg config.TelegramConfig) *TelegramDispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TelegramDispatcher{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// Dispatch sends the escalation alert message.
func (d *TelegramDispatcher) Dispatch(ctx context.Context, deviceID string, m *models.Measurement, advisory string) error {
	text := fmt.Sprintf(
		"🚨 *RISK ALERT: %s* 🚨\n\n🔊 *Noise level:* %s\n📈 *Vibration level:* %s\n\n*Recommendation:*\n%s 🎧",
		deviceID, m.NoiseLevel, m.Vibration, advisory,
	)
	return d.send(ctx, deviceID, text)
}

// DispatchAllClear sends the optional stand-down message.
func (d *TelegramDispatcher) DispatchAllClear(ctx context.Context, deviceID string) error {
	text := fmt.Sprintf(
		"✅ *ALL CLEAR: %s*\n\nNoise levels have stayed safe. Alert state has been reset.",
		deviceID,
	)
	return d.send(ctx, deviceID, text)
}

func (d *TelegramDispatcher) send(ctx context.Context, deviceID, text string) error {
	log := logger.WithComponent("telegram").With().Str("device_id", deviceID).Logger()

	if d.cfg.BotToken == "" || d.cfg.ChatID == "" {
		log.Error().Msg("bot token or chat ID not configured, skipping dispatch")
		metrics.DispatchTotal.WithLabelValues("unconfigured").Inc()
		return ErrNotConfigured
	}

	body, err := json.Marshal(sendMessageRequest{
		ChatID:    d.cfg.ChatID,
		Text:      text,
		ParseMode: "Markdown",
	})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", d.cfg.BaseURL, d.cfg.BotToken)

	start := time.Now()
	err = d.sendWithRetry(ctx, url, body)
	duration := time.Since(start)

	metrics.DispatchDuration.Observe(duration.Seconds())

	if err != nil {
		log.Error().Err(err).Dur("duration", duration).Msg("alert dispatch failed")
		metrics.DispatchTotal.WithLabelValues("failed").Inc()
		return err
	}

	log.Info().Dur("duration", duration).Msg("alert dispatched")
	metrics.DispatchTotal.WithLabelValues("success").Inc()
	return nil
}

// sendWithRetry posts the message with exponential backoff retry.
func (d *TelegramDispatcher) sendWithRetry(ctx context.Context, url string, body []byte) error {
	log := logger.WithComponent("telegram")
	var lastErr error
	backoff := d.cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	for attempt := 0; attempt <= d.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("retrying alert dispatch")

			metrics.DispatchRetries.Inc()

			select {
			case <-time.After(backoff):
				backoff *= 2 // Exponential backoff
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := d.post(ctx, url, body)
		if err == nil {
			return nil
		}

		lastErr = err
		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Msg("alert dispatch attempt failed")

		// Check for non-retryable errors
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrDispatchFailed, d.cfg.MaxRetries+1, lastErr)
}

func (d *TelegramDispatcher) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Bounded read so a misbehaving endpoint can't balloon logs
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram API responded with status %d: %s", resp.StatusCode, detail)
	}
	return nil
}
