// Package telegram sends run notifications through the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fgeck/mongo-s3-backup/internal/models"
	"github.com/rs/zerolog"
)

// DefaultBaseURL is the public Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// Service defines the interface for Telegram notification operations.
type Service interface {
	Notify(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) error
}

// HTTPClient allows mocking HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Impl implements the Telegram Service interface.
type Impl struct {
	httpClient HTTPClient
	logger     zerolog.Logger
	baseURL    string
}

// New creates a new Telegram service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
		baseURL:    DefaultBaseURL,
	}
}

// NewWithClient creates a new Telegram service with a custom HTTP client (for testing).
func NewWithClient(logger zerolog.Logger, httpClient HTTPClient, baseURL string) *Impl {
	return &Impl{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Notify posts a summary of a finished run to the configured chat.
func (s *Impl) Notify(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) error {
	s.logger.Debug().
		Str("chat_id", cfg.ChatID).
		Bool("success", msg.Success).
		Msg("sending Telegram notification")

	body, err := json.Marshal(sendMessageRequest{
		ChatID:                cfg.ChatID,
		Text:                  FormatMessage(msg),
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, cfg.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		// The URL embeds the bot token; keep it out of the error.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("failed to reach Telegram API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var apiResp apiResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &apiResp)

	if resp.StatusCode != http.StatusOK || !apiResp.OK {
		if apiResp.Description != "" {
			return fmt.Errorf("telegram API returned status %d: %s", resp.StatusCode, apiResp.Description)
		}
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}

	s.logger.Info().Str("chat_id", cfg.ChatID).Msg("Telegram notification sent")
	return nil
}

// FormatMessage renders msg as Telegram HTML.
func FormatMessage(msg models.TelegramMessage) string {
	var b strings.Builder

	title := "MongoDB " + msg.Pipeline
	if msg.Success {
		fmt.Fprintf(&b, "✅ <b>%s succeeded</b>\n\n", html.EscapeString(title))
	} else {
		fmt.Fprintf(&b, "❌ <b>%s failed</b>\n\n", html.EscapeString(title))
	}

	fmt.Fprintf(&b, "<b>Database:</b> %s\n", html.EscapeString(msg.Database))
	fmt.Fprintf(&b, "<b>Bucket:</b> %s\n", html.EscapeString(msg.Bucket))
	if msg.ArchiveName != "" {
		fmt.Fprintf(&b, "<b>Archive:</b> <code>%s</code>\n", html.EscapeString(msg.ArchiveName))
	}
	if msg.ArchiveSize > 0 {
		fmt.Fprintf(&b, "<b>Size:</b> %s\n", humanize.Bytes(uint64(msg.ArchiveSize))) //nolint:gosec // checked positive
	}
	fmt.Fprintf(&b, "<b>Started:</b> %s\n", msg.StartTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "<b>Duration:</b> %s\n", msg.Duration.Round(time.Second))

	if !msg.Success {
		b.WriteString("\n<b>Error details:</b>\n")
		fmt.Fprintf(&b, "  • Failed step: %s\n", html.EscapeString(msg.FailedStep))
		fmt.Fprintf(&b, "  • Error: <code>%s</code>\n", html.EscapeString(msg.ErrorMessage))
	}

	return b.String()
}
