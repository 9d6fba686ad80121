// Package wol wakes the storage host before a pipeline touches the bucket.
package wol

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/fgeck/mongo-s3-backup/internal/models"
	"github.com/mdlayher/wol"
	"github.com/rs/zerolog"
)

const (
	magicPacketPort     = "9"
	defaultPollInterval = 5 * time.Second
	defaultTimeout      = 5 * time.Minute
)

// Service defines the interface for Wake-on-LAN operations.
type Service interface {
	Wake(ctx context.Context, cfg models.WOLConfig) (*models.WOLResult, error)
}

// Sender transmits a magic packet.
type Sender interface {
	Send(addr string, mac net.HardwareAddr) error
}

// HTTPClient allows mocking HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// UDPSender sends magic packets over UDP using mdlayher/wol.
type UDPSender struct{}

// Send broadcasts a magic packet for mac to addr.
func (UDPSender) Send(addr string, mac net.HardwareAddr) error {
	client, err := wol.NewClient()
	if err != nil {
		return fmt.Errorf("failed to create WOL client: %w", err)
	}
	defer func() { _ = client.Close() }()

	return client.Wake(addr, mac)
}

// Impl implements the WOL Service interface.
type Impl struct {
	sender     Sender
	httpClient HTTPClient
	logger     zerolog.Logger
}

// New creates a new WOL service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		sender:     UDPSender{},
		httpClient: &http.Client{Timeout: 5 * time.Second},
		logger:     logger,
	}
}

// NewWithClients creates a new WOL service with custom clients (for testing).
func NewWithClients(logger zerolog.Logger, sender Sender, httpClient HTTPClient) *Impl {
	return &Impl{
		sender:     sender,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Wake sends a magic packet and, when a poll URL is set, waits until the
// host answers HTTP requests.
func (s *Impl) Wake(ctx context.Context, cfg models.WOLConfig) (*models.WOLResult, error) {
	start := time.Now()

	mac, err := net.ParseMAC(cfg.MACAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid MAC address %q: %w", cfg.MACAddress, err)
	}
	ip := net.ParseIP(cfg.BroadcastIP)
	if ip == nil {
		return nil, fmt.Errorf("invalid broadcast IP %q", cfg.BroadcastIP)
	}

	s.logger.Info().
		Str("mac", mac.String()).
		Str("broadcast", ip.String()).
		Msg("sending magic packet")

	if err := s.sender.Send(net.JoinHostPort(ip.String(), magicPacketPort), mac); err != nil {
		return nil, fmt.Errorf("failed to send magic packet: %w", err)
	}

	result := &models.WOLResult{PacketSent: true}
	if cfg.PollURL == "" {
		result.TargetReady = true
		result.WaitDuration = time.Since(start)
		return result, nil
	}

	attempts, err := s.awaitHost(ctx, cfg)
	result.Attempts = attempts
	if err != nil {
		result.WaitDuration = time.Since(start)
		return result, err
	}

	if cfg.StabilizeWait > 0 {
		s.logger.Debug().Dur("wait", cfg.StabilizeWait).Msg("waiting for host to settle")
		select {
		case <-ctx.Done():
			result.WaitDuration = time.Since(start)
			return result, ctx.Err()
		case <-time.After(cfg.StabilizeWait):
		}
	}

	result.TargetReady = true
	result.WaitDuration = time.Since(start)

	s.logger.Info().
		Int("attempts", result.Attempts).
		Dur("duration", result.WaitDuration).
		Msg("storage host is up")

	return result, nil
}

func (s *Impl) awaitHost(ctx context.Context, cfg models.WOLConfig) (int, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info().
		Str("url", cfg.PollURL).
		Dur("timeout", timeout).
		Msg("waiting for storage host")

	attempts := 0
	for {
		attempts++
		err := s.probe(waitCtx, cfg.PollURL)
		if err == nil {
			return attempts, nil
		}
		s.logger.Debug().Err(err).Int("attempt", attempts).Msg("storage host not ready yet")

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return attempts, ctx.Err()
			}
			return attempts, fmt.Errorf("storage host at %s not reachable after %s", cfg.PollURL, timeout)
		case <-ticker.C:
		}
	}
}

// probe treats any HTTP response as a live host; S3 servers answer
// anonymous requests with 403.
func (s *Impl) probe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}
