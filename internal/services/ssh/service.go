// Package ssh powers off the storage host once a run has finished.
package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fgeck/mongo-s3-backup/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

const dialTimeout = 30 * time.Second

// Service defines the interface for SSH operations.
type Service interface {
	Shutdown(ctx context.Context, cfg models.SSHShutdownConfig) (*models.SSHResult, error)
	Check(ctx context.Context, cfg models.SSHShutdownConfig) (*models.SSHResult, error)
}

// Session is the part of ssh.Session the service uses.
type Session interface {
	CombinedOutput(cmd string) ([]byte, error)
	Close() error
}

// Conn is the part of ssh.Client the service uses.
type Conn interface {
	NewSession() (Session, error)
	Close() error
}

// Dialer opens authenticated SSH connections.
type Dialer interface {
	Dial(ctx context.Context, addr string, config *ssh.ClientConfig) (Conn, error)
}

// TCPDialer dials over TCP and honours context cancellation during the handshake.
type TCPDialer struct{}

// Dial connects to addr and performs the SSH handshake.
func (TCPDialer) Dial(ctx context.Context, addr string, config *ssh.ClientConfig) (Conn, error) {
	d := net.Dialer{Timeout: config.Timeout}
	netConn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = netConn.SetDeadline(deadline)
	}
	c, chans, reqs, err := ssh.NewClientConn(netConn, addr, config)
	if err != nil {
		_ = netConn.Close()
		return nil, err
	}
	_ = netConn.SetDeadline(time.Time{})

	return &clientConn{client: ssh.NewClient(c, chans, reqs)}, nil
}

type clientConn struct {
	client *ssh.Client
}

func (c *clientConn) NewSession() (Session, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (c *clientConn) Close() error {
	return c.client.Close()
}

// Impl implements the SSH Service interface.
type Impl struct {
	dialer Dialer
	logger zerolog.Logger
}

// New creates a new SSH service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{dialer: TCPDialer{}, logger: logger}
}

// NewWithDialer creates a new SSH service with a custom dialer (for testing).
func NewWithDialer(logger zerolog.Logger, dialer Dialer) *Impl {
	return &Impl{dialer: dialer, logger: logger}
}

// ShutdownCommand returns the command that powers off the host described by cfg.
func ShutdownCommand(cfg models.SSHShutdownConfig) string {
	if cfg.OS == "windows" {
		seconds := cfg.ShutdownDelay * 60
		if seconds == 0 {
			seconds = 60
		}
		return fmt.Sprintf("shutdown /s /t %d", seconds)
	}

	if cfg.ShutdownDelay == 0 {
		return "sudo shutdown -h now"
	}
	return fmt.Sprintf("sudo shutdown -h +%d", cfg.ShutdownDelay)
}

// Shutdown schedules a power-off on the remote host. A connection dropped by
// the host before the exit status arrives counts as success.
func (s *Impl) Shutdown(ctx context.Context, cfg models.SSHShutdownConfig) (*models.SSHResult, error) {
	cmd := ShutdownCommand(cfg)

	s.logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("user", cfg.Username).
		Int("delay_minutes", cfg.ShutdownDelay).
		Msg("initiating remote shutdown")

	result, err := s.run(ctx, cfg, cmd)
	if err == nil {
		s.logger.Info().Str("output", result.Output).Msg("shutdown command accepted")
		return result, nil
	}

	var exitMissing *ssh.ExitMissingError
	if result.CommandRun && (errors.As(err, &exitMissing) || errors.Is(err, io.EOF)) {
		s.logger.Warn().Err(err).Msg("host closed the connection during shutdown")
		return result, nil
	}

	return result, err
}

// Check verifies that the host accepts the configured key.
func (s *Impl) Check(ctx context.Context, cfg models.SSHShutdownConfig) (*models.SSHResult, error) {
	s.logger.Debug().Str("host", cfg.Host).Int("port", cfg.Port).Msg("checking SSH connectivity")

	result, err := s.run(ctx, cfg, "echo OK")
	if err != nil {
		return result, err
	}
	if result.Output != "OK" {
		return result, fmt.Errorf("unexpected response from %s: %q", cfg.Host, result.Output)
	}
	return result, nil
}

func (s *Impl) run(ctx context.Context, cfg models.SSHShutdownConfig, cmd string) (*models.SSHResult, error) {
	result := &models.SSHResult{Command: cmd}

	config, err := clientConfig(cfg)
	if err != nil {
		return result, err
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	conn, err := s.dialer.Dial(ctx, addr, config)
	if err != nil {
		return result, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer func() { _ = conn.Close() }()

	session, err := conn.NewSession()
	if err != nil {
		return result, fmt.Errorf("failed to create session: %w", err)
	}
	defer func() { _ = session.Close() }()

	s.logger.Debug().Str("command", cmd).Msg("executing remote command")

	output, err := session.CombinedOutput(cmd)
	result.CommandRun = true
	result.Output = strings.TrimSpace(string(output))
	if err != nil {
		return result, fmt.Errorf("remote command %q failed: %w", cmd, err)
	}
	return result, nil
}

func clientConfig(cfg models.SSHShutdownConfig) (*ssh.ClientConfig, error) {
	key := cfg.PrivateKey
	if len(key) == 0 {
		if cfg.KeyPath == "" {
			return nil, errors.New("no private key provided")
		}
		var err error
		key, err = os.ReadFile(cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key from %s: %w", cfg.KeyPath, err)
		}
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // storage host on the local network
		Timeout:         dialTimeout,
	}, nil
}
