package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// ErrNoAuthMethod is returned when neither a key file nor an agent is usable.
var ErrNoAuthMethod = errors.New("no usable ssh authentication method")

// SSHConfig describes the remote host. Host may be "host", "user@host" or
// "user@host:port"; explicit User and Port fields take precedence.
type SSHConfig struct {
	Host           string
	User           string
	Port           int
	KeyFile        string
	KnownHostsFile string
	// InsecureIgnoreHostKey skips host key verification.
	InsecureIgnoreHostKey bool
	DialTimeout           time.Duration
	// MaxSessions caps concurrent sessions on the shared connection.
	// OpenSSH allows 10 by default.
	MaxSessions int
}

// SSH runs commands on a remote host over one multiplexed connection.
// The connection is dialled on first use and re-dialled after it breaks.
type SSH struct {
	addr   string
	config *ssh.ClientConfig
	dial   time.Duration
	sem    chan struct{}
	logger zerolog.Logger

	mu     sync.Mutex
	client *ssh.Client
}

// NewSSH validates cfg and prepares authentication. It does not dial.
func NewSSH(cfg SSHConfig, logger zerolog.Logger) (*SSH, error) {
	host, user, port, err := splitTarget(cfg.Host)
	if err != nil {
		return nil, err
	}
	if cfg.User != "" {
		user = cfg.User
	}
	if cfg.Port > 0 {
		port = cfg.Port
	}
	if user == "" {
		user = "root"
	}
	if port == 0 {
		port = 22
	}

	auth, err := authMethods(cfg.KeyFile)
	if err != nil {
		return nil, err
	}
	hostKey, err := hostKeyCallback(cfg)
	if err != nil {
		return nil, err
	}

	dial := cfg.DialTimeout
	if dial <= 0 {
		dial = 10 * time.Second
	}
	sessions := cfg.MaxSessions
	if sessions <= 0 {
		sessions = 8
	}

	return &SSH{
		addr: net.JoinHostPort(host, strconv.Itoa(port)),
		config: &ssh.ClientConfig{
			User:            user,
			Auth:            auth,
			HostKeyCallback: hostKey,
			Timeout:         dial,
		},
		dial:   dial,
		sem:    make(chan struct{}, sessions),
		logger: logger.With().Str("component", "ssh").Str("addr", net.JoinHostPort(host, strconv.Itoa(port))).Logger(),
	}, nil
}

// Addr returns host:port of the remote.
func (s *SSH) Addr() string { return s.addr }

// Execute implements Executor.
func (s *SSH) Execute(ctx context.Context, command string) (string, error) {
	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		return "", fmt.Errorf("wait for ssh session: %w", ctx.Err())
	}

	client, err := s.connect(ctx)
	if err != nil {
		return "", err
	}
	session, err := client.NewSession()
	if err != nil {
		s.drop(client)
		return "", fmt.Errorf("open ssh session to %s: %w", s.addr, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case err = <-done:
	case <-ctx.Done():
		// The session goroutine may still be writing stdout, so the
		// buffers are not read on this path.
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		return "", fmt.Errorf("run %q on %s: %w", command, s.addr, ctx.Err())
	}

	if err == nil {
		return stdout.String(), nil
	}
	var ee *ssh.ExitError
	if errors.As(err, &ee) {
		return stdout.String(), &ExitError{
			Command: command,
			Code:    ee.ExitStatus(),
			Stdout:  stdout.String(),
			Stderr:  stderr.String(),
		}
	}
	s.drop(client)
	return stdout.String(), fmt.Errorf("run %q on %s: %w", command, s.addr, err)
}

// Close tears down the shared connection.
func (s *SSH) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

func (s *SSH) connect(ctx context.Context) (*ssh.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}

	dialer := net.Dialer{Timeout: s.dial}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", s.addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, s.addr, s.config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", s.addr, err)
	}
	_ = conn.SetDeadline(time.Time{})

	s.client = ssh.NewClient(c, chans, reqs)
	s.logger.Debug().Str("user", s.config.User).Msg("SSH connection established")
	return s.client, nil
}

// drop forgets client if it is still the shared connection.
func (s *SSH) drop(client *ssh.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == client {
		s.client.Close()
		s.client = nil
		s.logger.Debug().Msg("SSH connection dropped")
	}
}

func splitTarget(target string) (host, user string, port int, err error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", "", 0, errors.New("ssh host is required")
	}
	if i := strings.LastIndex(target, "@"); i >= 0 {
		user, target = target[:i], target[i+1:]
	}
	host = target
	if h, p, splitErr := net.SplitHostPort(target); splitErr == nil {
		port, err = strconv.Atoi(p)
		if err != nil {
			return "", "", 0, fmt.Errorf("invalid ssh port %q", p)
		}
		host = h
	}
	if host == "" {
		return "", "", 0, errors.New("ssh host is required")
	}
	return host, user, port, nil
}

func authMethods(keyFile string) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}

	keys := []string{keyFile}
	if keyFile == "" {
		if home, err := os.UserHomeDir(); err == nil {
			keys = []string{
				filepath.Join(home, ".ssh", "id_ed25519"),
				filepath.Join(home, ".ssh", "id_ecdsa"),
				filepath.Join(home, ".ssh", "id_rsa"),
			}
		}
	}
	var signers []ssh.Signer
	for _, path := range keys {
		if path == "" {
			continue
		}
		pem, err := os.ReadFile(path)
		if err != nil {
			if keyFile != "" {
				return nil, fmt.Errorf("read ssh key: %w", err)
			}
			continue
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			if keyFile != "" {
				return nil, fmt.Errorf("parse ssh key %s: %w", path, err)
			}
			continue
		}
		signers = append(signers, signer)
	}
	if len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}

	if len(methods) == 0 {
		return nil, ErrNoAuthMethod
	}
	return methods, nil
}

func hostKeyCallback(cfg SSHConfig) (ssh.HostKeyCallback, error) {
	if cfg.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	path := cfg.KnownHostsFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locate known_hosts: %w", err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts: %w", err)
	}
	return cb, nil
}
