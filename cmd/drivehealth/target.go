package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nuclearlighters/drivehealth/internal/circuitbreaker"
	"github.com/nuclearlighters/drivehealth/internal/config"
	"github.com/nuclearlighters/drivehealth/internal/devicemap"
	"github.com/nuclearlighters/drivehealth/internal/executor"
	"github.com/nuclearlighters/drivehealth/internal/metrics"
	"github.com/nuclearlighters/drivehealth/internal/source"
)

// targetFlags are shared by analyze and serve.
type targetFlags struct {
	remote  bool
	verbose bool
}

// bindTargetFlags registers flags that override cfg in place.
func bindTargetFlags(fs *flag.FlagSet, cfg *config.Settings, tf *targetFlags) {
	fs.StringVar(&cfg.SSHHost, "ssh-host", cfg.SSHHost, "Run device queries on `host` ([user@]host[:port]) over SSH")
	fs.StringVar(&cfg.SSHKeyFile, "ssh-key", cfg.SSHKeyFile, "SSH private key `file` (default: agent, then ~/.ssh/id_ed25519, id_rsa)")
	fs.BoolVar(&cfg.SSHInsecure, "ssh-insecure", cfg.SSHInsecure, "Skip SSH host key verification")
	fs.StringVar(&cfg.DeviceMapFile, "device-map", cfg.DeviceMapFile, "Serial to device `file` (.json, .yaml)")
	fs.BoolVar(&cfg.AutoDiscover, "auto-discover", cfg.AutoDiscover, "Discover the device map with smartctl --scan")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Devices analyzed in parallel")
	fs.DurationVar(&cfg.CommandTimeout, "timeout", cfg.CommandTimeout, "Timeout for each remote or local command")
	fs.BoolVar(&tf.remote, "remote", false, "Read the smartd logs from the SSH host instead of a local directory")
	fs.BoolVar(&tf.verbose, "v", false, "Verbose (debug) logging")
}

// target is where commands run: this machine or one SSH host.
type target struct {
	exec  executor.Executor
	host  string
	close func() error
}

func (t *target) isRemote() bool { return t.host != "" }

// openTarget builds the executor for cfg. A remote executor is guarded by
// a circuit breaker so a dead host fails fast instead of timing out once
// per device.
func openTarget(cfg *config.Settings, m *metrics.Metrics, logger zerolog.Logger) (*target, error) {
	if cfg.SSHHost == "" {
		return &target{
			exec:  executor.WithTimeout(executor.NewLocal(), cfg.CommandTimeout),
			close: func() error { return nil },
		}, nil
	}

	sshExec, err := executor.NewSSH(executor.SSHConfig{
		Host:                  cfg.SSHHost,
		User:                  cfg.SSHUser,
		Port:                  cfg.SSHPort,
		KeyFile:               cfg.SSHKeyFile,
		KnownHostsFile:        cfg.SSHKnownHosts,
		InsecureIgnoreHostKey: cfg.SSHInsecure,
		DialTimeout:           cfg.SSHDialTimeout,
		MaxSessions:           cfg.SSHMaxSessions,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("ssh %s: %w", cfg.SSHHost, err)
	}

	var hook func(name string, from, to circuitbreaker.State)
	if m != nil {
		hook = m.BreakerHook()
	}
	cb := circuitbreaker.New("ssh:"+sshExec.Addr(), circuitbreaker.Config{
		Threshold: cfg.BreakerThreshold,
		Cooldown:  cfg.BreakerTimeout,
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
			if hook != nil {
				hook(name, from, to)
			}
		},
	})

	return &target{
		exec:  executor.WithBreaker(executor.WithTimeout(sshExec, cfg.CommandTimeout), cb),
		host:  sshExec.Addr(),
		close: sshExec.Close,
	}, nil
}

// newSource picks the log location: the SSH host's directory when remote
// is set, otherwise a local directory.
func newSource(t *target, remote bool, dir string) (source.Source, error) {
	if remote {
		if !t.isRemote() {
			return nil, errors.New("-remote needs -ssh-host")
		}
		return source.NewRemote(t.exec, t.host, dir), nil
	}
	return source.NewDir(dir)
}

// loadDeviceMap reads the map file when one is configured, otherwise runs
// discovery when asked to. Discovery failures are not fatal: unmapped
// drives are still analyzed with default thresholds.
func loadDeviceMap(ctx context.Context, cfg *config.Settings, t *target, logger zerolog.Logger) (devicemap.Map, error) {
	if cfg.DeviceMapFile != "" {
		m, err := devicemap.Load(cfg.DeviceMapFile)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("file", cfg.DeviceMapFile).Int("devices", len(m)).Msg("Loaded device map")
		return m, nil
	}
	if !cfg.AutoDiscover {
		return nil, nil
	}

	m, err := devicemap.Discover(ctx, t.exec, logger)
	if err == nil {
		return m, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if t.isRemote() {
		logger.Warn().Err(err).Msg("Device discovery failed, continuing without a device map")
		return nil, nil
	}
	logger.Warn().Err(err).Msg("smartctl discovery failed, falling back to local block devices")
	m, err = devicemap.DiscoverLocal(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Local device discovery failed, continuing without a device map")
		return nil, nil
	}
	return m, nil
}
