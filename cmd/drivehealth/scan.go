package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/nuclearlighters/drivehealth/internal/config"
	"github.com/nuclearlighters/drivehealth/internal/devicemap"
)

func runScan(ctx context.Context, cfg *config.Settings, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var (
		out   string
		local bool
	)
	fs.StringVar(&cfg.SSHHost, "ssh-host", cfg.SSHHost, "Scan `host` ([user@]host[:port]) over SSH")
	fs.StringVar(&cfg.SSHKeyFile, "ssh-key", cfg.SSHKeyFile, "SSH private key `file`")
	fs.BoolVar(&cfg.SSHInsecure, "ssh-insecure", cfg.SSHInsecure, "Skip SSH host key verification")
	fs.StringVar(&out, "o", "device_map.json", "Output `file`; the extension picks JSON or YAML")
	fs.BoolVar(&local, "local", false, "Read serials of local block devices instead of running smartctl")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if local && cfg.SSHHost != "" {
		return fmt.Errorf("-local and -ssh-host are mutually exclusive")
	}
	logger := log.Logger

	var (
		m   devicemap.Map
		err error
	)
	if local {
		m, err = devicemap.DiscoverLocal(ctx)
	} else {
		t, terr := openTarget(cfg, nil, logger)
		if terr != nil {
			return terr
		}
		defer t.close()
		m, err = devicemap.Discover(ctx, t.exec, logger)
	}
	if err != nil {
		return err
	}

	if err := devicemap.Save(out, m); err != nil {
		return err
	}

	serials := make([]string, 0, len(m))
	for serial := range m {
		serials = append(serials, serial)
	}
	slices.Sort(serials)
	for _, serial := range serials {
		fmt.Fprintf(stdout, "%-24s %s\n", serial, m[serial])
	}
	fmt.Fprintf(stdout, "Wrote %d devices to %s\n", len(m), out)
	return nil
}
