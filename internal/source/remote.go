package source

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/nuclearlighters/drivehealth/internal/executor"
)

// DefaultRemoteDir is where TrueNAS keeps smartd attribute logs.
const DefaultRemoteDir = "/var/lib/smartmontools"

// Remote reads logs from a directory on another host through an Executor.
// Files are streamed with cat rather than copied to a temp directory.
type Remote struct {
	exec executor.Executor
	dir  string
	host string
}

// NewRemote returns a Remote for dir on the host behind exec. host is only
// used in Location.
func NewRemote(exec executor.Executor, host, dir string) *Remote {
	if dir == "" {
		dir = DefaultRemoteDir
	}
	return &Remote{exec: exec, dir: dir, host: host}
}

// Location returns host:dir.
func (r *Remote) Location() string { return r.host + ":" + r.dir }

// List implements Source. A failed listing is returned as an error since
// nothing can be analyzed without it.
func (r *Remote) List(ctx context.Context) (Listing, error) {
	out, err := r.exec.Execute(ctx, "ls -1 -- "+executor.Quote(r.dir))
	if err != nil {
		return Listing{}, fmt.Errorf("list %s: %w", r.Location(), err)
	}
	var names []string
	for _, line := range strings.Split(out, "\n") {
		if name := strings.TrimSpace(line); name != "" {
			names = append(names, name)
		}
	}
	return classify(names), nil
}

// Open implements Source.
func (r *Remote) Open(ctx context.Context, f LogFile) (io.ReadCloser, error) {
	out, err := r.exec.Execute(ctx, "cat -- "+executor.Quote(path.Join(r.dir, f.Name)))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	return io.NopCloser(strings.NewReader(out)), nil
}
