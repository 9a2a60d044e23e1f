// Package source lists and opens smartd attribute logs, either from a local
// directory or from a directory on a remote host.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/nuclearlighters/drivehealth/internal/smartlog"
)

var (
	// ErrBadFileName is returned for names that do not follow the smartd
	// attrlog naming scheme.
	ErrBadFileName = errors.New("not an attribute log file name")
	// ErrNotDirectory is returned when the log location is not a directory.
	ErrNotDirectory = errors.New("not a directory")
)

const (
	filePrefix = "attrlog."
	fileSuffix = ".csv"
)

var namespaceSuffix = regexp.MustCompile(`-n([0-9]+)$`)

// LogFile identifies one device log.
type LogFile struct {
	Name      string
	Model     string
	Serial    string
	Namespace int // NVMe namespace, 0 when the name carries none
	Family    smartlog.Family
}

// ParseFileName splits a smartd log name:
//
//	attrlog.WDC_WD40EFRX_68N32N0-WD_WCC7K0123456.ata.csv
//	attrlog.Samsung_SSD_980_PRO_1TB-S5GXNF0R123456-n1.nvme.csv
//
// The serial is everything after the last hyphen. A name without a hyphen
// uses the whole identifier as both model and serial.
func ParseFileName(name string) (LogFile, error) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return LogFile{}, fmt.Errorf("%w: %s", ErrBadFileName, name)
	}
	ident := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)

	dot := strings.LastIndex(ident, ".")
	if dot < 0 {
		return LogFile{}, fmt.Errorf("%w: %s", ErrBadFileName, name)
	}
	family, err := smartlog.ParseFamily(ident[dot+1:])
	if err != nil {
		return LogFile{}, fmt.Errorf("%w: %s: %v", ErrBadFileName, name, err)
	}
	ident = ident[:dot]
	if ident == "" {
		return LogFile{}, fmt.Errorf("%w: %s", ErrBadFileName, name)
	}

	f := LogFile{Name: name, Family: family}
	if family == smartlog.FamilyNVMe {
		if m := namespaceSuffix.FindStringSubmatch(ident); m != nil && len(ident) > len(m[0]) {
			f.Namespace, _ = strconv.Atoi(m[1])
			ident = ident[:len(ident)-len(m[0])]
		}
	}

	if i := strings.LastIndex(ident, "-"); i > 0 && i < len(ident)-1 {
		f.Model, f.Serial = ident[:i], ident[i+1:]
	} else {
		f.Model, f.Serial = ident, ident
	}
	return f, nil
}

// Listing is the result of scanning a log location.
type Listing struct {
	Files    []LogFile // sorted by name
	Rejected []string  // attrlog.*.csv names that could not be parsed
}

// Source is a place device logs can be read from.
type Source interface {
	List(ctx context.Context) (Listing, error)
	Open(ctx context.Context, f LogFile) (io.ReadCloser, error)
	Location() string
}

// classify turns raw directory entries into a Listing.
func classify(names []string) Listing {
	var l Listing
	for _, name := range names {
		if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		f, err := ParseFileName(name)
		if err != nil {
			l.Rejected = append(l.Rejected, name)
			continue
		}
		l.Files = append(l.Files, f)
	}
	slices.SortFunc(l.Files, func(a, b LogFile) int { return strings.Compare(a.Name, b.Name) })
	slices.Sort(l.Rejected)
	return l
}
