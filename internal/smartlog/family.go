// Package smartlog decodes smartd attribute logs into per-device time series.
//
// smartd writes one log per device. ATA drives use an attribute-table encoding
// (id;normalized;raw triplets), NVMe controllers a key-value encoding
// (name;value pairs). Both start every line with a timestamp.
package smartlog

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownFamily is returned when a family name is neither "ata" nor "nvme".
var ErrUnknownFamily = errors.New("unknown device family")

// Family identifies which log encoding and field set a device uses.
type Family uint8

const (
	FamilyATA  Family = iota + 1 // attribute-table encoding
	FamilyNVMe                   // key-value encoding
)

// String returns the lower-case family tag used in file names and JSON.
func (f Family) String() string {
	switch f {
	case FamilyATA:
		return "ata"
	case FamilyNVMe:
		return "nvme"
	default:
		return fmt.Sprintf("family(%d)", uint8(f))
	}
}

// ParseFamily maps "ata" or "nvme" (any case) to a Family.
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ata":
		return FamilyATA, nil
	case "nvme":
		return FamilyNVMe, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFamily, s)
}

// MarshalText implements encoding.TextMarshaler.
func (f Family) MarshalText() ([]byte, error) {
	if f != FamilyATA && f != FamilyNVMe {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFamily, uint8(f))
	}
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Family) UnmarshalText(text []byte) error {
	parsed, err := ParseFamily(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
