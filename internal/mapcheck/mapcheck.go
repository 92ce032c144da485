package mapcheck

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"ticktrace.gg/internal/trace"
)

// Verification failures, wrapped with the offending header values.
var (
	ErrUnknownMap  = errors.New("map not in allowlist")
	ErrCRCMismatch = errors.New("map crc mismatch")
	ErrTooLarge    = errors.New("map size over limit")
)

// Map is one allowlist entry. The same name may appear more than once when
// several crc revisions of a map are accepted.
type Map struct {
	Name    string `yaml:"name"`
	CRC     string `yaml:"crc"`
	MaxSize uint32 `yaml:"max_size"`

	crc uint32
}

type Allowlist struct {
	Maps []Map `yaml:"maps"`
}

func Load(path string) (Allowlist, error) {
	var a Allowlist
	raw, err := os.ReadFile(path)
	if err != nil {
		return a, err
	}
	if err := yaml.Unmarshal(raw, &a); err != nil {
		return a, fmt.Errorf("maps.yaml: %w", err)
	}
	for i := range a.Maps {
		m := &a.Maps[i]
		if m.Name == "" {
			return a, fmt.Errorf("maps.yaml: entry %d: empty name", i)
		}
		crc, err := strconv.ParseUint(m.CRC, 16, 32)
		if err != nil {
			return a, fmt.Errorf("maps.yaml: map %s: bad crc %q: %w", m.Name, m.CRC, err)
		}
		m.crc = uint32(crc)
	}
	return a, nil
}

// Verify checks a session header against the allowlist. It passes when any
// entry matches name and crc with the size under that entry's cap (0 means
// uncapped). The returned error wraps the closest failure.
func (a Allowlist) Verify(h trace.Header) error {
	seenName := false
	crcMatch := false
	for _, m := range a.Maps {
		if m.Name != h.MapName {
			continue
		}
		seenName = true
		if m.crc != h.MapCRC {
			continue
		}
		crcMatch = true
		if m.MaxSize != 0 && h.MapSize > m.MaxSize {
			continue
		}
		return nil
	}
	switch {
	case !seenName:
		return fmt.Errorf("%s: %w", h.MapName, ErrUnknownMap)
	case !crcMatch:
		return fmt.Errorf("%s: crc %08x: %w", h.MapName, h.MapCRC, ErrCRCMismatch)
	default:
		return fmt.Errorf("%s: %d bytes: %w", h.MapName, h.MapSize, ErrTooLarge)
	}
}
