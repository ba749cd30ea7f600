package connmon

import (
	"fmt"
	"strings"
)

// Metered is how likely a connection is to be billed by the byte.
// Values are ordered from least to most restrictive; MeteredUnknown is
// the identity for CombinePessimistic.
type Metered int

const (
	MeteredUnknown Metered = iota
	MeteredNo
	MeteredGuessNo
	MeteredGuessYes
	MeteredYes
)

var meteredNames = [...]string{"unknown", "no", "guess-no", "guess-yes", "yes"}

func (m Metered) String() string {
	if m >= MeteredUnknown && m <= MeteredYes {
		return meteredNames[m]
	}
	return fmt.Sprintf("Metered(%d)", int(m))
}

// IsMetered reports whether m is yes or guess-yes.
func (m Metered) IsMetered() bool {
	return m == MeteredYes || m == MeteredGuessYes
}

// ParseMetered parses the names produced by String. Underscores are
// accepted in place of hyphens.
func ParseMetered(s string) (Metered, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	for i, name := range meteredNames {
		if norm == name {
			return Metered(i), nil
		}
	}
	return MeteredUnknown, fmt.Errorf("unknown metered status %q", s)
}

func (m Metered) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Metered) UnmarshalText(text []byte) error {
	v, err := ParseMetered(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// CombinePessimistic returns whichever of a and b estimates the metered
// status more conservatively. The result is always a or b.
func CombinePessimistic(a, b Metered) Metered {
	if a == MeteredUnknown {
		return b
	}
	if b == MeteredUnknown {
		return a
	}
	if a > b {
		return a
	}
	return b
}

// AggregateMetered combines the metered status of every device forming a
// connection with the connection's own policy setting.
func AggregateMetered(policy Metered, devices ...Metered) Metered {
	combined := MeteredUnknown
	for _, d := range devices {
		combined = CombinePessimistic(d, combined)
	}
	return CombinePessimistic(combined, policy)
}
