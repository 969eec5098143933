package dap4

import (
	"fmt"
	"strings"

	"github.com/robert-malhotra/go-dap4/internal/checksum"
)

// ChecksumMode selects which parts of a response carry checksums. The
// zero value is the null mode: no policy was given.
type ChecksumMode int

const (
	ChecksumNone ChecksumMode = iota + 1
	ChecksumIgnore
	ChecksumDMR
	ChecksumDAP
	ChecksumAll
)

// DefaultChecksumMode is used by sessions that were given no mode.
const DefaultChecksumMode = ChecksumDAP

var checksumNames = map[ChecksumMode]string{
	ChecksumNone:   "none",
	ChecksumIgnore: "ignore",
	ChecksumDMR:    "dmr",
	ChecksumDAP:    "dap",
	ChecksumAll:    "all",
}

// Enabled reports whether checksums of kind other are on under mode m.
// It is false when either side is the null mode or None, true when the
// modes are equal or m is All, and false otherwise.
func (m ChecksumMode) Enabled(other ChecksumMode) bool {
	if m == 0 || other == 0 || m == ChecksumNone || other == ChecksumNone {
		return false
	}
	return m == other || m == ChecksumAll
}

func (m ChecksumMode) String() string {
	if m == 0 {
		return "null"
	}
	if s, ok := checksumNames[m]; ok {
		return s
	}
	return fmt.Sprintf("ChecksumMode(%d)", int(m))
}

// ParseChecksumMode parses a mode name, ignoring case. The empty string
// and "null" parse to the null mode.
func ParseChecksumMode(s string) (ChecksumMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "null" {
		return 0, nil
	}
	for m, name := range checksumNames {
		if name == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown checksum mode %q", s)
}

func (m ChecksumMode) MarshalText() ([]byte, error) {
	if m != 0 {
		if _, ok := checksumNames[m]; !ok {
			return nil, fmt.Errorf("invalid checksum mode %d", int(m))
		}
	}
	return []byte(m.String()), nil
}

func (m *ChecksumMode) UnmarshalText(text []byte) error {
	v, err := ParseChecksumMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ChecksumAlgorithm selects the function behind DAP and DMR checksums.
type ChecksumAlgorithm = checksum.Algorithm

const (
	AlgorithmCRC32      = checksum.CRC32
	AlgorithmFletcher32 = checksum.Fletcher32
	AlgorithmLookup3    = checksum.Lookup3
)

// ParseChecksumAlgorithm parses an algorithm name, ignoring case.
func ParseChecksumAlgorithm(s string) (ChecksumAlgorithm, error) {
	return checksum.ParseAlgorithm(strings.TrimSpace(s))
}
