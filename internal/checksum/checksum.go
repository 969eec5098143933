// Package checksum computes the 32-bit sums attached to DAP4 responses.
//
// DAP4 itself specifies CRC-32 (IEEE). Fletcher-32 and Jenkins lookup3
// can be selected per session for peers that expect them.
package checksum

import (
	"fmt"
	"hash/crc32"
	"strings"
)

// Algorithm selects a checksum function.
type Algorithm int

const (
	CRC32 Algorithm = iota
	Fletcher32
	Lookup3
)

func (a Algorithm) String() string {
	switch a {
	case CRC32:
		return "crc32"
	case Fletcher32:
		return "fletcher32"
	case Lookup3:
		return "lookup3"
	}
	return fmt.Sprintf("Algorithm(%d)", int(a))
}

// ParseAlgorithm parses an algorithm name, ignoring case.
func ParseAlgorithm(s string) (Algorithm, error) {
	for a := CRC32; a <= Lookup3; a++ {
		if strings.EqualFold(s, a.String()) {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown checksum algorithm %q", s)
}

// Sum returns the checksum of data.
func Sum(a Algorithm, data []byte) uint32 {
	switch a {
	case Fletcher32:
		return Fletcher(data)
	case Lookup3:
		return Lookup3Hash(data)
	default:
		return crc32.ChecksumIEEE(data)
	}
}

// Verify reports whether data has the expected checksum.
func Verify(a Algorithm, data []byte, expected uint32) bool {
	return Sum(a, data) == expected
}

// Summer accumulates written bytes and sums them. CRC-32 is computed
// incrementally; the other algorithms need the whole input and buffer it.
type Summer struct {
	alg Algorithm
	crc uint32
	buf []byte
}

// NewSummer returns an empty Summer for the algorithm.
func NewSummer(a Algorithm) *Summer {
	return &Summer{alg: a}
}

// Write adds p to the sum. It never fails.
func (s *Summer) Write(p []byte) (int, error) {
	if s.alg == CRC32 {
		s.crc = crc32.Update(s.crc, crc32.IEEETable, p)
	} else {
		s.buf = append(s.buf, p...)
	}
	return len(p), nil
}

// Sum32 returns the checksum of everything written so far.
func (s *Summer) Sum32() uint32 {
	if s.alg == CRC32 {
		return s.crc
	}
	return Sum(s.alg, s.buf)
}

// Reset discards everything written.
func (s *Summer) Reset() {
	s.crc = 0
	s.buf = s.buf[:0]
}

// Fletcher returns the Fletcher-32 checksum of data, read as
// little-endian 16-bit words with an odd trailing byte padded with zero.
func Fletcher(data []byte) uint32 {
	var sum1, sum2 uint32
	i := 0
	for ; i+1 < len(data); i += 2 {
		sum1 = (sum1 + (uint32(data[i]) | uint32(data[i+1])<<8)) % 65535
		sum2 = (sum2 + sum1) % 65535
	}
	if i < len(data) {
		sum1 = (sum1 + uint32(data[i])) % 65535
		sum2 = (sum2 + sum1) % 65535
	}
	return sum2<<16 | sum1
}

// Lookup3Hash returns Bob Jenkins' lookup3 hashlittle of data with an
// initial value of 0.
func Lookup3Hash(data []byte) uint32 {
	init := uint32(0xdeadbeef) + uint32(len(data))
	a, b, c := init, init, init
	k := data

	// The last 1 to 12 bytes always go through the final mix.
	for len(k) > 12 {
		a += le32(k[0:4])
		b += le32(k[4:8])
		c += le32(k[8:12])
		a, b, c = mix(a, b, c)
		k = k[12:]
	}
	if len(k) == 0 {
		return c
	}

	var tail [12]byte
	copy(tail[:], k)
	a += le32(tail[0:4])
	b += le32(tail[4:8])
	c += le32(tail[8:12])
	_, _, c = final(a, b, c)
	return c
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func mix(a, b, c uint32) (uint32, uint32, uint32) {
	a -= c
	a ^= rot(c, 4)
	c += b
	b -= a
	b ^= rot(a, 6)
	a += c
	c -= b
	c ^= rot(b, 8)
	b += a
	a -= c
	a ^= rot(c, 16)
	c += b
	b -= a
	b ^= rot(a, 19)
	a += c
	c -= b
	c ^= rot(b, 4)
	b += a
	return a, b, c
}

func final(a, b, c uint32) (uint32, uint32, uint32) {
	c ^= b
	c -= rot(b, 14)
	a ^= c
	a -= rot(c, 11)
	b ^= a
	b -= rot(a, 25)
	c ^= b
	c -= rot(b, 16)
	a ^= c
	a -= rot(c, 4)
	b ^= a
	b -= rot(a, 14)
	c ^= b
	c -= rot(b, 24)
	return a, b, c
}

func rot(x uint32, k uint) uint32 {
	return x<<k | x>>(32-k)
}
