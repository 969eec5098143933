package dap4

import (
	"encoding/binary"

	"github.com/sirupsen/logrus"
)

// Option configures a session.
type Option func(*options)

type options struct {
	order    binary.ByteOrder
	checksum ChecksumMode
	alg      ChecksumAlgorithm
	logger   *logrus.Entry
}

func defaultOptions() *options {
	return &options{
		checksum: DefaultChecksumMode,
		alg:      AlgorithmCRC32,
		logger:   logrus.NewEntry(logrus.StandardLogger()),
	}
}

// WithOrder sets the byte order reported by the session. Without it the
// session reports the backend's native order, or little-endian.
func WithOrder(order binary.ByteOrder) Option {
	return func(o *options) {
		if order != nil {
			o.order = order
		}
	}
}

// WithChecksumMode sets the checksum policy of the session.
func WithChecksumMode(mode ChecksumMode) Option {
	return func(o *options) {
		o.checksum = mode
	}
}

// WithChecksumAlgorithm sets the function behind the session's
// checksums. The default is CRC-32, which DAP4 clients expect.
func WithChecksumAlgorithm(alg ChecksumAlgorithm) Option {
	return func(o *options) {
		o.alg = alg
	}
}

// WithLogger sets the logger the session writes to.
func WithLogger(entry *logrus.Entry) Option {
	return func(o *options) {
		if entry != nil {
			o.logger = entry
		}
	}
}

// RegistryOption configures a Registry.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	logger *logrus.Entry
}

// WithRegistryLogger sets the logger a registry reports matches to.
func WithRegistryLogger(entry *logrus.Entry) RegistryOption {
	return func(o *registryOptions) {
		if entry != nil {
			o.logger = entry
		}
	}
}
