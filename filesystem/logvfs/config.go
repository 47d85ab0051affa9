package logvfs

import "github.com/sirupsen/logrus"

// Option configures a Mount at Create/Read time using the functional-option pattern, since none of
// these knobs are mandatory positional arguments.
type Option func(*mountConfig)

type mountConfig struct {
	blockSize uint32
	logger    logrus.FieldLogger
	clock     func() Timestamp
}

func defaultConfig() *mountConfig {
	return &mountConfig{
		blockSize: DefaultBlockSize,
		logger:    logrus.StandardLogger(),
		clock:     Now,
	}
}

// WithBlockSize overrides the advisory block size recorded in the Header on Create. Ignored by Read,
// since an existing file's block size comes from its persisted Header.
func WithBlockSize(size uint32) Option {
	return func(c *mountConfig) { c.blockSize = size }
}

// WithLogger overrides the logrus.FieldLogger used for mount/replay/checkpoint diagnostics. Defaults
// to logrus.StandardLogger().
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *mountConfig) { c.logger = l }
}

// WithClock overrides the source of "now" for timestamps this Mount produces (new inodes and the
// SetTimes records that follow writes, truncates and renames). Defaults to Now, which honors SOURCE_DATE_EPOCH. Tests use this to
// pin timestamps to deterministic values.
func WithClock(clock func() Timestamp) Option {
	return func(c *mountConfig) { c.clock = clock }
}
