package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/go-dap4/dap4"
)

func TestDefaults(t *testing.T) {
	c, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, "text", c.LogFormat)
	assert.Equal(t, []string{"mem", "netcdf", "nc4"}, c.Backends)
	assert.Empty(t, c.Fixtures)
	assert.Equal(t, 4, c.Concurrency)
	assert.Equal(t, dap4.ChecksumDAP, c.ChecksumMode())
	assert.Equal(t, dap4.AlgorithmCRC32, c.ChecksumAlgorithm())
}

func TestFileAndEnvironment(t *testing.T) {
	file := filepath.Join(t.TempDir(), "dap4.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
log-level: debug
checksum: all
checksum-algorithm: lookup3
backends: [nc4, mem]
fixtures: [a.yaml, b.yaml]
`), 0o644))
	t.Setenv("DAP4_CONCURRENCY", "8")
	t.Setenv("DAP4_LOG_FORMAT", "json")

	c, err := Load(New(), file)
	require.NoError(t, err)
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, "json", c.LogFormat)
	assert.Equal(t, dap4.ChecksumAll, c.ChecksumMode())
	assert.Equal(t, dap4.AlgorithmLookup3, c.ChecksumAlgorithm())
	assert.Equal(t, []string{"nc4", "mem"}, c.Backends)
	assert.Equal(t, []string{"a.yaml", "b.yaml"}, c.Fixtures)
	assert.Equal(t, 8, c.Concurrency)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "dap4.yaml")
	require.NoError(t, os.WriteFile(file, []byte("checksum: dmr\n"), 0o644))
	t.Setenv("DAP4_CHECKSUM", "none")

	c, err := Load(New(), file)
	require.NoError(t, err)
	assert.Equal(t, dap4.ChecksumNone, c.ChecksumMode())
}

func TestMissingFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	c := &Config{
		LogLevel:    "loud",
		LogFormat:   "xml",
		Checksum:    "sometimes",
		Algorithm:   "md5",
		Backends:    []string{"mem", "grib"},
		Concurrency: 0,
	}
	err := c.Validate()
	require.Error(t, err)
	for _, want := range []string{"log-level", "log-format", "checksum", "checksum-algorithm", `unknown backend "grib"`, "concurrency"} {
		assert.Contains(t, err.Error(), want)
	}

	c = &Config{LogLevel: "warn", LogFormat: "text", Checksum: "null", Backends: []string{"netcdf"}, Concurrency: 1}
	assert.NoError(t, c.Validate())
	assert.Equal(t, dap4.AlgorithmCRC32, c.ChecksumAlgorithm())
	c.Algorithm = "Fletcher32"
	assert.NoError(t, c.Validate())
	assert.Equal(t, dap4.AlgorithmFletcher32, c.ChecksumAlgorithm())
	c.Backends = nil
	assert.Error(t, c.Validate())
}

func TestLogger(t *testing.T) {
	c := &Config{LogLevel: "debug", LogFormat: "json"}
	log, err := c.Logger()
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)

	c.LogLevel = "nope"
	_, err = c.Logger()
	assert.Error(t, err)
}
