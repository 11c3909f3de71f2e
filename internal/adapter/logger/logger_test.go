package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, lvl)

	lvl, err = ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestConfigure_JSONToFile(t *testing.T) {
	l := logrus.New()
	path := filepath.Join(t.TempDir(), "run.log")

	closer, err := configure(l, logrus.WarnLevel, "json", path)
	require.NoError(t, err)

	l.Info("dropped")
	l.WithField("row", 3).Warn("kept")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), `"msg":"kept"`)
	assert.Contains(t, string(data), `"row":3`)
}

func TestConfigure_BadFileFallsBack(t *testing.T) {
	l := logrus.New()
	path := filepath.Join(t.TempDir(), "missing", "run.log")

	closer, err := configure(l, logrus.InfoLevel, "text", path)
	require.NoError(t, err)
	assert.NoError(t, closer.Close())
	assert.Equal(t, os.Stderr, l.Out)
}

func TestConfigure_UnknownFormat(t *testing.T) {
	_, err := configure(logrus.New(), logrus.InfoLevel, "xml", "")
	assert.Error(t, err)
}
