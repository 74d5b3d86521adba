package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	req := require.New(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	req.NoError(err)
	req.Equal(8080, cfg.App.Port)
	req.Equal(50, cfg.WS.HistoryLimit)
	req.Equal(256, cfg.WS.SendBuffer)
	req.Equal(25*time.Second, cfg.PingInterval)
	req.Equal(60*time.Second, cfg.ReadDeadline)
	req.Equal(10*time.Second, cfg.WriteDeadline)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	req := require.New(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	req.NoError(os.WriteFile(path, []byte(`
app:
  port: 9090
mongo:
  uri: mongodb://localhost:27017
  db: chat
ws:
  history_limit: 25
  ping_interval_seconds: 5
`), 0o600))

	cfg, err := Load(path)
	req.NoError(err)
	req.Equal(9090, cfg.App.Port)
	req.Equal("mongodb://localhost:27017", cfg.Mongo.URI)
	req.Equal(25, cfg.WS.HistoryLimit)
	req.Equal(5*time.Second, cfg.PingInterval)
	// untouched keys keep their defaults
	req.Equal(int64(64*1024), cfg.WS.MaxMessageSizeBytes)
}
