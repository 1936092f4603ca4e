package cfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func resetConfig(t *testing.T) {
	t.Helper()
	saved := *Config
	t.Cleanup(func() { *Config = saved })
}

func TestDefaults(t *testing.T) {
	resetConfig(t)

	require.Equal(t, int32(500), Config.Catalog.MaxTables)
	require.Equal(t, int32(200), Config.Catalog.MaxColumnsPerTable)
	require.Equal(t, 1000, Config.Catalog.MaxFilesSelectedOnce)
	require.Equal(t, 4, Config.Store.ReadPoolSize)
	require.NoError(t, Validate())
}

func TestLoadFromFile(t *testing.T) {
	resetConfig(t)

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[catalog]
max_tables = 42
max_files_selected_once = 10

[store]
path = ":memory:"
busy_timeout_ms = 100

[logging]
format = "json"
`), 0644))

	require.NoError(t, Load(path))
	require.Equal(t, int32(42), Config.Catalog.MaxTables)
	require.Equal(t, int32(200), Config.Catalog.MaxColumnsPerTable, "unset keys keep defaults")
	require.Equal(t, 10, Config.Catalog.MaxFilesSelectedOnce)
	require.Equal(t, ":memory:", Config.Store.Path)
	require.Equal(t, "json", Config.Logging.Format)
	require.NoError(t, Validate())
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	resetConfig(t)

	require.NoError(t, Load(filepath.Join(t.TempDir(), "nope.toml")))
	require.Equal(t, int32(500), Config.Catalog.MaxTables)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func()
	}{
		{"zero max tables", func() { Config.Catalog.MaxTables = 0 }},
		{"zero max columns", func() { Config.Catalog.MaxColumnsPerTable = 0 }},
		{"zero sweep cap", func() { Config.Catalog.MaxFilesSelectedOnce = 0 }},
		{"empty store path", func() { Config.Store.Path = "" }},
		{"negative busy timeout", func() { Config.Store.BusyTimeoutMS = -1 }},
		{"zero read pool", func() { Config.Store.ReadPoolSize = 0 }},
		{"bad prometheus port", func() { Config.Prometheus.Enabled = true; Config.Prometheus.Port = 0 }},
		{"bad log format", func() { Config.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetConfig(t)
			tt.mutate()
			require.Error(t, Validate())
		})
	}
}
