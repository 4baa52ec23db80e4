package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile_ExampleConfig(t *testing.T) {
	for _, key := range []string{"PORT", "PLACEMAP_MASTER_KEY", "STORAGE_TYPE", "GEOIP_DATABASE", "LOG_FORMAT"} {
		t.Setenv(key, "")
	}

	cfg, err := LoadFile("config.example.yaml")
	require.NoError(t, err)

	defaults := buildDefaultConfig()
	assert.Equal(t, defaults.Server.Port, cfg.Server.Port)
	assert.Equal(t, defaults.Search, cfg.Search)
	assert.Equal(t, defaults.Sessions, cfg.Sessions)
	assert.Equal(t, defaults.Storage.Type, cfg.Storage.Type)
	assert.Equal(t, defaults.Providers.SearchURL, cfg.Providers.SearchURL)
	assert.Empty(t, cfg.Server.MasterKey)
	assert.Empty(t, cfg.Providers.GeoIPDatabase)
}

func TestLoadFile_ExampleConfigFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORAGE_TYPE", "memory")

	cfg, err := LoadFile("config.example.yaml")
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Storage.Type)
}
