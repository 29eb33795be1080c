package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	config, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "Fediverse Node", config.ServerName)
	assert.Equal(t, "http://localhost:8080", config.ServerURL)
	assert.Equal(t, "alice", config.ActorName)
	assert.Equal(t, 8080, config.PortNumber())
	assert.False(t, config.AutoAcceptFollows)
	assert.False(t, config.AllowInsecureSignatures)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_NAME", "My Node")
	t.Setenv("SERVER_URL", "https://fedi.example")
	t.Setenv("PORT", "9000")
	t.Setenv("ACTOR_NAME", "carol")
	t.Setenv("AUTO_ACCEPT_FOLLOWS", "true")

	config, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "My Node", config.ServerName)
	assert.Equal(t, "https://fedi.example", config.ServerURL)
	assert.Equal(t, 9000, config.PortNumber())
	assert.Equal(t, "carol", config.ActorName)
	assert.True(t, config.AutoAcceptFollows)
}

func TestPortNumberFallsBackOnGarbage(t *testing.T) {
	for _, port := range []string{"not-a-port", "-1", "0", "70000", ""} {
		assert.Equal(t, 8080, Config{Port: port}.PortNumber(), "PORT=%q", port)
	}
}

func TestNodeConfigDerivation(t *testing.T) {
	t.Setenv("SERVER_URL", "https://fedi.example")

	config, err := LoadConfig()
	require.NoError(t, err)

	nodeConfig := config.NodeConfig("1.2.3")
	assert.Equal(t, "fedi.example", nodeConfig.Host())
	assert.Equal(t, "https://fedi.example/users/alice", nodeConfig.ActorID("alice"))
	assert.Equal(t, "https://fedi.example/users/alice#main-key", nodeConfig.KeyID("alice"))
	assert.Equal(t, "1.2.3", nodeConfig.Version)
}
