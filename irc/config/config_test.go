package config_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Kufat/inspircd/irc/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlConfig = `
server:
  name: irc.test.net
  sid: 0AB
  network: TestNet
  port: 6697
links:
  - name: services.test.net
    address: 127.0.0.1:7000
    password: linkpass
ulines:
  - services.test.net
operators:
  - username: admin
    password: $2a$10$abcdefghijklmnopqrstuu
    privileges: [channels/auspex]
modules:
  gender:
    enabled: true
    oneline: true
  auditorium:
    enabled: true
    opvisible: true
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadYAML(t *testing.T) {
	cfg, err := config.Load(writeFile(t, "ircd.yaml", yamlConfig))
	require.NoError(t, err)

	assert.Equal(t, "irc.test.net", cfg.Server.Name)
	assert.Equal(t, "0AB", cfg.Server.SID)
	assert.Equal(t, 6697, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:6697", cfg.GetListenAddress())

	require.Len(t, cfg.Links, 1)
	link, ok := cfg.FindLink("SERVICES.test.net")
	assert.True(t, ok)
	assert.Equal(t, "linkpass", link.Password)
	assert.True(t, cfg.IsULine("services.test.net"))
	assert.False(t, cfg.IsULine("irc.test.net"))

	require.Len(t, cfg.Operators, 1)
	assert.Equal(t, []string{"channels/auspex"}, cfg.Operators[0].Privileges)

	// Explicit values and defaults side by side
	assert.True(t, cfg.Modules.Gender.OneLine)
	assert.True(t, cfg.Modules.Auditorium.OpVisible)
	assert.False(t, cfg.Modules.Auditorium.OpCanSee)
	assert.True(t, cfg.Modules.Auditorium.OperCanSee)
	assert.True(t, cfg.Modules.RestrictMsg.Enabled)
	assert.Equal(t, "sqlite", cfg.Persistence.Driver)
	assert.Equal(t, "", cfg.GetLinkListenAddress())
}

func TestLoadTOMLAndJSON(t *testing.T) {
	toml := `
[server]
name = "irc.toml.net"
sid = "0TM"
network = "TomlNet"
`
	cfg, err := config.Load(writeFile(t, "ircd.toml", toml))
	require.NoError(t, err)
	assert.Equal(t, "irc.toml.net", cfg.Server.Name)

	json := `{"server": {"name": "irc.json.net", "sid": "0JS", "network": "JsonNet"}}`
	cfg, err = config.Load(writeFile(t, "ircd.json", json))
	require.NoError(t, err)
	assert.Equal(t, "0JS", cfg.Server.SID)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("IRCD_SERVER_NAME", "env.test.net")
	t.Setenv("IRCD_PORT", "7001")
	t.Setenv("IRCD_GENDER_ONELINE", "false")
	t.Setenv("IRCD_ULINES", "a.test.net,b.test.net")

	cfg, err := config.Load(writeFile(t, "ircd.yaml", yamlConfig))
	require.NoError(t, err)

	assert.Equal(t, "env.test.net", cfg.Server.Name)
	assert.Equal(t, 7001, cfg.Server.Port)
	assert.False(t, cfg.Modules.Gender.OneLine)
	assert.Equal(t, []string{"a.test.net", "b.test.net"}, cfg.ULines)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad sid", "server:\n  name: irc.test.net\n  sid: TOOLONG\n  network: N\n"},
		{"bad port", "server:\n  name: irc.test.net\n  sid: 0AB\n  network: N\n  port: 70000\n"},
		{"link without password", "server:\n  name: irc.test.net\n  sid: 0AB\n  network: N\nlinks:\n  - name: peer.test.net\n"},
		{"link to self", "server:\n  name: irc.test.net\n  sid: 0AB\n  network: N\nlinks:\n  - name: irc.test.net\n    password: x\n"},
		{"unknown driver", "server:\n  name: irc.test.net\n  sid: 0AB\n  network: N\npersistence:\n  driver: oracle\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeFile(t, "ircd.yaml", tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestReloadKeepsConfigOnError(t *testing.T) {
	path := writeFile(t, "ircd.yaml", yamlConfig)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("server:\n  sid: BAD!\n"), 0o600))
	assert.Error(t, cfg.Reload(""))
	assert.Equal(t, "irc.test.net", cfg.Server.Name, "Failed reload must not clobber the config")

	require.NoError(t, os.WriteFile(path, []byte("server:\n  name: irc.new.net\n  sid: 0AB\n  network: N\n"), 0o600))
	require.NoError(t, cfg.Reload(""))
	assert.Equal(t, "irc.new.net", cfg.Server.Name)
}

func TestWatch(t *testing.T) {
	config.WatchDebounce = 20 * time.Millisecond
	path := writeFile(t, "ircd.yaml", yamlConfig)

	var fired atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- config.Watch(ctx, path, func() { fired.Add(1) }) }()

	// Give the watcher a moment to register
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(yamlConfig+"\n"), 0o600))

	assert.Eventually(t, func() bool { return fired.Load() > 0 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
