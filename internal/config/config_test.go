package config

import (
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) LookupEnv {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load([]string{"-env", ""}, noEnv, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, 8082, cfg.Port)
	assert.Equal(t, "http://localhost:5000", cfg.APIBaseURL)
	assert.Equal(t, "votedesk.db", cfg.DBPath)
	assert.Equal(t, 9, cfg.PageSize)
	assert.Equal(t, time.Second, cfg.TickInterval)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, ":8082", cfg.Addr())
	assert.Equal(t, "http://localhost:8082", cfg.LocalURL())
}

func TestLoad_Precedence(t *testing.T) {
	yamlPath := writeFile(t, "votedesk.yaml", `
port: 9000
api_base_url: https://yaml.example.org
page_size: 12
tick_interval: 2s
log_level: warn
`)
	envPath := writeFile(t, ".env", "VOTEDESK_PAGE_SIZE=15\nVOTEDESK_API_URL=https://dotenv.example.org\n")

	lookup := envMap(map[string]string{"VOTEDESK_API_URL": "https://process.example.org"})

	cfg, err := Load([]string{"-config", yamlPath, "-env", envPath, "-port", "9100"}, lookup, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port, "flag beats yaml")
	assert.Equal(t, "https://process.example.org", cfg.APIBaseURL, "process env beats .env and yaml")
	assert.Equal(t, 15, cfg.PageSize, ".env beats yaml")
	assert.Equal(t, 2*time.Second, cfg.TickInterval, "yaml beats default")
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_ConfigFromEnv(t *testing.T) {
	yamlPath := writeFile(t, "c.yaml", "db: /tmp/other.db\n")
	cfg, err := Load([]string{"-env", ""}, envMap(map[string]string{"VOTEDESK_CONFIG": yamlPath}), io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other.db", cfg.DBPath)
}

func TestLoad_UnknownYAMLField(t *testing.T) {
	yamlPath := writeFile(t, "bad.yaml", "prot: 9000\n")
	_, err := Load([]string{"-config", yamlPath, "-env", ""}, noEnv, io.Discard)
	assert.Error(t, err)
}

func TestLoad_MissingDefaultEnvFileIsIgnored(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })

	_, err := Load(nil, noEnv, io.Discard)
	assert.NoError(t, err)
}

func TestLoad_MissingExplicitEnvFile(t *testing.T) {
	_, err := Load([]string{"-env", filepath.Join(t.TempDir(), "missing.env")}, noEnv, io.Discard)
	assert.Error(t, err)
}

func TestLoad_BadEnvValues(t *testing.T) {
	for key, value := range map[string]string{
		"VOTEDESK_PORT":       "eighty",
		"VOTEDESK_TICK":       "often",
		"VOTEDESK_NO_BROWSER": "maybe",
	} {
		_, err := Load([]string{"-env", ""}, envMap(map[string]string{key: value}), io.Discard)
		assert.Error(t, err, key)
	}
}

func TestLoad_ShareURL(t *testing.T) {
	cfg, err := Load([]string{"-env", ""}, envMap(map[string]string{"VOTEDESK_SHARE_URL": "http://10.0.0.2:8082"}), io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.2:8082", cfg.ShareURL)

	cfg, err = Load([]string{"-env", "", "-share", "https://vote.example.org"}, envMap(map[string]string{"VOTEDESK_SHARE_URL": "http://10.0.0.2:8082"}), io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "https://vote.example.org", cfg.ShareURL)
}

func TestLoad_Help(t *testing.T) {
	_, err := Load([]string{"-help"}, noEnv, io.Discard)
	assert.True(t, errors.Is(err, flag.ErrHelp))
}

func TestValidate(t *testing.T) {
	base := Default()
	require.NoError(t, base.Validate())

	tests := map[string]func(*Config){
		"port zero":       func(c *Config) { c.Port = 0 },
		"port too large":  func(c *Config) { c.Port = 70000 },
		"relative api":    func(c *Config) { c.APIBaseURL = "/api" },
		"ftp api":         func(c *Config) { c.APIBaseURL = "ftp://host" },
		"empty db":        func(c *Config) { c.DBPath = "" },
		"page size zero":  func(c *Config) { c.PageSize = 0 },
		"page size large": func(c *Config) { c.PageSize = 101 },
		"zero tick":       func(c *Config) { c.TickInterval = 0 },
		"zero timeout":    func(c *Config) { c.RequestTimeout = 0 },
		"relative share":  func(c *Config) { c.ShareURL = "vote.local" },
	}
	for name, mutate := range tests {
		c := Default()
		mutate(&c)
		assert.Error(t, c.Validate(), name)
	}
}
