package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tandemcode/tandem/internal/permission"
)

// isolate points every config source at throwaway directories so tests
// never read the developer's real configuration.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	for _, v := range []string{
		"TANDEM_CONFIG", "TANDEM_CONFIG_CONTENT", "TANDEM_MODEL",
		"TANDEM_SUMMARY_MODEL", "TANDEM_API_BASE", "TANDEM_LOG_LEVEL",
		"TANDEM_API_KEY", "TANDEM_PERMISSION",
		"ANTHROPIC_API_KEY", "OPENAI_API_KEY",
	} {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}
	return home
}

func writeProjectConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoadProjectJSONC(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeProjectConfig(t, dir, "tandem.jsonc", `{
		// primary model
		"model": "claude-sonnet-4-20250514",
		"loop": {
			"maxIterations": 8, // raised for long tasks
		},
	}`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.Model)
	assert.Equal(t, 8, cfg.Loop.MaxIterations)
}

func TestLoadProjectYAML(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeProjectConfig(t, dir, "tandem.yaml", `
model: gpt-4o
logLevel: debug
corrector:
  readReset: 12
compaction:
  triggerRatio: 0.9
`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 12, cfg.Corrector.ReadReset)
	assert.InDelta(t, 0.9, cfg.Compaction.TriggerRatio, 1e-9)
}

func TestLoadDotDirectoryConfig(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeProjectConfig(t, dir, ".tandem/tandem.json", `{"model": "hidden-model"}`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "hidden-model", cfg.Model)
}

func TestProjectOverridesGlobal(t *testing.T) {
	home := isolate(t)
	globalDir := filepath.Join(home, ".config", "tandem")
	writeProjectConfig(t, globalDir, "tandem.json", `{
		"model": "global-model",
		"logLevel": "warn"
	}`)

	dir := t.TempDir()
	writeProjectConfig(t, dir, "tandem.json", `{"model": "project-model"}`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "project-model", cfg.Model)
	// Untouched fields keep the global value.
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestEnvOverridesEverything(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeProjectConfig(t, dir, "tandem.json", `{"model": "file-model", "apiBase": "https://file.example"}`)
	t.Setenv("TANDEM_MODEL", "env-model")
	t.Setenv("TANDEM_API_BASE", "https://env.example")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "env-model", cfg.Model)
	assert.Equal(t, "https://env.example", cfg.APIBase)
}

func TestAPIKeyFallbackChain(t *testing.T) {
	isolate(t)
	t.Setenv("OPENAI_API_KEY", "sk-openai")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "sk-openai", cfg.APIKey)

	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	cfg, err = Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "sk-ant", cfg.APIKey)

	t.Setenv("TANDEM_API_KEY", "sk-tandem")
	cfg, err = Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "sk-tandem", cfg.APIKey)
}

func TestConfigFileKeyBeatsEnvFallback(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeProjectConfig(t, dir, "tandem.json", `{"apiKey": "sk-from-file"}`)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "sk-from-file", cfg.APIKey)
}

func TestInlineConfigContent(t *testing.T) {
	isolate(t)
	t.Setenv("TANDEM_CONFIG_CONTENT", `{"model": "inline-model", "parallel": {"maxBatch": 3}}`)

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "inline-model", cfg.Model)
	assert.Equal(t, 3, cfg.Parallel.MaxBatch)
}

func TestConfigPathOverride(t *testing.T) {
	isolate(t)
	alt := t.TempDir()
	writeProjectConfig(t, alt, "custom.json", `{"model": "custom-model"}`)
	t.Setenv("TANDEM_CONFIG", filepath.Join(alt, "custom.json"))

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "custom-model", cfg.Model)
}

func TestInterpolateEnv(t *testing.T) {
	isolate(t)
	t.Setenv("MY_MODEL", "interp-model")
	dir := t.TempDir()
	writeProjectConfig(t, dir, "tandem.json", `{"model": "{env:MY_MODEL}"}`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "interp-model", cfg.Model)
}

func TestInterpolateFile(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "key.txt"), []byte("sk-secret"), 0600))
	writeProjectConfig(t, dir, "tandem.json", `{"apiKey": "{file:key.txt}"}`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "sk-secret", cfg.APIKey)
}

func TestInterpolateFileMissingKeepsPlaceholder(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeProjectConfig(t, dir, "tandem.json", `{"apiKey": "{file:missing.txt}"}`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "{file:missing.txt}", cfg.APIKey)
}

func TestPermissionFromEnv(t *testing.T) {
	isolate(t)
	t.Setenv("TANDEM_PERMISSION", `{"edit": "allow", "shell": {"git *": "allow", "rm *": "deny"}}`)

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, permission.ActionAllow, cfg.Permission.Edit)
	assert.Equal(t, permission.ActionDeny, cfg.Permission.Shell["rm *"])
}

func TestDotEnvLoaded(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeProjectConfig(t, dir, ".env", "TANDEM_MODEL=dotenv-model\n")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "dotenv-model", cfg.Model)
}

func TestAutoCompressTrueWins(t *testing.T) {
	home := isolate(t)
	globalDir := filepath.Join(home, ".config", "tandem")
	writeProjectConfig(t, globalDir, "tandem.json", `{"loop": {"autoCompress": true}}`)

	dir := t.TempDir()
	writeProjectConfig(t, dir, "tandem.json", `{"loop": {"maxIterations": 4}}`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg.Loop.AutoCompress)
	assert.True(t, *cfg.Loop.AutoCompress)
	assert.Equal(t, 4, cfg.Loop.MaxIterations)
}

func TestAutoCompressExplicitFalseSurvivesMerge(t *testing.T) {
	home := isolate(t)
	globalDir := filepath.Join(home, ".config", "tandem")
	writeProjectConfig(t, globalDir, "tandem.json", `{"loop": {"autoCompress": true}}`)

	dir := t.TempDir()
	writeProjectConfig(t, dir, "tandem.json", `{"loop": {"autoCompress": false}}`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg.Loop.AutoCompress)
	assert.False(t, *cfg.Loop.AutoCompress)
}

func TestLoadMissingDirectoryIsEmptyConfig(t *testing.T) {
	isolate(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Model)
}

func TestSaveRoundTrip(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "tandem.json")

	cfg := &Config{Model: "saved-model", LogLevel: "info"}
	require.NoError(t, Save(cfg, path))

	loaded := &Config{}
	require.NoError(t, loadConfigFile(path, loaded, dir))
	assert.Equal(t, "saved-model", loaded.Model)
	assert.Equal(t, "info", loaded.LogLevel)
}

func TestGetPathsHonorsXDG(t *testing.T) {
	isolate(t)
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	p := GetPaths()
	assert.Equal(t, filepath.Join("/custom/config", "tandem"), p.Config)
}
