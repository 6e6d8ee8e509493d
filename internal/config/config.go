package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/tandemcode/tandem/internal/compact"
	"github.com/tandemcode/tandem/internal/corrector"
	"github.com/tandemcode/tandem/internal/parallel"
	"github.com/tandemcode/tandem/internal/permission"
	"github.com/tandemcode/tandem/internal/turn"
)

// Config aggregates the engine's settings. Zero values in the component
// sections fall back to the component defaults when the engine is built.
type Config struct {
	// Model is the primary generation model identifier.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`
	// SummaryModel is used for history folding; defaults to Model.
	SummaryModel string `json:"summaryModel,omitempty" yaml:"summaryModel,omitempty"`

	APIKey  string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	APIBase string `json:"apiBase,omitempty" yaml:"apiBase,omitempty"`

	LogLevel string `json:"logLevel,omitempty" yaml:"logLevel,omitempty"`

	Loop       turn.Config       `json:"loop,omitempty" yaml:"loop,omitempty"`
	Compaction compact.Config    `json:"compaction,omitempty" yaml:"compaction,omitempty"`
	Corrector  corrector.Config  `json:"corrector,omitempty" yaml:"corrector,omitempty"`
	Parallel   parallel.Config   `json:"parallel,omitempty" yaml:"parallel,omitempty"`
	Permission permission.Policy `json:"permission,omitempty" yaml:"permission,omitempty"`
}

// Load loads configuration from multiple sources (priority order):
// 1. Global config (~/.config/tandem/)
// 2. Project config (tandem.json / tandem.jsonc / tandem.yaml, then .tandem/)
// 3. TANDEM_CONFIG file
// 4. TANDEM_CONFIG_CONTENT inline JSON
// 5. Environment variables
func Load(directory string) (*Config, error) {
	// Project .env is convenience for API keys; absence is not an error.
	if directory != "" {
		_ = godotenv.Load(filepath.Join(directory, ".env"))
	}

	config := &Config{}

	loaded := make(map[string]bool)
	loadOnce := func(path string, baseDir string) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return
		}
		if loaded[absPath] {
			return
		}
		if loadConfigFile(path, config, baseDir) == nil {
			loaded[absPath] = true
		}
	}

	// 1. Global config
	globalPath := GetPaths().Config
	loadOnce(filepath.Join(globalPath, "tandem.json"), globalPath)
	loadOnce(filepath.Join(globalPath, "tandem.jsonc"), globalPath)
	loadOnce(filepath.Join(globalPath, "tandem.yaml"), globalPath)

	// 2. Project config
	if directory != "" {
		projectConfigDir := filepath.Join(directory, ".tandem")
		for _, name := range []string{"tandem.json", "tandem.jsonc", "tandem.yaml", "tandem.yml"} {
			loadOnce(filepath.Join(directory, name), directory)
			loadOnce(filepath.Join(projectConfigDir, name), projectConfigDir)
		}
	}

	// 3. TANDEM_CONFIG file override
	if configPath := os.Getenv("TANDEM_CONFIG"); configPath != "" {
		loadOnce(configPath, filepath.Dir(configPath))
	}

	// 4. TANDEM_CONFIG_CONTENT inline JSON
	if configContent := os.Getenv("TANDEM_CONFIG_CONTENT"); configContent != "" {
		var inline Config
		if err := json.Unmarshal(jsonc.ToJSON([]byte(configContent)), &inline); err == nil {
			mergeConfig(config, &inline)
		}
	}

	// 5. Environment variables (highest priority)
	applyEnvOverrides(config)

	return config, nil
}

// loadConfigFile loads a single config file with interpolation support.
// YAML files are detected by extension; everything else is parsed as JSONC.
func loadConfigFile(path string, config *Config, baseDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err // File doesn't exist, skip
	}

	data = interpolate(data, baseDir)

	var fileConfig Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fileConfig); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(data), &fileConfig); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	mergeConfig(config, &fileConfig)
	return nil
}

// interpolate processes {env:VAR} and {file:path} placeholders.
func interpolate(data []byte, baseDir string) []byte {
	str := string(data)

	envPattern := regexp.MustCompile(`\{env:([^}]+)\}`)
	str = envPattern.ReplaceAllStringFunc(str, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})

	filePattern := regexp.MustCompile(`\{file:([^}]+)\}`)
	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		filePath := filePattern.FindStringSubmatch(match)[1]

		if strings.HasPrefix(filePath, "~/") {
			home := os.Getenv("HOME")
			filePath = filepath.Join(home, filePath[2:])
		} else if !filepath.IsAbs(filePath) {
			filePath = filepath.Join(baseDir, filePath)
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return match // Keep original if file not found
		}

		escaped := strings.ReplaceAll(string(content), "\\", "\\\\")
		escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
		escaped = strings.ReplaceAll(escaped, "\n", "\\n")
		escaped = strings.ReplaceAll(escaped, "\r", "\\r")
		escaped = strings.ReplaceAll(escaped, "\t", "\\t")

		return escaped
	})

	return []byte(str)
}

// mergeConfig merges source config into target. Scalars overwrite when
// set; component sections merge field-wise so a project file can tune a
// single knob without restating the section.
func mergeConfig(target, source *Config) {
	if source.Model != "" {
		target.Model = source.Model
	}
	if source.SummaryModel != "" {
		target.SummaryModel = source.SummaryModel
	}
	if source.APIKey != "" {
		target.APIKey = source.APIKey
	}
	if source.APIBase != "" {
		target.APIBase = source.APIBase
	}
	if source.LogLevel != "" {
		target.LogLevel = source.LogLevel
	}

	mergeLoop(&target.Loop, source.Loop)
	mergeCompaction(&target.Compaction, source.Compaction)
	mergeCorrector(&target.Corrector, source.Corrector)
	mergeParallel(&target.Parallel, source.Parallel)
	mergePermission(&target.Permission, source.Permission)
}

func mergeLoop(target *turn.Config, source turn.Config) {
	if source.MaxIterations > 0 {
		target.MaxIterations = source.MaxIterations
	}
	if source.ChunkTimeout > 0 {
		target.ChunkTimeout = source.ChunkTimeout
	}
	if source.FirstChunkTimeout > 0 {
		target.FirstChunkTimeout = source.FirstChunkTimeout
	}
	if source.DetectWindow > 0 {
		target.DetectWindow = source.DetectWindow
	}
	if source.MaxTokens > 0 {
		target.MaxTokens = source.MaxTokens
	}
	if source.AutoCompress != nil {
		target.AutoCompress = source.AutoCompress
	}
}

func mergeCompaction(target *compact.Config, source compact.Config) {
	if source.TriggerRatio > 0 {
		target.TriggerRatio = source.TriggerRatio
	}
	if source.CriticalRatio > 0 {
		target.CriticalRatio = source.CriticalRatio
	}
	if source.TargetRatio > 0 {
		target.TargetRatio = source.TargetRatio
	}
	if source.CriticalTargetRatio > 0 {
		target.CriticalTargetRatio = source.CriticalTargetRatio
	}
	if source.KeepRecent > 0 {
		target.KeepRecent = source.KeepRecent
	}
	if source.CriticalKeepRecent > 0 {
		target.CriticalKeepRecent = source.CriticalKeepRecent
	}
	if source.SummaryMaxTokens > 0 {
		target.SummaryMaxTokens = source.SummaryMaxTokens
	}
	if source.MinBatchTokens > 0 {
		target.MinBatchTokens = source.MinBatchTokens
	}
	if source.BatchCount > 0 {
		target.BatchCount = source.BatchCount
	}
	if source.DefaultLimit > 0 {
		target.DefaultLimit = source.DefaultLimit
	}
}

func mergeCorrector(target *corrector.Config, source corrector.Config) {
	if source.MaxHistory > 0 {
		target.MaxHistory = source.MaxHistory
	}
	if source.Window > 0 {
		target.Window = source.Window
	}
	if source.ReadWarn > 0 {
		target.ReadWarn = source.ReadWarn
	}
	if source.ReadRestrict > 0 {
		target.ReadRestrict = source.ReadRestrict
	}
	if source.ReadForceEdit > 0 {
		target.ReadForceEdit = source.ReadForceEdit
	}
	if source.ReadReset > 0 {
		target.ReadReset = source.ReadReset
	}
	if source.SyntaxGlobalHalt > 0 {
		target.SyntaxGlobalHalt = source.SyntaxGlobalHalt
	}
	if source.SyntaxFileHalt > 0 {
		target.SyntaxFileHalt = source.SyntaxFileHalt
	}
	if source.SyntaxFileWarn > 0 {
		target.SyntaxFileWarn = source.SyntaxFileWarn
	}
	if source.RepetitionRun > 0 {
		target.RepetitionRun = source.RepetitionRun
	}
	if source.RepetitionSuccessRate > 0 {
		target.RepetitionSuccessRate = source.RepetitionSuccessRate
	}
	if len(source.ReadTools) > 0 {
		target.ReadTools = source.ReadTools
	}
	if len(source.EditTools) > 0 {
		target.EditTools = source.EditTools
	}
}

func mergeParallel(target *parallel.Config, source parallel.Config) {
	if source.MaxBatch > 0 {
		target.MaxBatch = source.MaxBatch
	}
	if len(source.ReadTools) > 0 {
		target.ReadTools = source.ReadTools
	}
	if len(source.WriteTools) > 0 {
		target.WriteTools = source.WriteTools
	}
}

func mergePermission(target *permission.Policy, source permission.Policy) {
	if source.Edit != "" {
		target.Edit = source.Edit
	}
	if source.Shell != nil {
		if target.Shell == nil {
			target.Shell = make(map[string]permission.Action)
		}
		for k, v := range source.Shell {
			target.Shell[k] = v
		}
	}
	if len(source.AllowedPaths) > 0 {
		target.AllowedPaths = source.AllowedPaths
	}
	if len(source.ShellTools) > 0 {
		target.ShellTools = source.ShellTools
	}
	if len(source.EditTools) > 0 {
		target.EditTools = source.EditTools
	}
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(config *Config) {
	if model := os.Getenv("TANDEM_MODEL"); model != "" {
		config.Model = model
	}
	if model := os.Getenv("TANDEM_SUMMARY_MODEL"); model != "" {
		config.SummaryModel = model
	}
	if base := os.Getenv("TANDEM_API_BASE"); base != "" {
		config.APIBase = base
	}
	if level := os.Getenv("TANDEM_LOG_LEVEL"); level != "" {
		config.LogLevel = level
	}

	if config.APIKey == "" {
		for _, envVar := range []string{"TANDEM_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY"} {
			if key := os.Getenv(envVar); key != "" {
				config.APIKey = key
				break
			}
		}
	}

	// Permission override (JSON)
	if permJSON := os.Getenv("TANDEM_PERMISSION"); permJSON != "" {
		var policy permission.Policy
		if err := json.Unmarshal([]byte(permJSON), &policy); err == nil {
			config.Permission = policy
		}
	}
}

// Save saves the configuration to a file.
func Save(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
