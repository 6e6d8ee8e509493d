// Package config provides configuration loading, merging, and path management for tandem.
//
// # Configuration Loading
//
// The Load function searches for and merges configuration from multiple
// sources in priority order:
//
//  1. Global config (~/.config/tandem/ - XDG compatible)
//  2. Project configs (tandem.json/tandem.jsonc/tandem.yaml and
//     .tandem/ equivalents in the working directory)
//  3. TANDEM_CONFIG file
//  4. TANDEM_CONFIG_CONTENT inline JSON
//  5. Environment variables
//
// More specific configurations override more general ones; environment
// variables have the highest precedence.
//
// # Supported Formats
//
// The package supports JSON, JSONC (JSON with Comments, processed using
// tidwall/jsonc) and YAML. A project .env file, when present, is loaded
// before config files so secrets can live outside the config.
//
// # Variable Interpolation
//
// Configuration files support two types of variable interpolation:
//   - {env:VAR_NAME} - Expands to environment variable values
//   - {file:path} - Expands to file contents (properly escaped for JSON)
//
// File paths in {file:path} placeholders support absolute paths, paths
// relative to the config file's directory, and home expansion (~/).
//
// Example:
//
//	{
//	  "model": "claude-sonnet-4",
//	  "apiKey": "{env:TANDEM_API_KEY}",
//	  "compaction": {
//	    "triggerRatio": 0.85
//	  }
//	}
//
// # Environment Variable Overrides
//
//   - TANDEM_MODEL - Override the generation model
//   - TANDEM_SUMMARY_MODEL - Override the folding model
//   - TANDEM_API_BASE - Override the provider endpoint
//   - TANDEM_LOG_LEVEL - Override the log level
//   - TANDEM_API_KEY - Provider credential (ANTHROPIC_API_KEY and
//     OPENAI_API_KEY are recognized fallbacks)
//   - TANDEM_PERMISSION - JSON string for the permission policy
//   - TANDEM_CONFIG - Path to a specific config file
//   - TANDEM_CONFIG_CONTENT - Inline JSON configuration
package config
