package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	intconfig "github.com/mking01/spark-data-lakes/internal/config"
)

// loggerKey is used to store the logger in the command context.
type loggerKey struct{}

// configKey is used to store the resolved config in the command context.
type configKey struct{}

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

var configFileUsed string

// configExistsIn checks if a sparkify config file exists in the directory.
func configExistsIn(dir string) string {
	for _, name := range []string{"sparkify.yaml", "sparkify.yml"} {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// findProjectRoot searches upward from the working directory for a
// sparkify config file. Falls back to the working directory itself.
func findProjectRoot() string {
	cwd, err := os.Getwd()
	if err != nil || cwd == "" {
		return "."
	}

	dir := cwd
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if configExistsIn(dir) != "" {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return cwd
}

// resolvePathRelativeTo resolves a path relative to baseDir if it is not
// already absolute. Remote URIs pass through unchanged.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) || IsRemoteRoot(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// LoadConfig loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults.
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")
	configFileUsed = ""

	// Anchor relative paths at the project root: the directory of an
	// explicit --config file, or the nearest ancestor with sparkify.yaml.
	projectRoot := findProjectRoot()
	if cfgFile != "" {
		if abs, err := filepath.Abs(cfgFile); err == nil {
			projectRoot = filepath.Dir(abs)
		}
	}

	// 1. Defaults.
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"input_root":       "",
		"output_root":      "",
		"credentials_file": intconfig.DefaultCredentialsFile,
		"region":           intconfig.DefaultRegion,
		"state_path":       intconfig.DefaultStateFile,
		"environment":      intconfig.DefaultEnv,
		"workers":          intconfig.DefaultWorkers,
		"compression":      intconfig.DefaultCompression,
		"verbose":          false,
		"output":           intconfig.DefaultOutput,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file.
	if cfgFile == "" {
		cfgFile = configExistsIn(projectRoot)
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
		configFileUsed = cfgFile
	}

	// 3. Environment variables: SPARKIFY_INPUT_ROOT -> input_root.
	if err := k.Load(env.Provider("SPARKIFY_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "SPARKIFY_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags (highest priority, only those explicitly set).
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")

			// The CLI uses --state and --env for brevity; the config
			// struct uses state_path and environment for clarity.
			switch key {
			case "state":
				key = "state_path"
			case "env":
				key = "environment"
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal into the Config struct.
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// 6. Expand ${VAR} references and anchor relative local paths.
	cfg.InputRoot = expandEnvVars(cfg.InputRoot)
	cfg.OutputRoot = expandEnvVars(cfg.OutputRoot)
	cfg.CredentialsFile = expandEnvVars(cfg.CredentialsFile)

	cfg.ProjectRoot = projectRoot
	cfg.InputRoot = resolvePathRelativeTo(cfg.InputRoot, projectRoot)
	cfg.OutputRoot = resolvePathRelativeTo(cfg.OutputRoot, projectRoot)
	cfg.CredentialsFile = resolvePathRelativeTo(cfg.CredentialsFile, projectRoot)
	cfg.StatePath = resolvePathRelativeTo(cfg.StatePath, projectRoot)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// LoggerKey returns the context key used for storing the logger. This
// lets the commands package retrieve the logger from context without an
// import cycle with the cli package.
func LoggerKey() interface{} {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}

// ConfigKey returns the context key used for storing the config.
func ConfigKey() interface{} {
	return configKey{}
}

// GetConfig retrieves the config from the command context.
func GetConfig(ctx context.Context) *Config {
	if c, ok := ctx.Value(configKey{}).(*Config); ok {
		return c
	}
	// Return default config if none in context
	return &Config{
		CredentialsFile: intconfig.DefaultCredentialsFile,
		Region:          intconfig.DefaultRegion,
		StatePath:       intconfig.DefaultStateFile,
		Environment:     intconfig.DefaultEnv,
		Workers:         intconfig.DefaultWorkers,
		Compression:     intconfig.DefaultCompression,
		OutputFormat:    intconfig.DefaultOutput,
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns with environment variable values.
// Unknown variables are left untouched.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})
}
