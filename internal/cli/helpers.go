package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelfetch-dev/modelfetch/internal/logger"
	"github.com/modelfetch-dev/modelfetch/pkg/config"
	"github.com/modelfetch-dev/modelfetch/pkg/orchestrator"
)

// These variables will be set by the main package
var (
	ConfigPath *string
	Verbose    *bool
)

// ExitCodeError carries a process exit code through cobra's error path.
type ExitCodeError struct {
	Code int
	Err  error
}

func (e *ExitCodeError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitCodeError) Unwrap() error { return e.Err }

// ExitCode maps an error returned by a command to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitCodeError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

// loadConfig loads the configuration from --config or the per-user default
// location and initializes logging from it.
func loadConfig() (*config.Config, error) {
	path := ""
	if ConfigPath != nil {
		path = *ConfigPath
	}
	if path == "" {
		defaultPath, err := config.GetDefaultConfigPath()
		if err != nil {
			return nil, err
		}
		path = defaultPath
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Settings.LogLevel
	if Verbose != nil && *Verbose {
		level = "debug"
	}
	logger.InitLogger(level)
	return cfg, nil
}

// buildEngine wires a full engine from the configuration.
func buildEngine() (*orchestrator.Engine, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	engine, err := orchestrator.New(cfg, Version)
	if err != nil {
		return nil, nil, err
	}
	return engine, cfg, nil
}

// daemonURL turns the configured listen address into a client base URL.
func daemonURL(cfg *config.Config) string {
	addr := cfg.Settings.ListenAddr
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr
}

// formatBytes renders a byte count for humans.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// formatETA renders an ETA in seconds, tolerating the no-estimate marker.
func formatETA(seconds float64) string {
	if seconds < 0 {
		return "--"
	}
	return (time.Duration(seconds) * time.Second).String()
}
