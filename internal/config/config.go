package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const maxLookaheadDays = 60

type Runtime struct {
	ConfigFile string

	APIBaseURL    string
	Timeout       time.Duration
	LookaheadDays int
	CalendarName  string
	LogLevel      slog.Level

	StateDir     string
	IdentityPath string
}

func Load() (Runtime, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Runtime{}, fmt.Errorf("resolve home dir: %w", err)
	}

	xdgConfig := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	if xdgConfig == "" {
		xdgConfig = filepath.Join(home, ".config")
	}

	xdgState := strings.TrimSpace(os.Getenv("XDG_STATE_HOME"))
	if xdgState == "" {
		xdgState = filepath.Join(home, ".local", "state")
	}

	defaultConfig := filepath.Join(xdgConfig, "flowbuddy", "schedule.env")
	configFile := strings.TrimSpace(os.Getenv("FLOWBUDDY_SCHEDULE_CONFIG_FILE"))
	if configFile == "" {
		configFile = defaultConfig
	}

	_ = loadEnvFile(configFile)

	v := viper.New()
	v.SetEnvPrefix("FLOWBUDDY_SCHEDULE")
	v.AutomaticEnv()

	_ = v.BindEnv("api_base_url", "FLOWBUDDY_SCHEDULE_API_BASE_URL", "API_BASE_URL")
	_ = v.BindEnv("timeout_seconds", "FLOWBUDDY_SCHEDULE_TIMEOUT_SECONDS", "TIMEOUT_SECONDS")
	_ = v.BindEnv("lookahead_days", "FLOWBUDDY_SCHEDULE_LOOKAHEAD_DAYS", "LOOKAHEAD_DAYS")
	_ = v.BindEnv("calendar_name", "FLOWBUDDY_SCHEDULE_CALENDAR_NAME", "CALENDAR_NAME")
	_ = v.BindEnv("log_level", "FLOWBUDDY_SCHEDULE_LOG_LEVEL", "LOG_LEVEL")
	_ = v.BindEnv("state_dir", "FLOWBUDDY_SCHEDULE_STATE_DIR")
	_ = v.BindEnv("identity_file", "FLOWBUDDY_SCHEDULE_IDENTITY_FILE")

	v.SetDefault("api_base_url", "http://127.0.0.1:8000")
	v.SetDefault("timeout_seconds", 20)
	v.SetDefault("lookahead_days", 14)
	v.SetDefault("calendar_name", "FlowBuddy")
	v.SetDefault("log_level", "info")
	v.SetDefault("state_dir", filepath.Join(xdgState, "flowbuddy", "schedule"))

	timeoutSeconds := v.GetInt("timeout_seconds")
	if timeoutSeconds <= 0 {
		timeoutSeconds = 20
	}

	lookaheadDays := v.GetInt("lookahead_days")
	if lookaheadDays <= 0 {
		lookaheadDays = 14
	}
	if lookaheadDays > maxLookaheadDays {
		lookaheadDays = maxLookaheadDays
	}

	stateDir := strings.TrimSpace(v.GetString("state_dir"))
	if stateDir == "" {
		stateDir = filepath.Join(xdgState, "flowbuddy", "schedule")
	}

	identityPath := strings.TrimSpace(v.GetString("identity_file"))
	if identityPath == "" {
		identityPath = filepath.Join(stateDir, "identity.json")
	}

	return Runtime{
		ConfigFile:    configFile,
		APIBaseURL:    strings.TrimSpace(v.GetString("api_base_url")),
		Timeout:       time.Duration(timeoutSeconds) * time.Second,
		LookaheadDays: lookaheadDays,
		CalendarName:  strings.TrimSpace(v.GetString("calendar_name")),
		LogLevel:      parseLogLevel(v.GetString("log_level")),
		StateDir:      stateDir,
		IdentityPath:  identityPath,
	}, nil
}

func parseLogLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func loadEnvFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open env file %s: %w", path, err)
	}
	defer func() {
		_ = file.Close()
	}()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" {
			continue
		}

		if len(value) >= 2 {
			if (value[0] == '\'' && value[len(value)-1] == '\'') ||
				(value[0] == '"' && value[len(value)-1] == '"') {
				value = value[1 : len(value)-1]
			}
		}

		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, value)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan env file %s: %w", path, err)
	}
	return nil
}
