package common

import (
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/ocr-watcher/constants"
)

// Config holds all application configuration. It is built once at startup and
// handed to components by value.
type Config struct {
	Dirs    DirsConfig
	OCR     OCRConfig
	Watch   WatchConfig
	Journal JournalConfig
	Server  ServerConfig
	Log     LogConfig

	// SettingsErr records a malformed OCR_JSON_SETTINGS so Validate can report it.
	SettingsErr error
}

// DirsConfig holds the directories the pipeline reads from and writes to.
type DirsConfig struct {
	Input           string
	Output          string
	OutputYearMonth bool
	Archive         string
	Final           string
	Error           string
}

// OCRConfig holds OCR engine and post-OCR disposition settings.
type OCRConfig struct {
	OCRmyPDF         string
	Pdftotext        string
	Deskew           bool
	Settings         map[string]any
	OnSuccessDelete  bool
	OnSuccessArchive bool
}

// WatchConfig holds watcher and readiness-gate settings.
type WatchConfig struct {
	UsePolling   bool
	PollInterval time.Duration
	Retries      int
	Workers      int
}

// JournalConfig holds the processing journal store settings.
type JournalConfig struct {
	DSN string // sqlite path, postgres:// URL, or "off"
}

// ServerConfig holds the optional health endpoint.
type ServerConfig struct {
	HealthAddr string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() Config {
	settings, settingsErr := parseSettings(getEnv("OCR_JSON_SETTINGS", "{}"))
	return Config{
		Dirs: DirsConfig{
			Input:           getEnv("OCR_INPUT_DIRECTORY", "scan-input"),
			Output:          getEnv("OCR_OUTPUT_DIRECTORY", "ocr-output"),
			OutputYearMonth: getEnvAsBool("OCR_OUTPUT_DIRECTORY_YEAR_MONTH", false),
			Archive:         getEnv("OCR_ARCHIVE_DIRECTORY", "/processed"),
			Final:           getEnv("OCR_FINAL_DIRECTORY", constants.DefaultFinalDir),
			Error:           getEnv("OCR_ERROR_DIRECTORY", constants.DefaultErrorDir),
		},
		OCR: OCRConfig{
			OCRmyPDF:         getEnv("OCR_OCRMYPDF_BIN", "ocrmypdf"),
			Pdftotext:        getEnv("OCR_PDFTOTEXT_BIN", "pdftotext"),
			Deskew:           getEnvAsBool("OCR_DESKEW", false),
			Settings:         settings,
			OnSuccessDelete:  getEnvAsBool("OCR_ON_SUCCESS_DELETE", false),
			OnSuccessArchive: getEnvAsBool("OCR_ON_SUCCESS_ARCHIVE", false),
		},
		Watch: WatchConfig{
			UsePolling:   getEnvAsBool("OCR_USE_POLLING", false),
			PollInterval: time.Duration(getEnvAsInt("OCR_POLL_NEW_FILE_SECONDS", 1)) * time.Second,
			Retries:      getEnvAsInt("OCR_RETRIES_LOADING_FILE", 5),
			Workers:      getEnvAsInt("OCR_WORKERS", 2),
		},
		Journal: JournalConfig{
			DSN: getEnv("OCR_JOURNAL_DSN", "ocr-journal.db"),
		},
		Server: ServerConfig{
			HealthAddr: getEnv("OCR_HEALTH_ADDR", ""),
		},
		Log: LogConfig{
			Level:  getEnv("OCR_LOGLEVEL", "INFO"),
			Format: getEnv("OCR_LOG_FORMAT", "text"),
		},
		SettingsErr: settingsErr,
	}
}

// Validate validates the loaded configuration. Every failure wraps ErrConfiguration.
func (c Config) Validate() error {
	if c.SettingsErr != nil {
		return NewAppError(CodeConfig, "OCR_JSON_SETTINGS must be a JSON object", errors.Join(ErrConfiguration, c.SettingsErr))
	}
	if err := ValidateOCRSettings(c.OCR.Settings); err != nil {
		return NewAppError(CodeConfig, "OCR_JSON_SETTINGS should not specify input file or output file", errors.Join(ErrConfiguration, err))
	}

	v := NewValidator().
		Field("OCR_INPUT_DIRECTORY", c.Dirs.Input, Required).
		Field("OCR_OUTPUT_DIRECTORY", c.Dirs.Output, Required).
		Field("OCR_FINAL_DIRECTORY", c.Dirs.Final, Required).
		Field("OCR_ERROR_DIRECTORY", c.Dirs.Error, Required).
		Field("OCR_RETRIES_LOADING_FILE", c.Watch.Retries, Positive).
		Field("OCR_WORKERS", c.Watch.Workers, Positive)
	if c.OCR.OnSuccessArchive {
		v.Field("OCR_ARCHIVE_DIRECTORY", c.Dirs.Archive, Required)
	}
	if v.HasErrors() {
		causes := []error{ErrConfiguration}
		for _, fe := range v.Errors() {
			causes = append(causes, fe)
		}
		return NewAppError(CodeConfig, v.ErrorMessage(), errors.Join(causes...))
	}
	return nil
}

// JournalEnabled reports whether outcomes should be persisted.
func (c Config) JournalEnabled() bool {
	dsn := strings.TrimSpace(c.Journal.DSN)
	return dsn != "" && !strings.EqualFold(dsn, "off")
}

func parseSettings(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return map[string]any{}, err
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "yes", "y", "1":
		return true
	default:
		return false
	}
}
