package common

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"OCR_INPUT_DIRECTORY", "OCR_OUTPUT_DIRECTORY", "OCR_OUTPUT_DIRECTORY_YEAR_MONTH",
		"OCR_ARCHIVE_DIRECTORY", "OCR_ON_SUCCESS_DELETE", "OCR_ON_SUCCESS_ARCHIVE",
		"OCR_DESKEW", "OCR_JSON_SETTINGS", "OCR_POLL_NEW_FILE_SECONDS", "OCR_USE_POLLING",
		"OCR_RETRIES_LOADING_FILE", "OCR_LOGLEVEL", "OCR_LOG_FORMAT", "OCR_FINAL_DIRECTORY",
		"OCR_ERROR_DIRECTORY", "OCR_WORKERS", "OCR_JOURNAL_DSN", "OCR_HEALTH_ADDR",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)
	cfg := LoadConfig()

	if cfg.Dirs.Input != "scan-input" || cfg.Dirs.Output != "ocr-output" || cfg.Dirs.Archive != "/processed" {
		t.Fatalf("unexpected dirs %+v", cfg.Dirs)
	}
	if cfg.Dirs.Final != "final-output" || cfg.Dirs.Error != "ERROR" {
		t.Fatalf("unexpected classification dirs %+v", cfg.Dirs)
	}
	if cfg.Watch.PollInterval != time.Second || cfg.Watch.Retries != 5 || cfg.Watch.Workers != 2 || cfg.Watch.UsePolling {
		t.Fatalf("unexpected watch config %+v", cfg.Watch)
	}
	if cfg.OCR.Deskew || cfg.OCR.OnSuccessDelete || cfg.OCR.OnSuccessArchive || len(cfg.OCR.Settings) != 0 {
		t.Fatalf("unexpected ocr config %+v", cfg.OCR)
	}
	if !cfg.JournalEnabled() || cfg.Server.HealthAddr != "" {
		t.Fatalf("unexpected journal/server config %+v %+v", cfg.Journal, cfg.Server)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("OCR_INPUT_DIRECTORY", "/in")
	t.Setenv("OCR_OUTPUT_DIRECTORY_YEAR_MONTH", "yes")
	t.Setenv("OCR_DESKEW", "1")
	t.Setenv("OCR_ON_SUCCESS_ARCHIVE", "TRUE")
	t.Setenv("OCR_POLL_NEW_FILE_SECONDS", "3")
	t.Setenv("OCR_RETRIES_LOADING_FILE", "not-a-number")
	t.Setenv("OCR_JSON_SETTINGS", `{"language": "deu", "rotate_pages": true}`)
	t.Setenv("OCR_JOURNAL_DSN", "OFF")

	cfg := LoadConfig()
	if cfg.Dirs.Input != "/in" || !cfg.Dirs.OutputYearMonth || !cfg.OCR.Deskew || !cfg.OCR.OnSuccessArchive {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Watch.PollInterval != 3*time.Second {
		t.Fatalf("poll interval = %v", cfg.Watch.PollInterval)
	}
	if cfg.Watch.Retries != 5 {
		t.Fatalf("unparseable int should fall back to the default, got %d", cfg.Watch.Retries)
	}
	if cfg.OCR.Settings["language"] != "deu" || cfg.OCR.Settings["rotate_pages"] != true {
		t.Fatalf("settings = %v", cfg.OCR.Settings)
	}
	if cfg.JournalEnabled() {
		t.Fatal("journal should be off")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_RejectsBadSettings(t *testing.T) {
	tests := []struct {
		name     string
		settings string
	}{
		{"input_file", `{"input_file": "a.pdf"}`},
		{"output_file", `{"output_file": "b.pdf"}`},
		{"hyphenated", `{"output-file": "b.pdf", "language": "eng"}`},
		{"not an object", `["--force-ocr"]`},
		{"not json", `{language: eng`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("OCR_JSON_SETTINGS", tt.settings)
			err := LoadConfig().Validate()
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("err = %v, want ErrConfiguration", err)
			}
			if ErrorCode(err) != CodeConfig {
				t.Fatalf("code = %q", ErrorCode(err))
			}
		})
	}
}

func TestValidate_FieldRules(t *testing.T) {
	clearEnv(t)
	cfg := LoadConfig()
	cfg.Watch.Workers = 0
	cfg.Dirs.Final = " "
	cfg.OCR.OnSuccessArchive = true
	cfg.Dirs.Archive = ""

	err := cfg.Validate()
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("err = %v", err)
	}
	var ae *AppError
	if !errors.As(err, &ae) {
		t.Fatal("want AppError")
	}
	for _, field := range []string{"OCR_WORKERS", "OCR_FINAL_DIRECTORY", "OCR_ARCHIVE_DIRECTORY"} {
		if !strings.Contains(ae.Message, field) {
			t.Errorf("message %q does not mention %s", ae.Message, field)
		}
	}
	var fe ValidationError
	if !errors.As(err, &fe) || fe.Field != "OCR_FINAL_DIRECTORY" {
		t.Fatalf("first field error = %+v", fe)
	}
}

func TestValidateOCRSettings_Nil(t *testing.T) {
	if err := ValidateOCRSettings(nil); err != nil {
		t.Fatal(err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"DEBUG":    slog.LevelDebug,
		"info":     slog.LevelInfo,
		"WARNING":  slog.LevelWarn,
		"warn":     slog.LevelWarn,
		"CRITICAL": slog.LevelError,
		"bogus":    slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRunIDContext(t *testing.T) {
	if RunIDFromContext(context.Background()) != uuid.Nil {
		t.Fatal("empty context should carry no run id")
	}
	id := uuid.New()
	if got := RunIDFromContext(WithRunID(context.Background(), id)); got != id {
		t.Fatalf("got %v, want %v", got, id)
	}
}
