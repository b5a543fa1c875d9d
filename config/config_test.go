package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

func load(t *testing.T, args ...string) (Config, error) {
	t.Helper()
	cmd := &cobra.Command{Use: "mail-to-table"}
	RegisterFlags(cmd)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return LoadConfig(cmd)
}

func mustLoad(t *testing.T, args ...string) Config {
	t.Helper()
	cfg, err := load(t, args...)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg := mustLoad(t, "--source", "mbox", "--mbox", "a.mbox")

	if cfg.SourceKind != "mbox" {
		t.Errorf("source kind = %q", cfg.SourceKind)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("timeout = %v", cfg.Timeout)
	}
	if len(cfg.Folders) != 1 || cfg.Folders[0] != "INBOX" {
		t.Errorf("folders = %v", cfg.Folders)
	}
	if cfg.Format != "csv" || cfg.Output != "./data/emails.csv" {
		t.Errorf("export defaults = %q %q", cfg.Format, cfg.Output)
	}
	if cfg.MaxPromptRows != 100 || cfg.MaxBodyLength != 10000 {
		t.Errorf("llm defaults = %d %d", cfg.MaxPromptRows, cfg.MaxBodyLength)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("log level = %q", cfg.LogLevel)
	}
	if !cfg.UseTLS || cfg.IMAPPort != 993 {
		t.Errorf("imap defaults = tls %v port %d", cfg.UseTLS, cfg.IMAPPort)
	}
	if cfg.MaxPerFolder != 0 || cfg.ListFolders {
		t.Errorf("extraction defaults = %d %v", cfg.MaxPerFolder, cfg.ListFolders)
	}
}

func TestLoadFlagOverrides(t *testing.T) {
	cfg := mustLoad(t,
		"--source", "imap",
		"--imap-host", "mail.example.com",
		"--imap-port", "143",
		"--imap-user", "alice",
		"--imap-pass", "secret",
		"--use-tls=false",
		"--folders", "Work",
		"--folders", "Archive",
		"--max-emails", "50",
		"--format", "json",
		"--log-level", "WARNING",
		"--list-folders",
	)

	if cfg.IMAPHost != "mail.example.com" || cfg.IMAPPort != 143 {
		t.Errorf("imap host/port = %q %d", cfg.IMAPHost, cfg.IMAPPort)
	}
	if cfg.UseTLS {
		t.Error("expected --use-tls=false to stick")
	}
	if len(cfg.Folders) != 2 || cfg.Folders[0] != "Work" || cfg.Folders[1] != "Archive" {
		t.Errorf("folders = %v", cfg.Folders)
	}
	if cfg.MaxPerFolder != 50 {
		t.Errorf("max per folder = %d", cfg.MaxPerFolder)
	}
	if cfg.Format != "json" {
		t.Errorf("format = %q", cfg.Format)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("warning should normalize to warn, got %q", cfg.LogLevel)
	}
	if !cfg.ListFolders {
		t.Error("expected list-folders to be set")
	}
}

const sampleYAML = `source:
  kind: mbox
  timeout: 5s
  default_folders: [work]
  mbox:
    paths: [/tmp/work.mbox]
export:
  format: parquet
llm:
  max_body_length: 20000
filter:
  include_subject: [invoice]
log:
  level: debug
`

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfigFile(t, sampleYAML)
	cfg := mustLoad(t, "--config", path)

	if cfg.SourceKind != "mbox" {
		t.Errorf("source kind = %q", cfg.SourceKind)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("timeout = %v", cfg.Timeout)
	}
	if len(cfg.Folders) != 1 || cfg.Folders[0] != "work" {
		t.Errorf("folders = %v", cfg.Folders)
	}
	if len(cfg.MboxPaths) != 1 || cfg.MboxPaths[0] != "/tmp/work.mbox" {
		t.Errorf("mbox paths = %v", cfg.MboxPaths)
	}
	if cfg.Format != "parquet" {
		t.Errorf("format = %q", cfg.Format)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q", cfg.LogLevel)
	}
	if cfg.MaxBodyLength != 10000 {
		t.Errorf("max body length should clamp to 10000, got %d", cfg.MaxBodyLength)
	}
	if len(cfg.IncludeSubject) != 1 || cfg.IncludeSubject[0] != "invoice" {
		t.Errorf("include subject = %v", cfg.IncludeSubject)
	}
}

func TestFlagBeatsFile(t *testing.T) {
	path := writeConfigFile(t, sampleYAML)
	cfg := mustLoad(t, "--config", path, "--format", "csv")

	if cfg.Format != "csv" {
		t.Errorf("flag should beat file, got format %q", cfg.Format)
	}
	if cfg.SourceKind != "mbox" {
		t.Errorf("untouched file values should survive, got kind %q", cfg.SourceKind)
	}
}

func TestEnvPassword(t *testing.T) {
	t.Setenv("IMAP_PASS", "sekret")
	cfg := mustLoad(t,
		"--source", "imap",
		"--imap-host", "mail.example.com",
		"--imap-user", "alice",
	)
	if cfg.IMAPPass != "sekret" {
		t.Errorf("password should come from IMAP_PASS, got %q", cfg.IMAPPass)
	}
}

func TestPatternsKeepCommas(t *testing.T) {
	cfg := mustLoad(t,
		"--source", "mbox",
		"--mbox", "a.mbox",
		"--include-subject", "ab{1,2}c",
	)
	if len(cfg.IncludeSubject) != 1 || cfg.IncludeSubject[0] != "ab{1,2}c" {
		t.Errorf("pattern with comma mangled: %v", cfg.IncludeSubject)
	}
}

func TestBadConfigFile(t *testing.T) {
	if _, err := load(t, "--config", filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "imap missing host",
			args:    []string{"--source", "imap", "--imap-user", "u", "--imap-pass", "p"},
			wantErr: "--imap-host is required",
		},
		{
			name:    "imap missing password",
			args:    []string{"--source", "imap", "--imap-host", "h", "--imap-user", "u"},
			wantErr: "IMAP password",
		},
		{
			name:    "imap port range",
			args:    []string{"--source", "imap", "--imap-host", "h", "--imap-user", "u", "--imap-pass", "p", "--imap-port", "70000"},
			wantErr: "between 1 and 65535",
		},
		{
			name:    "mbox missing paths",
			args:    []string{"--source", "mbox"},
			wantErr: "--mbox is required",
		},
		{
			name:    "unknown source",
			args:    []string{"--source", "pop3"},
			wantErr: "invalid --source",
		},
		{
			name:    "unknown log level",
			args:    []string{"--source", "mbox", "--mbox", "a.mbox", "--log-level", "verbose"},
			wantErr: "invalid --log-level",
		},
		{
			name:    "unknown format",
			args:    []string{"--source", "mbox", "--mbox", "a.mbox", "--format", "xml"},
			wantErr: "invalid --format",
		},
		{
			name:    "negative cap",
			args:    []string{"--source", "mbox", "--mbox", "a.mbox", "--max-emails", "-1"},
			wantErr: "--max-emails",
		},
		{
			name:    "include and exclude together",
			args:    []string{"--source", "mbox", "--mbox", "a.mbox", "--include-subject", "a", "--exclude-body", "b"},
			wantErr: "mutually exclusive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(t, tt.args...)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}
