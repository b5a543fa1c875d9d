// Package config loads the command line, environment and file configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// maxBodyBound is the hard upper limit for llm_optimized_text truncation.
// Config may lower it, never raise it.
const maxBodyBound = 10000

// Config captures everything a run needs once flags, environment and the
// optional config file are merged.
type Config struct {
	SourceKind   string
	Timeout      time.Duration
	Folders      []string
	MaxPerFolder int

	IMAPHost           string
	IMAPPort           int
	IMAPUser           string
	IMAPPass           string
	UseTLS             bool
	InsecureSkipVerify bool

	MboxPaths []string

	Output string
	Format string

	PromptPath    string
	MaxPromptRows int
	MaxBodyLength int

	IncludeSubject []string
	IncludeSender  []string
	IncludeBody    []string
	ExcludeSubject []string
	ExcludeSender  []string
	ExcludeBody    []string

	LogLevel string
	LogDir   string

	ListFolders bool
}

// RegisterFlags attaches all CLI flags to the provided command.
func RegisterFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("config", "", "Path to a YAML config file")
	flags.String("source", "imap", "Mailbox source: imap or mbox")
	flags.String("imap-host", "", "IMAP server hostname")
	flags.Int("imap-port", 993, "IMAP server port")
	flags.String("imap-user", "", "IMAP username")
	flags.String("imap-pass", "", "IMAP password (falls back to IMAP_PASS env var)")
	flags.Bool("use-tls", true, "Use TLS for the IMAP connection")
	flags.Bool("insecure-skip-verify", false, "Skip TLS certificate verification (not recommended)")
	flags.StringSlice("mbox", nil, "Path to an mbox archive (repeatable)")
	flags.StringSlice("folders", []string{"INBOX"}, "Folders to extract (repeatable)")
	flags.Int("max-emails", 0, "Per-folder item cap, 0 extracts everything")
	flags.Bool("list-folders", false, "List the available folders and exit")
	flags.String("output", "./data/emails.csv", "Output file path")
	flags.String("format", "csv", "Output format: csv, json or parquet")
	flags.String("prompt-out", "", "Optional path for the LLM prompt digest")
	flags.Int("prompt-max-rows", 100, "Sample rows included in the prompt digest")
	flags.StringArray("include-subject", nil, "Regex allow-list applied to subjects (mutually exclusive with exclude flags)")
	flags.StringArray("include-sender", nil, "Regex allow-list applied to sender name and address")
	flags.StringArray("include-body", nil, "Regex allow-list applied to message bodies")
	flags.StringArray("exclude-subject", nil, "Regex block-list applied to subjects (mutually exclusive with include flags)")
	flags.StringArray("exclude-sender", nil, "Regex block-list applied to sender name and address")
	flags.StringArray("exclude-body", nil, "Regex block-list applied to message bodies")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Directory for a timestamped log file copy")
}

// flagBindings maps dotted config keys onto the flags that override them.
var flagBindings = map[string]string{
	"source.kind":                      "source",
	"source.imap.host":                 "imap-host",
	"source.imap.port":                 "imap-port",
	"source.imap.username":             "imap-user",
	"source.imap.password":             "imap-pass",
	"source.imap.tls":                  "use-tls",
	"source.imap.insecure_skip_verify": "insecure-skip-verify",
	"source.mbox.paths":                "mbox",
	"source.default_folders":           "folders",
	"source.max_items_per_folder":      "max-emails",
	"export.output":                    "output",
	"export.format":                    "format",
	"llm.prompt_path":                  "prompt-out",
	"llm.max_prompt_rows":              "prompt-max-rows",
	"log.level":                        "log-level",
	"log.dir":                          "log-dir",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.kind", "imap")
	v.SetDefault("source.timeout", "30s")
	v.SetDefault("source.default_folders", []string{"INBOX"})
	v.SetDefault("source.max_items_per_folder", 0)
	v.SetDefault("source.imap.port", 993)
	v.SetDefault("source.imap.tls", true)
	v.SetDefault("export.format", "csv")
	v.SetDefault("export.output", "./data/emails.csv")
	v.SetDefault("llm.max_prompt_rows", 100)
	v.SetDefault("llm.max_body_length", maxBodyBound)
	v.SetDefault("log.level", "info")
}

// LoadConfig merges flags, environment and the optional --config file into a
// validated Config. Flags win over the environment, which wins over the file.
func LoadConfig(cmd *cobra.Command) (Config, error) {
	flags := cmd.Flags()

	v := viper.New()
	setDefaults(v)
	for key, name := range flagBindings {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return Config{}, err
		}
	}
	if err := v.BindEnv("source.imap.password", "IMAP_PASS"); err != nil {
		return Config{}, err
	}

	file, err := flags.GetString("config")
	if err != nil {
		return Config{}, err
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	listFolders, err := flags.GetBool("list-folders")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		SourceKind:         strings.ToLower(strings.TrimSpace(v.GetString("source.kind"))),
		Timeout:            v.GetDuration("source.timeout"),
		Folders:            cleanList(v.GetStringSlice("source.default_folders")),
		MaxPerFolder:       v.GetInt("source.max_items_per_folder"),
		IMAPHost:           v.GetString("source.imap.host"),
		IMAPPort:           v.GetInt("source.imap.port"),
		IMAPUser:           v.GetString("source.imap.username"),
		IMAPPass:           v.GetString("source.imap.password"),
		UseTLS:             v.GetBool("source.imap.tls"),
		InsecureSkipVerify: v.GetBool("source.imap.insecure_skip_verify"),
		MboxPaths:          cleanList(v.GetStringSlice("source.mbox.paths")),
		Output:             v.GetString("export.output"),
		Format:             strings.ToLower(strings.TrimSpace(v.GetString("export.format"))),
		PromptPath:         v.GetString("llm.prompt_path"),
		MaxPromptRows:      v.GetInt("llm.max_prompt_rows"),
		MaxBodyLength:      v.GetInt("llm.max_body_length"),
		LogLevel:           strings.ToLower(strings.TrimSpace(v.GetString("log.level"))),
		LogDir:             v.GetString("log.dir"),
		ListFolders:        listFolders,
	}

	// Regex patterns can carry commas, so flag values bypass the viper slice
	// conversion and come straight from pflag.
	patterns := []struct {
		flag string
		key  string
		dst  *[]string
	}{
		{"include-subject", "filter.include_subject", &cfg.IncludeSubject},
		{"include-sender", "filter.include_sender", &cfg.IncludeSender},
		{"include-body", "filter.include_body", &cfg.IncludeBody},
		{"exclude-subject", "filter.exclude_subject", &cfg.ExcludeSubject},
		{"exclude-sender", "filter.exclude_sender", &cfg.ExcludeSender},
		{"exclude-body", "filter.exclude_body", &cfg.ExcludeBody},
	}
	for _, p := range patterns {
		values, err := patternValues(flags, v, p.flag, p.key)
		if err != nil {
			return Config{}, err
		}
		*p.dst = values
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	if cfg.MaxBodyLength > maxBodyBound {
		cfg.MaxBodyLength = maxBodyBound
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func patternValues(flags *pflag.FlagSet, v *viper.Viper, flagName, key string) ([]string, error) {
	if flags.Changed(flagName) {
		return flags.GetStringArray(flagName)
	}
	return v.GetStringSlice(key), nil
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		out = append(out, value)
	}
	return out
}

func validateConfig(cfg Config) error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}

	switch cfg.Format {
	case "csv", "json", "parquet":
	default:
		return fmt.Errorf("invalid --format: %s", cfg.Format)
	}

	switch cfg.SourceKind {
	case "imap":
		if cfg.IMAPHost == "" {
			return fmt.Errorf("--imap-host is required for the imap source")
		}
		if cfg.IMAPUser == "" {
			return fmt.Errorf("--imap-user is required for the imap source")
		}
		if cfg.IMAPPass == "" {
			return fmt.Errorf("IMAP password must be provided via --imap-pass, IMAP_PASS or the config file")
		}
		if cfg.IMAPPort <= 0 || cfg.IMAPPort > 65535 {
			return fmt.Errorf("--imap-port must be between 1 and 65535")
		}
	case "mbox":
		if len(cfg.MboxPaths) == 0 {
			return fmt.Errorf("--mbox is required for the mbox source")
		}
	default:
		return fmt.Errorf("invalid --source: %s", cfg.SourceKind)
	}

	if cfg.Timeout <= 0 {
		return fmt.Errorf("source.timeout must be positive")
	}
	if cfg.MaxPerFolder < 0 {
		return fmt.Errorf("--max-emails must not be negative")
	}
	if len(cfg.Folders) == 0 {
		return fmt.Errorf("--folders must name at least one folder")
	}
	if cfg.Output == "" {
		return fmt.Errorf("--output must not be empty")
	}
	if cfg.MaxPromptRows <= 0 {
		return fmt.Errorf("--prompt-max-rows must be positive")
	}
	if cfg.MaxBodyLength <= 0 {
		return fmt.Errorf("llm.max_body_length must be positive")
	}

	includeActive := len(cfg.IncludeSubject) > 0 || len(cfg.IncludeSender) > 0 || len(cfg.IncludeBody) > 0
	excludeActive := len(cfg.ExcludeSubject) > 0 || len(cfg.ExcludeSender) > 0 || len(cfg.ExcludeBody) > 0
	if includeActive && excludeActive {
		return fmt.Errorf("include and exclude flags are mutually exclusive")
	}

	return nil
}
