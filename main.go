package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/mailtools/mail-to-table/config"
	"github.com/mailtools/mail-to-table/export"
	"github.com/mailtools/mail-to-table/extract"
	"github.com/mailtools/mail-to-table/filter"
	"github.com/mailtools/mail-to-table/imap"
	"github.com/mailtools/mail-to-table/mapper"
	"github.com/mailtools/mail-to-table/mbox"
	"github.com/mailtools/mail-to-table/progress"
	"github.com/mailtools/mail-to-table/source"
	"github.com/mailtools/mail-to-table/stats"
	"github.com/mailtools/mail-to-table/table"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "mail-to-table",
		Short:        "Extract mailbox folders into a normalized email table",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cmd)
			if err != nil {
				return err
			}

			logger, cleanup, err := setupLogger(cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = cleanup()
			}()

			slog.SetDefault(logger)
			logger.Info("starting mail-to-table", "source", cfg.SourceKind, "folders", cfg.Folders, "output", cfg.Output)

			return run(cmd.Context(), cfg, logger)
		},
	}

	config.RegisterFlags(rootCmd)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalChan
		cancel()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	provider, err := buildProvider(cfg, logger)
	if err != nil {
		return err
	}

	if err := provider.Connect(ctx); err != nil {
		return fmt.Errorf("connect %s source: %w", cfg.SourceKind, err)
	}
	defer func() {
		if err := provider.Close(); err != nil {
			logger.Debug("source close failed", "err", err)
		}
	}()

	infos, err := provider.Folders(ctx)
	if err != nil {
		return fmt.Errorf("list folders: %w", err)
	}
	if cfg.ListFolders {
		printFolders(infos)
		return nil
	}

	recordFilter, err := filter.New(filter.Options{
		IncludeSubject: cfg.IncludeSubject,
		IncludeSender:  cfg.IncludeSender,
		IncludeBody:    cfg.IncludeBody,
		ExcludeSubject: cfg.ExcludeSubject,
		ExcludeSender:  cfg.ExcludeSender,
		ExcludeBody:    cfg.ExcludeBody,
	})
	if err != nil {
		return err
	}

	extractor := extract.New(mapper.New(logger, mapper.WithMaxBodyLength(cfg.MaxBodyLength)), recordFilter, logger)
	reporter := stats.NewReporter(extractor, logger)

	bar := progress.New(folderTotal(infos, cfg.Folders, cfg.MaxPerFolder), cfg.LogLevel)
	extractor.SubscribeStats("progress", bar.Subscriber)

	start := time.Now()
	records, err := extractor.Run(ctx, provider, cfg.Folders, cfg.MaxPerFolder)
	bar.Stop()
	if err != nil {
		return err
	}
	bar.PrintSummary(reporter.Summary(), time.Since(start))

	tbl := table.NewBuilder(logger).Build(records)
	summary := table.Summarize(tbl)
	logger.Info("dataset summary", summary.LogAttrs()...)
	printDatasetSummary(summary)

	if cfg.PromptPath != "" {
		if err := writePrompt(tbl, cfg.PromptPath, cfg.MaxPromptRows); err != nil {
			return err
		}
		logger.Info("prompt digest written", "path", cfg.PromptPath)
	}

	format, err := export.ParseFormat(cfg.Format)
	if err != nil {
		return err
	}
	if err := export.Export(tbl, format, cfg.Output); err != nil {
		return err
	}
	logger.Info("export complete", "format", string(format), "path", cfg.Output, "rows", tbl.Len())
	pterm.Success.Printfln("Wrote %d rows to %s", tbl.Len(), cfg.Output)

	return nil
}

func buildProvider(cfg config.Config, logger *slog.Logger) (source.Provider, error) {
	switch cfg.SourceKind {
	case "imap":
		return imap.NewProvider(imap.Options{
			Host:               cfg.IMAPHost,
			Port:               cfg.IMAPPort,
			Username:           cfg.IMAPUser,
			Password:           cfg.IMAPPass,
			UseTLS:             cfg.UseTLS,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			DialTimeout:        cfg.Timeout,
		}, logger)
	case "mbox":
		return mbox.NewProvider(cfg.MboxPaths, logger)
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.SourceKind)
	}
}

// folderTotal estimates how many items the run will scan, for the progress
// bar. Requested names are matched the way providers resolve them: by path,
// by name, or by the archive file path an mbox folder also answers to.
func folderTotal(infos []source.FolderInfo, folders []string, max int) int {
	byName := make(map[string]int, len(infos)*2)
	for _, info := range infos {
		byName[info.Path] = info.Items
		byName[info.Name] = info.Items
	}
	total := 0
	for _, name := range folders {
		n, ok := byName[name]
		if !ok {
			base := filepath.Base(name)
			if n, ok = byName[strings.TrimSuffix(base, filepath.Ext(base))]; !ok {
				continue
			}
		}
		if max > 0 && n > max {
			n = max
		}
		total += n
	}
	return total
}

func printFolders(infos []source.FolderInfo) {
	pterm.DefaultSection.Println("Available Folders")
	if len(infos) == 0 {
		pterm.Info.Println("No folders found")
		return
	}
	for _, info := range infos {
		pterm.Info.Printfln("%s (%d items)", info.Path, info.Items)
	}
}

func printDatasetSummary(st table.Stats) {
	if st.Rows == 0 {
		return
	}
	pterm.DefaultSection.Println("Dataset Summary")
	pterm.Info.Printfln("Rows: %d", st.Rows)
	if !st.MinReceived.IsZero() {
		pterm.Info.Printfln("Date range: %s to %s",
			st.MinReceived.Format(time.RFC3339), st.MaxReceived.Format(time.RFC3339))
	}
	pterm.Info.Printfln("Unread: %d", st.UnreadCount)
	pterm.Info.Printfln("With attachments: %d", st.WithAttachments)
	pterm.Info.Printfln("Mean body words: %.1f", st.MeanWordCount)
	pterm.Info.Printfln("Size bytes: mean %.0f, median %.0f, max %d", st.SizeMean, st.SizeMedian, st.SizeMax)
	if len(st.TopFolders) > 0 {
		pterm.Info.Printfln("Top folders: %s", freqLine(st.TopFolders))
	}
	if len(st.TopSenders) > 0 {
		pterm.Info.Printfln("Top senders: %s", freqLine(st.TopSenders))
	}
	if len(st.TopDomains) > 0 {
		pterm.Info.Printfln("Top domains: %s", freqLine(st.TopDomains))
	}
}

func freqLine(freqs []stats.Freq) string {
	parts := make([]string, 0, len(freqs))
	for _, f := range freqs {
		parts = append(parts, fmt.Sprintf("%s (%d)", f.Value, f.Count))
	}
	return strings.Join(parts, ", ")
}

func writePrompt(tbl *table.Table, path string, maxRows int) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("write prompt digest: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(table.PromptText(tbl, maxRows)), 0o644); err != nil {
		return fmt.Errorf("write prompt digest: %w", err)
	}
	return nil
}

func setupLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(cfg.LogDir, fmt.Sprintf("mail-to-table-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), cleanup, nil
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler), cleanup, nil
}
