package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ytget/mediaporter/internal/config"
	"github.com/ytget/mediaporter/internal/download"
	"github.com/ytget/mediaporter/internal/fetch"
	"github.com/ytget/mediaporter/internal/history"
	"github.com/ytget/mediaporter/internal/model"
	"github.com/ytget/mediaporter/internal/platform"
	"github.com/ytget/mediaporter/internal/session"
	"github.com/ytget/mediaporter/internal/transcode"
)

type downloadFlags struct {
	input       string
	mode        string
	quality     string
	retries     int
	concurrency int
	dir         string
	historyDB   string
	noHistory   bool
}

func newDownloadCommand() *cobra.Command {
	var f downloadFlags
	cmd := &cobra.Command{
		Use:   "download [url ...]",
		Short: "Download every URL from the arguments, an input file or stdin",
		Long: `Each input line is "<url>" or "<url> || <custom name>". Blank lines are
ignored and lines without a supported URL are reported and skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := applyDownloadFlags(cmd, settings, f)
			if err != nil {
				return err
			}
			text, err := readInput(cmd.InOrStdin(), f.input, args)
			if err != nil {
				return err
			}
			return runDownload(cmd.Context(), cmd.OutOrStdout(), s, text, f)
		},
	}

	cmd.Flags().StringVarP(&f.input, "input", "i", "", "file with one URL per line (- for stdin)")
	cmd.Flags().StringVarP(&f.mode, "mode", "m", "", "audio or video")
	cmd.Flags().StringVarP(&f.quality, "quality", "q", "", "auto, 1080p, 720p or 480p")
	cmd.Flags().IntVarP(&f.retries, "retries", "r", 0, "retries after the first attempt")
	cmd.Flags().IntVarP(&f.concurrency, "concurrency", "c", 0, "parallel downloads (1-10)")
	cmd.Flags().StringVarP(&f.dir, "dir", "d", "", "download directory")
	cmd.Flags().StringVar(&f.historyDB, "history-db", history.DefaultPath(), "history database")
	cmd.Flags().BoolVar(&f.noHistory, "no-history", false, "do not record the batch in history")
	return cmd
}

// applyDownloadFlags overrides settings with the flags the user set
func applyDownloadFlags(cmd *cobra.Command, s config.Settings, f downloadFlags) (config.Settings, error) {
	flags := cmd.Flags()
	if flags.Changed("mode") {
		s.Mode = model.Mode(f.mode)
	}
	if flags.Changed("quality") {
		s.Quality = model.Quality(f.quality)
	}
	if flags.Changed("retries") {
		s.RetryCount = f.retries
	}
	if flags.Changed("concurrency") {
		s.Concurrency = f.concurrency
	}
	if flags.Changed("dir") {
		s.DownloadDir = f.dir
	}
	return s.Validate()
}

// readInput returns the batch text from args, a file, or stdin
func readInput(stdin io.Reader, path string, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, "\n"), nil
	}
	var r io.Reader = stdin
	if path != "" && path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("failed to open input: %w", err)
		}
		defer file.Close()
		r = file
	}

	var b strings.Builder
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		b.WriteString(scanner.Text())
		b.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return b.String(), nil
}

func runDownload(ctx context.Context, out io.Writer, s config.Settings, text string, f downloadFlags) error {
	tasks, rejected := platform.ParseBatch(text)
	if len(tasks) == 0 && len(rejected) == 0 {
		return fmt.Errorf("no input lines")
	}
	if err := platform.CreateDirectoryIfNotExists(s.DownloadDir); err != nil {
		return fmt.Errorf("failed to ensure download dir: %w", err)
	}

	d, err := newDeps(s, log)
	if err != nil {
		return err
	}
	d.restoreSession(ctx)

	pipeline := fetch.NewPipeline(fetch.Options{
		Backend:     d.backend,
		Gate:        session.NewGate(d.sessions),
		Transcoder:  transcode.NewService(log.WithField("component", "transcode")),
		DownloadDir: s.DownloadDir,
	}, log.WithField("component", "pipeline"))
	if !pipeline.TranscoderAvailable() {
		log.Warn("FFmpeg not found: audio keeps its source format and split video streams cannot be merged")
	}

	opts := download.DefaultOptions()
	opts.Concurrency = s.Concurrency
	opts.Policy = s.RetryPolicy()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	run := download.NewScheduler(pipeline, opts, log).Start(ctx, download.Batch{
		Tasks:    tasks,
		Rejected: rejected,
		Mode:     s.Mode,
		Quality:  s.Quality,
	})
	for ev := range run.Events() {
		renderEvent(log, ev)
	}
	summary := run.Wait()

	renderSummary(out, run.Snapshot(), summary)

	if !f.noHistory {
		saveHistory(f.historyDB, run.Batch())
	}
	if summary.AuthFailures > 0 {
		fmt.Fprintln(out, "Some items need a login or VIP membership: run `mediaporter login` and resubmit them.")
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d task(s) failed", summary.Failed, summary.Total)
	}
	return nil
}

func saveHistory(path string, run model.BatchRun) {
	store, err := history.Open(path)
	if err != nil {
		log.WithError(err).Warn("History unavailable")
		return
	}
	defer store.Close()
	// The batch context may already be cancelled by an interrupt.
	if err := store.SaveRun(context.Background(), run); err != nil {
		log.WithError(err).Warn("Failed to record batch history")
	}
}
