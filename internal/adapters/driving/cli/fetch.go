package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/chronicle-labs/chronicler/internal/archive"
	"github.com/chronicle-labs/chronicler/internal/core/domain"
	"github.com/chronicle-labs/chronicler/internal/core/ports/driven"
	"github.com/chronicle-labs/chronicler/internal/core/ports/driving"
	"github.com/chronicle-labs/chronicler/internal/core/services"
	"github.com/chronicle-labs/chronicler/internal/httpclient"
	"github.com/chronicle-labs/chronicler/internal/logger"
)

var fetchFlags struct {
	category string
	tag      string

	fromDate string
	toDate   string

	noResume bool

	archivePath   string
	noArchive     bool
	fetchArchive  bool
	archivedSince string

	tokens []string

	sleepForRate     bool
	minRateToSleep   int
	maxRetries       int
	sleepTime        time.Duration
	extraRetryStatus []int
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <backend> <origin>",
	Short: "Fetch items from a source and print them as JSON lines",
	Long: `Fetches items of one category from a source and prints one
JSON document per line to standard output.

Live runs archive every response unless --no-archive is given, and
record a checkpoint so the next run resumes where this one stopped.
With --fetch-archive items are replayed from stored archives instead
of the network.`,
	Args: cobra.ExactArgs(2),
}

func init() {
	fetchCmd.RunE = runFetch
	f := fetchCmd.Flags()
	f.StringVar(&fetchFlags.category, "category", "", "item category to fetch (defaults to the backend's first)")
	f.StringVar(&fetchFlags.tag, "tag", "", "tag for emitted documents (defaults to the origin)")
	f.StringVar(&fetchFlags.fromDate, "from-date", "", "fetch items updated on or after this date (RFC3339 or YYYY-MM-DD)")
	f.StringVar(&fetchFlags.toDate, "to-date", "", "fetch items updated before this date (RFC3339 or YYYY-MM-DD)")
	f.BoolVar(&fetchFlags.noResume, "no-resume", false, "ignore any stored checkpoint")
	f.StringVar(&fetchFlags.archivePath, "archive-path", "", "directory to store archives under (defaults to the data directory)")
	f.BoolVar(&fetchFlags.noArchive, "no-archive", false, "do not archive responses")
	f.BoolVar(&fetchFlags.fetchArchive, "fetch-archive", false, "replay items from stored archives instead of the network")
	f.StringVar(&fetchFlags.archivedSince, "archived-since", "", "with --fetch-archive, replay archives stored on or after this date")
	f.StringArrayVar(&fetchFlags.tokens, "token", nil, "API token (repeat to rotate between credentials)")
	f.BoolVar(&fetchFlags.sleepForRate, "sleep-for-rate", false, "sleep until the quota resets instead of failing")
	f.IntVar(&fetchFlags.minRateToSleep, "min-rate-to-sleep", httpclient.DefaultMinRateToSleep, "remaining calls below which the quota counts as exhausted")
	f.IntVar(&fetchFlags.maxRetries, "max-retries", httpclient.DefaultMaxRetries, "retry budget for transient failures")
	f.DurationVar(&fetchFlags.sleepTime, "sleep-time", httpclient.DefaultSleepTime, "delay between retry attempts")
	f.IntSliceVar(&fetchFlags.extraRetryStatus, "extra-retry-status", nil, "additional HTTP statuses to treat as transient")

	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	if registry == nil {
		return errors.New("backend registry not configured")
	}
	backendName, origin := args[0], args[1]

	window, err := parseWindow(fetchFlags.fromDate, fetchFlags.toDate)
	if err != nil {
		return err
	}

	if fetchFlags.fetchArchive {
		return replayArchives(cmd, backendName, origin, window)
	}
	return fetchLive(cmd, backendName, origin, window)
}

func fetchLive(cmd *cobra.Command, backendName, origin string, window domain.Window) error {
	ctx := cmd.Context()

	client := httpclient.New(clientOptions(), credentials()...)

	backend, err := registry.Create(backendName, services.BackendSetup{
		Origin: origin,
		Tag:    fetchFlags.tag,
		Client: client,
	})
	if err != nil {
		return err
	}

	if !fetchFlags.noArchive {
		manager, err := archive.NewManager(archiveDir(), backend.Origin(), backend.Name(), backend.Version())
		if err != nil {
			return fmt.Errorf("preparing archive: %w", err)
		}
		store, err := manager.New()
		if err != nil {
			return fmt.Errorf("creating archive: %w", err)
		}
		defer store.Close()
		if err := store.InitMetadata(backend.Origin(), backend.Name(), backend.Version(), category(backend.Categories())); err != nil {
			return fmt.Errorf("initialising archive: %w", err)
		}
		client.SetArchive(store)
	}

	req := driving.Request{
		Category: category(backend.Categories()),
		Mode:     driving.ModeLive,
		Window:   window,
		Tag:      fetchFlags.tag,
	}

	if checkpointStore != nil && !fetchFlags.noResume {
		rec, err := checkpointStore.Get(ctx, backend.Name(), backend.Origin(), req.Category)
		if err != nil {
			return fmt.Errorf("loading checkpoint: %w", err)
		}
		if rec != nil {
			logger.Info("resuming from cursor %q", rec.Checkpoint.Cursor)
			req.Checkpoint = &rec.Checkpoint
		}
	}

	orch := services.NewFetchOrchestrator(backend)
	summary, checkpoint, fetched, runErr := drain(ctx, cmd, orch, req)

	if checkpointStore != nil && checkpoint != nil {
		saveErr := checkpointStore.Save(ctx, drivenRecord(backend.Name(), backend.Origin(), req.Category, *checkpoint, fetched))
		if saveErr != nil {
			logger.Warn("saving checkpoint: %v", saveErr)
		}
	}

	if runErr != nil {
		return runErr
	}
	reportSummary(cmd, summary)
	return nil
}

func replayArchives(cmd *cobra.Command, backendName, origin string, window domain.Window) error {
	ctx := cmd.Context()

	// The manager needs the canonical origin and version, which only
	// the backend knows. Build a throwaway instance to ask it.
	probe, err := registry.Create(backendName, services.BackendSetup{
		Origin: origin,
		Client: httpclient.New(httpclient.Options{}),
	})
	if err != nil {
		return err
	}

	manager, err := archive.NewManager(archiveDir(), probe.Origin(), probe.Name(), probe.Version())
	if err != nil {
		return fmt.Errorf("opening archives: %w", err)
	}

	since := time.Time{}
	if fetchFlags.archivedSince != "" {
		since, err = parseDate(fetchFlags.archivedSince)
		if err != nil {
			return err
		}
	}

	names, err := manager.List(since)
	if err != nil {
		return fmt.Errorf("listing archives: %w", err)
	}
	if len(names) == 0 {
		return fmt.Errorf("no archives found under %s", manager.Dir())
	}

	var total domain.Summary
	for _, name := range names {
		summary, err := replayOne(ctx, cmd, backendName, origin, window, manager.Path(name))
		if err != nil {
			return err
		}
		total.Fetched += summary.Fetched
		total.SkippedOutOfWindow += summary.SkippedOutOfWindow
		total.SkippedParse += summary.SkippedParse
	}
	reportSummary(cmd, total)
	return nil
}

func replayOne(
	ctx context.Context,
	cmd *cobra.Command,
	backendName, origin string,
	window domain.Window,
	path string,
) (domain.Summary, error) {
	reader, err := archive.NewReader(path)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("opening archive %s: %w", path, err)
	}
	defer reader.Close()

	backend, err := registry.Create(backendName, services.BackendSetup{
		Origin: origin,
		Tag:    fetchFlags.tag,
		Client: httpclient.NewReplay(reader),
	})
	if err != nil {
		return domain.Summary{}, err
	}

	req := driving.Request{
		Category: category(backend.Categories()),
		Mode:     driving.ModeReplay,
		Window:   window,
		Tag:      fetchFlags.tag,
	}

	orch := services.NewFetchOrchestrator(backend)
	summary, _, _, runErr := drain(ctx, cmd, orch, req)
	if runErr != nil {
		return domain.Summary{}, fmt.Errorf("replaying %s: %w", path, runErr)
	}
	return summary, nil
}

// drain runs one fetch and prints every document as a JSON line.
// It returns the summary, the checkpoint to persist (nil when the run
// produced none), the emit count, and the run error if any.
func drain(
	ctx context.Context,
	cmd *cobra.Command,
	orch *services.FetchOrchestrator,
	req driving.Request,
) (domain.Summary, *domain.FetchCheckpoint, int, error) {
	docs, errs := orch.Fetch(ctx, req)

	enc := json.NewEncoder(cmd.OutOrStdout())
	emitted := 0
	for doc := range docs {
		if err := enc.Encode(doc); err != nil {
			return domain.Summary{}, nil, emitted, fmt.Errorf("encoding document: %w", err)
		}
		emitted++
	}

	err := <-errs
	if done, ok := driving.IsRunDone(err); ok {
		return done.Summary, &done.Checkpoint, emitted, nil
	}

	var runErr *driving.RunError
	if errors.As(err, &runErr) {
		return domain.Summary{}, &runErr.Checkpoint, emitted, err
	}
	return domain.Summary{}, nil, emitted, err
}

func drivenRecord(
	backendName, origin, cat string,
	checkpoint domain.FetchCheckpoint,
	fetched int,
) driven.CheckpointRecord {
	return driven.CheckpointRecord{
		BackendName: backendName,
		Origin:      origin,
		Category:    cat,
		Checkpoint:  checkpoint,
		Fetched:     fetched,
	}
}

func reportSummary(cmd *cobra.Command, s domain.Summary) {
	cmd.PrintErrf("Fetched %d document(s), skipped %d\n", s.Fetched, s.SkippedOutOfWindow+s.SkippedParse)
}

// clientOptions builds the client settings from the flags, with the
// config file filling in for flags the user left alone.
func clientOptions() httpclient.Options {
	opts := httpclient.Options{
		MaxRetries:       fetchFlags.maxRetries,
		SleepTime:        fetchFlags.sleepTime,
		ExtraRetryStatus: fetchFlags.extraRetryStatus,
		SleepForRate:     fetchFlags.sleepForRate,
		MinRateToSleep:   fetchFlags.minRateToSleep,
	}
	if configStore == nil {
		return opts
	}

	flags := fetchCmd.Flags()
	if !flags.Changed("max-retries") {
		if _, ok := configStore.Get("client.max_retries"); ok {
			opts.MaxRetries = configStore.GetInt("client.max_retries")
		}
	}
	if !flags.Changed("sleep-time") {
		if d := configStore.GetDuration("client.sleep_time"); d > 0 {
			opts.SleepTime = d
		}
	}
	if !flags.Changed("sleep-for-rate") && configStore.GetBool("client.sleep_for_rate") {
		opts.SleepForRate = true
	}
	if !flags.Changed("min-rate-to-sleep") {
		if _, ok := configStore.Get("client.min_rate_to_sleep"); ok {
			opts.MinRateToSleep = configStore.GetInt("client.min_rate_to_sleep")
		}
	}
	return opts
}

func credentials() []httpclient.Credential {
	creds := make([]httpclient.Credential, 0, len(fetchFlags.tokens))
	for _, token := range fetchFlags.tokens {
		creds = append(creds, httpclient.Credential{Token: token})
	}
	if len(creds) == 0 {
		if token := os.Getenv("CHRONICLER_TOKEN"); token != "" {
			creds = append(creds, httpclient.Credential{Token: token})
		}
	}
	if len(creds) == 0 && configStore != nil {
		for _, token := range configStore.GetStringSlice("auth.tokens") {
			creds = append(creds, httpclient.Credential{Token: token})
		}
	}
	return creds
}

// archiveDir resolves the archive root: the --archive-path flag, then
// the config file, then the default injected by main.
func archiveDir() string {
	if fetchFlags.archivePath != "" {
		return fetchFlags.archivePath
	}
	if configStore != nil {
		if path := configStore.GetString("archive.path"); path != "" {
			return path
		}
	}
	return archiveRoot
}

func category(available []string) string {
	if fetchFlags.category != "" {
		return fetchFlags.category
	}
	if len(available) > 0 {
		return available[0]
	}
	return ""
}

func parseWindow(from, to string) (domain.Window, error) {
	var fromDate, toDate time.Time
	var err error

	if from != "" {
		if fromDate, err = parseDate(from); err != nil {
			return domain.Window{}, err
		}
	}
	if to != "" {
		if toDate, err = parseDate(to); err != nil {
			return domain.Window{}, err
		}
	}
	return domain.NewWindow(fromDate, toDate)
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q (want RFC3339 or YYYY-MM-DD)", s)
}
