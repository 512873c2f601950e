package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coppermind/ingrain/internal/observability"
	"github.com/coppermind/ingrain/pkg/events"
	"github.com/coppermind/ingrain/pkg/ingest"
	"github.com/coppermind/ingrain/pkg/ledger"
	"github.com/coppermind/ingrain/pkg/manifest"
	"github.com/coppermind/ingrain/pkg/runner"
	"github.com/coppermind/ingrain/pkg/signal"
	"github.com/coppermind/ingrain/pkg/source"
	sourcefs "github.com/coppermind/ingrain/pkg/source/fs"
	sources3 "github.com/coppermind/ingrain/pkg/source/s3"
	"github.com/coppermind/ingrain/pkg/vectorstore"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a sync job from manifest",
	Long: `Run one synchronization pass as defined in a YAML or JSON manifest.

The manifest specifies the source connection, match patterns, the target
index and the run behavior. The pass is registered as a job: while it
runs, 'ingrain jobs list' shows it and 'ingrain jobs pause|resume|cancel'
control it, from this or any other process sharing the data directory.

Example:
  ingrain sync --job sync.yaml
  ingrain sync --job sync.yaml --full
  ingrain sync --job sync.yaml --dry-run`,
	RunE: runSync,
}

var (
	syncJobPath string
	syncFull    bool
	syncDryRun  bool
	syncQuiet   bool
	syncJobID   string
)

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().StringVarP(&syncJobPath, "job", "j", "", "Path to job manifest (required)")
	syncCmd.Flags().BoolVar(&syncFull, "full", false, "Ignore the ledger and re-index everything")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "Compute and print the change-set without applying it")
	syncCmd.Flags().BoolVarP(&syncQuiet, "quiet", "q", false, "Suppress per-item progress lines")
	syncCmd.Flags().StringVar(&syncJobID, "job-id", "", "Override the generated job id")

	_ = syncCmd.MarkFlagRequired("job")
}

func runSync(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	log := observability.CLILogger

	m, err := manifest.Load(syncJobPath)
	if err != nil {
		log.Error("Failed to load manifest", zap.String("path", syncJobPath), zap.Error(err))
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	src, err := buildSource(ctx, m)
	if err != nil {
		log.Error("Failed to create source", zap.Error(err))
		return err
	}
	defer func() { _ = src.Close() }()

	filter, err := m.Filter()
	if err != nil {
		return err
	}

	// A dry run never touches the index, so it needs no credentials.
	var index vectorstore.Index = vectorstore.NewMemory()
	if !syncDryRun {
		index, err = buildIndex(m)
		if err != nil {
			log.Error("Failed to create index client", zap.Error(err))
			return err
		}
	}

	syncer := &ingest.Syncer{
		Source:  src,
		Index:   index,
		Ledgers: ledger.NewStore(cfg.LedgersDir()),
		Filter:  filter,
		Full:    syncFull || m.Behavior.Mode == manifest.ModeFull,
		DryRun:  syncDryRun,
		Logger:  log,
	}

	jobID := syncJobID
	if jobID == "" {
		jobID = "sync-" + uuid.NewString()
	}

	buf := events.NewBuffer()
	run := &runner.Runner{
		Signals: signal.NewFSStore(cfg.JobsDir()),
		Events:  buf,
		Logger:  log,
	}

	// Drain progress to stdout while the job runs.
	drainDone := make(chan struct{})
	drainCtx, stopDrain := context.WithCancel(context.Background())
	go func() {
		defer close(drainDone)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			printEvents(buf.Drain())
			select {
			case <-drainCtx.Done():
				printEvents(buf.Drain())
				return
			case <-ticker.C:
			}
		}
	}()

	state, result, err := run.Run(ctx, syncer.Job(jobID))
	stopDrain()
	<-drainDone
	if err != nil {
		return err
	}

	switch state {
	case signal.StateError:
		return fmt.Errorf("sync failed: %s", result.Error)
	case signal.StateCancelled:
		fmt.Fprintf(os.Stdout, "Cancelled. job_id=%s\n", jobID)
		return nil
	}
	if !result.Ok {
		return fmt.Errorf("sync finished with failures: %s", result.Error)
	}
	fmt.Fprintf(os.Stdout, "Done. job_id=%s\n", jobID)
	return nil
}

func printEvents(batch []events.Event) {
	for _, ev := range batch {
		if log, ok := ev.(events.Log); ok && !syncQuiet {
			fmt.Fprintln(os.Stdout, log.Line)
		}
	}
}

func buildSource(ctx context.Context, m *manifest.Manifest) (source.Source, error) {
	switch m.Source.Type {
	case manifest.SourceFS:
		return sourcefs.New(sourcefs.Config{
			Name:    m.SourceID(),
			BaseDir: m.Source.BaseDir,
		})
	case manifest.SourceS3:
		return sources3.New(ctx, sources3.Config{
			Name:      m.SourceID(),
			Bucket:    m.Source.Bucket,
			Prefix:    m.Source.Prefix,
			Region:    m.Source.Region,
			Endpoint:  m.Source.Endpoint,
			Profile:   m.Source.Profile,
			RateLimit: m.Behavior.RateLimit,
		})
	}
	return nil, fmt.Errorf("unsupported source type %q", m.Source.Type)
}

func buildIndex(m *manifest.Manifest) (vectorstore.Index, error) {
	apiKey := ""
	if m.Index.APIKeyEnv != "" {
		apiKey = os.Getenv(m.Index.APIKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("environment variable %s is empty", m.Index.APIKeyEnv)
		}
	}
	return vectorstore.NewClient(vectorstore.ClientConfig{
		BaseURL: m.Index.BaseURL,
		StoreID: m.Index.StoreID,
		APIKey:  apiKey,
	})
}
