// Command metastored runs the metastore daemon: it opens (or recovers) the
// local KV engine, wires the transaction coordinator, catalog, metrics, and
// durability pipeline together, and blocks until told to stop.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cubestore/metastore/internal/blobstore"
	"github.com/cubestore/metastore/internal/blobstore/localblob"
	"github.com/cubestore/metastore/internal/blobstore/s3blob"
	"github.com/cubestore/metastore/internal/catalog"
	"github.com/cubestore/metastore/internal/config"
	"github.com/cubestore/metastore/internal/durability"
	"github.com/cubestore/metastore/internal/eventbus"
	"github.com/cubestore/metastore/internal/kvengine"
	"github.com/cubestore/metastore/internal/kvengine/badgerkv"
	"github.com/cubestore/metastore/internal/metrics"
	"github.com/cubestore/metastore/internal/txn"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "metastored",
	Short: "metastored - metadata store daemon for the columnar analytics engine",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVar(&configFile, "config", "", "path to metastore config.yaml (defaults + METASTORE_* env vars apply regardless)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default()

	loader, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("metastored: loading config: %w", err)
	}
	cfg := loader.Current()

	remote, err := openRemote(ctx, cfg)
	if err != nil {
		return fmt.Errorf("metastored: opening remote store: %w", err)
	}

	kvDir := filepath.Join(cfg.DataDir, "kv")
	kv, err := durability.Recover(ctx, kvDir, remote, func(dir string) (kvengine.Engine, error) {
		return badgerkv.Open(dir)
	})
	if err != nil {
		return fmt.Errorf("metastored: recovering local state: %w", err)
	}
	defer kv.Close()

	m, err := metrics.New()
	if err != nil {
		return fmt.Errorf("metastored: initializing metrics: %w", err)
	}
	defer m.Shutdown(context.Background())
	metrics.LogStartup(logger, "stdout")

	bus := eventbus.New()
	bus.AddListener(m.RowMutationListener())
	co := txn.New(kv, bus, cfg.WorkerPoolSize, txn.WithMetrics(m))
	cat := catalog.New(co)

	pipeline := durability.New(kv, remote, co.WriteSignal, cfg.DataDir,
		durability.WithCheckpointInterval(cfg.CheckpointInterval),
		durability.WithRetentionAge(cfg.RetentionAge),
		durability.WithPollTimeout(cfg.UploadPollTimeout),
		durability.WithLogger(logger),
	)

	if err := m.RegisterGauges(
		func() int64 { return int64(kv.LatestSeq()) - int64(pipeline.LastUploadSeq()) },
		func() float64 {
			t := pipeline.LastCheckpointTime()
			if t.IsZero() {
				return 0
			}
			return time.Since(t).Seconds()
		},
		func() int64 {
			depth, err := cat.QueueDepth(ctx)
			if err != nil {
				logger.Error("queue depth probe failed", "err", err)
				return -1
			}
			return depth
		},
	); err != nil {
		return fmt.Errorf("metastored: registering gauges: %w", err)
	}

	pipelineErrCh := make(chan error, 1)
	go func() {
		pipelineErrCh <- pipeline.Run(ctx)
	}()

	logger.Info("metastored started", "data_dir", cfg.DataDir, "listen_addr", cfg.ListenAddr)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-pipelineErrCh:
		if err != nil {
			logger.Error("durability pipeline exited", "err", err)
		}
	}
	return nil
}

func openRemote(ctx context.Context, cfg config.Config) (blobstore.Store, error) {
	if cfg.Bucket == "" {
		return localblob.New(filepath.Join(cfg.DataDir, "remote"))
	}
	stagingDir := filepath.Join(cfg.DataDir, "staging")
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, err
	}
	return s3blob.New(ctx, cfg.Bucket, cfg.Prefix, stagingDir)
}
