// Package durability implements the write-behind durability pipeline (spec
// §4.G): an incremental upload loop that ships recently committed batches
// to a remote blob store as log files, a periodic checkpoint step that
// snapshots the whole KV engine and retires old snapshots/logs, and the
// cold-start recovery procedure that reconstructs local state from the
// remote layout (spec §6.3) when the local data directory doesn't exist.
package durability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cubestore/metastore/internal/blobstore"
	"github.com/cubestore/metastore/internal/kvengine"
	"github.com/cubestore/metastore/internal/metaerr"
	"github.com/cubestore/metastore/internal/txn"
)

const (
	// DefaultCheckpointInterval is how long the pipeline waits between full
	// snapshots of the KV engine.
	DefaultCheckpointInterval = 60 * time.Second

	// DefaultRetentionAge is how old a remote snapshot or log era must be
	// before the checkpoint step deletes it.
	DefaultRetentionAge = 3 * time.Minute

	// DefaultPollTimeout bounds how long the upload loop waits on the
	// "write happened" signal before rechecking for checkpointing anyway.
	DefaultPollTimeout = 5 * time.Second

	pointerKey = "metastore-current"
)

var snapshotNamePattern = regexp.MustCompile(`^metastore-(\d+)$`)

// Pipeline drives the incremental upload loop and checkpoint step against
// one KV engine and one remote store. It is not safe for concurrent Run
// calls.
type Pipeline struct {
	kv     kvengine.Engine
	remote blobstore.Store
	signal *txn.Notifier
	logger *slog.Logger

	localDataDir string

	checkpointInterval time.Duration
	retentionAge       time.Duration
	pollTimeout        time.Duration

	lastUploadSeq      uint64
	lastCheckSeq       uint64
	lastCheckpointTime time.Time

	// UploadCompleted fires after every incremental upload that ships at
	// least one batch, mirroring the "write_completed" signal spec §4.G
	// step 4 calls for.
	UploadCompleted *txn.Notifier
}

// LastUploadSeq returns the highest KV sequence number shipped to the
// remote store so far, for lag reporting.
func (p *Pipeline) LastUploadSeq() uint64 {
	return p.lastUploadSeq
}

// LastCheckpointTime returns the time of the last successful checkpoint,
// or the zero Time if none has run yet.
func (p *Pipeline) LastCheckpointTime() time.Time {
	return p.lastCheckpointTime
}

// Option configures a Pipeline at construction time.
type Option func(*Pipeline)

func WithCheckpointInterval(d time.Duration) Option {
	return func(p *Pipeline) { p.checkpointInterval = d }
}

func WithRetentionAge(d time.Duration) Option {
	return func(p *Pipeline) { p.retentionAge = d }
}

func WithPollTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.pollTimeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New constructs a Pipeline. localDataDir is the parent directory the KV
// engine's own data directory lives in; checkpoint snapshots are written
// as sibling directories under it before upload, per spec §4.G step 2.
func New(kv kvengine.Engine, remote blobstore.Store, signal *txn.Notifier, localDataDir string, opts ...Option) *Pipeline {
	p := &Pipeline{
		kv:                 kv,
		remote:             remote,
		signal:             signal,
		localDataDir:       localDataDir,
		checkpointInterval: DefaultCheckpointInterval,
		retentionAge:       DefaultRetentionAge,
		pollTimeout:        DefaultPollTimeout,
		logger:             slog.Default(),
		UploadCompleted:    txn.NewNotifier(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run drives the incremental upload loop until ctx is cancelled. Errors
// from individual iterations are logged and the loop continues — a single
// failed upload or checkpoint must not take the pipeline down (spec §4.G
// notes this runs "continuously while enabled").
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := p.tick(ctx); err != nil {
			p.logger.Error("durability tick failed", "err", err)
		}
	}
}

func (p *Pipeline) tick(ctx context.Context) error {
	dbSeq := p.kv.LatestSeq()
	if dbSeq == p.lastCheckSeq {
		select {
		case <-p.signal.C():
		case <-time.After(p.pollTimeout):
		case <-ctx.Done():
			return nil
		}
	}

	if err := p.uploadIncremental(ctx); err != nil {
		return err
	}

	if p.lastCheckpointTime.IsZero() || time.Since(p.lastCheckpointTime) >= p.checkpointInterval {
		if err := p.checkpoint(ctx); err != nil {
			return err
		}
	}

	p.lastCheckSeq = dbSeq
	return nil
}

func (p *Pipeline) uploadIncremental(ctx context.Context) error {
	batches, err := p.kv.UpdatesSince(ctx, p.lastUploadSeq)
	if err != nil {
		return metaerr.Wrap("durability.uploadIncremental", metaerr.ErrKvEngine)
	}
	if len(batches) == 0 {
		return nil
	}

	minSeq := batches[0].Seq
	maxSeq := minSeq
	for _, b := range batches {
		if b.Seq > maxSeq {
			maxSeq = b.Seq
		}
	}

	blob := encodeLog(batches)
	checkpointMs := p.lastCheckpointTime.UnixMilli()
	if p.lastCheckpointTime.IsZero() {
		checkpointMs = 0
	}
	remotePath := fmt.Sprintf("metastore-%d-logs/%d.log", checkpointMs, minSeq)

	if err := p.uploadBlob(ctx, remotePath, blob); err != nil {
		return err
	}

	p.lastUploadSeq = maxSeq
	p.UploadCompleted.Signal()
	return nil
}

func (p *Pipeline) uploadBlob(ctx context.Context, remotePath string, contents []byte) error {
	staging, err := p.remote.LocalFile(remotePath)
	if err != nil {
		return err
	}
	if err := os.WriteFile(staging, contents, 0o644); err != nil {
		return metaerr.Wrap("durability.uploadBlob", metaerr.ErrRemoteIo)
	}
	defer os.Remove(staging)
	return p.remote.UploadFile(ctx, remotePath, staging)
}

func (p *Pipeline) checkpoint(ctx context.Context) error {
	t := time.Now()
	p.lastCheckpointTime = t
	tMs := t.UnixMilli()
	snapshotName := fmt.Sprintf("metastore-%d", tMs)
	snapshotDir := filepath.Join(p.localDataDir, snapshotName)

	if err := p.kv.Checkpoint(ctx, snapshotDir); err != nil {
		return metaerr.Wrap("durability.checkpoint", metaerr.ErrKvEngine)
	}

	entries, err := os.ReadDir(snapshotDir)
	if err != nil {
		return metaerr.Wrap("durability.checkpoint", metaerr.ErrRemoteIo)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		filename := e.Name()
		g.Go(func() error {
			return p.remote.UploadFile(gctx, snapshotName+"/"+filename, filepath.Join(snapshotDir, filename))
		})
	}
	if err := g.Wait(); err != nil {
		return metaerr.Wrap("durability.checkpoint", metaerr.ErrRemoteIo)
	}

	if err := p.retire(ctx, t); err != nil {
		p.logger.Error("durability retention sweep failed", "err", err)
	}

	if err := p.uploadBlob(ctx, pointerKey, []byte(snapshotName)); err != nil {
		return err
	}
	return nil
}

// retire deletes every remote "metastore-*" era whose timestamp is older
// than now - retentionAge.
func (p *Pipeline) retire(ctx context.Context, now time.Time) error {
	paths, err := p.remote.List(ctx, "metastore-")
	if err != nil {
		return err
	}
	cutoff := now.Add(-p.retentionAge)

	for _, path := range paths {
		if path == pointerKey {
			continue
		}
		era := path
		if idx := strings.IndexByte(era, '/'); idx >= 0 {
			era = era[:idx]
		}
		ms, ok := parseEraTimestampMs(era)
		if !ok {
			continue
		}
		if time.UnixMilli(ms).Before(cutoff) {
			if err := p.remote.DeleteFile(ctx, path); err != nil {
				p.logger.Error("failed to delete retired blob", "path", path, "err", err)
			}
		}
	}
	return nil
}

// parseEraTimestampMs extracts <t_ms> from either "metastore-<t_ms>" or
// "metastore-<t_ms>-logs".
func parseEraTimestampMs(era string) (int64, bool) {
	era = strings.TrimSuffix(era, "-logs")
	m := snapshotNamePattern.FindStringSubmatch(era)
	if m == nil {
		return 0, false
	}
	ms, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return ms, true
}

// OpenFunc opens a KV engine against a local directory, e.g.
// badgerkv.Open.
type OpenFunc func(dir string) (kvengine.Engine, error)

// Recover implements spec §4.G cold-start recovery: if localDir already
// exists, it is opened as-is. Otherwise the latest remote snapshot (named
// by the metastore-current pointer) and its subsequent incremental logs
// are downloaded and replayed into a freshly created localDir.
func Recover(ctx context.Context, localDir string, remote blobstore.Store, open OpenFunc) (kvengine.Engine, error) {
	if _, err := os.Stat(localDir); err == nil {
		return open(localDir)
	}

	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return nil, metaerr.Wrap("durability.Recover", metaerr.ErrRemoteIo)
	}

	staging, err := remote.LocalFile(pointerKey)
	if err != nil {
		return nil, err
	}
	if err := remote.DownloadFile(ctx, pointerKey, staging); err != nil {
		if errors.Is(err, metaerr.ErrNotFound) {
			return open(localDir)
		}
		return nil, err
	}
	defer os.Remove(staging)

	body, err := os.ReadFile(staging)
	if err != nil {
		return nil, metaerr.Wrap("durability.Recover", metaerr.ErrRemoteIo)
	}
	snapshotName := strings.TrimSpace(string(body))
	m := snapshotNamePattern.FindStringSubmatch(snapshotName)
	if m == nil {
		return nil, metaerr.Wrap("durability.Recover: malformed pointer body "+snapshotName, metaerr.ErrRemoteIo)
	}

	if err := downloadSnapshot(ctx, remote, snapshotName, localDir); err != nil {
		return nil, err
	}

	eng, err := open(localDir)
	if err != nil {
		return nil, err
	}

	if err := replayLogs(ctx, remote, snapshotName+"-logs", eng); err != nil {
		eng.Close()
		return nil, err
	}
	return eng, nil
}

func downloadSnapshot(ctx context.Context, remote blobstore.Store, snapshotName, localDir string) error {
	files, err := remote.List(ctx, snapshotName+"/")
	if err != nil {
		return err
	}
	for _, remotePath := range files {
		filename := remotePath[strings.LastIndexByte(remotePath, '/')+1:]
		if err := remote.DownloadFile(ctx, remotePath, filepath.Join(localDir, filename)); err != nil {
			return err
		}
	}
	return nil
}

func replayLogs(ctx context.Context, remote blobstore.Store, logsPrefix string, eng kvengine.Engine) error {
	files, err := remote.List(ctx, logsPrefix+"/")
	if err != nil {
		return err
	}

	type logFile struct {
		minSeq uint64
		path   string
	}
	ordered := make([]logFile, 0, len(files))
	for _, remotePath := range files {
		filename := remotePath[strings.LastIndexByte(remotePath, '/')+1:]
		filename = strings.TrimSuffix(filename, ".log")
		minSeq, err := strconv.ParseUint(filename, 10, 64)
		if err != nil {
			continue
		}
		ordered = append(ordered, logFile{minSeq: minSeq, path: remotePath})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].minSeq < ordered[j].minSeq })

	for _, lf := range ordered {
		staging, err := remote.LocalFile(lf.path)
		if err != nil {
			return err
		}
		if err := remote.DownloadFile(ctx, lf.path, staging); err != nil {
			return err
		}
		data, err := os.ReadFile(staging)
		os.Remove(staging)
		if err != nil {
			return metaerr.Wrap("durability.replayLogs", metaerr.ErrRemoteIo)
		}
		muts, err := decodeLog(data)
		if err != nil {
			return err
		}
		if _, err := eng.WriteBatch(ctx, muts); err != nil {
			return metaerr.Wrap("durability.replayLogs", metaerr.ErrKvEngine)
		}
	}
	return nil
}
