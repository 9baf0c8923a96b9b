package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/quantarax/blocksig/internal/catalog"
	"github.com/quantarax/blocksig/internal/checksum"
	"github.com/quantarax/blocksig/internal/chunker"
	"github.com/quantarax/blocksig/internal/config"
	"github.com/quantarax/blocksig/internal/observability"
	"github.com/quantarax/blocksig/internal/pipeline"
	"github.com/quantarax/blocksig/internal/ratelimit"
	"github.com/quantarax/blocksig/internal/signature"
	"github.com/quantarax/blocksig/internal/validation"
)

var errVerifyMismatch = errors.New("signature differs from sequential computation")

// run is main without os.Exit, returning the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n\n%s", err, usage)
		return exitConfig
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitConfig
	}
	if err := validation.ValidateDistinctPaths(opts.input, opts.output); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitConfig
	}

	logger := observability.NewLogger("signature", version, stderr, observability.LogOptions{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})
	runID := uuid.NewString()
	logger = logger.WithRun(runID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if shutdown, err := observability.InitTracing(ctx, "signature"); err != nil {
		logger.Warn(fmt.Sprintf("tracing disabled: %v", err))
	} else {
		defer shutdown(context.Background())
	}

	s := &session{
		cfg:    cfg,
		opts:   opts,
		runID:  runID,
		logger: logger,
		stdout: stdout,
	}
	return s.execute(ctx)
}

// session is one invocation after configuration has been accepted.
type session struct {
	cfg    *config.Config
	opts   *cliOptions
	runID  string
	logger *observability.Logger
	stdout io.Writer
}

func (s *session) execute(ctx context.Context) int {
	bs, _ := s.cfg.ParsedBlockSize()
	blockSize, err := bs.Int()
	if err != nil {
		s.logger.Error(err, "block size")
		return exitConfig
	}
	budget, _ := s.cfg.Budget()
	rate, _ := s.cfg.Rate()

	if err := validation.ValidateFilePath(s.opts.input, true); err != nil {
		s.logger.Error(err, "failed to open input")
		return exitOpen
	}
	in, err := os.Open(s.opts.input)
	if err != nil {
		s.logger.Error(err, "failed to open input")
		return exitOpen
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		s.logger.Error(err, "failed to stat input")
		return exitOpen
	}
	s.logger = s.logger.WithFile(s.opts.input, info.Size())

	out, err := os.Create(s.opts.output)
	if err != nil {
		s.logger.Error(err, "failed to create output")
		return exitOpen
	}
	defer out.Close()

	var alloc chunker.Allocator
	if budget > 0 {
		if alloc, err = chunker.NewBudgetAllocator(budget, blockSize); err != nil {
			s.logger.Error(err, "memory budget")
			return exitConfig
		}
	}

	src, err := chunker.NewSource(ratelimit.NewReader(ctx, in, rate, 0), blockSize, alloc)
	if err != nil {
		s.logger.Error(err, "block source")
		return exitConfig
	}

	metrics := observability.NewMetrics(nil)
	w := signature.NewWriter(out)
	coord := pipeline.New(src, w, pipeline.Options{
		Workers:           s.cfg.Workers,
		QueueDepth:        s.cfg.QueueDepth,
		HighWaterMark:     s.cfg.HighWaterMark,
		DrainPollInterval: s.cfg.DrainPollInterval,
		Retry: pipeline.RetryPolicy{
			Delay:       s.cfg.RetryDelay,
			MaxAttempts: uint64(s.cfg.MaxRetries),
		},
		Logger:  s.logger,
		Metrics: metrics,
	})

	if s.cfg.MetricsAddress != "" {
		srv := s.serveObservability(metrics, coord)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	s.logger.RunStarted(s.opts.input, s.opts.output, info.Size(), blockSize, s.cfg.Workers, s.cfg.HighWaterMark)

	res, err := coord.Run(ctx)
	if cerr := out.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("failed to close output: %w", cerr)
	}
	if err != nil {
		s.logger.Error(err, "signature run failed; output is incomplete")
		return exitRun
	}

	if s.opts.verify {
		if err := s.verify(blockSize); err != nil {
			s.logger.Error(err, "sequential verification failed")
			return exitRun
		}
		s.logger.Info("sequential verification passed")
	}

	if err := s.record(res, blockSize); err != nil {
		s.logger.Error(err, "failed to record manifest")
		return exitRun
	}

	fmt.Fprintf(s.stdout, "%s: %d blocks of %s, %s signature in %s\n",
		s.opts.output, res.Blocks, humanize.IBytes(uint64(blockSize)),
		humanize.IBytes(uint64(res.BytesWritten)), elapsed(res.Duration))
	return exitOK
}

// verify recomputes the signature on a single thread and compares it with the
// file just written.
func (s *session) verify(blockSize int) error {
	in, err := os.Open(s.opts.input)
	if err != nil {
		return err
	}
	defer in.Close()

	want, err := checksum.Sequential(in, blockSize)
	if err != nil {
		return err
	}
	got, err := signature.ReadFile(s.opts.output)
	if err != nil {
		return err
	}

	if d := signature.Diff(want, got); !d.Unchanged() {
		return fmt.Errorf("%w: %d changed, %d extra, %d missing", errVerifyMismatch, len(d.Changed), d.Appended, d.Removed)
	}
	return nil
}

// record writes the manifest sidecar and catalog entry when requested.
func (s *session) record(res *pipeline.Result, blockSize int) error {
	if s.opts.manifestPath == "" && s.cfg.CatalogPath == "" {
		return nil
	}

	inputName, err := filepath.Abs(s.opts.input)
	if err != nil {
		return err
	}
	m := &chunker.Manifest{
		RunID:           s.runID,
		InputName:       inputName,
		InputSize:       res.BytesRead,
		OutputName:      s.opts.output,
		BlockSize:       blockSize,
		BlockCount:      res.Blocks,
		Algorithm:       checksum.Algorithm,
		ByteOrder:       signature.ByteOrderName,
		SignatureDigest: base64.StdEncoding.EncodeToString(res.Digest),
		CreatedAt:       time.Now().UTC(),
	}

	if s.opts.manifestPath != "" {
		if err := chunker.WriteManifest(s.opts.manifestPath, m); err != nil {
			return err
		}
	}
	if s.cfg.CatalogPath != "" {
		cat, err := catalog.Open(s.cfg.CatalogPath)
		if err != nil {
			return err
		}
		defer cat.Close()
		if err := cat.Put(m); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) serveObservability(metrics *observability.Metrics, coord *pipeline.Coordinator) *http.Server {
	health := observability.NewHealthChecker(version)
	health.RegisterCheck("pipeline", observability.PipelineCheck(func() (string, bool) {
		st := coord.State()
		return st.String(), st == pipeline.StateFailed
	}))
	health.RegisterCheck("reorder_buffer", observability.ReorderBacklogCheck(coord.Buffered, s.cfg.HighWaterMark))

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", health.Handler())

	srv := &http.Server{Addr: s.cfg.MetricsAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		s.logger.Info(fmt.Sprintf("observability server listening on %s", s.cfg.MetricsAddress))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(err, "observability server error")
		}
	}()
	return srv
}
