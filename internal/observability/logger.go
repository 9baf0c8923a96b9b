package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Logger wraps zerolog for structured logging.
type Logger struct {
	logger zerolog.Logger
}

// LogOptions selects level and encoding.
type LogOptions struct {
	Level  string // debug, info, warn, error; empty means info
	Format string // json, console or auto (console when output is a terminal)
}

// NewLogger creates a new structured logger.
func NewLogger(service, version string, output io.Writer, opts LogOptions) *Logger {
	if output == nil {
		output = os.Stderr
	}

	zerolog.TimeFieldFormat = time.RFC3339

	if useConsole(output, opts.Format) {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.Kitchen}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(output).Level(level).With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Str("host", getHostname()).
		Logger()

	return &Logger{
		logger: logger,
	}
}

// NopLogger discards everything.
func NopLogger() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

func useConsole(w io.Writer, format string) bool {
	switch format {
	case "console":
		return true
	case "json":
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// WithRun adds run_id context to logger.
func (l *Logger) WithRun(runID string) *Logger {
	return &Logger{
		logger: l.logger.With().Str("run_id", runID).Logger(),
	}
}

// WithFile adds file context to logger.
func (l *Logger) WithFile(filePath string, fileSize int64) *Logger {
	return &Logger{
		logger: l.logger.With().
			Str("file_path", filePath).
			Int64("file_size", fileSize).
			Logger(),
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string) {
	l.logger.Debug().Msg(msg)
}

// Info logs an info message.
func (l *Logger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string) {
	l.logger.Warn().Msg(msg)
}

// Error logs an error message.
func (l *Logger) Error(err error, msg string) {
	l.logger.Error().Err(err).Msg(msg)
}

// RunStarted logs the parameters of a signature run.
func (l *Logger) RunStarted(input, output string, inputSize int64, blockSize, workers, highWater int) {
	l.logger.Info().
		Str("input", input).
		Str("output", output).
		Str("input_size", humanize.IBytes(uint64(max(inputSize, 0)))).
		Str("block_size", humanize.IBytes(uint64(blockSize))).
		Int("workers", workers).
		Int("high_water_mark", highWater).
		Msg("signature run started")
}

// BlockSubmitted logs a block handed to the worker pool.
func (l *Logger) BlockSubmitted(index uint64, length int) {
	l.logger.Trace().
		Uint64("block_index", index).
		Int("block_len", length).
		Msg("block submitted")
}

// DrainFlushed logs a batch of checksums written in order.
func (l *Logger) DrainFlushed(count int, nextExpected uint64, buffered int) {
	l.logger.Debug().
		Int("records", count).
		Uint64("next_expected", nextExpected).
		Int("buffered", buffered).
		Msg("reorder buffer drained")
}

// RetryScheduled logs a transient failure that will be retried.
func (l *Logger) RetryScheduled(site string, attempt uint64, delay time.Duration, err error) {
	l.logger.Warn().
		Str("site", site).
		Uint64("attempt", attempt).
		Dur("delay", delay).
		Err(err).
		Msg("transient failure, retrying")
}

// ConsistencyViolation logs a broken ordering invariant.
func (l *Logger) ConsistencyViolation(index uint64, err error) {
	l.logger.Error().
		Uint64("block_index", index).
		Err(err).
		Msg("ordering invariant violated")
}

// RunCompleted logs a successful run.
func (l *Logger) RunCompleted(blocks uint64, bytesRead, bytesWritten int64, duration time.Duration) {
	throughput := uint64(0)
	if duration > 0 {
		throughput = uint64(float64(bytesRead) / duration.Seconds())
	}
	l.logger.Info().
		Uint64("blocks", blocks).
		Int64("bytes_read", bytesRead).
		Int64("bytes_written", bytesWritten).
		Float64("duration_seconds", duration.Seconds()).
		Str("throughput", humanize.IBytes(throughput)+"/s").
		Msg("signature run completed")
}

// RunFailed logs a failed run and how much output is valid.
func (l *Logger) RunFailed(err error, blocksWritten uint64) {
	l.logger.Error().
		Err(err).
		Uint64("blocks_written", blocksWritten).
		Msg("signature run failed, output is incomplete")
}

// Helper function to get hostname.
func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
