package telemetry

import (
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/berrythewa/ifmctl/internal/types"
	"github.com/berrythewa/ifmctl/pkg/format"
)

// Reporter receives the consumer's output. Both methods are called from the
// consumer goroutine only, one call at a time.
type Reporter interface {
	ReportAverage(avg types.FrameAverage)
	ReportError(err error)
}

// ReporterFuncs adapts plain functions to Reporter. Nil fields are skipped.
type ReporterFuncs struct {
	OnAverage func(types.FrameAverage)
	OnError   func(error)
}

func (r ReporterFuncs) ReportAverage(avg types.FrameAverage) {
	if r.OnAverage != nil {
		r.OnAverage(avg)
	}
}

func (r ReporterFuncs) ReportError(err error) {
	if r.OnError != nil {
		r.OnError(err)
	}
}

// MultiReporter fans out to several reporters in order
type MultiReporter []Reporter

func (m MultiReporter) ReportAverage(avg types.FrameAverage) {
	for _, r := range m {
		r.ReportAverage(avg)
	}
}

func (m MultiReporter) ReportError(err error) {
	for _, r := range m {
		r.ReportError(err)
	}
}

// WriterReporter prints one line per frame, e.g. for an interactive terminal
type WriterReporter struct {
	mu  sync.Mutex
	out io.Writer
	opt format.Options
}

func NewWriterReporter(out io.Writer, opt format.Options) *WriterReporter {
	return &WriterReporter{out: out, opt: opt}
}

func (w *WriterReporter) ReportAverage(avg types.FrameAverage) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintln(w.out, format.Average(avg, w.opt))
}

func (w *WriterReporter) ReportError(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintln(w.out, format.StreamError(err, w.opt))
}

// LogReporter logs averages at debug level and decode failures at warn
// level. Warnings are throttled; suppressed ones are counted and reported
// with the next warning that gets through.
type LogReporter struct {
	logger     *zap.Logger
	limiter    *rate.Limiter
	suppressed int
}

// NewLogReporter allows perSecond error lines per second. Zero or less
// disables throttling.
func NewLogReporter(logger *zap.Logger, perSecond float64) *LogReporter {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &LogReporter{
		logger:  logger,
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (l *LogReporter) ReportAverage(avg types.FrameAverage) {
	l.logger.Debug("Frame average",
		zap.Uint32("count", avg.Count),
		zap.Float64("avg_x", avg.X),
		zap.Float64("avg_y", avg.Y),
		zap.Float64("avg_z", avg.Z))
}

func (l *LogReporter) ReportError(err error) {
	if !l.limiter.AllowN(time.Now(), 1) {
		l.suppressed++
		return
	}
	fields := []zap.Field{zap.Error(err)}
	if l.suppressed > 0 {
		fields = append(fields, zap.Int("suppressed", l.suppressed))
		l.suppressed = 0
	}
	l.logger.Warn("Stream frame error", fields...)
}
