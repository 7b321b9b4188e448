// Package audit persists request and prediction records off the request path.
// Failures are logged and counted, never returned to callers.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/attrition/internal/metrics"
	"github.com/kiranshivaraju/attrition/pkg/models"
)

const (
	defaultQueueSize = 256
	defaultWorkers   = 2
)

// Writer persists one request row and its prediction rows atomically.
type Writer interface {
	CreateAuditRecord(ctx context.Context, req *models.AuditRequest, preds []models.AuditPrediction) error
}

// Entry is one API call to be audited.
type Entry struct {
	Request     models.AuditRequest
	Predictions []models.AuditPrediction
}

// Logger writes entries on background workers fed by a bounded queue.
// A Logger without a Writer is disabled and Record is a no-op.
type Logger struct {
	writer  Writer
	log     *slog.Logger
	workers int
	size    int

	mu     sync.RWMutex
	closed bool
	queue  chan Entry
	wg     sync.WaitGroup
}

type Option func(*Logger)

// WithLogger sets the logger used for write warnings. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Logger) { a.log = l }
}

func WithQueueSize(n int) Option {
	return func(a *Logger) {
		if n > 0 {
			a.size = n
		}
	}
}

func WithWorkers(n int) Option {
	return func(a *Logger) {
		if n > 0 {
			a.workers = n
		}
	}
}

// New starts a Logger writing through w. A nil w returns a disabled Logger.
func New(w Writer, opts ...Option) *Logger {
	l := &Logger{
		writer:  w,
		log:     slog.Default(),
		workers: defaultWorkers,
		size:    defaultQueueSize,
	}
	for _, opt := range opts {
		opt(l)
	}
	if w == nil {
		return l
	}

	l.queue = make(chan Entry, l.size)
	for i := 0; i < l.workers; i++ {
		l.wg.Add(1)
		go l.run()
	}
	return l
}

// Disabled returns a Logger that discards every entry.
func Disabled() *Logger {
	return New(nil)
}

func (l *Logger) Enabled() bool { return l.writer != nil }

// Record enqueues e without blocking. When the queue is full or the Logger is
// closed the entry is dropped with a warning.
func (l *Logger) Record(e Entry) {
	if !l.Enabled() {
		return
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.drop(e, "logger closed")
		return
	}
	metrics.AuditQueueDepth.Inc()
	select {
	case l.queue <- e:
	default:
		metrics.AuditQueueDepth.Dec()
		l.drop(e, "queue full")
	}
}

func (l *Logger) drop(e Entry, reason string) {
	metrics.AuditWrites.WithLabelValues("dropped").Inc()
	l.log.Warn("audit entry dropped", "endpoint", e.Request.Endpoint, "reason", reason)
}

func (l *Logger) run() {
	defer l.wg.Done()
	for e := range l.queue {
		metrics.AuditQueueDepth.Dec()
		l.write(e)
	}
}

// write persists one entry. Errors and panics both end in a single warning.
func (l *Logger) write(e Entry) {
	start := time.Now()
	preds := stamp(&e)
	err := l.persist(&e.Request, preds)
	if err != nil {
		metrics.AuditWrites.WithLabelValues("failed").Inc()
		l.log.Warn("audit write failed",
			"endpoint", e.Request.Endpoint,
			"request_id", e.Request.ID,
			"predictions", len(e.Predictions),
			"error", err,
		)
		return
	}
	metrics.AuditWrites.WithLabelValues("written").Inc()
	l.log.Debug("audit entry written",
		"request_id", e.Request.ID,
		"predictions", len(e.Predictions),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// stamp fills in IDs the caller left empty and links every prediction to its
// request. Timestamps left zero are set by the database clock on insert, the
// same clock retention compares against.
func stamp(e *Entry) []models.AuditPrediction {
	if e.Request.ID == uuid.Nil {
		e.Request.ID = uuid.New()
	}
	preds := make([]models.AuditPrediction, len(e.Predictions))
	for i, p := range e.Predictions {
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		p.RequestID = e.Request.ID
		preds[i] = p
	}
	return preds
}

func (l *Logger) persist(req *models.AuditRequest, preds []models.AuditPrediction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return l.writer.CreateAuditRecord(context.Background(), req, preds)
}

// Close stops accepting entries and waits for queued ones to be written, or
// for ctx to end.
func (l *Logger) Close(ctx context.Context) error {
	if !l.Enabled() {
		return nil
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("audit queue not drained"), ctx.Err())
	}
}
