// Package audit emits audit records for every mutating operation.
//
// Records always go to the structured log; when a sink URL is
// configured they are also POSTed to it. Emission is asynchronous and
// best effort so a slow or broken sink never affects the operation
// that produced the record.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bissquit/status-garden/internal/domain"
	"github.com/bissquit/status-garden/internal/pkg/ctxlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const defaultQueueSize = 256

var recordsEmitted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "statusgarden",
		Subsystem: "audit",
		Name:      "records_total",
		Help:      "Total audit records by outcome",
	},
	[]string{"status"},
)

// Config holds audit recorder configuration.
type Config struct {
	SinkURL   string        // optional HTTP sink, empty disables forwarding
	Timeout   time.Duration // sink request timeout
	QueueSize int
}

// Recorder queues audit records and forwards them on a background
// goroutine.
type Recorder struct {
	sinkURL    string
	httpClient *http.Client

	records chan *domain.AuditRecord
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewRecorder creates an audit recorder.
func NewRecorder(cfg Config) *Recorder {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}

	return &Recorder{
		sinkURL:    cfg.SinkURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		records:    make(chan *domain.AuditRecord, cfg.QueueSize),
		stopCh:     make(chan struct{}),
	}
}

// Record enqueues an audit record without blocking. A full queue drops
// the record with a warning.
func (r *Recorder) Record(ctx context.Context, record *domain.AuditRecord) {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	select {
	case r.records <- record:
	default:
		recordsEmitted.WithLabelValues("dropped").Inc()
		ctxlog.FromContext(ctx).Warn("audit queue full, record dropped",
			"action", record.Action,
			"resource_id", record.ResourceID,
		)
	}
}

// Start launches the emission goroutine.
func (r *Recorder) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.run(ctx)
}

// Stop stops the recorder.
func (r *Recorder) Stop() {
	close(r.stopCh)
	r.wg.Wait()
}

func (r *Recorder) run(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case record := <-r.records:
			r.emit(ctx, record)
		}
	}
}

func (r *Recorder) emit(ctx context.Context, record *domain.AuditRecord) {
	slog.Info("audit",
		"actor", record.Actor,
		"action", record.Action,
		"resource_type", record.ResourceType,
		"resource_id", record.ResourceID,
		"organization_id", record.OrganizationID,
		"team_id", record.TeamID,
	)

	if r.sinkURL == "" {
		recordsEmitted.WithLabelValues("logged").Inc()
		return
	}

	if err := r.forward(ctx, record); err != nil {
		recordsEmitted.WithLabelValues("failed").Inc()
		slog.Warn("audit sink delivery failed",
			"action", record.Action,
			"resource_id", record.ResourceID,
			"error", err,
		)
		return
	}
	recordsEmitted.WithLabelValues("forwarded").Inc()
}

func (r *Recorder) forward(ctx context.Context, record *domain.AuditRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.sinkURL, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sink returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
