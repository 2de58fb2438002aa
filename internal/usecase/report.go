package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"arumi/internal/domain"
	"arumi/internal/ports"
)

var (
	// ErrReportDetailsRequired rejects a submission without contact details.
	ErrReportDetailsRequired = errors.New("customer name and email are required")
	// ErrReportTimeout marks a poll loop that exceeded its configured bound.
	ErrReportTimeout = errors.New("report generation timed out")
)

// reportTracker converts a one-shot report request into an eventual
// terminal state. It polls the status endpoint on a fixed interval; a
// transient query failure keeps the loop running, a definitive failed
// status is terminal.
type reportTracker struct {
	api      ports.ConsultationAPI
	events   ports.EventSink
	log      *zap.Logger
	interval time.Duration
	timeout  time.Duration
	onReady  func(token string)

	mu        sync.Mutex
	state     domain.ReportState
	token     string
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newReportTracker(
	api ports.ConsultationAPI,
	events ports.EventSink,
	log *zap.Logger,
	interval time.Duration,
	timeout time.Duration,
	onReady func(token string),
) *reportTracker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &reportTracker{
		api:      api,
		events:   events,
		log:      log,
		interval: interval,
		timeout:  timeout,
		onReady:  onReady,
		state:    domain.ReportStateIdle,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Submit issues the report request and starts polling. A second submission
// while generating (or after a terminal state) is a no-op.
func (t *reportTracker) Submit(ctx context.Context, sessionID, customerName, customerEmail string) error {
	customerName = strings.TrimSpace(customerName)
	customerEmail = strings.TrimSpace(customerEmail)
	if customerName == "" || customerEmail == "" {
		return ErrReportDetailsRequired
	}

	t.mu.Lock()
	if t.state != domain.ReportStateIdle {
		state, token := t.state, t.token
		t.mu.Unlock()
		// Re-announce so a late-arriving UI still learns the outcome.
		t.events.ReportStateChanged(state, token)
		return nil
	}
	t.state = domain.ReportStateGenerating
	t.mu.Unlock()

	receipt, err := t.api.EndSession(ctx, sessionID, customerName, customerEmail)
	if err != nil {
		t.mu.Lock()
		t.state = domain.ReportStateIdle
		t.mu.Unlock()
		return err
	}

	t.log.Info("report requested",
		zap.String("sessionId", sessionID),
		zap.String("consultationId", receipt.ConsultationID),
	)
	t.events.ReportStateChanged(domain.ReportStateGenerating, "")

	go t.poll(sessionID)
	return nil
}

func (t *reportTracker) poll(sessionID string) {
	defer close(t.done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if t.timeout > 0 {
		timer := time.NewTimer(t.timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case <-t.stop:
			return
		case <-deadline:
			t.setTerminal(domain.ReportStateFailed, "")
			t.events.SessionError(domain.ErrorCodeReport, ErrReportTimeout.Error())
			t.events.ReportStateChanged(domain.ReportStateFailed, "")
			return
		case <-ticker.C:
			// One status query at a time; the next is not issued until
			// this one returns.
			queryCtx, cancel := context.WithTimeout(context.Background(), t.interval)
			status, err := t.api.ReportStatus(queryCtx, sessionID)
			cancel()

			if err != nil {
				t.log.Warn("report status query failed, retrying on next tick", zap.Error(err))
				continue
			}

			switch status.Status {
			case domain.ReportStatusReady:
				if status.AccessToken == "" {
					continue
				}
				t.setTerminal(domain.ReportStateReady, status.AccessToken)
				if t.onReady != nil {
					t.onReady(status.AccessToken)
				}
				t.events.ReportStateChanged(domain.ReportStateReady, status.AccessToken)
				return
			case domain.ReportStatusFailed:
				t.setTerminal(domain.ReportStateFailed, "")
				t.events.SessionError(domain.ErrorCodeReport, "report generation failed")
				t.events.ReportStateChanged(domain.ReportStateFailed, "")
				return
			default:
				// not_started or generating: keep waiting.
			}
		}
	}
}

func (t *reportTracker) setTerminal(state domain.ReportState, token string) {
	t.mu.Lock()
	t.state = state
	t.token = token
	t.mu.Unlock()
}

// State returns the tracker state and, once ready, the stable access token.
func (t *reportTracker) State() (domain.ReportState, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state, t.token
}

// Close stops the poll loop. Mandatory on teardown; no further status
// queries are issued after it returns.
func (t *reportTracker) Close() {
	t.closeOnce.Do(func() {
		close(t.stop)
	})

	t.mu.Lock()
	polling := t.state == domain.ReportStateGenerating
	t.mu.Unlock()
	if polling {
		select {
		case <-t.done:
		case <-time.After(t.interval + time.Second):
		}
	}
}

