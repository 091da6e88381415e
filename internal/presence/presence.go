package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/phraselabs/phrased/internal/bus"
	"github.com/phraselabs/phrased/internal/protocol"
)

const (
	heartbeatInterval = 2 * time.Second
	heartbeatTimeout  = 6 * time.Second
)

// WorkerInfo describes one transcription worker seen on the bus.
type WorkerInfo struct {
	ID       string    `json:"id"`
	Models   []string  `json:"models"`
	LastSeen time.Time `json:"last_seen"`
	Healthy  bool      `json:"healthy"`
}

// Tracker announces this worker and the model ids it serves, heartbeats, and
// tracks peer workers doing the same.
type Tracker struct {
	workerID string
	models   []string
	log      *slog.Logger
	bus      *bus.Client
	mu       sync.RWMutex
	workers  map[string]*WorkerInfo
	ticker   *time.Ticker
	cancel   context.CancelFunc
	subs     []*nats.Subscription
	gauge    metric.Int64ObservableGauge
}

func NewTracker(ctx context.Context, workerID string, models []string, busClient *bus.Client, log *slog.Logger) (*Tracker, error) {
	ctx, cancel := context.WithCancel(ctx)
	t := &Tracker{
		workerID: workerID,
		models:   models,
		log:      log.With(slog.String("component", "presence")),
		bus:      busClient,
		workers:  make(map[string]*WorkerInfo),
		cancel:   cancel,
	}

	if err := t.initMetrics(); err != nil {
		t.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}

	if err := t.subscribe(); err != nil {
		t.cancel()
		return nil, err
	}

	t.ticker = time.NewTicker(heartbeatInterval)
	go t.runHeartbeat(ctx)
	go t.monitorHealth(ctx)

	if err := t.announce(); err != nil {
		t.log.Warn("failed to announce worker", slog.String("error", err.Error()))
	}

	return t, nil
}

func (t *Tracker) Close() {
	if t.cancel != nil {
		t.cancel()
	}
	if t.ticker != nil {
		t.ticker.Stop()
	}
	for _, sub := range t.subs {
		_ = sub.Drain()
	}
}

func (t *Tracker) subscribe() error {
	conn := t.bus.Conn()
	announceSub, err := conn.Subscribe(protocol.SubjectWorkerAnnounce, t.handleAnnounce)
	if err != nil {
		return fmt.Errorf("subscribe announce: %w", err)
	}
	t.subs = append(t.subs, announceSub)

	heartbeatSub, err := conn.Subscribe(protocol.SubjectWorkerHeartbeatPrefix+".*", t.handleHeartbeat)
	if err != nil {
		return fmt.Errorf("subscribe heartbeat: %w", err)
	}
	t.subs = append(t.subs, heartbeatSub)

	return nil
}

func (t *Tracker) runHeartbeat(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.ticker.C:
			if err := t.publishHeartbeat(); err != nil {
				t.log.Warn("failed to publish heartbeat", slog.String("error", err.Error()))
			}
		}
	}
}

func (t *Tracker) monitorHealth(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.evaluateHealth()
		}
	}
}

func (t *Tracker) announce() error {
	msg := protocol.Announce{
		WorkerID:  t.workerID,
		Models:    t.models,
		Timestamp: time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := t.bus.Conn().Publish(protocol.SubjectWorkerAnnounce, payload); err != nil {
		return err
	}
	t.updateWorker(msg.WorkerID, msg.Models, msg.Timestamp)
	return nil
}

func (t *Tracker) publishHeartbeat() error {
	msg := protocol.Heartbeat{
		WorkerID:  t.workerID,
		Timestamp: time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("%s.%s", protocol.SubjectWorkerHeartbeatPrefix, t.workerID)
	return t.bus.Conn().Publish(subject, payload)
}

func (t *Tracker) handleAnnounce(msg *nats.Msg) {
	var announcement protocol.Announce
	if err := json.Unmarshal(msg.Data, &announcement); err != nil {
		t.log.Warn("invalid announce message", slog.String("error", err.Error()))
		return
	}
	if announcement.Timestamp.IsZero() {
		announcement.Timestamp = time.Now().UTC()
	}
	t.updateWorker(announcement.WorkerID, announcement.Models, announcement.Timestamp)
}

func (t *Tracker) handleHeartbeat(msg *nats.Msg) {
	var hb protocol.Heartbeat
	if err := json.Unmarshal(msg.Data, &hb); err != nil {
		t.log.Warn("invalid heartbeat message", slog.String("error", err.Error()))
		return
	}
	if hb.Timestamp.IsZero() {
		hb.Timestamp = time.Now().UTC()
	}
	t.updateWorker(hb.WorkerID, nil, hb.Timestamp)
}

func (t *Tracker) updateWorker(workerID string, models []string, timestamp time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	worker, ok := t.workers[workerID]
	if !ok {
		worker = &WorkerInfo{ID: workerID}
		t.workers[workerID] = worker
	}
	if len(models) > 0 {
		worker.Models = models
	}
	worker.LastSeen = timestamp
	worker.Healthy = true
}

func (t *Tracker) evaluateHealth() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for _, worker := range t.workers {
		if now.Sub(worker.LastSeen) > heartbeatTimeout {
			worker.Healthy = false
		}
	}
}

// Workers returns a snapshot of every worker seen on the bus.
func (t *Tracker) Workers() []WorkerInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]WorkerInfo, 0, len(t.workers))
	for _, worker := range t.workers {
		out = append(out, *worker)
	}
	return out
}

// Healthy reports whether this worker's own presence is current.
func (t *Tracker) Healthy() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	worker, ok := t.workers[t.workerID]
	return ok && worker.Healthy
}

func (t *Tracker) initMetrics() error {
	meter := otel.Meter("github.com/phraselabs/phrased/presence")
	gauge, err := meter.Int64ObservableGauge("phrased.presence.healthy_workers",
		metric.WithDescription("Workers currently heartbeating on the bus"),
		metric.WithInt64Callback(func(_ context.Context, obs metric.Int64Observer) error {
			t.mu.RLock()
			defer t.mu.RUnlock()
			var healthy int64
			for _, worker := range t.workers {
				if worker.Healthy {
					healthy++
				}
			}
			obs.Observe(healthy)
			return nil
		}))
	if err != nil {
		return err
	}
	t.gauge = gauge
	return nil
}
