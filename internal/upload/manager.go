package upload

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/studyhub/backend/internal/clock"
	"github.com/studyhub/backend/internal/events"
	"github.com/studyhub/backend/internal/models"
	"go.uber.org/zap"
)

// eventKind identifies what a timer callback asks the manager to do.
type eventKind int

const (
	eventTick eventKind = iota
	eventResolve
)

// event is posted by a timer callback and applied under the manager lock.
// gen ties the event to one simulation run of the item; retry starts a new run.
type event struct {
	kind eventKind
	id   string
	gen  uint64
}

// entry is the manager's bookkeeping for one item.
type entry struct {
	item    *models.UploadItem
	gen     uint64
	tick    clock.Timer
	resolve clock.Timer
}

func (e *entry) stopTimers() {
	if e.tick != nil {
		e.tick.Stop()
		e.tick = nil
	}
	if e.resolve != nil {
		e.resolve.Stop()
		e.resolve = nil
	}
}

// Recorder receives lifecycle observations, e.g. for metrics.
type Recorder interface {
	// ObserveTransition records a status change. from is empty on ingestion,
	// to is empty on removal.
	ObserveTransition(from, to models.UploadStatus)
	ObserveRetry()
}

type noopRecorder struct{}

func (noopRecorder) ObserveTransition(from, to models.UploadStatus) {}
func (noopRecorder) ObserveRetry()                                  {}

// Manager owns the upload collection and drives each item's simulation.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   []string
	version uint64
	closed  bool

	clock    clock.Clock
	timing   Timing
	resolver Resolver
	idGen    func() string
	recorder Recorder
	logger   *zap.Logger
	bus      *events.Broadcaster
}

// NewManager creates a manager with an empty collection.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		entries:  make(map[string]*entry),
		clock:    clock.Real{},
		timing:   DefaultTiming(),
		resolver: RandomResolver(DefaultSuccessRate),
		recorder: noopRecorder{},
		logger:   zap.NewNop(),
		bus:      events.NewBroadcaster(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Ingest registers one uploading item per file, in input order, and starts
// an independent simulation for each. Any input is accepted. After Close
// nothing is registered.
func (m *Manager) Ingest(files []models.FileDescriptor) []models.UploadItem {
	if len(files) == 0 {
		return []models.UploadItem{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return []models.UploadItem{}
	}

	created := make([]models.UploadItem, 0, len(files))
	for _, f := range files {
		id := m.newID()
		e := &entry{item: models.NewUploadItem(id, f)}
		m.entries[id] = e
		m.order = append(m.order, id)
		m.startRunLocked(e)

		m.recorder.ObserveTransition("", models.UploadStatusUploading)
		m.logger.Info("upload ingested",
			zap.String("upload", shortID(id)),
			zap.String("name", f.Name),
			zap.Int64("size", f.Size),
			zap.String("type", f.Type),
		)
		created = append(created, *e.item)
	}

	m.publishLocked()
	return created
}

// Retry restarts the simulation of an item in error state, keeping its id.
// Unknown ids, items in any other state and calls after Close are ignored.
func (m *Manager) Retry(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if m.closed || !ok || e.item.Status != models.UploadStatusError {
		return
	}

	e.stopTimers()
	e.gen++
	e.item.Progress = 0
	e.item.Status = models.UploadStatusUploading
	e.item.ErrorMessage = ""
	m.startRunLocked(e)

	m.recorder.ObserveRetry()
	m.recorder.ObserveTransition(models.UploadStatusError, models.UploadStatusUploading)
	m.logger.Info("upload retried", zap.String("upload", shortID(id)), zap.Uint64("run", e.gen))
	m.publishLocked()
}

// Remove drops an item in any state. Timers still pending for it are
// stopped, and callbacks that already fired are discarded by apply.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return
	}

	e.stopTimers()
	delete(m.entries, id)
	for i, other := range m.order {
		if other == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}

	m.recorder.ObserveTransition(e.item.Status, "")
	m.logger.Info("upload removed", zap.String("upload", shortID(id)), zap.String("status", string(e.item.Status)))
	m.publishLocked()
}

// Snapshot returns a copy of the collection in insertion order.
func (m *Manager) Snapshot() []models.UploadItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// SnapshotVersion returns the collection together with the version of the
// last published mutation, so a first frame can be ordered against events.
func (m *Manager) SnapshotVersion() (uint64, []models.UploadItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version, m.snapshotLocked()
}

// Get returns a copy of one item.
func (m *Manager) Get(id string) (models.UploadItem, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return models.UploadItem{}, false
	}
	return *e.item, true
}

// Subscribe returns a channel receiving a snapshot event after every
// mutation, and a function that ends the subscription.
func (m *Manager) Subscribe() (<-chan events.Event, func()) {
	ch := m.bus.Subscribe()
	var once sync.Once
	return ch, func() {
		once.Do(func() { m.bus.Unsubscribe(ch) })
	}
}

// Close stops every running simulation. Items keep their current state and
// later Ingest and Retry calls are ignored.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	for _, e := range m.entries {
		e.stopTimers()
	}
}

// startRunLocked schedules the first tick and the resolution for e's current run.
func (m *Manager) startRunLocked(e *entry) {
	e.tick = m.schedule(m.timing.TickInterval, event{kind: eventTick, id: e.item.ID, gen: e.gen})
	e.resolve = m.schedule(m.timing.ResolveDelay, event{kind: eventResolve, id: e.item.ID, gen: e.gen})
}

func (m *Manager) schedule(d time.Duration, ev event) clock.Timer {
	return m.clock.AfterFunc(d, func() { m.apply(ev) })
}

// apply is the single mutation step for timer events. Events for removed
// items, superseded runs or a closed manager are dropped.
func (m *Manager) apply(ev event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	e, ok := m.entries[ev.id]
	if !ok || e.gen != ev.gen {
		return
	}

	switch ev.kind {
	case eventTick:
		m.applyTickLocked(e)
	case eventResolve:
		m.applyResolveLocked(e)
	}
}

func (m *Manager) applyTickLocked(e *entry) {
	e.tick = nil
	if e.item.Status != models.UploadStatusUploading {
		return
	}

	progress := e.item.Progress + m.timing.ProgressStep
	if progress < 100 {
		e.item.Progress = progress
		e.tick = m.schedule(m.timing.TickInterval, event{kind: eventTick, id: e.item.ID, gen: e.gen})
		m.publishLocked()
		return
	}

	e.item.Progress = 100
	e.item.Status = models.UploadStatusProcessing
	m.recorder.ObserveTransition(models.UploadStatusUploading, models.UploadStatusProcessing)
	m.logger.Debug("upload processing", zap.String("upload", shortID(e.item.ID)))
	m.publishLocked()
}

func (m *Manager) applyResolveLocked(e *entry) {
	e.resolve = nil
	if e.tick != nil {
		e.tick.Stop()
		e.tick = nil
	}
	if e.item.Status.Terminal() {
		return
	}

	from := e.item.Status
	if err := m.resolver(*e.item); err != nil {
		e.item.Status = models.UploadStatusError
		e.item.ErrorMessage = failureMessage(err)
		m.logger.Info("upload failed",
			zap.String("upload", shortID(e.item.ID)),
			zap.Error(err),
		)
	} else {
		e.item.Status = models.UploadStatusComplete
		e.item.Progress = 100
		e.item.ErrorMessage = ""
		m.logger.Info("upload complete", zap.String("upload", shortID(e.item.ID)))
	}

	m.recorder.ObserveTransition(from, e.item.Status)
	m.publishLocked()
}

func (m *Manager) snapshotLocked() []models.UploadItem {
	items := make([]models.UploadItem, 0, len(m.order))
	for _, id := range m.order {
		items = append(items, *m.entries[id].item)
	}
	return items
}

// publishLocked bumps the collection version and notifies subscribers.
func (m *Manager) publishLocked() {
	m.version++
	if m.bus.Count() == 0 {
		return
	}
	m.bus.Publish(events.Event{
		Type:      events.EventSnapshot,
		Version:   m.version,
		Items:     m.snapshotLocked(),
		Timestamp: m.clock.Now().UnixMilli(),
	})
}

// maxIDAttempts bounds how often a custom generator may collide before
// newID falls back to random UUIDs.
const maxIDAttempts = 8

// newID returns an id unused by any live item.
func (m *Manager) newID() string {
	if m.idGen != nil {
		for i := 0; i < maxIDAttempts; i++ {
			id := m.idGen()
			if _, dup := m.entries[id]; id != "" && !dup {
				return id
			}
		}
		m.logger.Warn("id generator kept colliding, using random ids")
	}
	for {
		id := uuid.New().String()
		if _, dup := m.entries[id]; !dup {
			return id
		}
	}
}

// shortID returns the first 8 characters of an id for log lines.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
