// Package offline keeps report drafts and photos on the device and pushes
// them to the server when the network allows.
package offline

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"p9e.in/qareports/config"
	"p9e.in/qareports/pkg/metrics"
)

// State is the coordinator's connectivity state.
type State int

const (
	Offline State = iota
	OnlineIdle
	Syncing
)

func (s State) String() string {
	switch s {
	case Offline:
		return "offline"
	case OnlineIdle:
		return "online_idle"
	case Syncing:
		return "syncing"
	}
	return "unknown"
}

// Result counts what one sync pass did.
type Result struct {
	Drafts       int `json:"drafts"`
	Synced       int `json:"synced"`
	Stale        int `json:"stale"`
	Failed       int `json:"failed"`
	Photos       int `json:"photos"`
	PhotosFailed int `json:"photosFailed"`
}

// Coordinator moves between Offline, OnlineIdle and Syncing and runs at
// most one sync pass at a time. It starts Offline.
type Coordinator struct {
	store  Store
	remote Remote

	mu       sync.Mutex
	state    State
	inFlight bool

	changes chan struct{}
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

type Option func(*Coordinator)

func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Coordinator) { c.log = l }
}

func NewCoordinator(store Store, remote Remote, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:   store,
		remote:  remote,
		state:   Offline,
		changes: make(chan struct{}, 1),
		log:     config.ComponentLogger("offline"),
		metrics: metrics.Get(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.metrics.SyncState.Set(float64(Offline))
	return c
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) Store() Store { return c.store }

// Changes fires after local writes. It is buffered so one pending signal
// is kept while nobody is listening.
func (c *Coordinator) Changes() <-chan struct{} { return c.changes }

func (c *Coordinator) setState(s State) {
	c.state = s
	c.metrics.SyncState.Set(float64(s))
}

// NetworkDown goes Offline from any state. A running pass finishes but
// does not return the coordinator to OnlineIdle.
func (c *Coordinator) NetworkDown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Offline {
		c.log.Info("📴 network down")
	}
	c.setState(Offline)
}

// NetworkUp leaves Offline and syncs straight away. It does nothing when
// the coordinator is already online.
func (c *Coordinator) NetworkUp(ctx context.Context) (Result, bool) {
	c.mu.Lock()
	if c.state != Offline {
		c.mu.Unlock()
		return Result{}, false
	}
	c.setState(OnlineIdle)
	c.mu.Unlock()

	c.log.Info("📶 network up")
	return c.Sync(ctx)
}

// Sync runs one pass unless the coordinator is Offline or a pass is
// already running, in which case the trigger is dropped and ok is false.
func (c *Coordinator) Sync(ctx context.Context) (res Result, ok bool) {
	c.mu.Lock()
	if c.state == Offline || c.inFlight {
		c.mu.Unlock()
		return Result{}, false
	}
	c.inFlight = true
	c.setState(Syncing)
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight = false
		if c.state == Syncing {
			c.setState(OnlineIdle)
		}
		c.mu.Unlock()
	}()

	c.metrics.SyncPasses.Inc()
	return c.pass(ctx), true
}

func (c *Coordinator) pass(ctx context.Context) Result {
	var res Result

	drafts, err := c.store.UnsyncedDrafts(ctx)
	if err != nil {
		config.LogError(c.log, "offline", "pass", "failed to list drafts", nil, err)
		return res
	}

	for _, d := range drafts {
		if ctx.Err() != nil {
			return res
		}
		res.Drafts++
		serverID, err := c.remote.SaveDraft(ctx, d)
		if err != nil {
			res.Failed++
			c.metrics.SyncDrafts.WithLabelValues("failed").Inc()
			c.log.WithError(err).WithField("local_id", d.LocalID).Warn("⚠️  draft sync failed, will retry")
			continue
		}
		synced, err := c.store.MarkSynced(ctx, d.LocalID, serverID, d.Revision)
		switch {
		case err != nil:
			res.Failed++
			c.metrics.SyncDrafts.WithLabelValues("failed").Inc()
			config.LogError(c.log, "offline", "pass", "failed to mark draft synced", d.LocalID, err)
		case synced:
			res.Synced++
			c.metrics.SyncDrafts.WithLabelValues("synced").Inc()
			c.log.WithFields(logrus.Fields{"local_id": d.LocalID, "server_id": serverID}).Info("✅ draft synced")
		default:
			res.Stale++
			c.metrics.SyncDrafts.WithLabelValues("stale").Inc()
			c.log.WithField("local_id", d.LocalID).Info("draft edited during sync, resending next pass")
		}
	}

	c.uploadPhotos(ctx, &res)
	return res
}

// uploadPhotos sends queued photos whose draft has a server id. Photos of
// drafts that were deleted locally are dropped.
func (c *Coordinator) uploadPhotos(ctx context.Context, res *Result) {
	photos, err := c.store.ListPhotos(ctx)
	if err != nil {
		config.LogError(c.log, "offline", "uploadPhotos", "failed to list queued photos", nil, err)
		return
	}

	for _, p := range photos {
		if ctx.Err() != nil {
			return
		}
		d, err := c.store.GetDraft(ctx, p.DraftLocalID)
		if errors.Is(err, ErrDraftNotFound) {
			_ = c.store.DeletePhoto(ctx, p.LocalID)
			continue
		}
		if err != nil || d.ServerID == nil {
			continue
		}

		if err := c.remote.UploadPhoto(ctx, *d.ServerID, p); err != nil {
			res.PhotosFailed++
			c.metrics.SyncPhotos.WithLabelValues("failed").Inc()
			c.log.WithError(err).WithField("photo_id", p.LocalID).Warn("⚠️  photo upload failed, will retry")
			continue
		}
		if err := c.store.DeletePhoto(ctx, p.LocalID); err != nil {
			config.LogError(c.log, "offline", "uploadPhotos", "failed to dequeue photo", p.LocalID, err)
		}
		res.Photos++
		c.metrics.SyncPhotos.WithLabelValues("uploaded").Inc()
	}
}

func (c *Coordinator) notify() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

// SaveDraft writes the draft locally before anything else and then wakes
// the autosaver.
func (c *Coordinator) SaveDraft(ctx context.Context, d *Draft) error {
	if err := c.store.SaveDraft(ctx, d); err != nil {
		return err
	}
	c.notify()
	return nil
}

// QueuePhoto stores an image for upload once its draft is on the server.
func (c *Coordinator) QueuePhoto(ctx context.Context, p *PendingPhoto) error {
	if err := c.store.AddPhoto(ctx, p); err != nil {
		return err
	}
	c.notify()
	return nil
}

// Status is a snapshot of the local queue.
type Status struct {
	State          string `json:"state"`
	Drafts         int64  `json:"drafts"`
	UnsyncedDrafts int64  `json:"unsyncedDrafts"`
	PendingPhotos  int64  `json:"pendingPhotos"`
}

func (c *Coordinator) Status(ctx context.Context) (Status, error) {
	total, unsynced, err := c.store.CountDrafts(ctx)
	if err != nil {
		return Status{}, err
	}
	photos, err := c.store.CountPhotos(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{State: c.State().String(), Drafts: total, UnsyncedDrafts: unsynced, PendingPhotos: photos}, nil
}
