package offline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"p9e.in/qareports/config"
	"p9e.in/qareports/models"
	"p9e.in/qareports/pkg/ledger"
)

type fakeRemote struct {
	mu        sync.Mutex
	saves     []Draft
	uploads   []uuid.UUID
	photoKeys []uuid.UUID
	lostReply bool
	serverIDs map[uuid.UUID]uuid.UUID
	saveErr   error
	photoErr  error
	pingErr   error

	started chan struct{}
	release chan struct{}
	onSave  func(Draft)
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{serverIDs: map[uuid.UUID]uuid.UUID{}}
}

func (f *fakeRemote) SaveDraft(_ context.Context, d Draft) (uuid.UUID, error) {
	if f.started != nil {
		f.started <- struct{}{}
		<-f.release
	}
	if f.onSave != nil {
		f.onSave(d)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, d)
	if f.saveErr != nil {
		return uuid.Nil, f.saveErr
	}
	id, ok := f.serverIDs[d.ClientKey]
	if !ok {
		id = uuid.New()
		f.serverIDs[d.ClientKey] = id
	}
	return id, nil
}

func (f *fakeRemote) UploadPhoto(_ context.Context, serverID uuid.UUID, p PendingPhoto) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.photoErr != nil {
		return f.photoErr
	}
	f.photoKeys = append(f.photoKeys, p.ClientKey)
	if f.lostReply {
		return errors.New("context deadline exceeded")
	}
	f.uploads = append(f.uploads, serverID)
	return nil
}

func (f *fakeRemote) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

func (f *fakeRemote) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saves)
}

func (f *fakeRemote) set(fn func(*fakeRemote)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func newStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := config.OpenSQLite(":memory:")
	require.NoError(t, err)
	store, err := NewSQLStore(db)
	require.NoError(t, err)
	return store
}

func newDraft() *Draft {
	return &Draft{
		SchoolID:   uuid.New(),
		ReportType: "tier1",
		Responses:  datatypes.NewJSONType(ledger.Payload{"lobby": {"front_desk": {Rating: "yes"}}}),
	}
}

func TestOfflineDraftLifecycle(t *testing.T) {
	store := newStore(t)
	clock := time.Date(2025, 3, 20, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }
	remote := newFakeRemote()
	c := NewCoordinator(store, remote)
	ctx := context.Background()

	assert.Equal(t, Offline, c.State())

	d := newDraft()
	require.NoError(t, c.SaveDraft(ctx, d))
	clock = clock.Add(time.Minute)
	d.InspectionDate = models.NewDate(clock)
	require.NoError(t, c.SaveDraft(ctx, d))

	drafts, err := store.ListDrafts(ctx)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.False(t, drafts[0].Synced)
	assert.Equal(t, 2, drafts[0].Revision)
	assert.True(t, drafts[0].UpdatedAt.Equal(clock))
	assert.Equal(t, "2025-03-20", drafts[0].InspectionDate.String())

	_, ran := c.Sync(ctx)
	assert.False(t, ran, "offline sync must be dropped")

	res, ran := c.NetworkUp(ctx)
	require.True(t, ran)
	assert.Equal(t, Result{Drafts: 1, Synced: 1}, res)
	assert.Equal(t, OnlineIdle, c.State())

	synced, err := store.GetDraft(ctx, d.LocalID)
	require.NoError(t, err)
	assert.True(t, synced.Synced)
	require.NotNil(t, synced.ServerID)

	_, ran = c.NetworkUp(ctx)
	assert.False(t, ran)
	res, ran = c.Sync(ctx)
	assert.True(t, ran)
	assert.Equal(t, 0, res.Drafts)
	assert.Equal(t, 1, remote.saveCount())
}

func TestSyncIsSingleFlight(t *testing.T) {
	store := newStore(t)
	remote := newFakeRemote()
	c := NewCoordinator(store, remote)
	ctx := context.Background()

	c.NetworkUp(ctx)
	require.NoError(t, c.SaveDraft(ctx, newDraft()))

	remote.started = make(chan struct{})
	remote.release = make(chan struct{})
	done := make(chan Result)
	go func() {
		res, _ := c.Sync(ctx)
		done <- res
	}()
	<-remote.started

	assert.Equal(t, Syncing, c.State())
	_, ran := c.Sync(ctx)
	assert.False(t, ran)

	// A reconnect while the pass runs must not start a second one.
	c.NetworkDown()
	_, ran = c.NetworkUp(ctx)
	assert.False(t, ran)

	close(remote.release)
	res := <-done
	assert.Equal(t, 1, res.Synced)
	assert.Equal(t, 1, remote.saveCount())
	assert.Equal(t, OnlineIdle, c.State())
}

func TestNetworkDownDuringPass(t *testing.T) {
	store := newStore(t)
	remote := newFakeRemote()
	c := NewCoordinator(store, remote)
	ctx := context.Background()

	c.NetworkUp(ctx)
	require.NoError(t, c.SaveDraft(ctx, newDraft()))

	remote.started = make(chan struct{})
	remote.release = make(chan struct{})
	done := make(chan struct{})
	go func() {
		c.Sync(ctx)
		close(done)
	}()
	<-remote.started
	c.NetworkDown()
	close(remote.release)
	<-done

	assert.Equal(t, Offline, c.State())
}

func TestFailedSyncRetriesOnNextTrigger(t *testing.T) {
	store := newStore(t)
	remote := newFakeRemote()
	remote.saveErr = errors.New("502 bad gateway")
	c := NewCoordinator(store, remote)
	ctx := context.Background()

	d := newDraft()
	require.NoError(t, c.SaveDraft(ctx, d))
	res, ran := c.NetworkUp(ctx)
	require.True(t, ran)
	assert.Equal(t, Result{Drafts: 1, Failed: 1}, res)

	stored, err := store.GetDraft(ctx, d.LocalID)
	require.NoError(t, err)
	assert.False(t, stored.Synced)
	assert.Nil(t, stored.ServerID)

	remote.set(func(f *fakeRemote) { f.saveErr = nil })
	res, _ = c.Sync(ctx)
	assert.Equal(t, 1, res.Synced)
	_, unsynced, err := store.CountDrafts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), unsynced)
}

func TestEditDuringUploadIsResent(t *testing.T) {
	store := newStore(t)
	remote := newFakeRemote()
	c := NewCoordinator(store, remote)
	ctx := context.Background()

	d := newDraft()
	require.NoError(t, c.SaveDraft(ctx, d))

	edited := false
	remote.onSave = func(Draft) {
		if edited {
			return
		}
		edited = true
		d.ClosingNotes = "added while uploading"
		require.NoError(t, store.SaveDraft(ctx, d))
	}

	res, _ := c.NetworkUp(ctx)
	assert.Equal(t, 1, res.Stale)

	stored, err := store.GetDraft(ctx, d.LocalID)
	require.NoError(t, err)
	assert.False(t, stored.Synced)
	require.NotNil(t, stored.ServerID)
	firstID := *stored.ServerID

	res, _ = c.Sync(ctx)
	assert.Equal(t, 1, res.Synced)
	require.Len(t, remote.saves, 2)
	require.NotNil(t, remote.saves[1].ServerID)
	assert.Equal(t, firstID, *remote.saves[1].ServerID)
	assert.Equal(t, "added while uploading", remote.saves[1].ClosingNotes)
}

func TestPhotosWaitForServerID(t *testing.T) {
	store := newStore(t)
	remote := newFakeRemote()
	remote.saveErr = errors.New("offline")
	c := NewCoordinator(store, remote)
	ctx := context.Background()

	err := c.QueuePhoto(ctx, &PendingPhoto{DraftLocalID: 99, Data: []byte{1}})
	assert.ErrorIs(t, err, ErrDraftNotFound)

	d := newDraft()
	require.NoError(t, c.SaveDraft(ctx, d))
	require.NoError(t, c.QueuePhoto(ctx, &PendingPhoto{DraftLocalID: d.LocalID, LocationTag: "lobby", Data: []byte{1, 2, 3}}))

	res, _ := c.NetworkUp(ctx)
	assert.Equal(t, 0, res.Photos)
	n, err := store.CountPhotos(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	remote.set(func(f *fakeRemote) { f.saveErr = nil; f.photoErr = errors.New("timeout") })
	res, _ = c.Sync(ctx)
	assert.Equal(t, 1, res.Synced)
	assert.Equal(t, 1, res.PhotosFailed)

	remote.set(func(f *fakeRemote) { f.photoErr = nil })
	res, _ = c.Sync(ctx)
	assert.Equal(t, 1, res.Photos)
	n, err = store.CountPhotos(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	status, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, Status{State: "online_idle", Drafts: 1}, status)
}

func TestPhotoRetryReusesClientKey(t *testing.T) {
	store := newStore(t)
	remote := newFakeRemote()
	remote.lostReply = true
	c := NewCoordinator(store, remote)
	ctx := context.Background()

	d := newDraft()
	require.NoError(t, c.SaveDraft(ctx, d))
	p := &PendingPhoto{DraftLocalID: d.LocalID, Data: []byte{1, 2, 3}}
	require.NoError(t, c.QueuePhoto(ctx, p))
	require.NotEqual(t, uuid.Nil, p.ClientKey)

	res, _ := c.NetworkUp(ctx)
	assert.Equal(t, 1, res.Synced)
	assert.Equal(t, 1, res.PhotosFailed)

	remote.set(func(f *fakeRemote) { f.lostReply = false })
	res, _ = c.Sync(ctx)
	assert.Equal(t, 1, res.Photos)

	assert.Equal(t, []uuid.UUID{p.ClientKey, p.ClientKey}, remote.photoKeys)
	n, err := store.CountPhotos(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteDraftDropsPhotos(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	d := newDraft()
	require.NoError(t, store.SaveDraft(ctx, d))
	require.NoError(t, store.AddPhoto(ctx, &PendingPhoto{DraftLocalID: d.LocalID, Data: []byte{1}}))

	require.NoError(t, store.DeleteDraft(ctx, d.LocalID))
	n, err := store.CountPhotos(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.ErrorIs(t, store.DeleteDraft(ctx, d.LocalID), ErrDraftNotFound)

	missing := &Draft{LocalID: 42}
	assert.ErrorIs(t, store.SaveDraft(ctx, missing), ErrDraftNotFound)
}

func TestAutosaverDebounces(t *testing.T) {
	store := newStore(t)
	remote := newFakeRemote()
	c := NewCoordinator(store, remote)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.NetworkUp(ctx)
	go NewAutosaver(c, 30*time.Millisecond, time.Hour).Run(ctx)

	d := newDraft()
	for i := 0; i < 3; i++ {
		d.ClosingNotes = string(rune('a' + i))
		require.NoError(t, c.SaveDraft(ctx, d))
	}

	require.Eventually(t, func() bool { return remote.saveCount() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 1, remote.saveCount())
}

func TestAutosaverPeriodic(t *testing.T) {
	store := newStore(t)
	remote := newFakeRemote()
	remote.saveErr = errors.New("down")
	c := NewCoordinator(store, remote)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, store.SaveDraft(ctx, newDraft()))
	c.NetworkUp(ctx)
	go NewAutosaver(c, time.Hour, 20*time.Millisecond).Run(ctx)

	require.Eventually(t, func() bool { return remote.saveCount() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestMonitorReportsChanges(t *testing.T) {
	store := newStore(t)
	remote := newFakeRemote()
	c := NewCoordinator(store, remote)
	m := NewMonitor(c, remote, time.Second)
	ctx := context.Background()

	require.NoError(t, store.SaveDraft(ctx, newDraft()))

	assert.True(t, m.Probe(ctx))
	assert.Equal(t, OnlineIdle, c.State())
	assert.Equal(t, 1, remote.saveCount())

	assert.True(t, m.Probe(ctx))
	assert.Equal(t, 1, remote.saveCount())

	remote.set(func(f *fakeRemote) { f.pingErr = errors.New("connection refused") })
	assert.False(t, m.Probe(ctx))
	assert.Equal(t, Offline, c.State())
}
