package offline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultDebounce = 3 * time.Second
	defaultPeriodic = 30 * time.Second
	defaultProbe    = 10 * time.Second
)

// Autosaver turns local edits into sync passes: once after a quiet period
// following the last edit, and unconditionally on a fixed period.
type Autosaver struct {
	coord    *Coordinator
	debounce time.Duration
	periodic time.Duration
	log      logrus.FieldLogger
}

func NewAutosaver(c *Coordinator, debounce, periodic time.Duration) *Autosaver {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if periodic <= 0 {
		periodic = defaultPeriodic
	}
	return &Autosaver{coord: c, debounce: debounce, periodic: periodic, log: c.log.WithField("job", "autosave")}
}

// Run blocks until ctx is done.
func (a *Autosaver) Run(ctx context.Context) {
	ticker := time.NewTicker(a.periodic)
	defer ticker.Stop()

	var timer *time.Timer
	var quiet <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.coord.Changes():
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(a.debounce)
			quiet = timer.C
		case <-quiet:
			quiet = nil
			a.sync(ctx, "debounce")
		case <-ticker.C:
			a.sync(ctx, "periodic")
		}
	}
}

func (a *Autosaver) sync(ctx context.Context, trigger string) {
	res, ran := a.coord.Sync(ctx)
	if !ran {
		return
	}
	a.log.WithFields(logrus.Fields{"trigger": trigger, "synced": res.Synced, "failed": res.Failed, "photos": res.Photos}).Debug("autosave pass")
}

// Monitor probes the server and reports connectivity changes to the
// coordinator. It assumes the network is down until the first probe
// succeeds.
type Monitor struct {
	coord    *Coordinator
	remote   Remote
	interval time.Duration
	online   bool
}

func NewMonitor(c *Coordinator, remote Remote, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = defaultProbe
	}
	return &Monitor{coord: c, remote: remote, interval: interval}
}

// Run probes immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}

// Probe pings once and forwards a change. It returns the probed state.
func (m *Monitor) Probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.interval)
	up := m.remote.Ping(probeCtx) == nil
	cancel()

	if up == m.online {
		return up
	}
	m.online = up
	if up {
		m.coord.NetworkUp(ctx)
	} else {
		m.coord.NetworkDown()
	}
	return up
}
