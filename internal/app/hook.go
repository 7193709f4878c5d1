package app

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/neurablink/internal/plugin"
)

// stareParams is sent to the stare plugin as Request.Params.
type stareParams struct {
	Opacity    int     `json:"opacity"`
	BlinkTimer float64 `json:"blink_timer"`
}

// stareHook runs the configured plugin action when the screen is fully
// dimmed and again when a blink lifts it. Runs happen off the tick loop and
// at most one is in flight; an event arriving meanwhile is skipped.
type stareHook struct {
	plugins *plugin.Manager
	exec    *plugin.Executor
	log     logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc
	busy   atomic.Bool
	wg     sync.WaitGroup
}

func newStareHook(plugins *plugin.Manager, exec *plugin.Executor, log logrus.FieldLogger) *stareHook {
	ctx, cancel := context.WithCancel(context.Background())
	return &stareHook{
		plugins: plugins,
		exec:    exec,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// fire starts name/action for ev and reports whether a run was started.
func (h *stareHook) fire(name, action string, ev plugin.Event, params stareParams) bool {
	if name == "" || !h.busy.CompareAndSwap(false, true) {
		return false
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer h.busy.Store(false)

		log := h.log.WithFields(logrus.Fields{"plugin": name, "action": action, "event": ev})
		if _, err := h.plugins.Run(h.ctx, h.exec, name, action, ev, params); err != nil {
			log.WithError(err).Warn("stare plugin failed")
			return
		}
		log.Debug("stare plugin ran")
	}()
	return true
}

// close cancels a run in flight and waits for it.
func (h *stareHook) close() {
	h.cancel()
	h.wg.Wait()
}
