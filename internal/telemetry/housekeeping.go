package telemetry

import (
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Housekeeper wraps a single shared cron.Cron for the Manager's
// coarse-grained periodic jobs — summary-log flush, descriptor-mirror
// refresh — the way the teacher's PluginScheduler wraps one cron
// instance across every loaded plugin. Graph tick scheduling never goes
// through here: a ~10µs poll has no business on a cron's minute
// granularity.
type Housekeeper struct {
	cron   *cron.Cron
	log    zerolog.Logger
	jobIDs map[string]cron.EntryID
}

// NewHousekeeper constructs a Housekeeper with its own cron instance,
// not yet started.
func NewHousekeeper(log zerolog.Logger) *Housekeeper {
	return &Housekeeper{
		cron:   cron.New(),
		log:    log,
		jobIDs: make(map[string]cron.EntryID),
	}
}

// Schedule registers fn under expr, replacing any prior job of the same
// name. Panics inside fn are recovered and logged so one bad job can't
// take down the shared cron goroutine.
func (h *Housekeeper) Schedule(name, expr string, fn func()) error {
	if id, ok := h.jobIDs[name]; ok {
		h.cron.Remove(id)
	}
	id, err := h.cron.AddFunc(expr, func() {
		defer func() {
			if r := recover(); r != nil {
				h.log.Error().Interface("panic", r).Str("job", name).Msg("telemetry: housekeeping job panicked")
			}
		}()
		fn()
	})
	if err != nil {
		return err
	}
	h.jobIDs[name] = id
	return nil
}

// Start begins running scheduled jobs.
func (h *Housekeeper) Start() { h.cron.Start() }

// Stop halts the cron scheduler and waits for any running job to finish.
func (h *Housekeeper) Stop() { <-h.cron.Stop().Done() }
