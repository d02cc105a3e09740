package evidence

import (
	"fmt"
	"sync"
)

// Recorder collects the evidence of one attempt. Write failures are logged, never returned,
// so evidence capture cannot fail an application.
type Recorder struct {
	store   *Store
	appID   string
	attempt int

	mu    sync.Mutex
	shots []string
}

func (r *Recorder) Screenshot(step string, data []byte) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.store.maxScreenshots > 0 && len(r.shots) >= r.store.maxScreenshots {
		r.store.log.Warnw("⚠️ Screenshot limit reached, dropping", "application_id", r.appID, "attempt", r.attempt, "step", step)
		return ""
	}

	ref, err := r.store.SaveScreenshot(r.appID, r.attempt, len(r.shots)+1, step, data)
	if err != nil {
		r.store.log.Warnw("⚠️ Failed to save screenshot", "application_id", r.appID, "step", step, "error", err)
		return ""
	}
	r.shots = append(r.shots, ref)
	r.store.log.Debugw("📸 Screenshot saved", "ref", ref)
	return ref
}

func (r *Recorder) Logf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	if err := r.store.AppendLog(r.appID, r.attempt, line); err != nil {
		r.store.log.Warnw("⚠️ Failed to append automation log", "application_id", r.appID, "error", err)
	}
}

// Screenshots returns the refs captured so far, in order
func (r *Recorder) Screenshots() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.shots))
	copy(out, r.shots)
	return out
}

func (r *Recorder) LogRef() string {
	return r.store.LogRef(r.appID, r.attempt)
}
