// Package progress normalizes raw fetch-engine ticks into smoothed
// rate/ETA/percent snapshots and rate-limits outward notifications.
package progress

import (
	"time"

	"github.com/grabfrom/core/internal/task"
)

// Smoothing weights for the exponential moving average of the transfer
// speed. Heavier weight on the previous value damps per-tick jitter.
const (
	speedPrevWeight   = 0.7
	speedSampleWeight = 0.3
)

// minSampleGap is the shortest interval over which an instantaneous speed
// is computed; ticks arriving faster only advance the byte counters.
const minSampleGap = 50 * time.Millisecond

// Tracker converts byte-counter ticks for one task into task.Progress
// values. It is owned by the task's active worker and is not safe for
// concurrent use; per-task rate limiting needs no cross-task coordination.
type Tracker struct {
	interval time.Duration
	now      func() time.Time

	lastBytes  int64
	lastSample time.Time
	speed      float64
	maxPercent float64
	lastEmit   time.Time
	hasEmitted bool
}

// NewTracker returns a tracker that approves at most one outward
// notification per interval.
func NewTracker(interval time.Duration) *Tracker {
	return &Tracker{
		interval: interval,
		now:      time.Now,
	}
}

// Update ingests a raw tick and returns the normalized progress plus
// whether the caller should emit a notification now. A total of zero or
// less means the total size is unknown: percent holds its last value and
// the ETA is unknown.
func (t *Tracker) Update(downloaded, total int64) (task.Progress, bool) {
	now := t.now()

	// A shrinking byte counter means the engine moved to a new stream;
	// re-baseline the rate window but keep percent monotonic.
	if downloaded < t.lastBytes {
		t.lastBytes = downloaded
		t.lastSample = now
		t.speed = 0
	}

	if t.lastSample.IsZero() {
		t.lastBytes = downloaded
		t.lastSample = now
	} else if gap := now.Sub(t.lastSample); gap >= minSampleGap {
		sample := float64(downloaded-t.lastBytes) / gap.Seconds()
		if t.speed == 0 {
			t.speed = sample
		} else {
			t.speed = t.speed*speedPrevWeight + sample*speedSampleWeight
		}
		t.lastBytes = downloaded
		t.lastSample = now
	}

	if total > 0 {
		percent := float64(downloaded) / float64(total) * 100
		if percent > 100 {
			percent = 100
		}
		if percent > t.maxPercent {
			t.maxPercent = percent
		}
	}

	eta := task.ETAUnknown
	if total > 0 && t.speed > 0 && downloaded <= total {
		eta = int(float64(total-downloaded) / t.speed)
	}

	p := task.Progress{
		BytesDownloaded: downloaded,
		BytesTotal:      total,
		Speed:           t.speed,
		ETASec:          eta,
		Percent:         t.maxPercent,
	}

	emit := false
	if !t.hasEmitted || now.Sub(t.lastEmit) >= t.interval {
		emit = true
		t.hasEmitted = true
		t.lastEmit = now
	}
	return p, emit
}

// Percent returns the highest percent observed so far.
func (t *Tracker) Percent() float64 {
	return t.maxPercent
}

// Speed returns the current smoothed speed in bytes/second.
func (t *Tracker) Speed() float64 {
	return t.speed
}
