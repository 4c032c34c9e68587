package notify

import (
	"fmt"
	"time"

	"github.com/jmylchreest/autoclip/internal/models"
	"github.com/jmylchreest/autoclip/pkg/format"
	"github.com/jmylchreest/autoclip/pkg/timecode"
)

// Queued confirms an accepted submission.
func Queued(position int, eta time.Duration, estimatedMB float64) string {
	return fmt.Sprintf("Clip queued at position %s, expected in %s (about %s).",
		format.Number(int64(position)), format.Approx(eta), format.Megabytes(estimatedMB))
}

// Started tells the requester their job is being processed.
func Started(job *models.ClipJob) string {
	return fmt.Sprintf("Processing your %s clip from %s to %s.",
		job.Profile, timecode.Format(job.StartSeconds), timecode.Format(job.EndSeconds()))
}

// Completed reports a delivered clip.
func Completed(sizeBytes int64, elapsed time.Duration) string {
	return fmt.Sprintf("Your clip is ready (%s, took %s).", format.Bytes(sizeBytes), format.Clock(elapsed))
}

// Cancelled confirms a cancellation.
func Cancelled() string {
	return "Your clip was cancelled."
}

// Failed reports a failed job with a short diagnostic.
func Failed(reason string) string {
	if reason == "" {
		return "Your clip could not be created."
	}
	return "Your clip could not be created: " + reason
}
