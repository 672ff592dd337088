package assessment

import (
	"fmt"
	"time"

	"github.com/nikhilbhutani/intranet/internal/config"
	"github.com/nikhilbhutani/intranet/internal/models"
)

// Policy limits how often a user may attempt the same quiz. Zero values
// disable the corresponding limit.
type Policy struct {
	MaxAttempts   int
	RetryCooldown time.Duration
}

func PolicyFromConfig(cfg config.AssessmentConfig) Policy {
	return Policy{MaxAttempts: cfg.MaxAttempts, RetryCooldown: cfg.RetryCooldown}
}

func (p Policy) check(stats AttemptStats, now time.Time) error {
	if p.MaxAttempts > 0 && stats.Count >= p.MaxAttempts {
		return fmt.Errorf("%w: %d of %d attempts used", models.ErrAttemptLimit, stats.Count, p.MaxAttempts)
	}
	if p.RetryCooldown > 0 && stats.LastAt != nil {
		if wait := stats.LastAt.Add(p.RetryCooldown).Sub(now); wait > 0 {
			return fmt.Errorf("%w: retry in %s", models.ErrAttemptLimit, wait.Round(time.Second))
		}
	}
	return nil
}
