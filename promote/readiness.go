package promote

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ReadinessPollInterval is the fixed delay between status checks.
const ReadinessPollInterval = 2 * time.Second

// waitReady polls the version until the registry reports it READY and
// returns how long that took.
func (p *Promoter) waitReady(ctx context.Context, model, version string, timeout time.Duration) (time.Duration, error) {
	start := p.clock.Now()
	polls := 0
	for {
		polls++
		mv, err := p.backend.GetModelVersion(ctx, model, version)
		if err != nil {
			return p.clock.Now().Sub(start), errors.Wrapf(err, "failed to read status of version %s of '%s'", version, model)
		}

		elapsed := p.clock.Now().Sub(start)
		if mv.Ready() {
			p.logger.Debug().Str("version", version).Int("polls", polls).Dur("elapsed", elapsed).Msg("version ready")
			return elapsed, nil
		}
		if mv.Failed() {
			return elapsed, &RegistrationFailedError{Model: model, Version: version, Message: mv.StatusMessage}
		}
		if elapsed >= timeout {
			return elapsed, &ReadinessTimeoutError{Model: model, Version: version, Elapsed: elapsed, Timeout: timeout}
		}

		p.logger.Info().Str("version", version).Str("status", mv.Status).Dur("elapsed", elapsed).Msg("[wait] version not ready yet")

		select {
		case <-ctx.Done():
			return elapsed, errors.Wrapf(ctx.Err(), "stopped waiting for version %s of '%s'", version, model)
		case <-p.clock.After(ReadinessPollInterval):
		}
	}
}
