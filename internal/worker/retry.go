package worker

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/hibiken/asynq"
)

const maxRetryDelay = 60 * time.Second

// RetryDelay backs off exponentially (2^n seconds) with ±30% jitter, capped
// at one minute. Matches asynq.RetryDelayFunc.
func RetryDelay(n int, err error, _ *asynq.Task) time.Duration {
	if errors.Is(err, context.DeadlineExceeded) {
		return 0
	}
	base := math.Pow(2, float64(n))
	jitter := 0.7 + rand.Float64()*0.6
	d := time.Duration(base * jitter * float64(time.Second))
	if d > maxRetryDelay {
		d = maxRetryDelay
	}
	return d
}
