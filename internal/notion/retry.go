package notion

import (
	"errors"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var retryableStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// ShouldRetry decides whether a failed request attempt is eligible for
// another try. status is zero when no response was received; err is the
// network-level failure in that case. attempt is zero-indexed and
// maxAttempts counts the initial request.
func ShouldRetry(status int, err error, attempt, maxAttempts int) bool {
	if attempt+1 >= maxAttempts {
		return false
	}
	if err != nil {
		return isNetworkError(err)
	}
	return retryableStatuses[status]
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// url.Error wraps connection failures without implementing net.Error
	// in every case; treat any transport-level error as retryable.
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// Backoff computes the delay before the next retry attempt. An explicit
// server-provided hint overrides the exponential schedule. With jitter the
// delay is scaled to 50-100% of its value.
func Backoff(attempt int, base, max time.Duration, jitter bool, retryAfter time.Duration) time.Duration {
	var delay time.Duration
	if retryAfter > 0 {
		delay = retryAfter
	} else {
		delay = base
		for i := 0; i < attempt; i++ {
			delay *= 2
			if delay >= max {
				delay = max
				break
			}
		}
		if delay > max {
			delay = max
		}
	}
	if jitter {
		delay = time.Duration(float64(delay) * (0.5 + rand.Float64()*0.5))
	}
	return delay
}

// ParseRetryAfter reads a Retry-After header holding either delta-seconds
// or an HTTP date. Returns zero when absent or unparseable.
func ParseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if ts, err := time.Parse(time.RFC1123, header); err == nil {
		if delta := time.Until(ts); delta > 0 {
			return delta
		}
	}
	return 0
}
