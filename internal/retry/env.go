package retry

import (
	"os"
	"strconv"
	"time"
)

// PolicyFromEnv resolves a Policy from RETRY_ATTEMPTS, RETRY_INITIAL_BACKOFF
// and RETRY_MAX_BACKOFF, with callTimeoutKey naming the per-call timeout
// variable of the consumer (e.g. EMBEDDING_TIMEOUT). Unset or unparseable
// values fall back to the defaults.
func PolicyFromEnv(callTimeoutKey string) Policy {
	p := DefaultPolicy()
	if v, err := strconv.Atoi(os.Getenv("RETRY_ATTEMPTS")); err == nil && v > 0 {
		p.Attempts = v
	}
	if d, err := time.ParseDuration(os.Getenv("RETRY_INITIAL_BACKOFF")); err == nil && d > 0 {
		p.Initial = d
	}
	if d, err := time.ParseDuration(os.Getenv("RETRY_MAX_BACKOFF")); err == nil && d > 0 {
		p.Max = d
	}
	if callTimeoutKey != "" {
		if d, err := time.ParseDuration(os.Getenv(callTimeoutKey)); err == nil && d > 0 {
			p.CallTimeout = d
		}
	}
	return p
}
