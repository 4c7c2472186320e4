package syncqueue

import "time"

// NextRetryAt computes the deadline after which a failed item becomes
// eligible again: now + 2^retryCount minutes. The curve is deliberately
// coarse; devices that queued these operations were offline to begin with,
// and the point is to avoid stampeding the store when connectivity returns,
// not low-latency retry. Pure so the policy is testable without waiting.
func NextRetryAt(retryCount int, now time.Time) time.Time {
	return now.Add(time.Duration(1<<retryCount) * time.Minute)
}
