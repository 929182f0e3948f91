package asynq

// Task types consumed by the worker binary.
const (
	TaskVerify    = "task:verify"
	AdQuotaReset  = "engagement:adreset"
	AvatarCleanup = "account:avatar_cleanup"
)

// VerifyTaskPayload is enqueued when a user submits a task for verification.
// The worker settles the reward after the verification delay elapses.
type VerifyTaskPayload struct {
	UserID string `json:"user_id"`
	TaskID string `json:"task_id"`
}

// AdQuotaResetPayload triggers the nightly bulk reset of stale ad counters.
type AdQuotaResetPayload struct {
	Day string `json:"day"` // UTC date in YYYY-MM-DD
}

// AvatarCleanupPayload removes a replaced avatar object from storage.
type AvatarCleanupPayload struct {
	ObjectName string `json:"object_name"`
}
