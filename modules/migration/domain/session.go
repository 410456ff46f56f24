package domain

type SessionState string

const (
	StateIdle          SessionState = "idle"
	StateAnalyzing     SessionState = "analyzing"
	StateMappingReview SessionState = "mapping_review"
	StateExecuting     SessionState = "executing"
	StateCompleted     SessionState = "completed"
	StateFailed        SessionState = "failed"
)

func (s SessionState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}
