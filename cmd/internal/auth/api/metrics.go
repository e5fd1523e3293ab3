package authapi

// Metrics receives auth-protocol outcomes. The concrete implementation
// lives with the rest of the process wiring; a no-op keeps tests quiet.
type Metrics interface {
	// AuthDecision records one middleware decision with an outcome label:
	// admitted, rotated, rejected, or unavailable.
	AuthDecision(outcome string)

	// LoginAttempt records one login attempt.
	LoginAttempt(success bool)
}

// NoopMetrics discards all observations.
type NoopMetrics struct{}

func (NoopMetrics) AuthDecision(string) {}
func (NoopMetrics) LoginAttempt(bool)   {}
