package retry_test

import (
	"testing"
	"time"

	"gigline/chat-engine/internal/domain/retry"
)

func TestPolicyCalculateDelay(t *testing.T) {
	tests := []struct {
		name    string
		policy  retry.Policy
		attempt int
		want    time.Duration
	}{
		{
			name: "fixed backoff - attempt 1",
			policy: retry.Policy{
				BackoffStrategy: retry.BackoffFixed,
				InitialDelay:    100 * time.Millisecond,
				MaxDelay:        time.Second,
			},
			attempt: 1,
			want:    100 * time.Millisecond,
		},
		{
			name: "fixed backoff - attempt 5",
			policy: retry.Policy{
				BackoffStrategy: retry.BackoffFixed,
				InitialDelay:    100 * time.Millisecond,
				MaxDelay:        time.Second,
			},
			attempt: 5,
			want:    100 * time.Millisecond,
		},
		{
			name: "exponential backoff - attempt 3",
			policy: retry.Policy{
				BackoffStrategy: retry.BackoffExponential,
				InitialDelay:    100 * time.Millisecond,
				MaxDelay:        time.Second,
			},
			attempt: 3,
			want:    400 * time.Millisecond,
		},
		{
			name: "exponential backoff capped at max",
			policy: retry.Policy{
				BackoffStrategy: retry.BackoffExponential,
				InitialDelay:    100 * time.Millisecond,
				MaxDelay:        time.Second,
			},
			attempt: 10,
			want:    time.Second,
		},
		{
			name:    "attempt zero",
			policy:  retry.DefaultPolicy(),
			attempt: 0,
			want:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.CalculateDelay(tt.attempt); got != tt.want {
				t.Fatalf("CalculateDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestPolicyDelayForHonorsRetryAfter(t *testing.T) {
	p := retry.Policy{
		BackoffStrategy: retry.BackoffExponential,
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        5 * time.Second,
	}

	if got := p.DelayFor(1, 2*time.Second); got != 2*time.Second {
		t.Fatalf("Retry-After not honored: %v", got)
	}
	// Hint above the cap is clamped.
	if got := p.DelayFor(1, time.Minute); got != 5*time.Second {
		t.Fatalf("Retry-After not capped: %v", got)
	}
	// No hint falls back to backoff.
	if got := p.DelayFor(2, 0); got != 200*time.Millisecond {
		t.Fatalf("fallback backoff wrong: %v", got)
	}
}

func TestPolicyShouldRetry(t *testing.T) {
	p := retry.Policy{MaxRetries: 3}
	if !p.ShouldRetry(0) || !p.ShouldRetry(2) {
		t.Fatal("retries denied below the ceiling")
	}
	if p.ShouldRetry(3) {
		t.Fatal("retry allowed past the ceiling")
	}
	if retry.NoRetryPolicy().ShouldRetry(0) {
		t.Fatal("NoRetryPolicy retried")
	}
}
