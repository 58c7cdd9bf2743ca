package ports

import "context"

// LoginThrottle bounds failed login attempts per identifier.
type LoginThrottle interface {
	// Allow reports whether another attempt is permitted right now.
	Allow(ctx context.Context, identifier string) (bool, error)
	RecordFailure(ctx context.Context, identifier string) error
	// Clear resets the failure counter after a successful login.
	Clear(ctx context.Context, identifier string) error
}
