package health

import (
	"context"
	"errors"

	"smartcrm-hq/conductor/pkg/routing"
)

// ErrNoProviderSelectable is reported when every provider is unavailable or
// out of quota.
var ErrNoProviderSelectable = errors.New("no provider available")

// ProviderSource is the subset of *routing.Registry the providers check needs.
type ProviderSource interface {
	Candidates() []routing.Provider
}

// ProvidersCheck fails when no provider can currently be selected.
func ProvidersCheck(src ProviderSource) CheckFunc {
	return func(ctx context.Context) error {
		if len(src.Candidates()) == 0 {
			return ErrNoProviderSelectable
		}
		return nil
	}
}

// Pinger is implemented by the Redis cache, the task archive and the AMQP
// intake.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck adapts a Pinger to a CheckFunc.
func PingCheck(p Pinger) CheckFunc {
	return p.Ping
}
