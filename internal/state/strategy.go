package state

import (
	"context"
	"fmt"

	"secops-console/internal/storage"
)

// Tier names a storage tier.
type Tier string

const (
	TierDurable Tier = "durable"
	TierSession Tier = "session"
)

// TierFor maps the keep-logged-in preference to a tier.
func TierFor(keepLoggedIn bool) Tier {
	if keepLoggedIn {
		return TierDurable
	}
	return TierSession
}

// Strategy is the storage binding for one session, resolved once when the session starts.
// Changing keepLoggedIn later does not change Initial; moving data between tiers is an
// explicit AppStore.Rebind.
type Strategy struct {
	durable storage.Storage
	session storage.Storage
	initial Tier
}

// ResolveStrategy reads keepLoggedIn from durable storage. "true" selects the durable tier;
// anything else, including a missing key, selects the session tier. On a read error the
// session tier is chosen and the error returned alongside the strategy.
func ResolveStrategy(ctx context.Context, durable, session storage.Storage) (*Strategy, error) {
	s := &Strategy{durable: durable, session: session, initial: TierSession}
	v, _, err := durable.GetItem(ctx, storage.KeyKeepLoggedIn)
	if err != nil {
		return s, fmt.Errorf("resolve storage tier: %w", err)
	}
	s.initial = TierFor(v == "true")
	return s, nil
}

// Initial is the tier chosen at resolution time.
func (s *Strategy) Initial() Tier { return s.initial }

func (s *Strategy) Durable() storage.Storage { return s.durable }

func (s *Strategy) Session() storage.Storage { return s.session }

// Storage returns the storage for t.
func (s *Strategy) Storage(t Tier) storage.Storage {
	if t == TierDurable {
		return s.durable
	}
	return s.session
}
