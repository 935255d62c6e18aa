package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"secops-console/internal/storage"

	"go.uber.org/zap"
)

const writeTimeout = 5 * time.Second

// ErrNotHydrated is returned by Rebind before hydration has finished.
var ErrNotHydrated = errors.New("state: persisted state has not been hydrated")

// envelope is the stored JSON shape: {"state": {...}, "version": 0}.
type envelope struct {
	State   json.RawMessage `json:"state"`
	Version int             `json:"version"`
}

// PersistOptions configures Persist.
type PersistOptions[T any] struct {
	// Name is the storage key the state is written under.
	Name string
	// Target is the storage the state is read from and written to.
	Target storage.Storage
	// OnRehydrate runs once after hydration, whether or not anything was restored.
	OnRehydrate func(T) T
	Log         *zap.Logger
}

// Persisted binds a Store to a storage key. Until hydration completes no writes happen, so
// defaults never clobber saved state; afterwards every mutation writes the latest snapshot.
type Persisted[T any] struct {
	store       *Store[T]
	name        string
	onRehydrate func(T) T
	log         *zap.Logger

	mu       sync.Mutex // guards target and hydrated; serialises writes
	target   storage.Storage
	hydrated bool

	done  chan struct{}
	once  sync.Once
	unsub func()
}

// Persist attaches persistence to store. Call Hydrate (or StartHydration) to restore.
func Persist[T any](store *Store[T], opts PersistOptions[T]) *Persisted[T] {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	p := &Persisted[T]{
		store:       store,
		name:        opts.Name,
		onRehydrate: opts.OnRehydrate,
		log:         log.With(zap.String("store", opts.Name)),
		target:      opts.Target,
		done:        make(chan struct{}),
	}
	p.unsub = store.Subscribe(func(_, _ T) {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		p.write(ctx)
	})
	return p
}

// StartHydration runs Hydrate in the background.
func (p *Persisted[T]) StartHydration(ctx context.Context) {
	go func() {
		_ = p.Hydrate(ctx)
	}()
}

// Hydrate restores saved state over the current state. Read or decode failures are logged
// and leave the defaults in place; the store is marked hydrated either way. Only the first
// call has any effect.
func (p *Persisted[T]) Hydrate(ctx context.Context) error {
	var result error
	p.once.Do(func() {
		result = p.hydrate(ctx)
	})
	return result
}

func (p *Persisted[T]) hydrate(ctx context.Context) error {
	defer close(p.done)

	p.mu.Lock()
	target := p.target
	p.mu.Unlock()

	restoreErr := p.restore(ctx, target)
	if restoreErr != nil {
		p.log.Warn("rehydration failed, keeping defaults", zap.Error(restoreErr))
	}

	p.mu.Lock()
	p.hydrated = true
	p.mu.Unlock()

	if p.onRehydrate != nil {
		p.store.Set(p.onRehydrate)
	} else {
		p.write(ctx)
	}
	return restoreErr
}

func (p *Persisted[T]) restore(ctx context.Context, target storage.Storage) error {
	raw, ok, err := target.GetItem(ctx, p.name)
	if err != nil {
		return fmt.Errorf("read %s: %w", p.name, err)
	}
	if !ok {
		return nil
	}
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return fmt.Errorf("decode %s: %w", p.name, err)
	}
	if len(env.State) == 0 || string(env.State) == "null" {
		return nil
	}

	var mergeErr error
	p.store.Set(func(cur T) T {
		next, err := mergeJSON(cur, env.State)
		if err != nil {
			mergeErr = err
			return cur
		}
		return next
	})
	if mergeErr != nil {
		return fmt.Errorf("decode %s: %w", p.name, mergeErr)
	}
	return nil
}

// mergeJSON overlays the fields present in raw onto a deep copy of cur.
func mergeJSON[T any](cur T, raw []byte) (T, error) {
	var out T
	base, err := json.Marshal(cur)
	if err != nil {
		return cur, err
	}
	if err := json.Unmarshal(base, &out); err != nil {
		return cur, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return cur, err
	}
	return out, nil
}

// Done is closed once hydration has finished.
func (p *Persisted[T]) Done() <-chan struct{} {
	return p.done
}

// Hydrated reports whether hydration has finished.
func (p *Persisted[T]) Hydrated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hydrated
}

// Rebind moves the persisted blob to a new target: the current state is written there and
// removed from the previous one. Subsequent writes go to the new target. Before hydration
// it fails with ErrNotHydrated and leaves both targets untouched.
func (p *Persisted[T]) Rebind(ctx context.Context, to storage.Storage) error {
	p.mu.Lock()
	if !p.hydrated {
		p.mu.Unlock()
		return ErrNotHydrated
	}
	from := p.target
	p.target = to
	p.mu.Unlock()

	if err := p.writeErr(ctx); err != nil {
		return err
	}
	if err := from.RemoveItem(ctx, p.name); err != nil {
		return fmt.Errorf("remove %s from previous storage: %w", p.name, err)
	}
	return nil
}

// Close detaches persistence from the store.
func (p *Persisted[T]) Close() {
	p.unsub()
}

func (p *Persisted[T]) write(ctx context.Context) {
	if err := p.writeErr(ctx); err != nil {
		p.log.Warn("persist write failed", zap.Error(err))
	}
}

func (p *Persisted[T]) writeErr(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.hydrated {
		return nil
	}
	state, err := json.Marshal(p.store.Get())
	if err != nil {
		return fmt.Errorf("encode %s: %w", p.name, err)
	}
	blob, err := json.Marshal(envelope{State: state, Version: 0})
	if err != nil {
		return fmt.Errorf("encode %s: %w", p.name, err)
	}
	return p.target.SetItem(ctx, p.name, string(blob))
}
