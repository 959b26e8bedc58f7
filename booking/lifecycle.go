package booking

import "time"

// =============================================================================
// LIFECYCLE - Active | Deleted{at, by}
// =============================================================================

// Lifecycle tags an entity as active or soft-deleted. The zero value is active.
// Aggregates filter through ActiveOnly; nothing else should inspect deletion.
type Lifecycle struct {
	deleted bool
	at      time.Time
	by      string
}

// Active returns the active lifecycle tag.
func Active() Lifecycle { return Lifecycle{} }

// Deleted returns a tag recording who soft-deleted the entity and when.
func Deleted(at time.Time, by string) Lifecycle {
	return Lifecycle{deleted: true, at: at, by: by}
}

func (l Lifecycle) IsActive() bool  { return !l.deleted }
func (l Lifecycle) IsDeleted() bool { return l.deleted }

// DeletedAt returns the deletion time and actor. ok is false for active entities.
func (l Lifecycle) DeletedAt() (at time.Time, by string, ok bool) {
	return l.at, l.by, l.deleted
}

func (l Lifecycle) String() string {
	if l.deleted {
		return "deleted"
	}
	return "active"
}

// Lifecycled is implemented by every soft-deletable document.
type Lifecycled interface {
	LifecycleTag() Lifecycle
}

// ActiveOnly drops soft-deleted items, preserving order.
func ActiveOnly[T Lifecycled](items []T) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if it.LifecycleTag().IsActive() {
			out = append(out, it)
		}
	}
	return out
}
