// Package reconcile diffs keyed collections while keeping the identity of
// items that survive a refresh.
package reconcile

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSuchElement is returned when an update or delete names a key that
	// is not in the collection, which means a prior insert was missed.
	ErrNoSuchElement = errors.New("no such element")

	// ErrInternalInvariant marks a state that upstream validation should have
	// made impossible. It is returned instead of aborting.
	ErrInternalInvariant = errors.New("internal invariant violated")
)

// Entity is an item of a keyed collection. T is normally the pointer type
// itself, so ApplyUpdate mutates the existing object.
type Entity[K comparable, T any] interface {
	ReconcileKey() K
	ReconcileVersion() int
	ApplyUpdate(src T)
}

// ChangeSet is the coalesced result of one reconciliation pass.
type ChangeSet[T any] struct {
	Inserted []T
	Updated  []T
	Removed  []T
}

// Empty reports whether nothing changed.
func (c ChangeSet[T]) Empty() bool {
	return c.Len() == 0
}

// Len returns the number of changed items.
func (c ChangeSet[T]) Len() int {
	return len(c.Inserted) + len(c.Updated) + len(c.Removed)
}

// ChangeType is the explicit change kind of a single-item push.
type ChangeType int

const (
	Insert ChangeType = iota
	Update
	Delete
)

func (c ChangeType) String() string {
	switch c {
	case Insert:
		return "insert"
	case Update:
		return "update"
	case Delete:
		return "delete"
	default:
		return fmt.Sprintf("ChangeType(%d)", int(c))
	}
}

// ParseChangeType maps the server's change names to a ChangeType.
func ParseChangeType(s string) (ChangeType, error) {
	switch s {
	case "Insert", "insert", "add":
		return Insert, nil
	case "Update", "update", "modify":
		return Update, nil
	case "Delete", "delete", "remove", "rm":
		return Delete, nil
	}
	return 0, fmt.Errorf("unknown change type %q", s)
}

// Reconcile updates old to match next. Items whose key is in both are kept
// (the old object, mutated in place when the version differs), items only in
// next are inserted as-is, and items only in old are removed. The returned
// collection follows next's order.
func Reconcile[K comparable, T Entity[K, T]](old, next []T) ([]T, ChangeSet[T]) {
	var cs ChangeSet[T]

	existing := make(map[K]T, len(old))
	for _, item := range old {
		existing[item.ReconcileKey()] = item
	}

	result := make([]T, 0, len(next))
	seen := make(map[K]struct{}, len(next))
	for _, item := range next {
		key := item.ReconcileKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		cur, ok := existing[key]
		if !ok {
			cs.Inserted = append(cs.Inserted, item)
			result = append(result, item)
			continue
		}
		if cur.ReconcileVersion() != item.ReconcileVersion() {
			cur.ApplyUpdate(item)
			cs.Updated = append(cs.Updated, cur)
		}
		result = append(result, cur)
	}

	for _, item := range old {
		if _, ok := seen[item.ReconcileKey()]; !ok {
			cs.Removed = append(cs.Removed, item)
		}
	}

	return result, cs
}

// ApplyDelta applies one pushed change to coll. An insert of a key that is
// already present is applied as an update.
func ApplyDelta[K comparable, T Entity[K, T]](coll []T, change ChangeType, item T) ([]T, ChangeSet[T], error) {
	var cs ChangeSet[T]
	key := item.ReconcileKey()

	idx := -1
	for i, cur := range coll {
		if cur.ReconcileKey() == key {
			idx = i
			break
		}
	}

	switch change {
	case Insert:
		if idx >= 0 {
			coll[idx].ApplyUpdate(item)
			cs.Updated = append(cs.Updated, coll[idx])
			return coll, cs, nil
		}
		cs.Inserted = append(cs.Inserted, item)
		return append(coll, item), cs, nil

	case Update:
		if idx < 0 {
			return coll, cs, fmt.Errorf("update %v: %w", key, ErrNoSuchElement)
		}
		coll[idx].ApplyUpdate(item)
		cs.Updated = append(cs.Updated, coll[idx])
		return coll, cs, nil

	case Delete:
		if idx < 0 {
			return coll, cs, fmt.Errorf("delete %v: %w", key, ErrNoSuchElement)
		}
		removed := coll[idx]
		out := make([]T, 0, len(coll)-1)
		out = append(out, coll[:idx]...)
		out = append(out, coll[idx+1:]...)
		cs.Removed = append(cs.Removed, removed)
		return out, cs, nil
	}

	return coll, cs, fmt.Errorf("apply %v: %w", change, ErrInternalInvariant)
}
