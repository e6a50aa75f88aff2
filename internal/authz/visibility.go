// Package authz holds the single row-visibility predicate shared by the
// HTTP read path and the change fan-out. Keeping one function is the point:
// a subscriber filter that diverges from read authorization makes clients
// wait forever for events on rows they can read.
package authz

// Scope is a caller's visibility: its store, optionally narrowed to one
// location. A nil LocationID means every location in the store.
type Scope struct {
	StoreID    uint
	LocationID *uint
}

// RowMeta is the scoping of a single row, as carried on change events and
// derivable from any readable entity.
type RowMeta struct {
	StoreID    uint
	LocationID uint
}

// CanRead reports whether a caller with scope may read the row. This exact
// function decides both on-demand reads and event delivery; callers must not
// reimplement it.
func CanRead(scope Scope, row RowMeta) bool {
	if scope.StoreID != row.StoreID {
		return false
	}
	if scope.LocationID != nil && *scope.LocationID != row.LocationID {
		return false
	}
	return true
}
