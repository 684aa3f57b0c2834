// Package ecserr collects the domain error sentinels shared by store,
// rollback and scheduler. Callers wrap these with fmt.Errorf("...: %w", err)
// for context, mirroring the teacher's errClosed/errOutOfBounds/
// ErrSnapshotStale sentinel style.
package ecserr

import "errors"

var (
	// ErrKeyOutOfRange is returned by bounds-checked store operations when
	// the key falls outside [0, 262144).
	ErrKeyOutOfRange = errors.New("ecsdb: key out of range")

	// ErrIndexNotPresent is returned by a chunk writer view when the
	// requested slot's presence bit is not set.
	ErrIndexNotPresent = errors.New("ecsdb: index not present in chunk")

	// ErrInvariantViolation is returned by verify_invariants when any of
	// the structural invariants of the storage tree do not hold. The
	// rollback tree is not checked.
	ErrInvariantViolation = errors.New("ecsdb: invariant violation")

	// ErrSnapshotUnavailable is returned by rollback(n) when n exceeds the
	// depth of the retained history ring.
	ErrSnapshotUnavailable = errors.New("ecsdb: snapshot unavailable")

	// ErrCycle is returned (debug builds only) when the scheduler's
	// dependency graph cannot be fully levelised.
	ErrCycle = errors.New("ecsdb: cycle in system dependency graph")
)
