// Package settings holds immutable, shared configuration snapshots.
//
// A Store publishes a new *Snapshot on every successful update by atomically
// swapping its current pointer. Snapshots are never modified after they are
// published, so any number of goroutines may read the same snapshot without
// locking, and a job that captured a snapshot keeps seeing exactly that value
// regardless of later updates.
package settings
