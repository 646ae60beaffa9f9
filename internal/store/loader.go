// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConflictPolicy tells what happens when a record collides
// with an existing row.
type ConflictPolicy int

const (
	// Idempotent skips records whose primary key exists already,
	// so loading the same input twice leaves the relation unchanged.
	Idempotent ConflictPolicy = iota

	// AppendOnly always inserts. Loading the same input twice
	// duplicates its rows.
	AppendOnly
)

func (p ConflictPolicy) String() string {
	switch p {
	case Idempotent:
		return "idempotent"
	case AppendOnly:
		return "append-only"
	default:
		return fmt.Sprintf("ConflictPolicy(%d)", int(p))
	}
}

// LoadResult tells how many records got written to the store,
// and how many were skipped because they already existed.
type LoadResult struct {
	Written int64 `json:"written"`
	Skipped int64 `json:"skipped"`
}

func (r *LoadResult) Add(other LoadResult) {
	r.Written += other.Written
	r.Skipped += other.Skipped
}

// DefaultBatchSize is the number of records per flush, unless configured otherwise.
const DefaultBatchSize = 5000

// Number of rows per INSERT statement. SQLite limits the number
// of bound parameters per statement to 32766.
const insertChunk = 1000

// Loader writes records of one relation in batches.
// A Loader must not be used from multiple goroutines.
type Loader[T any] struct {
	db        *gorm.DB
	policy    ConflictPolicy
	batchSize int
	batch     []T
	result    LoadResult
}

// NewLoader returns a loader that flushes every batchSize records.
// The relation is the one that gorm associates with type T.
func NewLoader[T any](db *gorm.DB, policy ConflictPolicy, batchSize int) *Loader[T] {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Loader[T]{
		db:        db,
		policy:    policy,
		batchSize: batchSize,
		batch:     make([]T, 0, batchSize),
	}
}

// Add queues a record, flushing the batch when it is full.
func (l *Loader[T]) Add(ctx context.Context, rec T) error {
	l.batch = append(l.batch, rec)
	if len(l.batch) >= l.batchSize {
		return l.Flush(ctx)
	}
	return nil
}

// Flush writes all queued records.
func (l *Loader[T]) Flush(ctx context.Context) error {
	if len(l.batch) == 0 {
		return nil
	}

	tx := l.db.WithContext(ctx)
	if l.policy == Idempotent {
		tx = tx.Clauses(clause.OnConflict{DoNothing: true})
	}
	res := tx.CreateInBatches(&l.batch, insertChunk)
	if res.Error != nil {
		return res.Error
	}

	n := int64(len(l.batch))
	l.result.Written += res.RowsAffected
	if l.policy == Idempotent {
		l.result.Skipped += n - res.RowsAffected
	}

	clear(l.batch)
	l.batch = l.batch[:0]
	return nil
}

// Result returns the counts of what has been flushed so far.
func (l *Loader[T]) Result() LoadResult {
	return l.result
}

// Close flushes the remaining records and returns the final counts.
func (l *Loader[T]) Close(ctx context.Context) (LoadResult, error) {
	if err := l.Flush(ctx); err != nil {
		return l.result, err
	}
	return l.result, nil
}
