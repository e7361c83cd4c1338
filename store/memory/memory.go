// Package memory provides an in-memory records.Store for tests and
// single-process deployments.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/warp/payroll-engine/records"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	records     map[key][]records.Record
	byID        map[string]records.Record
	idempotency map[string]bool
	reversed    map[string]bool
}

type key struct {
	EmployeeID string
	Year       int
}

func New() *Memory {
	return &Memory{
		records:     make(map[key][]records.Record),
		byID:        make(map[string]records.Record),
		idempotency: make(map[string]bool),
		reversed:    make(map[string]bool),
	}
}

// Append adds a single record. Append-only.
func (m *Memory) Append(_ context.Context, r records.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLocked(r); err != nil {
		return err
	}
	m.appendLocked(r)
	return nil
}

// AppendBatch adds multiple records atomically.
func (m *Memory) AppendBatch(_ context.Context, rs []records.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check everything first so a failure writes nothing
	keys := make(map[string]bool, len(rs))
	reverses := make(map[string]bool)
	for _, r := range rs {
		if err := m.checkLocked(r); err != nil {
			return err
		}
		if r.IdempotencyKey != "" {
			if keys[r.IdempotencyKey] {
				return records.ErrDuplicateIdempotencyKey
			}
			keys[r.IdempotencyKey] = true
		}
		if r.Kind == records.KindReversal {
			if reverses[r.Reverses] {
				return errors.Wrapf(records.ErrAlreadyReversed, "record %s", r.Reverses)
			}
			reverses[r.Reverses] = true
		}
	}

	for _, r := range rs {
		m.appendLocked(r)
	}
	return nil
}

func (m *Memory) checkLocked(r records.Record) error {
	if r.IdempotencyKey != "" && m.idempotency[r.IdempotencyKey] {
		return records.ErrDuplicateIdempotencyKey
	}
	if _, ok := m.byID[r.ID]; ok {
		return errors.Wrapf(records.ErrInvalidRecord, "record %s already stored", r.ID)
	}
	if r.Kind == records.KindReversal && m.reversed[r.Reverses] {
		return errors.Wrapf(records.ErrAlreadyReversed, "record %s", r.Reverses)
	}
	return nil
}

func (m *Memory) appendLocked(r records.Record) {
	k := key{EmployeeID: r.EmployeeID, Year: r.Year}
	rs := m.records[k]

	// Keep each history sorted by RecordedAt; equal times keep append order
	i := sort.Search(len(rs), func(i int) bool {
		return rs[i].RecordedAt.After(r.RecordedAt)
	})
	rs = append(rs, records.Record{})
	copy(rs[i+1:], rs[i:])
	rs[i] = r
	m.records[k] = rs

	m.byID[r.ID] = r
	if r.IdempotencyKey != "" {
		m.idempotency[r.IdempotencyKey] = true
	}
	if r.Kind == records.KindReversal {
		m.reversed[r.Reverses] = true
	}
}

func (m *Memory) Load(_ context.Context, employeeID string, year int) ([]records.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	k := key{EmployeeID: employeeID, Year: year}
	result := make([]records.Record, len(m.records[k]))
	copy(result, m.records[k])
	return result, nil
}

func (m *Memory) Get(_ context.Context, id string) (records.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.byID[id]
	if !ok {
		return records.Record{}, errors.Wrapf(records.ErrRecordNotFound, "id %s", id)
	}
	return r, nil
}

func (m *Memory) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}
