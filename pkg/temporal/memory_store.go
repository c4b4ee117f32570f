package temporal

import (
	"context"
	"fmt"
	"sync"

	"github.com/leowmjw/go-health-timeline/pkg/export"
	"github.com/leowmjw/go-health-timeline/pkg/timeline"
)

// MemoryRecordStore keeps ingested exports in memory. Exports are append-only,
// so a generation is the record count when it was pinned and the records of
// that generation are the first generation records.
type MemoryRecordStore struct {
	mu      sync.RWMutex
	records map[string][]timeline.RawRecord // exportID -> records
}

// NewMemoryRecordStore creates an empty store
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{
		records: make(map[string][]timeline.RawRecord),
	}
}

// AppendRecords adds records to an export, creating it on first use
func (m *MemoryRecordStore) AppendRecords(ctx context.Context, exportID string, records []timeline.RawRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[exportID] = append(m.records[exportID], records...)
	return nil
}

// Snapshot pins the current generation of an export
func (m *MemoryRecordStore) Snapshot(ctx context.Context, exportID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records, exists := m.records[exportID]
	if !exists {
		return 0, fmt.Errorf("%w: %s", ErrExportNotFound, exportID)
	}
	return int64(len(records)), nil
}

// LoadRecords returns a copy of an export's records as of generation.
// Appends made after the snapshot are not visible.
func (m *MemoryRecordStore) LoadRecords(ctx context.Context, exportID string, generation int64) ([]timeline.RawRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records, exists := m.records[exportID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrExportNotFound, exportID)
	}
	if generation < 0 || generation > int64(len(records)) {
		return nil, fmt.Errorf("%w: %s generation %d", export.ErrSnapshotChanged, exportID, generation)
	}

	snapshot := make([]timeline.RawRecord, generation)
	copy(snapshot, records[:generation])
	return snapshot, nil
}

// RecordCount returns the number of records stored for an export
func (m *MemoryRecordStore) RecordCount(exportID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.records[exportID])
}
