package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/leowmjw/go-health-timeline/pkg/timeline"
)

// DefaultExportFile is the file name inside an unpacked Apple Health export
const DefaultExportFile = "export.xml"

// maxCachedExports bounds how many parsed exports a FileRecordStore keeps
const maxCachedExports = 4

var (
	// ErrInvalidExportID means an export ID would resolve outside the store root
	ErrInvalidExportID = errors.New("invalid export id")

	// ErrSnapshotChanged means the export no longer matches the generation a
	// reader pinned, so that generation cannot be served any more
	ErrSnapshotChanged = errors.New("export changed since snapshot")
)

type cachedExport struct {
	generation int64
	records    []timeline.RawRecord
	lastUsed   uint64
}

// FileRecordStore loads exports from a directory. An export ID names either a
// file under the root or a directory holding export.xml. The generation of an
// export is its file modification time; a parsed generation is cached until
// the file changes or the export is evicted.
type FileRecordStore struct {
	root   string
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]*cachedExport
	clock uint64
}

// NewFileRecordStore creates a store rooted at dir
func NewFileRecordStore(dir string, logger *slog.Logger) *FileRecordStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileRecordStore{
		root:   dir,
		logger: logger,
		cache:  make(map[string]*cachedExport),
	}
}

// Path resolves an export ID to the file it is read from
func (s *FileRecordStore) Path(exportID string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(exportID))
	if exportID == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidExportID, exportID)
	}

	path := filepath.Join(s.root, clean)
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, DefaultExportFile)
	}
	return path, nil
}

// Snapshot returns the current generation of an export
func (s *FileRecordStore) Snapshot(ctx context.Context, exportID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	path, err := s.Path(exportID)
	if err != nil {
		return 0, err
	}
	return generationOf(path)
}

// LoadRecords returns the records of an export as of generation. A file
// rewritten since the snapshot fails with ErrSnapshotChanged.
func (s *FileRecordStore) LoadRecords(ctx context.Context, exportID string, generation int64) ([]timeline.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.clock++
	if entry, ok := s.cache[exportID]; ok && entry.generation == generation {
		entry.lastUsed = s.clock
		return entry.records, nil
	}

	path, err := s.Path(exportID)
	if err != nil {
		return nil, err
	}
	if err := checkGeneration(path, exportID, generation); err != nil {
		return nil, err
	}
	records, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	// The file may have been replaced while it was parsed
	if err := checkGeneration(path, exportID, generation); err != nil {
		return nil, err
	}

	s.logger.Info("Loaded export", "export_id", exportID, "path", path, "generation", generation, "records", len(records))
	s.remember(exportID, &cachedExport{generation: generation, records: records, lastUsed: s.clock})
	return records, nil
}

// CachedExports returns how many parsed exports are held in memory
func (s *FileRecordStore) CachedExports() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cache)
}

// remember caches an export, evicting the least recently used one when full.
// Callers hold s.mu.
func (s *FileRecordStore) remember(exportID string, entry *cachedExport) {
	if _, ok := s.cache[exportID]; !ok && len(s.cache) >= maxCachedExports {
		var oldest string
		for id, e := range s.cache {
			if oldest == "" || e.lastUsed < s.cache[oldest].lastUsed {
				oldest = id
			}
		}
		delete(s.cache, oldest)
	}
	s.cache[exportID] = entry
}

func generationOf(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.ModTime().UnixNano(), nil
}

func checkGeneration(path, exportID string, generation int64) error {
	current, err := generationOf(path)
	if err != nil {
		return err
	}
	if current != generation {
		return fmt.Errorf("%w: %s", ErrSnapshotChanged, exportID)
	}
	return nil
}
