package matching

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

type MappingStatus string

const (
	// MappingVerified marks labels returned by the classifier.
	MappingVerified MappingStatus = "verified"
	// MappingUnverified marks raw strings that became their own canonical
	// value after classifier retries were exhausted. Operators correct these
	// by hand in the CSV.
	MappingUnverified MappingStatus = "unverified"
	// MappingManual marks hand-entered corrections.
	MappingManual MappingStatus = "manual"
)

type MappingEntry struct {
	Raw       string
	Canonical string
	Status    MappingStatus
}

var mappingHeader = []string{"raw", "canonical", "status"}

// MappingStore persists canonical mappings as one CSV file per domain under
// dir (vendor.csv, product.csv, asset_type.csv). Files are plain
// record-per-row CSVs so operators can edit them; every Put rewrites the
// domain file so a crash mid-run never repeats a classifier call.
type MappingStore struct {
	mu       sync.Mutex
	dir      string
	byDomain map[Domain]map[string]MappingEntry
}

func OpenMappingStore(dir string) (*MappingStore, error) {
	s := &MappingStore{dir: dir}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads every domain file from disk, dropping in-memory state.
// Missing files load as empty domains.
func (s *MappingStore) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byDomain := make(map[Domain]map[string]MappingEntry)
	for _, domain := range []Domain{DomainVendor, DomainProduct, DomainAssetType} {
		entries, err := readMappingFile(s.filePath(domain))
		if err != nil {
			return err
		}
		byDomain[domain] = entries
	}
	s.byDomain = byDomain
	return nil
}

func (s *MappingStore) Get(domain Domain, raw string) (MappingEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.byDomain[domain][raw]
	return entry, ok
}

// Put stores the mapping and flushes the domain file before returning.
// Existing entries are overwritten (explicit correction is the only caller
// that should do so).
func (s *MappingStore) Put(domain Domain, entry MappingEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.byDomain[domain]
	if entries == nil {
		entries = make(map[string]MappingEntry)
		s.byDomain[domain] = entries
	}
	previous, hadPrevious := entries[entry.Raw]
	entries[entry.Raw] = entry

	if err := s.flushLocked(domain); err != nil {
		// Keep memory and file consistent: roll back the insert.
		if hadPrevious {
			entries[entry.Raw] = previous
		} else {
			delete(entries, entry.Raw)
		}
		return fmt.Errorf("persist %s mapping: %w", domain, err)
	}
	return nil
}

// Labels returns the distinct canonical labels of a domain, sorted, for use
// in classifier instructions. Unverified self-mappings are excluded so they
// do not pollute the known-label set.
func (s *MappingStore) Labels(domain Domain) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{})
	for _, entry := range s.byDomain[domain] {
		if entry.Status == MappingUnverified {
			continue
		}
		seen[entry.Canonical] = struct{}{}
	}
	labels := make([]string, 0, len(seen))
	for label := range seen {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// Counts reports total and unverified entries per domain for run summaries.
func (s *MappingStore) Counts(domain Domain) (total int, unverified int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.byDomain[domain] {
		total++
		if entry.Status == MappingUnverified {
			unverified++
		}
	}
	return total, unverified
}

func (s *MappingStore) filePath(domain Domain) string {
	return filepath.Join(s.dir, string(domain)+".csv")
}

// flushLocked rewrites the domain file atomically (temp file then rename).
// Rows are sorted by raw key for stable, diffable files.
func (s *MappingStore) flushLocked(domain Domain) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}

	entries := s.byDomain[domain]
	raws := make([]string, 0, len(entries))
	for raw := range entries {
		raws = append(raws, raw)
	}
	sort.Strings(raws)

	tmp, err := os.CreateTemp(s.dir, "."+string(domain)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	w := csv.NewWriter(tmp)
	writeErr := w.Write(mappingHeader)
	for _, raw := range raws {
		if writeErr != nil {
			break
		}
		entry := entries[raw]
		writeErr = w.Write([]string{entry.Raw, entry.Canonical, string(entry.Status)})
	}
	if writeErr == nil {
		w.Flush()
		writeErr = w.Error()
	}
	if writeErr == nil {
		writeErr = tmp.Sync()
	}
	if closeErr := tmp.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		os.Remove(tmpName)
		return writeErr
	}
	return os.Rename(tmpName, s.filePath(domain))
}

func readMappingFile(path string) (map[string]MappingEntry, error) {
	entries := make(map[string]MappingEntry)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return entries, nil
		}
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read mapping file %s: %w", path, err)
	}

	for i, row := range rows {
		if i == 0 && len(row) > 0 && row[0] == mappingHeader[0] {
			continue
		}
		if len(row) < 2 {
			continue
		}
		status := MappingManual
		if len(row) >= 3 && row[2] != "" {
			status = MappingStatus(row[2])
		}
		entries[row[0]] = MappingEntry{Raw: row[0], Canonical: row[1], Status: status}
	}
	return entries, nil
}
