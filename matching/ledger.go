package matching

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"
)

const (
	AssignedByAuto   = "auto"
	AssignedByManual = "manual"
)

// Assignment is one confirmed asset-to-purchase pairing.
type Assignment struct {
	AssetId    int
	PurchaseId string
	Quantity   int
	AssignedAt time.Time
	AssignedBy string
}

var ledgerHeader = []string{"asset_id", "purchase_id", "quantity_consumed", "assigned_at", "assigned_by"}

// Ledger is the single source of truth for which purchase is assigned to
// which asset. State lives in one CSV file; every mutation rewrites the
// whole file (temp + rename) before the in-memory state changes, so an
// interrupted process never loses confirmed work and the previous file stays
// authoritative on a failed write. All access is serialized by one mutex.
type Ledger struct {
	mu         sync.Mutex
	path       string
	entries    map[int]Assignment // by asset id
	consumed   map[string]int     // derived: per purchase id
	capacities map[string]int     // per purchase id, from the staged pool
}

// OpenLedger loads the CSV at path (a missing file is an empty ledger).
// capacities is the per-purchase slot count from the current purchase pool.
func OpenLedger(path string, capacities map[string]int) (*Ledger, error) {
	l := &Ledger{path: path}
	l.SetCapacities(capacities)
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// SetCapacities replaces the capacity table, e.g. after a fresh sync.
func (l *Ledger) SetCapacities(capacities map[string]int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.capacities = make(map[string]int, len(capacities))
	for id, count := range capacities {
		l.capacities[id] = count
	}
}

// Reload re-derives the full in-memory state from the file. Consumed totals
// are summed from scratch, never trusted from a cached counter, so the file
// may be hand-edited between runs. On duplicate asset rows the last one wins.
func (l *Ledger) Reload() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := readLedgerFile(l.path)
	if err != nil {
		return err
	}
	l.entries = entries
	l.consumed = deriveConsumed(entries)
	return nil
}

// Assign commits purchase -> asset. Reassigning releases the previous
// purchase's quantity before consuming the new one; with strict set, an
// existing assignment fails with ErrAlreadyAssigned instead. A purchase
// without enough remaining quantity fails with ErrCapacityExceeded and the
// ledger is untouched. The mutation is durable before it is visible.
func (l *Ledger) Assign(assetId int, purchaseId string, quantity int, assignedBy string, strict bool) error {
	if quantity <= 0 {
		quantity = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	capacity, known := l.capacities[purchaseId]
	if !known {
		return ErrUnknownPurchase
	}

	previous, hadPrevious := l.entries[assetId]
	if hadPrevious && strict {
		return ErrAlreadyAssigned
	}

	// Remaining after releasing whatever this asset already consumes.
	consumed := l.consumed[purchaseId]
	if hadPrevious && previous.PurchaseId == purchaseId {
		consumed -= previous.Quantity
	}
	if capacity-consumed < quantity {
		return ErrCapacityExceeded
	}

	next := cloneEntries(l.entries)
	next[assetId] = Assignment{
		AssetId:    assetId,
		PurchaseId: purchaseId,
		Quantity:   quantity,
		AssignedAt: time.Now().UTC(),
		AssignedBy: assignedBy,
	}
	if err := writeLedgerFile(l.path, next); err != nil {
		return fmt.Errorf("persist ledger: %w", err)
	}

	l.entries = next
	l.consumed = deriveConsumed(next)
	return nil
}

// Unassign removes the asset's assignment and restores the purchase's
// quantity. An asset with no assignment is a successful no-op.
func (l *Ledger) Unassign(assetId int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[assetId]; !ok {
		return nil
	}

	next := cloneEntries(l.entries)
	delete(next, assetId)
	if err := writeLedgerFile(l.path, next); err != nil {
		return fmt.Errorf("persist ledger: %w", err)
	}

	l.entries = next
	l.consumed = deriveConsumed(next)
	return nil
}

// Get returns the asset's assignment, if any.
func (l *Ledger) Get(assetId int) (Assignment, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.entries[assetId]
	return a, ok
}

// All returns every assignment ordered by asset id.
func (l *Ledger) All() []Assignment {
	l.mu.Lock()
	defer l.mu.Unlock()

	all := make([]Assignment, 0, len(l.entries))
	for _, a := range l.entries {
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].AssetId < all[j].AssetId })
	return all
}

// Remaining reports unconsumed slots for one purchase (0 for unknown ids).
func (l *Ledger) Remaining(purchaseId string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.capacities[purchaseId] - l.consumed[purchaseId]
}

// RemainingSnapshot returns remaining slots for every known purchase; the
// matcher consumes this as its read-only view of ledger state.
func (l *Ledger) RemainingSnapshot() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	snapshot := make(map[string]int, len(l.capacities))
	for id, capacity := range l.capacities {
		snapshot[id] = capacity - l.consumed[id]
	}
	return snapshot
}

// AssignedCount returns the number of assets with an active assignment.
func (l *Ledger) AssignedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func cloneEntries(entries map[int]Assignment) map[int]Assignment {
	next := make(map[int]Assignment, len(entries)+1)
	for id, a := range entries {
		next[id] = a
	}
	return next
}

func deriveConsumed(entries map[int]Assignment) map[string]int {
	consumed := make(map[string]int)
	for _, a := range entries {
		consumed[a.PurchaseId] += a.Quantity
	}
	return consumed
}

func readLedgerFile(path string) (map[int]Assignment, error) {
	entries := make(map[int]Assignment)

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
		return nil, fmt.Errorf("read ledger %s: %w", path, err)
	}

	for i, row := range rows {
		if i == 0 && len(row) > 0 && row[0] == ledgerHeader[0] {
			continue
		}
		if len(row) < 5 {
			continue
		}
		assetId, err := strconv.Atoi(row[0])
		if err != nil {
			continue
		}
		quantity, err := strconv.Atoi(row[2])
		if err != nil || quantity <= 0 {
			quantity = 1
		}
		assignedAt, _ := time.Parse(time.RFC3339, row[3])
		entries[assetId] = Assignment{
			AssetId:    assetId,
			PurchaseId: row[1],
			Quantity:   quantity,
			AssignedAt: assignedAt,
			AssignedBy: row[4],
		}
	}
	return entries, nil
}

func writeLedgerFile(path string, entries map[int]Assignment) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	assetIds := make([]int, 0, len(entries))
	for id := range entries {
		assetIds = append(assetIds, id)
	}
	sort.Ints(assetIds)

	tmp, err := os.CreateTemp(filepath.Dir(path), ".assignments-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	w := csv.NewWriter(tmp)
	writeErr := w.Write(ledgerHeader)
	for _, id := range assetIds {
		if writeErr != nil {
			break
		}
		a := entries[id]
		writeErr = w.Write([]string{
			strconv.Itoa(a.AssetId),
			a.PurchaseId,
			strconv.Itoa(a.Quantity),
			a.AssignedAt.UTC().Format(time.RFC3339),
			a.AssignedBy,
		})
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
	return os.Rename(tmpName, path)
}
