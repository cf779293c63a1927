// Package ledger implements the durable violation counter keyed by
// (group, user, category), plus the per-group blacklist it feeds.
//
// The ledger is a pure counting/query primitive: crossing a threshold is a
// caller-observed condition, escalation is decided by the coordinator and the
// guardian, never here. All mutations for a given key are serialized through a
// per-key mutex so a content violation and an admin-abuse violation for the
// same user can land concurrently without lost updates.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/TechitoonStudios/TechitoonGuardGo/pkg/logger"
	"github.com/TechitoonStudios/TechitoonGuardGo/pkg/models"
)

// Store is the durable backend for violation records
type Store interface {
	LoadAll() ([]*models.ViolationRecord, error)
	Save(rec *models.ViolationRecord) error
	Delete(groupID, userID string, category models.Category) error
}

// Blacklist is the durable backend for blacklist entries
type Blacklist interface {
	Add(entry *models.BlacklistEntry) error
	Remove(groupID, userID string) error
	IsBlacklisted(groupID, userID string) bool
	ListByGroup(groupID string) []*models.BlacklistEntry
}

// Thresholds holds the per-category escalation thresholds
type Thresholds struct {
	Sales      int
	Link       int
	AdminAbuse int
}

// For returns the threshold for a category
func (t Thresholds) For(category models.Category) int {
	switch category {
	case models.CategorySales:
		return t.Sales
	case models.CategoryLink:
		return t.Link
	case models.CategoryAdminAbuse:
		return t.AdminAbuse
	default:
		return 0
	}
}

// Ledger owns the in-memory violation counters and writes every mutation
// through to the store. Counters are loaded from the store at construction;
// nothing here survives a restart except through the store.
type Ledger struct {
	store      Store
	blacklist  Blacklist
	thresholds Thresholds

	mu       sync.Mutex // guards records and keyLocks
	records  map[string]*models.ViolationRecord
	keyLocks map[string]*sync.Mutex
}

func recordKey(groupID, userID string, category models.Category) string {
	return groupID + "|" + userID + "|" + string(category)
}

// New builds a ledger and warms it from the store. A store that cannot be read
// yet (DB still connecting at boot) is not fatal: the ledger starts empty and
// new mutations reach the store through its offline write queue.
func New(store Store, blacklist Blacklist, thresholds Thresholds) *Ledger {
	l := &Ledger{
		store:      store,
		blacklist:  blacklist,
		thresholds: thresholds,
		records:    make(map[string]*models.ViolationRecord),
		keyLocks:   make(map[string]*sync.Mutex),
	}

	recs, err := store.LoadAll()
	if err != nil {
		logger.Warn(fmt.Sprintf("No se pudieron cargar las violaciones, el ledger arranca vacío: %v", err), "Ledger")
		return l
	}
	for _, rec := range recs {
		l.records[recordKey(rec.GroupID, rec.UserID, rec.Category)] = rec
	}

	logger.Info(fmt.Sprintf("Ledger cargado: %d registros de violaciones", len(recs)), "Ledger")
	return l
}

// keyLock returns the serialization mutex for a key, creating it on first use
func (l *Ledger) keyLock(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.keyLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		l.keyLocks[key] = lock
	}
	return lock
}

// RecordViolation atomically increments the counter for (group, user, category)
// and returns the new count. The count is valid even when persistence fails;
// bookkeeping and enforcement are independent failure domains, so the returned
// error is for logging, not for aborting the caller's pipeline.
func (l *Ledger) RecordViolation(groupID, userID string, category models.Category) (int, error) {
	key := recordKey(groupID, userID, category)
	lock := l.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	l.mu.Lock()
	rec, ok := l.records[key]
	if !ok {
		rec = &models.ViolationRecord{
			GroupID:  groupID,
			UserID:   userID,
			Category: category,
		}
		l.records[key] = rec
	}
	rec.Count++
	rec.LastUpdated = time.Now()
	newCount := rec.Count
	snapshot := *rec
	l.mu.Unlock()

	if err := l.store.Save(&snapshot); err != nil {
		logger.Error(fmt.Sprintf("No se pudo persistir la violación %s: %v", key, err), "Ledger")
		return newCount, err
	}
	return newCount, nil
}

// Count returns the current count for a key
func (l *Ledger) Count(groupID, userID string, category models.Category) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec, ok := l.records[recordKey(groupID, userID, category)]; ok {
		return rec.Count
	}
	return 0
}

// RemainingAllowance returns threshold − count, floored at zero
func (l *Ledger) RemainingAllowance(groupID, userID string, category models.Category) int {
	remaining := l.thresholds.For(category) - l.Count(groupID, userID, category)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Threshold returns the configured threshold for a category
func (l *Ledger) Threshold(category models.Category) int {
	return l.thresholds.For(category)
}

// Reset zeroes the counter for (group, user, category) and clears any
// blacklist membership for the (group, user) pair
func (l *Ledger) Reset(groupID, userID string, category models.Category) error {
	key := recordKey(groupID, userID, category)
	lock := l.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	l.mu.Lock()
	delete(l.records, key)
	l.mu.Unlock()

	if err := l.store.Delete(groupID, userID, category); err != nil {
		return fmt.Errorf("deleting violation record: %w", err)
	}

	if l.blacklist.IsBlacklisted(groupID, userID) {
		if err := l.blacklist.Remove(groupID, userID); err != nil {
			return fmt.Errorf("clearing blacklist entry: %w", err)
		}
		logger.Info(fmt.Sprintf("Usuario %s retirado de la blacklist de %s tras el reset", userID, groupID), "Ledger")
	}
	return nil
}

// IsBlacklisted checks the blacklist for a (group, user) pair
func (l *Ledger) IsBlacklisted(groupID, userID string) bool {
	return l.blacklist.IsBlacklisted(groupID, userID)
}

// AddToBlacklist creates a blacklist entry for a (group, user) pair
func (l *Ledger) AddToBlacklist(groupID, userID, reason string) error {
	return l.blacklist.Add(&models.BlacklistEntry{
		GroupID:   groupID,
		UserID:    userID,
		Reason:    reason,
		CreatedAt: time.Now(),
	})
}

// BlacklistedInGroup lists the blacklist entries for a group
func (l *Ledger) BlacklistedInGroup(groupID string) []*models.BlacklistEntry {
	return l.blacklist.ListByGroup(groupID)
}
