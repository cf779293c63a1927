// Package database provides typed stores over the global DataManagers.
// These are the concrete implementations of the storage contracts consumed by
// the ledger, guardian, recovery and shadow components.
package database

import (
	"errors"
	"time"

	"github.com/TechitoonStudios/TechitoonGuardGo/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
)

var ErrStoreNotInitialized = errors.New("global data managers not initialized")

// ViolationStore persists per-(group, user, category) violation counters
type ViolationStore struct{}

// NewViolationStore returns the mongo-backed violation store
func NewViolationStore() *ViolationStore { return &ViolationStore{} }

// LoadAll returns every violation record; used to warm the ledger at boot
func (s *ViolationStore) LoadAll() ([]*models.ViolationRecord, error) {
	if GlobalViolationDM == nil {
		return nil, ErrStoreNotInitialized
	}
	return GlobalViolationDM.GetAll(bson.M{})
}

// Save upserts a violation record
func (s *ViolationStore) Save(rec *models.ViolationRecord) error {
	if GlobalViolationDM == nil {
		return ErrStoreNotInitialized
	}
	_, err := GlobalViolationDM.Set(bson.M{
		"group_id": rec.GroupID,
		"user_id":  rec.UserID,
		"category": rec.Category,
	}, rec)
	return err
}

// Delete removes a violation record
func (s *ViolationStore) Delete(groupID, userID string, category models.Category) error {
	if GlobalViolationDM == nil {
		return ErrStoreNotInitialized
	}
	return GlobalViolationDM.Delete(bson.M{
		"group_id": groupID,
		"user_id":  userID,
		"category": category,
	})
}

// BlacklistStore persists blacklist entries with a write-through cache
type BlacklistStore struct{}

// NewBlacklistStore returns the mongo-backed blacklist store
func NewBlacklistStore() *BlacklistStore { return &BlacklistStore{} }

// Add inserts an entry and updates the cache immediately
func (s *BlacklistStore) Add(entry *models.BlacklistEntry) error {
	if GlobalBlacklistDM == nil {
		return ErrStoreNotInitialized
	}
	_, err := GlobalBlacklistDM.Set(bson.M{
		"group_id": entry.GroupID,
		"user_id":  entry.UserID,
	}, entry)
	if err != nil {
		return err
	}
	GetBlacklistCache().Add(entry)
	return nil
}

// Remove deletes an entry and updates the cache immediately
func (s *BlacklistStore) Remove(groupID, userID string) error {
	if GlobalBlacklistDM == nil {
		return ErrStoreNotInitialized
	}
	err := GlobalBlacklistDM.Delete(bson.M{
		"group_id": groupID,
		"user_id":  userID,
	})
	if err != nil {
		return err
	}
	GetBlacklistCache().Remove(groupID, userID)
	return nil
}

// IsBlacklisted answers from the cache (no DB delay)
func (s *BlacklistStore) IsBlacklisted(groupID, userID string) bool {
	return GetBlacklistCache().IsBlacklisted(groupID, userID)
}

// ListByGroup returns the cached entries for a group
func (s *BlacklistStore) ListByGroup(groupID string) []*models.BlacklistEntry {
	return GetBlacklistCache().GetByGroup(groupID)
}

// InviteStore persists the last known invite code per group
type InviteStore struct{}

// NewInviteStore returns the mongo-backed invite store
func NewInviteStore() *InviteStore { return &InviteStore{} }

// Get returns the cached invite reference for a group, or nil when absent
func (s *InviteStore) Get(groupID string) (*models.InviteReference, error) {
	if GlobalInviteDM == nil {
		return nil, ErrStoreNotInitialized
	}
	return GlobalInviteDM.Get(bson.M{"group_id": groupID})
}

// Save upserts the invite reference for a group
func (s *InviteStore) Save(ref *models.InviteReference) error {
	if GlobalInviteDM == nil {
		return ErrStoreNotInitialized
	}
	_, err := GlobalInviteDM.Set(bson.M{"group_id": ref.GroupID}, ref)
	return err
}

// ShadowStore persists shadow messages for the anti-delete system
type ShadowStore struct{}

// NewShadowStore returns the mongo-backed shadow store
func NewShadowStore() *ShadowStore { return &ShadowStore{} }

// Get returns the shadow copy for (chat, message), or nil when absent
func (s *ShadowStore) Get(chatID, messageID string) (*models.ShadowMessage, error) {
	if GlobalShadowDM == nil {
		return nil, ErrStoreNotInitialized
	}
	return GlobalShadowDM.Get(bson.M{"chat_id": chatID, "message_id": messageID})
}

// Save upserts a shadow copy
func (s *ShadowStore) Save(msg *models.ShadowMessage) error {
	if GlobalShadowDM == nil {
		return ErrStoreNotInitialized
	}
	_, err := GlobalShadowDM.Set(bson.M{
		"chat_id":    msg.ChatID,
		"message_id": msg.MessageID,
	}, msg)
	return err
}

// DeleteOlderThan removes shadow copies stored before the cutoff
func (s *ShadowStore) DeleteOlderThan(cutoff time.Time) (int64, error) {
	if GlobalShadowDM == nil {
		return 0, ErrStoreNotInitialized
	}
	return GlobalShadowDM.DeleteMany(bson.M{"stored_at": bson.M{"$lt": cutoff}})
}

// SuperadminStore persists legitimate owner-initiated promotions
type SuperadminStore struct{}

// NewSuperadminStore returns the mongo-backed superadmin store
func NewSuperadminStore() *SuperadminStore { return &SuperadminStore{} }

// Save upserts a superadmin grant
func (s *SuperadminStore) Save(grant *models.SuperadminGrant) error {
	if GlobalSuperadminDM == nil {
		return ErrStoreNotInitialized
	}
	_, err := GlobalSuperadminDM.Set(bson.M{
		"group_id": grant.GroupID,
		"user_id":  grant.UserID,
	}, grant)
	return err
}

// IsGranted reports whether (group, user) holds a legitimate grant
func (s *SuperadminStore) IsGranted(groupID, userID string) bool {
	if GlobalSuperadminDM == nil {
		return false
	}
	grant, err := GlobalSuperadminDM.Get(bson.M{
		"group_id": groupID,
		"user_id":  userID,
	})
	return err == nil && grant != nil
}
