package identity

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/kryote/support-chat/internal/chat"
	"github.com/kryote/support-chat/internal/models"
)

// Migrator moves an anonymous visitor's chat history onto their authenticated
// identity the first time they sign in. One all-or-nothing transaction: claim
// the anonymous row, then reassign its sessions. Messages reference sessions,
// not users, so they need no writes.
type Migrator struct {
	db    *gorm.DB
	group singleflight.Group
}

func NewMigrator(db *gorm.DB) *Migrator {
	return &Migrator{db: db}
}

// Migrate reassigns every chat session owned by anonUserID to authUserID and
// marks the anonymous row processed (is_anonymous=false; the row is retained
// for audit). Safe to call twice: the claim update matches zero rows on the
// second run and the transaction commits as a no-op. In-process duplicate
// logins collapse onto one flight keyed by the anonymous user id.
func (m *Migrator) Migrate(ctx context.Context, anonUserID, authUserID string) error {
	_, err, _ := m.group.Do(anonUserID, func() (any, error) {
		return nil, m.migrate(ctx, anonUserID, authUserID)
	})
	return err
}

func (m *Migrator) migrate(ctx context.Context, anonUserID, authUserID string) error {
	now := time.Now()
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Claim doubles as the idempotency guard: a concurrent or repeated
		// migration finds is_anonymous already false and reassigns nothing.
		claim := tx.Model(&models.User{}).
			Where("id = ? AND is_anonymous = ?", anonUserID, true).
			Updates(map[string]any{
				"is_anonymous": false,
				"updated_at":   now,
			})
		if claim.Error != nil {
			return claim.Error
		}
		if claim.RowsAffected == 0 {
			return nil
		}

		return tx.Model(&chat.Session{}).
			Where("owner_user_id = ?", anonUserID).
			Updates(map[string]any{
				"owner_user_id": authUserID,
				"updated_at":    now,
			}).Error
	})
}
