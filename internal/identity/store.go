package identity

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"

	"github.com/kryote/support-chat/internal/models"
)

// Store is the identity-side persistence surface: user lookup and creation.
// Session reassignment lives in Migrator because it needs a transaction
// spanning both tables.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func NewUserID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), ulid.DefaultEntropy())
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetUserByAnonymousToken(ctx context.Context, token string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).
		First(&u, "anonymous_token = ?", token).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetUserByExternalIdentityID(ctx context.Context, subject string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).
		First(&u, "external_identity_id = ?", subject).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	return s.db.WithContext(ctx).Create(u).Error
}

func (s *Store) UpdateUserEmail(ctx context.Context, id, email string) error {
	return s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Update("email", email).Error
}
