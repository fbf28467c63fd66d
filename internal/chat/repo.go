package chat

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreateSession(ctx context.Context, s *Session) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *Repo) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var s Session
	if err := r.db.WithContext(ctx).
		Where("id = ?", sessionID).
		First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSessionsByOwner returns the owner's sessions newest-activity-first.
func (r *Repo) ListSessionsByOwner(ctx context.Context, ownerUserID string, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	var sessions []Session
	if err := r.db.WithContext(ctx).
		Where("owner_user_id = ?", ownerUserID).
		Order("updated_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

// TouchSession bumps updated_at so the recent-sessions ordering reflects
// activity even when a turn later degrades.
func (r *Repo) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&Session{}).
		Where("id = ?", sessionID).
		Update("updated_at", at).Error
}

// SetTitleIfNull assigns the title only when none is set yet, so overlapping
// turns from the same session cannot double-write it. Reports whether the
// title was written.
func (r *Repo) SetTitleIfNull(ctx context.Context, sessionID, title string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Session{}).
		Where("id = ? AND title IS NULL", sessionID).
		Updates(map[string]any{
			"title":      title,
			"updated_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *Repo) InsertMessage(ctx context.Context, m *Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// ListMessagesBefore returns messages in DESC id order (newest -> oldest),
// filtered to id < beforeID when a cursor is supplied (beforeID > 0).
func (r *Repo) ListMessagesBefore(ctx context.Context, sessionID string, beforeID uint64, limit int) ([]Message, error) {
	q := r.db.WithContext(ctx).
		Where("chat_session_id = ?", sessionID).
		Order("id DESC").
		Limit(limit)

	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}

	var msgs []Message
	if err := q.Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// Turn job CRUD.

func (r *Repo) CreateTurnJob(ctx context.Context, job *TurnJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *Repo) GetTurnJob(ctx context.Context, id string) (*TurnJob, error) {
	var j TurnJob
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *Repo) GetTurnJobByUserAndIdempotencyKey(ctx context.Context, userID, key string) (*TurnJob, error) {
	var j TurnJob
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		First(&j).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

// CreateTurnJobOrGetExisting tries to create a job; if (user_id,
// idempotency_key) already exists it returns the existing job instead. The
// bool reports whether a new job was created.
func (r *Repo) CreateTurnJobOrGetExisting(ctx context.Context, job *TurnJob) (*TurnJob, bool, error) {
	if job.IdempotencyKey == nil || *job.IdempotencyKey == "" {
		job.IdempotencyKey = nil
		if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
			return nil, false, err
		}
		return job, true, nil
	}

	err := r.db.WithContext(ctx).Create(job).Error
	if err == nil {
		return job, true, nil
	}

	existing, getErr := r.GetTurnJobByUserAndIdempotencyKey(ctx, job.UserID, *job.IdempotencyKey)
	if getErr == nil {
		return existing, false, nil
	}
	if errors.Is(getErr, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	return nil, false, getErr
}

// MarkTurnJobRunning claims a queued job. Reports false when the job was
// already claimed, so a redelivered queue message cannot re-run the turn.
func (r *Repo) MarkTurnJobRunning(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&TurnJob{}).
		Where("id = ? AND status = ?", id, TurnJobQueued).
		Update("status", TurnJobRunning)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *Repo) MarkTurnJobSucceeded(ctx context.Context, id string, assistantMsgID uint64) error {
	return r.db.WithContext(ctx).Model(&TurnJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            TurnJobSucceeded,
			"result_message_id": assistantMsgID,
			"error":             nil,
		}).Error
}

func (r *Repo) MarkTurnJobFailed(ctx context.Context, id string, errMsg string) error {
	return r.db.WithContext(ctx).Model(&TurnJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            TurnJobFailed,
			"error":             errMsg,
			"result_message_id": nil,
		}).Error
}
