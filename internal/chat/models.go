package chat

import (
	"time"

	"gorm.io/datatypes"

	"github.com/kryote/support-chat/internal/models"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Session is one support conversation. Ownership is exclusive; only identity
// migration ever changes OwnerUserID. Title is written once, by the first
// completed turn.
type Session struct {
	ID          string      `gorm:"primaryKey;size:26" json:"session_id"`
	OwnerUserID string      `gorm:"size:26;index;not null" json:"-"`
	Owner       models.User `gorm:"foreignKey:OwnerUserID;constraint:OnDelete:CASCADE" json:"-"`
	Title       *string     `gorm:"size:191" json:"title"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `gorm:"index" json:"updated_at"`
}

func (Session) TableName() string { return "chat_sessions" }

// Message is append-only. The auto-increment id is strictly increasing with
// insert order, which is what makes it usable as a keyset cursor.
type Message struct {
	ID            uint64         `gorm:"primaryKey;autoIncrement;index:idx_messages_session_id,priority:2" json:"id"`
	ChatSessionID string         `gorm:"size:26;not null;index:idx_messages_session_id,priority:1" json:"-"`
	Session       Session        `gorm:"foreignKey:ChatSessionID;constraint:OnDelete:CASCADE" json:"-"`
	Role          string         `gorm:"size:16;not null" json:"role"`
	Content       string         `gorm:"type:text;not null" json:"content"`
	Reasoning     *string        `gorm:"type:text" json:"reasoning,omitempty"`
	ContextUsed   datatypes.JSON `json:"context_used,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

func (Message) TableName() string { return "messages" }

type TurnJobStatus string

const (
	TurnJobQueued    TurnJobStatus = "queued"
	TurnJobRunning   TurnJobStatus = "running"
	TurnJobSucceeded TurnJobStatus = "succeeded"
	TurnJobFailed    TurnJobStatus = "failed"
)

// TurnJob is the durable record of an asynchronously submitted turn.
type TurnJob struct {
	ID string `gorm:"primaryKey;size:26" json:"job_id"`

	UserID        string `gorm:"size:26;not null;index:uniq_turn_jobs_user_idempo,unique,priority:1" json:"-"`
	ChatSessionID string `gorm:"size:26;index;not null" json:"session_id"`
	UserText      string `gorm:"type:text;not null" json:"-"`

	IdempotencyKey *string `gorm:"size:128;index:uniq_turn_jobs_user_idempo,unique,priority:2" json:"-"`

	Status TurnJobStatus `gorm:"size:16;index;not null" json:"status"`

	// Filled when succeeded.
	ResultMessageID *uint64 `gorm:"index" json:"result_message_id,omitempty"`

	// Filled when failed.
	Error *string `gorm:"type:text" json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (TurnJob) TableName() string { return "turn_jobs" }
