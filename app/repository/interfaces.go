package repository

import (
	"time"

	"github.com/rr7r44795y-lgtm/crosspost/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	Update(user *models.User) error
}

// ContentRepository defines the interface for content item operations
type ContentRepository interface {
	Create(item *models.ContentItem) error
	GetByID(id uint) (*models.ContentItem, error)
	GetByUUID(uuid string) (*models.ContentItem, error)
	ListByUser(userID uint) ([]models.ContentItem, error)
}

// ScheduleRepository defines the interface for schedule record operations.
// Claim, Requeue, MarkPublished and MarkFailed implement the forward-only
// state machine with conditional updates so concurrent pollers cannot process
// the same record twice.
type ScheduleRepository interface {
	// CreateAll inserts the batch all-or-nothing and rejects with
	// ErrScheduleTimeConflict when a time collides with an active row of the
	// same content item.
	CreateAll(records []*models.ScheduleRecord) error
	GetByID(id uint) (*models.ScheduleRecord, error)
	GetByUUID(uuid string) (*models.ScheduleRecord, error)
	ListByUser(userID uint) ([]models.ScheduleRecord, error)
	ListByContent(contentID uint) ([]models.ScheduleRecord, error)

	// FindDue returns pending records whose scheduled time has passed.
	FindDue(now time.Time, limit int) ([]models.ScheduleRecord, error)
	// Claim transitions a due pending record to publishing and returns the
	// freshly claimed row; nil means another worker won or the record is no
	// longer due (e.g. requeued with backoff after the caller's scan).
	Claim(id uint, now time.Time) (*models.ScheduleRecord, error)
	// MarkPublished transitions publishing -> published and clears last_error.
	MarkPublished(id uint, externalPostID string) error
	// Requeue transitions publishing -> pending with the retry bookkeeping.
	Requeue(id uint, tries int, nextAttempt time.Time, lastError string) error
	// MarkFailed transitions a claimed record to its terminal failed state.
	MarkFailed(id uint, tries int, lastError string) error

	// FindStuck returns records sitting in publishing since before the given
	// time (crashed worker); recovery counts against the retry budget.
	FindStuck(before time.Time) ([]models.ScheduleRecord, error)

	// DeletePending removes a still-pending record owned by the user.
	DeletePending(uuid string, userID uint) (bool, error)
}

// SocialAccountRepository defines the interface for stored OAuth credentials.
// Token mutation uses the same conditional-update discipline as the scheduler
// claim so a concurrently disabled account is never refreshed.
type SocialAccountRepository interface {
	GetByUserAndPlatform(userID uint, platform models.Platform) (*models.SocialAccount, error)
	ListByUser(userID uint) ([]models.SocialAccount, error)

	// Upsert stores fresh credentials after an OAuth callback and clears the
	// disabled flag (re-authorization re-enables the account).
	Upsert(account *models.SocialAccount) error
	// UpdateTokens persists refreshed credentials; false if the account was
	// disabled or removed in the meantime.
	UpdateTokens(id uint, accessTokenEnc, refreshTokenEnc string, expiresAt *time.Time) (bool, error)
	// Disable soft-deletes the credential set, clearing stored tokens.
	Disable(id uint) (bool, error)
}
