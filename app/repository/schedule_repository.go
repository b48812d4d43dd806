package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rr7r44795y-lgtm/crosspost/app/models"
)

// ErrScheduleTimeConflict rejects a creation whose scheduled time collides
// with a row that already exists for the same content item.
var ErrScheduleTimeConflict = errors.New("scheduled time already taken for this content item")

// scheduleRepository implements the ScheduleRepository interface
type scheduleRepository struct {
	db *gorm.DB
}

// NewScheduleRepository creates a new schedule repository instance
func NewScheduleRepository(db *gorm.DB) ScheduleRepository {
	return &scheduleRepository{db: db}
}

// CreateAll inserts all records in one transaction; if any insert fails or a
// scheduled time collides with an active row of the same content item, no
// rows persist. The existing rows are locked for the duration of the check so
// concurrent creations for one content item serialize.
func (r *scheduleRepository) CreateAll(records []*models.ScheduleRecord) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		var existing []models.ScheduleRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("content_id = ? AND status IN ?", records[0].ContentID,
				[]models.ScheduleStatus{models.ScheduleStatusPending, models.ScheduleStatusPublishing}).
			Find(&existing).Error
		if err != nil {
			return err
		}
		if err := checkScheduleTimeConflicts(existing, records); err != nil {
			return err
		}

		for _, rec := range records {
			if err := tx.Create(rec).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// checkScheduleTimeConflicts enforces distinct scheduled times per content
// item across requests, not just within one creation batch. Terminal rows do
// not block: a failed schedule may be recreated in the same slot.
func checkScheduleTimeConflicts(existing []models.ScheduleRecord, records []*models.ScheduleRecord) error {
	taken := make(map[time.Time]models.Platform, len(existing))
	for _, rec := range existing {
		if !rec.IsTerminal() {
			taken[rec.ScheduledTime.UTC()] = rec.Platform
		}
	}
	for _, rec := range records {
		if other, conflict := taken[rec.ScheduledTime.UTC()]; conflict {
			return fmt.Errorf("%w: %s already scheduled at %s",
				ErrScheduleTimeConflict, other, rec.ScheduledTime.Format(time.RFC3339))
		}
	}
	return nil
}

func (r *scheduleRepository) GetByID(id uint) (*models.ScheduleRecord, error) {
	var rec models.ScheduleRecord
	err := r.db.First(&rec, id).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *scheduleRepository) GetByUUID(uuid string) (*models.ScheduleRecord, error) {
	var rec models.ScheduleRecord
	err := r.db.Where("uuid = ?", uuid).First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *scheduleRepository) ListByUser(userID uint) ([]models.ScheduleRecord, error) {
	var recs []models.ScheduleRecord
	err := r.db.Where("user_id = ?", userID).Order("scheduled_time ASC").Find(&recs).Error
	return recs, err
}

func (r *scheduleRepository) ListByContent(contentID uint) ([]models.ScheduleRecord, error) {
	var recs []models.ScheduleRecord
	err := r.db.Where("content_id = ?", contentID).Order("scheduled_time ASC").Find(&recs).Error
	return recs, err
}

func (r *scheduleRepository) FindDue(now time.Time, limit int) ([]models.ScheduleRecord, error) {
	var recs []models.ScheduleRecord
	err := r.db.
		Where("status = ? AND scheduled_time <= ?", models.ScheduleStatusPending, now).
		Order("scheduled_time ASC").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}

// Claim is the mutual-exclusion primitive of the publish pipeline: a
// conditional update whose affected-row count decides ownership. The dueness
// predicate guards against scan snapshots gone stale — a record another worker
// requeued with backoff in the meantime is pending again but no longer due,
// and must not be re-claimed until its new time arrives. The returned row is
// re-read after the claim so the caller works with current tries and
// scheduled_time, never the scan snapshot.
func (r *scheduleRepository) Claim(id uint, now time.Time) (*models.ScheduleRecord, error) {
	res := r.db.Model(&models.ScheduleRecord{}).
		Where("id = ? AND status = ? AND scheduled_time <= ?", id, models.ScheduleStatusPending, now).
		Update("status", models.ScheduleStatusPublishing)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected != 1 {
		return nil, nil
	}

	var rec models.ScheduleRecord
	if err := r.db.First(&rec, id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *scheduleRepository) MarkPublished(id uint, externalPostID string) error {
	return r.db.Model(&models.ScheduleRecord{}).
		Where("id = ? AND status = ?", id, models.ScheduleStatusPublishing).
		Updates(map[string]interface{}{
			"status":           models.ScheduleStatusPublished,
			"external_post_id": externalPostID,
			"last_error":       "",
		}).Error
}

func (r *scheduleRepository) Requeue(id uint, tries int, nextAttempt time.Time, lastError string) error {
	return r.db.Model(&models.ScheduleRecord{}).
		Where("id = ? AND status = ?", id, models.ScheduleStatusPublishing).
		Updates(map[string]interface{}{
			"status":         models.ScheduleStatusPending,
			"tries":          tries,
			"scheduled_time": nextAttempt,
			"last_error":     lastError,
		}).Error
}

func (r *scheduleRepository) MarkFailed(id uint, tries int, lastError string) error {
	return r.db.Model(&models.ScheduleRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     models.ScheduleStatusFailed,
			"tries":      tries,
			"last_error": lastError,
		}).Error
}

func (r *scheduleRepository) FindStuck(before time.Time) ([]models.ScheduleRecord, error) {
	var recs []models.ScheduleRecord
	err := r.db.
		Where("status = ? AND updated_at < ?", models.ScheduleStatusPublishing, before).
		Find(&recs).Error
	return recs, err
}

func (r *scheduleRepository) DeletePending(uuid string, userID uint) (bool, error) {
	res := r.db.
		Where("uuid = ? AND user_id = ? AND status = ?", uuid, userID, models.ScheduleStatusPending).
		Delete(&models.ScheduleRecord{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
