package models

import "time"

// ScheduleStatus is the lifecycle state of a schedule record. Transitions only
// move forward: pending -> publishing -> published/failed, with the bounded
// retry loop returning publishing -> pending.
type ScheduleStatus string

const (
	ScheduleStatusPending    ScheduleStatus = "pending"
	ScheduleStatusPublishing ScheduleStatus = "publishing"
	ScheduleStatusPublished  ScheduleStatus = "published"
	ScheduleStatusFailed     ScheduleStatus = "failed"
)

// ScheduleRecord is one platform-specific, time-bound publish request tied to
// a content item.
type ScheduleRecord struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	UUID           string         `gorm:"type:varchar(36);uniqueIndex" json:"uuid"`
	UserID         uint           `gorm:"index" json:"user_id"`
	ContentID      uint           `gorm:"index" json:"content_id"`
	Platform       Platform       `gorm:"type:varchar(50);index" json:"platform"`
	Body           string         `gorm:"type:text" json:"body"`
	Title          string         `gorm:"type:varchar(255)" json:"title,omitempty"`
	Description    string         `gorm:"type:text" json:"description,omitempty"`
	AssetURL       string         `gorm:"type:varchar(512)" json:"asset_url,omitempty"`
	ScheduledTime  time.Time      `gorm:"index:idx_due,priority:2" json:"scheduled_time"`
	Status         ScheduleStatus `gorm:"type:varchar(20);default:'pending';index:idx_due,priority:1" json:"status"`
	Tries          int            `gorm:"default:0" json:"tries"`
	LastError      string         `gorm:"type:text" json:"last_error,omitempty"`
	ExternalPostID string         `gorm:"type:varchar(191)" json:"external_post_id,omitempty"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminal reports whether the record reached a final state.
func (r *ScheduleRecord) IsTerminal() bool {
	return r.Status == ScheduleStatusPublished || r.Status == ScheduleStatusFailed
}

// IsDue reports whether the record should be picked up at the given time.
func (r *ScheduleRecord) IsDue(now time.Time) bool {
	return r.Status == ScheduleStatusPending && !r.ScheduledTime.After(now)
}
