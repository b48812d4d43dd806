package controllers

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rr7r44795y-lgtm/crosspost/app/models"
	"github.com/rr7r44795y-lgtm/crosspost/app/repository"
	"github.com/rr7r44795y-lgtm/crosspost/internal/pkg/platforms"
)

// MinLeadTime is the shortest allowed gap between creation and the scheduled
// publication time.
const MinLeadTime = 60 * time.Second

type createScheduleRequest struct {
	ContentID         uint                       `json:"content_id"`
	UnifiedText       string                     `json:"unified_text"`
	PlatformTexts     map[string]json.RawMessage `json:"platform_texts"`
	ScheduledTimes    map[string]time.Time       `json:"scheduled_times"`
	SelectedPlatforms []string                   `json:"selected_platforms"`
	AssetURL          string                     `json:"asset_url"`
}

// videoDraftText is the structured payload the video draft platform expects in
// platform_texts instead of a plain string.
type videoDraftText struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// requestError carries the HTTP status a rejected creation request maps to.
type requestError struct {
	status  int
	message string
}

// buildScheduleRecords validates a creation request as a whole and returns the
// rows to insert. All-or-nothing: the first violation rejects the entire
// request and nothing is persisted.
func buildScheduleRecords(userID uint, req createScheduleRequest, registry *platforms.Registry, now time.Time) ([]*models.ScheduleRecord, *requestError) {
	if len(req.SelectedPlatforms) == 0 {
		return nil, &requestError{fiber.StatusBadRequest, "no platforms selected"}
	}

	seenPlatforms := make(map[models.Platform]bool, len(req.SelectedPlatforms))
	seenTimes := make(map[time.Time]models.Platform, len(req.SelectedPlatforms))
	records := make([]*models.ScheduleRecord, 0, len(req.SelectedPlatforms))

	for _, raw := range req.SelectedPlatforms {
		platform, err := models.ParsePlatform(raw)
		if err != nil {
			return nil, &requestError{fiber.StatusBadRequest, err.Error()}
		}
		if seenPlatforms[platform] {
			return nil, &requestError{fiber.StatusBadRequest, "platform " + raw + " selected twice"}
		}
		seenPlatforms[platform] = true

		when, ok := req.ScheduledTimes[raw]
		if !ok {
			return nil, &requestError{fiber.StatusBadRequest, "missing scheduled time for " + raw}
		}
		when = when.UTC().Truncate(time.Second)
		if when.Before(now.Add(MinLeadTime)) {
			return nil, &requestError{fiber.StatusBadRequest, "scheduled time for " + raw + " must be at least 60 seconds in the future"}
		}
		if other, dup := seenTimes[when]; dup {
			return nil, &requestError{fiber.StatusBadRequest, "scheduled times for " + other.String() + " and " + raw + " must be distinct"}
		}
		seenTimes[when] = platform

		post, reqErr := resolvePlatformText(platform, req)
		if reqErr != nil {
			return nil, reqErr
		}

		adapter, err := registry.Get(platform)
		if err != nil {
			return nil, &requestError{fiber.StatusBadRequest, err.Error()}
		}
		if err := adapter.Validate(post); err != nil {
			return nil, &requestError{fiber.StatusBadRequest, err.Error()}
		}

		records = append(records, &models.ScheduleRecord{
			UUID:          uuid.New().String(),
			UserID:        userID,
			ContentID:     req.ContentID,
			Platform:      platform,
			Body:          post.Body,
			Title:         post.Title,
			Description:   post.Description,
			AssetURL:      post.AssetURL,
			ScheduledTime: when,
			Status:        models.ScheduleStatusPending,
		})
	}

	return records, nil
}

// resolvePlatformText picks the per-platform payload, falling back to the
// unified text for the plain-text platforms. Missing structured fields for the
// video draft reject with 422.
func resolvePlatformText(platform models.Platform, req createScheduleRequest) (platforms.PostContent, *requestError) {
	raw, hasOverride := req.PlatformTexts[platform.String()]

	if platform == models.PlatformYouTubeDraft {
		var draft videoDraftText
		if !hasOverride || json.Unmarshal(raw, &draft) != nil {
			return platforms.PostContent{}, &requestError{fiber.StatusUnprocessableEntity, "youtube_draft requires structured {title, description}"}
		}
		if strings.TrimSpace(draft.Title) == "" || strings.TrimSpace(draft.Description) == "" {
			return platforms.PostContent{}, &requestError{fiber.StatusUnprocessableEntity, "youtube_draft requires both title and description"}
		}
		return platforms.PostContent{
			Title:       draft.Title,
			Description: draft.Description,
			AssetURL:    req.AssetURL,
		}, nil
	}

	text := req.UnifiedText
	if hasOverride {
		if json.Unmarshal(raw, &text) != nil {
			return platforms.PostContent{}, &requestError{fiber.StatusBadRequest, "platform text for " + platform.String() + " must be a string"}
		}
	}
	return platforms.PostContent{Body: text, AssetURL: req.AssetURL}, nil
}

// HandleCreateSchedules registers publish times for a content item across the
// selected platforms.
func HandleCreateSchedules(c *fiber.Ctx) error {
	userID := currentUserID(c)

	var req createScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return apiError(c, fiber.StatusBadRequest, "invalid request body")
	}

	repos := repository.GetGlobalFactory().GetRepositories()

	content, err := repos.Content.GetByID(req.ContentID)
	if err != nil {
		return apiError(c, fiber.StatusBadRequest, "content item not found")
	}
	if content.UserID != userID {
		return apiError(c, fiber.StatusForbidden, "content item belongs to another user")
	}

	records, reqErr := buildScheduleRecords(userID, req, adapterRegistry, time.Now())
	if reqErr != nil {
		return apiError(c, reqErr.status, reqErr.message)
	}

	if err := repos.Schedule.CreateAll(records); err != nil {
		// Distinctness holds across requests, not just within this batch
		if errors.Is(err, repository.ErrScheduleTimeConflict) {
			return apiError(c, fiber.StatusBadRequest, err.Error())
		}
		return apiError(c, fiber.StatusInternalServerError, "could not persist schedules")
	}

	out := make([]fiber.Map, 0, len(records))
	for _, rec := range records {
		out = append(out, fiber.Map{
			"uuid":           rec.UUID,
			"platform":       rec.Platform,
			"scheduled_time": rec.ScheduledTime,
			"status":         rec.Status,
		})
	}
	return c.JSON(fiber.Map{"schedules": out})
}

// HandleListSchedules returns the caller's schedule records with their current
// status and last error.
func HandleListSchedules(c *fiber.Ctx) error {
	userID := currentUserID(c)

	records, err := repository.GetGlobalFactory().GetRepositories().Schedule.ListByUser(userID)
	if err != nil {
		return apiError(c, fiber.StatusInternalServerError, "could not list schedules")
	}
	return c.JSON(fiber.Map{"schedules": records})
}

// HandleDeleteSchedule removes a still-pending record. Claimed, published or
// failed records are kept for history.
func HandleDeleteSchedule(c *fiber.Ctx) error {
	userID := currentUserID(c)
	recordUUID := c.Params("uuid")

	repos := repository.GetGlobalFactory().GetRepositories()

	rec, err := repos.Schedule.GetByUUID(recordUUID)
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && rec.UserID != userID) {
		// Existence is not leaked to other users
		return apiError(c, fiber.StatusNotFound, "schedule not found")
	}
	if err != nil {
		return apiError(c, fiber.StatusInternalServerError, "could not load schedule")
	}

	deleted, err := repos.Schedule.DeletePending(recordUUID, userID)
	if err != nil {
		return apiError(c, fiber.StatusInternalServerError, "could not delete schedule")
	}
	if !deleted {
		return apiError(c, fiber.StatusConflict, "only pending schedules can be deleted")
	}
	return c.JSON(fiber.Map{"status": "deleted"})
}
