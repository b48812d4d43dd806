package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rr7r44795y-lgtm/crosspost/app/models"
	"github.com/rr7r44795y-lgtm/crosspost/app/repository"
)

type createContentRequest struct {
	Body string `json:"body"`
}

// HandleCreateContent stores a new content item the user can later schedule.
func HandleCreateContent(c *fiber.Ctx) error {
	userID := currentUserID(c)

	var req createContentRequest
	if err := c.BodyParser(&req); err != nil {
		return apiError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Body) == "" {
		return apiError(c, fiber.StatusBadRequest, "content body is required")
	}

	item := &models.ContentItem{
		UUID:   uuid.New().String(),
		UserID: userID,
		Body:   req.Body,
	}
	if err := repository.GetGlobalFactory().GetRepositories().Content.Create(item); err != nil {
		return apiError(c, fiber.StatusInternalServerError, "could not store content")
	}

	return c.Status(fiber.StatusCreated).JSON(item)
}

// HandleListContents returns the caller's content items.
func HandleListContents(c *fiber.Ctx) error {
	userID := currentUserID(c)

	items, err := repository.GetGlobalFactory().GetRepositories().Content.ListByUser(userID)
	if err != nil {
		return apiError(c, fiber.StatusInternalServerError, "could not list content")
	}
	return c.JSON(fiber.Map{"contents": items})
}

// HandleGetContent returns one content item by uuid, owner only.
func HandleGetContent(c *fiber.Ctx) error {
	userID := currentUserID(c)

	item, err := repository.GetGlobalFactory().GetRepositories().Content.GetByUUID(c.Params("uuid"))
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && item.UserID != userID) {
		return apiError(c, fiber.StatusNotFound, "content not found")
	}
	if err != nil {
		return apiError(c, fiber.StatusInternalServerError, "could not load content")
	}
	return c.JSON(item)
}
