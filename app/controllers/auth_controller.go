package controllers

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/rr7r44795y-lgtm/crosspost/app/models"
	"github.com/rr7r44795y-lgtm/crosspost/app/repository"
	"github.com/rr7r44795y-lgtm/crosspost/internal/pkg/middleware"
	"github.com/rr7r44795y-lgtm/crosspost/internal/pkg/session"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleRegister creates a new user account.
func HandleRegister(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return apiError(c, fiber.StatusBadRequest, "invalid request body")
	}

	user, err := models.CreateUser(req.Name, req.Email, req.Password)
	if err != nil {
		var vErrs validator.ValidationErrors
		if errors.As(err, &vErrs) {
			return apiError(c, fiber.StatusBadRequest, "name, valid email and a password of at least 6 characters are required")
		}
		return apiError(c, fiber.StatusInternalServerError, "registration failed")
	}

	userRepo := repository.GetGlobalFactory().GetRepositories().User
	if _, err := userRepo.GetByEmail(req.Email); err == nil {
		return apiError(c, fiber.StatusConflict, "email already registered")
	}
	if err := userRepo.Create(user); err != nil {
		// The pre-check races with concurrent registrations; the unique index
		// on email is the actual guarantee
		if repository.IsDuplicateKey(err) {
			return apiError(c, fiber.StatusConflict, "email already registered")
		}
		return apiError(c, fiber.StatusInternalServerError, "registration failed")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":    user.ID,
		"name":  user.Name,
		"email": user.Email,
	})
}

// HandleLogin verifies credentials and opens a session.
func HandleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return apiError(c, fiber.StatusBadRequest, "invalid request body")
	}

	userRepo := repository.GetGlobalFactory().GetRepositories().User
	user, err := userRepo.GetByEmail(req.Email)
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !user.CheckPassword(req.Password)) {
		// One message for both cases, existence of accounts is not leaked
		return apiError(c, fiber.StatusUnauthorized, "invalid credentials")
	}
	if err != nil {
		return apiError(c, fiber.StatusInternalServerError, "login failed")
	}
	if !user.IsActive() {
		return apiError(c, fiber.StatusForbidden, "account disabled")
	}

	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return apiError(c, fiber.StatusInternalServerError, "session init failed")
	}
	sess.Set(middleware.SessionAuthKey, true)
	sess.Set(middleware.SessionUserIDKey, user.ID)
	if err := sess.Save(); err != nil {
		return apiError(c, fiber.StatusInternalServerError, "session save failed")
	}

	now := time.Now()
	user.LastLoginAt = &now
	_ = userRepo.Update(user)

	return c.JSON(fiber.Map{
		"id":    user.ID,
		"name":  user.Name,
		"email": user.Email,
	})
}

// HandleLogout destroys the current session.
func HandleLogout(c *fiber.Ctx) error {
	sess, err := session.GetSessionStore().Get(c)
	if err == nil {
		_ = sess.Destroy()
	}
	return c.JSON(fiber.Map{"status": "logged_out"})
}
