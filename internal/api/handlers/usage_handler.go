package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"postpilot/internal/models"
	"postpilot/internal/service"
)

type UsageHandler struct {
	us service.UsageService
}

func NewUsageHandler(us service.UsageService) *UsageHandler {
	return &UsageHandler{us: us}
}

func (h *UsageHandler) GetUsage(c *fiber.Ctx) error {
	userID := GetUserID(c)

	limit, err := h.us.CheckLimit(c.Context(), userID, models.UsageActionPosts)
	if err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch usage",
		})
	}

	return c.Status(fiber.StatusOK).JSON(limit)
}
