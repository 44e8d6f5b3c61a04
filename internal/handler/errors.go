package handler

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"classroom-backend/internal/apperr"
)

// respondError 도메인 오류를 HTTP 상태로 변환
func respondError(c *fiber.Ctx, logger *slog.Logger, err error) error {
	var (
		validation *apperr.ValidationError
		forbidden  *apperr.AuthorizationError
		notFound   *apperr.NotFoundError
	)

	switch {
	case errors.As(err, &validation):
		body := fiber.Map{"error": validation.Error(), "code": "validation"}
		if validation.Field != "" {
			body["fields"] = map[string]string{validation.Field: validation.Message}
		}
		return c.Status(fiber.StatusBadRequest).JSON(body)
	case errors.As(err, &forbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": forbidden.Error(), "code": "forbidden"})
	case errors.As(err, &notFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": notFound.Error(), "code": "not_found"})
	default:
		logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error", "code": "internal"})
	}
}

// badRequest 경로/쿼리 파라미터 오류
func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": message, "code": "validation"})
}
