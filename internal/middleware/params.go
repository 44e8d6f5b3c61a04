package middleware

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// RequireMeetingID :meetingId 가 UUID 형식인지 확인, 아니면 DB 조회 없이 404
func RequireMeetingID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("meetingId")
		if _, err := uuid.Parse(id); err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "meeting " + id + " not found",
				"code":  "not_found",
			})
		}
		c.Locals("meetingID", id)
		return c.Next()
	}
}

// RequireClassroomID :classroomId 를 양의 정수로 파싱해 컨텍스트에 저장
func RequireClassroomID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Params("classroomId"), 10, 64)
		if err != nil || id <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid classroom ID",
				"code":  "validation",
			})
		}
		c.Locals("classroomID", id)
		return c.Next()
	}
}
