package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/tuition-api/database"
	"github.com/sahilchouksey/tuition-api/utils/response"
)

func HandleCheckHealth(c *fiber.Ctx, store database.Storage) error {
	if err := store.HealthCheck(); err != nil {
		return response.ServiceUnavailable(c, "Database is not reachable")
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
