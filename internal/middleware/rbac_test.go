package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func roleApp(userID interface{}, role string) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if userID != nil {
			c.Locals("user_id", userID)
		}
		if role != "" {
			c.Locals("user_role", role)
		}
		return c.Next()
	})
	app.Use(RequireRole(AuthRoleTeacher, AuthRoleAdmin))
	app.Get("/grading", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func requestStatus(t *testing.T, app *fiber.App) int {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/grading", nil))
	require.NoError(t, err)
	return resp.StatusCode
}

func TestRequireRoleAllowsTeachersAndAdmins(t *testing.T) {
	require.Equal(t, fiber.StatusOK, requestStatus(t, roleApp(uint(9), "Teacher")))
	require.Equal(t, fiber.StatusOK, requestStatus(t, roleApp(uint(1), "admin")))
}

func TestRequireRoleRejectsOtherRoles(t *testing.T) {
	require.Equal(t, fiber.StatusForbidden, requestStatus(t, roleApp(uint(3), "student")))
	require.Equal(t, fiber.StatusForbidden, requestStatus(t, roleApp(uint(3), "")))
}

func TestRequireRoleRejectsAnonymous(t *testing.T) {
	require.Equal(t, fiber.StatusUnauthorized, requestStatus(t, roleApp(nil, "teacher")))
}
