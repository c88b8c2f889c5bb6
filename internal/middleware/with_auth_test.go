package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cbc-grading-api/internal/middleware"
)

func withLocals(userID interface{}, role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if userID != nil {
			c.Locals("user_id", userID)
		}
		if role != "" {
			c.Locals("user_role", role)
		}
		return c.Next()
	}
}

func TestWithAuthTeacherAdmitsTeachersAndAdmins(t *testing.T) {
	for _, role := range []string{"Teacher", "admin"} {
		app := fiber.New()
		app.Use(withLocals(uint(9), role))
		app.Get("/", middleware.WithAuth(func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusNoContent)
		}, middleware.AuthOptions{Role: middleware.AuthRoleTeacher}))

		require.Equal(t, fiber.StatusNoContent, perform(t, app).StatusCode, role)
	}
}

func TestWithAuthTeacherDeniesStudents(t *testing.T) {
	app := fiber.New()
	app.Use(withLocals(uint(10), "student"))
	app.Get("/", middleware.WithAuth(func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	}, middleware.AuthOptions{Role: middleware.AuthRoleTeacher}))

	require.Equal(t, fiber.StatusForbidden, perform(t, app).StatusCode)
}

func TestWithAuthRoleRequiresUser(t *testing.T) {
	app := fiber.New()
	app.Get("/", middleware.WithAuth(func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}, middleware.AuthOptions{Role: middleware.AuthRoleParent}))

	require.Equal(t, fiber.StatusUnauthorized, perform(t, app).StatusCode)
}

func TestWithAuthAnyRequiresUserWhenAsked(t *testing.T) {
	app := fiber.New()
	app.Get("/", middleware.WithAuth(func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}, middleware.AuthOptions{Role: middleware.AuthRoleAny, RequireUser: true}))

	require.Equal(t, fiber.StatusUnauthorized, perform(t, app).StatusCode)
}

func TestWithAuthAnyAllowsAnonymousByDefault(t *testing.T) {
	app := fiber.New()
	app.Get("/", middleware.WithAuth(func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}, middleware.AuthOptions{}))

	require.Equal(t, fiber.StatusOK, perform(t, app).StatusCode)
}

func TestRateLimitRejectsBurstPerTeacher(t *testing.T) {
	app := fiber.New()
	app.Use(withLocals(uint(9), "teacher"))
	app.Post("/", middleware.RateLimit("commit", 2, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/", nil), -1)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}

func TestCorrelationIDEchoesOrGenerates(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(middleware.CorrelationIDFromContext(c.UserContext()))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middleware.CorrelationHeader, "grading-123")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, "grading-123", resp.Header.Get(middleware.CorrelationHeader))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	require.Len(t, resp.Header.Get(middleware.CorrelationHeader), 36)
}

func perform(t *testing.T, app *fiber.App) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}
