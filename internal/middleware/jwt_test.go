package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "grading-secret"

func signToken(t *testing.T, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func jwtApp() *fiber.App {
	app := fiber.New()
	app.Use(JWTProtected(testSecret))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"id": c.Locals("user_id"), "role": c.Locals("user_role")})
	})
	return app
}

func callWithToken(t *testing.T, app *fiber.App, header string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestJWTProtectedSetsTeacherLocals(t *testing.T) {
	app := jwtApp()
	token := signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "9",
		"role": "Teacher",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	resp := callWithToken(t, app, "bearer "+token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestJWTProtectedRejectsBadTokens(t *testing.T) {
	app := jwtApp()

	require.Equal(t, fiber.StatusUnauthorized, callWithToken(t, app, "").StatusCode)
	require.Equal(t, fiber.StatusUnauthorized, callWithToken(t, app, "Token abc").StatusCode)

	expired := signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{"sub": 9, "exp": time.Now().Add(-time.Hour).Unix()})
	require.Equal(t, fiber.StatusUnauthorized, callWithToken(t, app, "Bearer "+expired).StatusCode)

	noSubject := signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{"role": "teacher"})
	require.Equal(t, fiber.StatusUnauthorized, callWithToken(t, app, "Bearer "+noSubject).StatusCode)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": 9}).SignedString([]byte("other"))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, callWithToken(t, app, "Bearer "+forged).StatusCode)
}

func TestExtractUserRoleFromClaims(t *testing.T) {
	require.Equal(t, "teacher", extractUserRoleFromClaims(jwt.MapClaims{"roles": []interface{}{"", " TEACHER "}}))
	require.Equal(t, "admin", extractUserRoleFromClaims(jwt.MapClaims{"user_type": "Admin"}))
	require.Equal(t, "", extractUserRoleFromClaims(jwt.MapClaims{"role": 3}))

	id := extractUserIDFromClaims(jwt.MapClaims{"sub": "abc", "user_id": float64(12)})
	require.NotNil(t, id)
	require.Equal(t, uint(12), *id)
	require.Nil(t, extractUserIDFromClaims(jwt.MapClaims{"id": float64(1.5)}))
}
