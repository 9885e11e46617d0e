package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func errorApp(err error) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Get("/fail", func(c *fiber.Ctx) error { return err })
	return app
}

func callFail(t *testing.T, app *fiber.App) (int, ErrorResponse) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", "/fail", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	var env ErrorResponse
	require.NoError(t, json.Unmarshal(body, &env), string(body))
	require.NotNil(t, env.Error)
	return resp.StatusCode, env
}

func TestErrorHandler_AppError(t *testing.T) {
	appErr := ValidationError([]ErrorDetail{{Field: "name", Rule: "required", Message: "name is required"}})
	status, env := callFail(t, errorApp(fmt.Errorf("wrapped: %w", appErr)))

	assert.Equal(t, 422, status)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
	require.Len(t, env.Error.Details, 1)
	assert.Equal(t, "name", env.Error.Details[0].Field)
}

func TestErrorHandler_FiberError(t *testing.T) {
	status, env := callFail(t, errorApp(fiber.NewError(fiber.StatusMethodNotAllowed, "nope")))
	assert.Equal(t, 405, status)
	assert.Equal(t, "HTTP_ERROR", env.Error.Code)
	assert.Equal(t, "nope", env.Error.Message)
}

func TestErrorHandler_UnknownErrorIsHidden(t *testing.T) {
	status, env := callFail(t, errorApp(errors.New("pq: connection refused")))
	assert.Equal(t, 500, status)
	assert.Equal(t, "INTERNAL_ERROR", env.Error.Code)
	assert.NotContains(t, env.Error.Message, "connection refused")
}

func TestErrorHandler_UnknownRoute(t *testing.T) {
	app := errorApp(nil)
	resp, err := app.Test(httptest.NewRequest("GET", "/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}
