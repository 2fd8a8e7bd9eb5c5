package routes

import (
	"net/http/httptest"
	"testing"

	controller "outreachly/controllers"
	"outreachly/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testApp() *fiber.App {
	app := fiber.New()
	SetupRoutes(app, Controllers{
		Sequences:  controller.NewSequenceController(nil, utils.NewLogger("test")),
		Executions: controller.NewExecutionController(nil, nil, nil, utils.NewLogger("test")),
		Prospects:  controller.NewProspectController(nil, utils.NewLogger("test")),
		Engagement: controller.NewEngagementController(nil, nil, utils.NewLogger("test")),
		Progress:   controller.NewProgressController(nil, utils.NewLogger("test")),
	})
	return app
}

// The progress stream shares the /sequences prefix with the :id route, so
// its registration order matters: a plain GET must reach the WebSocket
// handler (which demands an upgrade) instead of being read as an id.
func TestProgressRouteIsNotShadowedBySequenceID(t *testing.T) {
	app := testApp()

	req := httptest.NewRequest(fiber.MethodGet, "/api/v1/sequences/progress", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	app := testApp()

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestUnknownRouteReturnsNotFound(t *testing.T) {
	app := testApp()

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/api/v1/nope", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
