package handler

import (
	"net/http" // HTTP status codes

	"github.com/labstack/echo/v4" // Echo web framework
)

// Health answers load balancer and monitoring probes.  It reports only
// process liveness; dependency health (MySQL, Redis, the broker) is
// checked at startup and surfaces through request errors, not here.
func Health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"status":  "ok",
		"service": "bus-ticket-reservation",
	})
}
