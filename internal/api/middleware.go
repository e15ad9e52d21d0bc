package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trendsift/viral-engine/internal/config"
)

const HealthCheckPath = "/healthz"
const ReadinessCheckPath = "/readyz"

// APIKeyAuthMiddleware returns an Echo middleware that checks for the API key
// in the request headers. With no api_key configured the middleware is a
// no-op; health probes are always exempt so orchestrators never need
// credentials.
func APIKeyAuthMiddleware(ec config.EngineConfig) echo.MiddlewareFunc {
	apiKey := ec.GetString("api_key", "")
	if apiKey == "" {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				return next(c)
			}
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			if path == HealthCheckPath || path == ReadinessCheckPath {
				return next(c)
			}

			// Accept Authorization: Bearer <API_KEY> or X-API-Key
			header := c.Request().Header.Get("Authorization")
			if header == "Bearer "+apiKey {
				return next(c)
			}
			if c.Request().Header.Get("X-API-Key") == apiKey {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusUnauthorized, "missing or invalid API key")
		}
	}
}

// HealthMetricsMiddleware feeds the request outcomes into the error-rate
// window the readiness probe watches.
func HealthMetricsMiddleware(healthMetrics *HealthMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// The probes themselves must not influence the window.
			path := c.Request().URL.Path
			if path == HealthCheckPath || path == ReadinessCheckPath {
				return next(c)
			}

			err := next(c)

			if isAPIPath(path) {
				statusCode := c.Response().Status
				if statusCode >= 500 {
					healthMetrics.RecordError()
				} else if statusCode >= 200 && statusCode < 400 {
					healthMetrics.RecordSuccess()
				}
				// 4xx is the caller's fault and does not count
			}

			return err
		}
	}
}

func isAPIPath(path string) bool {
	for _, prefix := range []string{"/search", "/sessions", "/capabilities", "/stats"} {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
