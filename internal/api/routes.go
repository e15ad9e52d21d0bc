package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trendsift/viral-engine/api/types"
	"github.com/trendsift/viral-engine/internal/engine"
	"github.com/trendsift/viral-engine/internal/jobserver"
)

// add queues a search job.
//
// The request body is a SearchRequest. The response is a JobResponse with
// the UUID to poll, or a JobError with a 400 when the request cannot be
// turned into a job at all.
func add(jobServer *jobserver.JobServer) func(c echo.Context) error {
	return func(c echo.Context) error {
		var req types.SearchRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, types.JobError{Error: fmt.Sprintf("invalid search request: %v", err)})
		}
		if strings.TrimSpace(req.Query) == "" {
			return c.JSON(http.StatusBadRequest, types.JobError{Error: "query must not be empty"})
		}

		args, err := req.Arguments()
		if err != nil {
			return c.JSON(http.StatusBadRequest, types.JobError{Error: fmt.Sprintf("invalid search request: %v", err)})
		}

		uuid := jobServer.AddJob(types.Job{
			Type:      types.SearchJobType,
			Arguments: args,
		})
		return c.JSON(http.StatusOK, types.JobResponse{UID: uuid})
	}
}

// status reports where a search job stands: 404 when the UUID is unknown or
// its result already expired, 204 while the job is still running, 500 with a
// JobError when it failed, and 200 with the manifest once it is done.
func status(jobServer *jobserver.JobServer) func(c echo.Context) error {
	return func(c echo.Context) error {
		res, exists := jobServer.GetJobResult(c.Param("job_id"))
		if !exists {
			return c.JSON(http.StatusNotFound, types.JobError{Error: "search not found"})
		}

		if res.Error != "" {
			return c.JSON(http.StatusInternalServerError, types.JobError{Error: res.Error})
		}
		if res.Manifest == nil {
			return c.NoContent(http.StatusNoContent)
		}
		return c.JSON(http.StatusOK, res.Manifest)
	}
}

// queueStats exposes the dual-lane queue for monitoring.
//
// GET /search/queue/stats
//
//	{
//	  "fast_queue_depth": 10,
//	  "slow_queue_depth": 45,
//	  "fast_processed": 1234,
//	  "slow_processed": 5678,
//	  "last_update": "2026-01-15T10:30:00Z"
//	}
func queueStats(jobServer *jobserver.JobServer) func(c echo.Context) error {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, jobServer.GetQueueStats())
	}
}

// sessions lists recent sessions from the sqlite index, newest first. The
// limit query parameter caps the page (default 20).
func sessions(eng *engine.Engine) func(c echo.Context) error {
	return func(c echo.Context) error {
		idx := eng.Sessions()
		if idx == nil {
			return c.JSON(http.StatusServiceUnavailable, types.JobError{Error: "session index not configured"})
		}

		limit := 20
		if raw := c.QueryParam("limit"); raw != "" {
			if v, err := strconv.Atoi(raw); err == nil && v > 0 {
				limit = v
			}
		}

		rows, err := idx.RecentSessions(c.Request().Context(), limit)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, types.JobError{Error: err.Error()})
		}
		return c.JSON(http.StatusOK, rows)
	}
}

// capabilities reports what this instance can do and how its providers are
// holding up.
func capabilities(eng *engine.Engine) func(c echo.Context) error {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"capabilities": eng.Capabilities(),
			"providers":    eng.Health().Snapshot(),
		})
	}
}

// statsSnapshot dumps the per-session counters the collector has gathered.
func statsSnapshot(eng *engine.Engine) func(c echo.Context) error {
	return func(c echo.Context) error {
		blob, err := eng.Stats().Json()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, types.JobError{Error: err.Error()})
		}
		return c.JSONBlob(http.StatusOK, blob)
	}
}
