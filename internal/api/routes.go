package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/masa-finance/resilient-engine/api/types"
	"github.com/masa-finance/resilient-engine/internal/engine/stats"
	"github.com/masa-finance/resilient-engine/internal/history"
	"github.com/masa-finance/resilient-engine/internal/tools"
)

// execute runs a tool through its fallback chain and returns the uniform
// result envelope. Expected failure modes ([DISABLED], [ERROR]) still return
// 200 with the marker in the output; callers recognize the plain-text
// sentinels. Only an unknown tool or a malformed request is an HTTP error.
func execute(registry *tools.Registry, executions *history.Cache) func(c echo.Context) error {
	return func(c echo.Context) error {
		req := types.ExecutionRequest{}
		if err := c.Bind(&req); err != nil {
			return err
		}
		if req.Tool == "" {
			return c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "tool is required"})
		}

		result, err := registry.Execute(req.Tool, req.Arguments)
		if err != nil {
			return c.JSON(http.StatusNotFound, types.ErrorResponse{Error: err.Error()})
		}

		result.UUID = uuid.New().String()
		executions.Set(result.UUID, result)

		return c.JSON(http.StatusOK, result)
	}
}

// result returns a previously returned execution envelope by uuid, as long
// as it is still in the history cache.
func result(executions *history.Cache) func(c echo.Context) error {
	return func(c echo.Context) error {
		res, exists := executions.Get(c.Param("execution_id"))
		if !exists {
			return c.JSON(http.StatusNotFound, types.ErrorResponse{Error: "Execution not found"})
		}
		return c.JSON(http.StatusOK, res)
	}
}

// reset clears the health record of one handler, the manual operator
// recovery for a degraded handler.
func reset(registry *tools.Registry) func(c echo.Context) error {
	return func(c echo.Context) error {
		req := types.ResetRequest{}
		if err := c.Bind(&req); err != nil {
			return err
		}
		if req.Tool == "" || req.Handler == "" {
			return c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "tool and handler are required"})
		}

		if err := registry.Reset(req.Tool, req.Handler); err != nil {
			logrus.Errorf("Reset of %s:%s failed: %v", req.Tool, req.Handler, err)
			return c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: err.Error()})
		}

		return c.JSON(http.StatusOK, map[string]string{"status": "reset"})
	}
}

// handlerHealth dumps the persisted health state for all handlers.
func handlerHealth(registry *tools.Registry) func(c echo.Context) error {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, registry.Health())
	}
}

// engineStats returns the collector's counters as JSON.
func engineStats(collector *stats.Collector) func(c echo.Context) error {
	return func(c echo.Context) error {
		data, err := collector.Json()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: err.Error()})
		}
		return c.JSONBlob(http.StatusOK, data)
	}
}
