package main

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/abdulachik/autoposter/internal/metrics"
	"github.com/abdulachik/autoposter/internal/scheduler"
)

type healthResponse struct {
	Status     string                             `json:"status"`
	Components map[string]*scheduler.HealthStatus `json:"components"`
	Jobs       []jobEntry                         `json:"jobs"`
}

type jobEntry struct {
	Name string    `json:"name"`
	Next time.Time `json:"next"`
	Prev time.Time `json:"prev,omitzero"`
}

// newHTTPServer exposes /healthz and /metrics for serve mode.
func newHTTPServer(sched *scheduler.Scheduler, m *metrics.Metrics) *fiber.App {
	server := fiber.New(fiber.Config{
		AppName:               "autoposter",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
	})
	server.Use(recover.New())

	server.Get("/healthz", func(c *fiber.Ctx) error {
		health := sched.Health()
		resp := healthResponse{
			Status:     "ok",
			Components: health.GetAllStatuses(),
		}
		for _, e := range sched.Entries() {
			resp.Jobs = append(resp.Jobs, jobEntry{Name: e.Job, Next: e.Next, Prev: e.Prev})
		}

		if !health.IsOverallHealthy() {
			resp.Status = "degraded"
			return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
		}
		return c.JSON(resp)
	})

	server.Get("/metrics", adaptor.HTTPHandler(m.Handler()))

	return server
}
