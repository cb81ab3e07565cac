package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// healthService reports liveness and store reachability.
type healthService struct {
	store     Pinger
	online    func() int
	startedAt time.Time
}

func newHealthService(store Pinger, online func() int) *healthService {
	return &healthService{store: store, online: online, startedAt: time.Now()}
}

type healthResponse struct {
	Status      string `json:"status"`
	UptimeMs    int64  `json:"uptimeMs"`
	OnlineUsers int    `json:"onlineUsers"`
}

func (s *healthService) Check(c echo.Context) error {
	resp := healthResponse{
		Status:   "ok",
		UptimeMs: time.Since(s.startedAt).Milliseconds(),
	}
	if s.online != nil {
		resp.OnlineUsers = s.online()
	}
	if s.store != nil {
		if err := s.store.PingContext(c.Request().Context()); err != nil {
			resp.Status = "unavailable"
			return c.JSON(http.StatusServiceUnavailable, resp)
		}
	}
	return c.JSON(http.StatusOK, resp)
}
