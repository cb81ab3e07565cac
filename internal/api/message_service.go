package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/matheus3301/dmserver/internal/apperr"
	"github.com/matheus3301/dmserver/internal/message"
	"github.com/matheus3301/dmserver/internal/status"
	"github.com/matheus3301/dmserver/internal/wire"
)

// messageService serves the message and status routes.
type messageService struct {
	messages *message.Service
	status   *status.Machine
}

func newMessageService(messages *message.Service, machine *status.Machine) *messageService {
	return &messageService{messages: messages, status: machine}
}

type createMessageRequest struct {
	ChatID  string `json:"chatId"`
	Content string `json:"content"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (s *messageService) Create(c echo.Context) error {
	var req createMessageRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	msg, err := s.messages.Create(c.Request().Context(), req.ChatID, callerID(c), req.Content)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, wire.FromMessage(*msg))
}

func (s *messageService) List(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return apperr.Validation("limit must be an integer")
		}
		limit = message.ClampLimit(n)
	}
	page, err := s.messages.List(c.Request().Context(), c.Param("id"), callerID(c), limit, c.QueryParam("cursor"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, wire.FromPage(*page))
}

func (s *messageService) UpdateStatus(c echo.Context) error {
	var req updateStatusRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	msg, err := s.status.Advance(c.Request().Context(), c.Param("messageId"), callerID(c), req.Status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, wire.FromMessage(*msg))
}
