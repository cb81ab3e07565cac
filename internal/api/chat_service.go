package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/matheus3301/dmserver/internal/chat"
	"github.com/matheus3301/dmserver/internal/wire"
)

// chatService serves the chat routes.
type chatService struct {
	chats *chat.Resolver
}

func newChatService(chats *chat.Resolver) *chatService {
	return &chatService{chats: chats}
}

type resolveChatRequest struct {
	UserID string `json:"userId"`
}

// Resolve answers 201 when the chat was created and 200 when it existed.
func (s *chatService) Resolve(c echo.Context) error {
	var req resolveChatRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	v, err := s.chats.Resolve(c.Request().Context(), callerID(c), req.UserID)
	if err != nil {
		return err
	}
	code := http.StatusOK
	if v.Created {
		code = http.StatusCreated
	}
	return c.JSON(code, wire.FromView(*v))
}

func (s *chatService) List(c echo.Context) error {
	chats, err := s.chats.List(c.Request().Context(), callerID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, wire.FromSummaries(chats))
}

func (s *chatService) Get(c echo.Context) error {
	v, err := s.chats.Get(c.Request().Context(), c.Param("id"), callerID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, wire.FromView(*v))
}
