package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"taskflow/board"
	"taskflow/dashboard"
	"taskflow/domain"
	"taskflow/notify"
)

const maxBodySize = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

type boardResponse struct {
	Viewer  string         `json:"viewer"`
	Role    domain.Role    `json:"role"`
	Columns []board.Column `json:"columns"`
}

type notificationsResponse struct {
	Notifications []domain.Notification `json:"notifications"`
	Unread        int                   `json:"unread"`
}

type moveRequest struct {
	Status string `json:"status"`
	// Index in the destination column. Missing or negative appends.
	Index *int `json:"index"`
}

func healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) boardPayload() boardResponse {
	viewer := s.board.Viewer()
	return boardResponse{
		Viewer:  viewer.Username,
		Role:    viewer.Role,
		Columns: s.board.Snapshot().Columns,
	}
}

func (s *Server) getBoard(c echo.Context) error {
	return c.JSON(http.StatusOK, s.boardPayload())
}

func (s *Server) getStats(c echo.Context) error {
	return c.JSON(http.StatusOK, dashboard.Compute(s.board.Snapshot().Tasks(), s.now()))
}

func (s *Server) notificationsPayload() notificationsResponse {
	if s.notes == nil {
		return notificationsResponse{Notifications: []domain.Notification{}}
	}
	return notificationsResponse{Notifications: s.notes.List(), Unread: s.notes.UnreadCount()}
}

func (s *Server) getNotifications(c echo.Context) error {
	return c.JSON(http.StatusOK, s.notificationsPayload())
}

func (s *Server) postNotificationRead(c echo.Context) error {
	if s.notes == nil {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "notifications disabled"})
	}
	err := s.notes.MarkRead(c.Request().Context(), domain.NotificationID(c.Param("id")))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, s.notificationsPayload())
}

func (s *Server) postAllNotificationsRead(c echo.Context) error {
	if s.notes == nil {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "notifications disabled"})
	}
	if err := s.notes.MarkAllRead(c.Request().Context()); err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, s.notificationsPayload())
}

func (s *Server) postMove(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid task id"})
	}
	var req moveRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	status, err := domain.ParseStatus(req.Status)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	ctx := c.Request().Context()
	if req.Index == nil || *req.Index < 0 {
		err = s.board.ChangeStatus(ctx, id, status)
	} else {
		err = s.board.Move(ctx, id, status, *req.Index)
	}
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, s.boardPayload())
}

func (s *Server) writeError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	msg := err.Error()
	switch {
	case errors.Is(err, board.ErrTaskNotFound):
		status = http.StatusNotFound
	case errors.Is(err, board.ErrNotAssignee):
		status = http.StatusForbidden
	case errors.Is(err, board.ErrMoveRejected):
		status = http.StatusBadGateway
		msg = board.ErrMoveRejected.Error()
	case errors.Is(err, notify.ErrUnknownNotification):
		status = http.StatusNotFound
	default:
		s.logger.WithError(err).WithField("route", c.Path()).Error("view request failed")
	}
	return c.JSON(status, errorResponse{Error: msg})
}
