package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/fedinode/fedinode/store"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) Handler {
	return Handler{service}
}

func errorBody(message string) map[string]string {
	return map[string]string{"error": message}
}

type createActorRequest struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Summary  string `json:"summary"`
}

func (h Handler) CreateActor(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "HandlerCreateActor")
	defer span.End()

	var req createActorRequest
	if err := c.Bind(&req); err != nil {
		span.RecordError(err)
		return c.JSON(http.StatusBadRequest, errorBody("Invalid request body"))
	}
	if req.Username == "" {
		return c.JSON(http.StatusBadRequest, errorBody("username is required"))
	}

	actor, err := h.service.CreateActor(ctx, req.Username, req.Name, req.Summary)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, store.ErrAlreadyExists) {
			return c.JSON(http.StatusConflict, errorBody("Actor already exists"))
		}
		return c.JSON(http.StatusInternalServerError, errorBody("Internal server error"))
	}

	return c.JSON(http.StatusCreated, actor)
}

func (h Handler) GetActor(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "HandlerGetActor")
	defer span.End()

	actor, err := h.service.GetActor(ctx, c.Param("username"))
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errorBody("Actor not found"))
		}
		return c.JSON(http.StatusInternalServerError, errorBody("Internal server error"))
	}

	return c.JSON(http.StatusOK, actor)
}

type followRequest struct {
	Handle string `json:"handle"`
}

func (h Handler) Follow(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "HandlerFollow")
	defer span.End()

	var req followRequest
	if err := c.Bind(&req); err != nil {
		span.RecordError(err)
		return c.JSON(http.StatusBadRequest, errorBody("Invalid request body"))
	}
	if req.Handle == "" {
		return c.JSON(http.StatusBadRequest, errorBody("handle is required"))
	}

	relation, err := h.service.Follow(ctx, c.Param("username"), req.Handle)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errorBody("Actor not found"))
		}
		return c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
	}

	return c.JSON(http.StatusCreated, relation)
}

func (h Handler) Unfollow(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "HandlerUnfollow")
	defer span.End()

	var req followRequest
	if err := c.Bind(&req); err != nil {
		span.RecordError(err)
		return c.JSON(http.StatusBadRequest, errorBody("Invalid request body"))
	}
	if req.Handle == "" {
		return c.JSON(http.StatusBadRequest, errorBody("handle is required"))
	}

	relation, err := h.service.Unfollow(ctx, c.Param("username"), req.Handle)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errorBody("Not found"))
		}
		return c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
	}

	return c.JSON(http.StatusOK, relation)
}

func (h Handler) GetStats(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "HandlerGetStats")
	defer span.End()

	stats, err := h.service.GetStats(ctx, c.Param("username"))
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errorBody("Actor not found"))
		}
		return c.JSON(http.StatusInternalServerError, errorBody("Internal server error"))
	}

	return c.JSON(http.StatusOK, stats)
}
