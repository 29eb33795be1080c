package ap

import (
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/fedinode/fedinode/signature"
	"github.com/fedinode/fedinode/store"
	"github.com/fedinode/fedinode/types"
	"github.com/fedinode/fedinode/vocab"
)

type Handler struct {
	service  *Service
	verifier *signature.Verifier
}

func NewHandler(service *Service, verifier *signature.Verifier) Handler {
	return Handler{service, verifier}
}

func errorBody(message string) map[string]string {
	return map[string]string{"error": message}
}

func wantsActivityJSON(c echo.Context) bool {
	acceptHeader := c.Request().Header.Get("Accept")
	accept := strings.Split(acceptHeader, ",")
	for i, a := range accept {
		a = strings.TrimSpace(a)
		if base, _, found := strings.Cut(a, ";"); found {
			a = base
		}
		accept[i] = a
	}
	return slices.Contains(accept, vocab.ContentTypeActivityJSON) ||
		slices.Contains(accept, vocab.ContentTypeLDJSON)
}

func (h Handler) HostMeta(c echo.Context) error {
	_, span := tracer.Start(c.Request().Context(), "HandlerHostMeta")
	defer span.End()

	c.Response().Header().Set("Content-Type", "application/xrd+xml")
	return c.String(http.StatusOK, h.service.HostMeta())
}

func (h Handler) WebFinger(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "HandlerWebFinger")
	defer span.End()

	resource := c.QueryParam("resource")
	result, err := h.service.WebFinger(ctx, resource)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidData) {
			return c.NoContent(http.StatusNotFound)
		}
		return c.JSON(http.StatusInternalServerError, errorBody("Internal server error"))
	}

	c.Response().Header().Set("Content-Type", vocab.ContentTypeJRD)
	return c.JSON(http.StatusOK, result)
}

func (h Handler) NodeInfo(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "HandlerNodeInfo")
	defer span.End()

	result, err := h.service.NodeInfo(ctx)
	if err != nil {
		span.RecordError(err)
		return c.JSON(http.StatusInternalServerError, errorBody("Internal server error"))
	}

	return c.JSON(http.StatusOK, result)
}

func (h Handler) NodeInfoWellKnown(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "HandlerNodeInfoWellKnown")
	defer span.End()

	result, err := h.service.NodeInfoWellKnown(ctx)
	if err != nil {
		span.RecordError(err)
		return c.JSON(http.StatusInternalServerError, errorBody("Internal server error"))
	}

	return c.JSON(http.StatusOK, result)
}

// --

func (h Handler) Actor(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "HandlerActor")
	defer span.End()

	username := c.Param("username")
	if username == "" {
		return c.JSON(http.StatusBadRequest, errorBody("Invalid username"))
	}

	if !wantsActivityJSON(c) {
		return c.Redirect(http.StatusFound, "/@"+username)
	}

	result, err := h.service.Actor(ctx, username)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errorBody("Actor not found"))
		}
		return c.JSON(http.StatusInternalServerError, errorBody("Internal server error"))
	}

	c.Response().Header().Set("Content-Type", vocab.ContentTypeActivityJSON)
	return c.JSON(http.StatusOK, result)
}

// ProfilePage serves the HTML view of a local actor.
func (h Handler) ProfilePage(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "HandlerProfilePage")
	defer span.End()

	username := c.Param("username")
	page, err := h.service.ProfileHTML(ctx, username)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, store.ErrNotFound) {
			return c.String(http.StatusNotFound, "actor not found")
		}
		return c.String(http.StatusInternalServerError, "internal server error")
	}

	return c.HTML(http.StatusOK, page)
}

func (h Handler) Note(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "HandlerNote")
	defer span.End()

	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, errorBody("Invalid note id"))
	}
	noteID := h.service.config.ServerURL + "/notes/" + id

	if !wantsActivityJSON(c) {
		page, err := h.service.NoteHTML(ctx, noteID)
		if err != nil {
			span.RecordError(err)
			if errors.Is(err, store.ErrNotFound) {
				return c.String(http.StatusNotFound, "note not found")
			}
			return c.String(http.StatusInternalServerError, "internal server error")
		}
		return c.HTML(http.StatusOK, page)
	}

	result, err := h.service.Note(ctx, noteID)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errorBody("Note not found"))
		}
		return c.JSON(http.StatusInternalServerError, errorBody("Internal server error"))
	}

	c.Response().Header().Set("Content-Type", vocab.ContentTypeActivityJSON)
	return c.JSON(http.StatusOK, result)
}

func (h Handler) Outbox(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "HandlerOutbox")
	defer span.End()

	username := c.Param("username")
	page := c.QueryParam("page") == "true"

	result, err := h.service.Outbox(ctx, username, page)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errorBody("Actor not found"))
		}
		return c.JSON(http.StatusInternalServerError, errorBody("Internal server error"))
	}

	c.Response().Header().Set("Content-Type", vocab.ContentTypeActivityJSON)
	return c.JSON(http.StatusOK, result)
}

// PostOutbox accepts a client-authored activity.
func (h Handler) PostOutbox(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "HandlerPostOutbox")
	defer span.End()

	username := c.Param("username")

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("Invalid request body"))
	}
	raw, err := types.LoadAsRawApObj(body)
	if err != nil {
		span.RecordError(err)
		return c.JSON(http.StatusBadRequest, errorBody("Invalid JSON"))
	}

	result, err := h.service.PostActivity(ctx, username, raw)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errorBody("Actor not found"))
		}
		if errors.Is(err, store.ErrInvalidData) {
			return c.JSON(http.StatusBadRequest, errorBody("Invalid activity"))
		}
		return c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
	}

	// non-Create types are acknowledged without a body
	if result.ID == "" {
		return c.NoContent(http.StatusCreated)
	}

	c.Response().Header().Set("Content-Type", vocab.ContentTypeActivityJSON)
	return c.JSON(http.StatusCreated, result)
}

func (h Handler) InboxCollection(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "HandlerInboxCollection")
	defer span.End()

	username := c.Param("username")
	page := c.QueryParam("page") == "true"

	result, err := h.service.InboxCollection(ctx, username, page)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errorBody("Actor not found"))
		}
		return c.JSON(http.StatusInternalServerError, errorBody("Internal server error"))
	}

	c.Response().Header().Set("Content-Type", vocab.ContentTypeActivityJSON)
	return c.JSON(http.StatusOK, result)
}

// Inbox receives one federated activity. Dispatch outcomes that leave the
// node in a consistent state answer 202 regardless of whether the activity
// was acted on.
func (h Handler) Inbox(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "HandlerInbox")
	defer span.End()

	username := c.Param("username")

	if h.verifier != nil {
		verification := h.verifier.Verify(ctx, c.Request())
		if verification.Status != signature.Valid {
			slog.Warn("inbox: unverified request",
				slog.String("status", verification.Status.String()),
				slog.String("keyId", verification.KeyID),
				slog.String("reason", verification.Reason))
		}
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("Invalid request body"))
	}
	raw, err := types.LoadAsRawApObj(body)
	if err != nil {
		span.RecordError(err)
		return c.JSON(http.StatusBadRequest, errorBody("Invalid JSON"))
	}

	if err := h.service.Inbox(ctx, username, raw); err != nil {
		span.RecordError(err)
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errorBody("Actor not found"))
		}
		if errors.Is(err, store.ErrInvalidData) {
			return c.JSON(http.StatusBadRequest, errorBody("Invalid activity"))
		}
		return c.JSON(http.StatusInternalServerError, errorBody("Internal server error"))
	}

	return c.JSON(http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h Handler) Followers(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "HandlerFollowers")
	defer span.End()

	result, err := h.service.Followers(ctx, c.Param("username"))
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errorBody("Actor not found"))
		}
		return c.JSON(http.StatusInternalServerError, errorBody("Internal server error"))
	}

	c.Response().Header().Set("Content-Type", vocab.ContentTypeActivityJSON)
	return c.JSON(http.StatusOK, result)
}

func (h Handler) Following(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "HandlerFollowing")
	defer span.End()

	result, err := h.service.Following(ctx, c.Param("username"))
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errorBody("Actor not found"))
		}
		return c.JSON(http.StatusInternalServerError, errorBody("Internal server error"))
	}

	c.Response().Header().Set("Content-Type", vocab.ContentTypeActivityJSON)
	return c.JSON(http.StatusOK, result)
}
