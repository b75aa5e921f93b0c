package appointment

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Handler exposes the appointment service over HTTP. It owns the mapping
// from domain error kinds to status codes; storage errors never leak
// internals to the caller.
type Handler struct {
	svc *Service
	log zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, log: logger}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/appointments", h.List)
	g.GET("/appointments/:id", h.Get)
	g.POST("/appointments", h.Create)
	g.PUT("/appointments/:id", h.Update)
	g.POST("/appointments/:id/cancel", h.Cancel)
	g.DELETE("/appointments/:id", h.Delete)
}

func (h *Handler) List(c echo.Context) error {
	items, err := h.svc.List(c.Request().Context())
	if err != nil {
		return h.writeError(c, err)
	}
	if items == nil {
		items = []*Appointment{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, errorBody{Error: "appointment not found"})
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Create(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "malformed request body"})
	}
	a, err := h.svc.Create(c.Request().Context(), in)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, errorBody{Error: "appointment not found"})
	}
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "malformed request body"})
	}
	a, err := h.svc.Update(c.Request().Context(), id, req)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, errorBody{Error: "appointment not found"})
	}
	a, err := h.svc.Cancel(c.Request().Context(), id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, errorBody{Error: "appointment not found"})
	}
	if _, err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

type errorBody struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

func (h *Handler) writeError(c echo.Context, err error) error {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return c.JSON(http.StatusBadRequest, errorBody{Error: verr.Message, Fields: verr.Fields})
	}
	var cerr *ConflictError
	if errors.As(err, &cerr) {
		return c.JSON(http.StatusConflict, errorBody{Error: cerr.Error()})
	}
	var nferr *NotFoundError
	if errors.As(err, &nferr) {
		return c.JSON(http.StatusNotFound, errorBody{Error: "appointment not found"})
	}
	h.log.Error().Err(err).Str("path", c.Request().URL.Path).Msg("appointment request failed")
	return c.JSON(http.StatusInternalServerError, errorBody{Error: "internal server error"})
}
