package casegroup

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/smilehealth/smilehealth/internal/domain/visibility"
	"github.com/smilehealth/smilehealth/internal/platform/auth"
	"github.com/smilehealth/smilehealth/pkg/pagination"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/case-groups", h.Create)
	g.GET("/case-groups", h.List)
	g.GET("/case-groups/:id", h.Get)
	g.PUT("/case-groups/:id", h.Update)
	g.DELETE("/case-groups/:id", h.Delete)
	g.PUT("/case-groups/:id/visibility", h.SetVisibility)
	g.PUT("/case-groups/:id/shares", h.ReplaceShares)
}

func actorFrom(c echo.Context) visibility.Actor {
	ctx := c.Request().Context()
	id := auth.UserIDFromContext(ctx)
	return visibility.NewActor(id, auth.IsAdminFromContext(ctx), visibility.Role(auth.RoleFromContext(ctx)))
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, ErrNotFound.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, ErrForbidden.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}

type createRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Visibility  string `json:"visibility"`
}

func (h *Handler) Create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	g, err := h.service.Create(c.Request().Context(), actorFrom(c), CreateParams{
		Name:        req.Name,
		Description: req.Description,
		Visibility:  visibility.Visibility(req.Visibility),
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, g)
}

func (h *Handler) List(c echo.Context) error {
	page := pagination.FromContext(c)
	groups, total, err := h.service.List(c.Request().Context(), actorFrom(c), page.Limit, page.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list case groups")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(groups, total, page))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid case group id")
	}
	g, err := h.service.Get(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, g)
}

type updateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid case group id")
	}
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	g, err := h.service.Update(c.Request().Context(), actorFrom(c), id, UpdateParams{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, g)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid case group id")
	}
	if err := h.service.Delete(c.Request().Context(), actorFrom(c), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type visibilityRequest struct {
	Visibility string `json:"visibility"`
}

func (h *Handler) SetVisibility(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid case group id")
	}
	var req visibilityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	g, err := h.service.SetVisibility(c.Request().Context(), actorFrom(c), id, visibility.Visibility(req.Visibility))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, g)
}

type sharesRequest struct {
	UserIDs []uuid.UUID `json:"user_ids"`
}

func (h *Handler) ReplaceShares(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid case group id")
	}
	var req sharesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	g, err := h.service.ReplaceShares(c.Request().Context(), actorFrom(c), id, req.UserIDs)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, g)
}
