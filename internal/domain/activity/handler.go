package activity

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

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
	g.GET("/activity", h.List, auth.RequireAdmin())
}

func (h *Handler) List(c echo.Context) error {
	params := SearchParams{
		Action:     c.QueryParam("action"),
		TargetType: c.QueryParam("target_type"),
	}
	if v := c.QueryParam("actor_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid actor_id")
		}
		params.ActorID = id
	}
	if v := c.QueryParam("target_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid target_id")
		}
		params.TargetID = id
	}

	page := pagination.FromContext(c)
	entries, total, err := h.service.Search(c.Request().Context(), params, page.Limit, page.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list activity")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, page))
}
