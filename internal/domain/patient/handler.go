package patient

import (
	"errors"
	"net/http"
	"time"

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
	g.POST("/patients", h.Create)
	g.GET("/patients", h.List)
	g.GET("/patients/shared-count", h.SharedCount)
	g.GET("/patients/:id", h.Get)
	g.PUT("/patients/:id", h.Update)
	g.DELETE("/patients/:id", h.Delete)
	g.PUT("/patients/:id/visibility", h.SetVisibility)
	g.PUT("/patients/:id/shares", h.ReplaceShares)
	g.PUT("/patients/:id/group", h.AssignGroup)
	g.PUT("/patients/:id/thumbnail", h.UploadThumbnail)
	g.GET("/case-groups/:id/patients", h.ListByGroup)
	g.POST("/patients/:id/comments", h.AddComment)
	g.GET("/patients/:id/comments", h.ListComments)
	g.DELETE("/comments/:id", h.DeleteComment)
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
	FirstName  string     `json:"first_name"`
	LastName   string     `json:"last_name"`
	BirthDate  *time.Time `json:"birth_date"`
	GroupID    *uuid.UUID `json:"group_id"`
	Visibility string     `json:"visibility"`
}

func (h *Handler) Create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := h.service.Create(c.Request().Context(), actorFrom(c), CreateParams{
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		BirthDate:  req.BirthDate,
		GroupID:    req.GroupID,
		Visibility: visibility.Visibility(req.Visibility),
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) List(c echo.Context) error {
	page := pagination.FromContext(c)
	patients, total, err := h.service.List(c.Request().Context(), actorFrom(c), page.Limit, page.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list patients")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(patients, total, page))
}

func (h *Handler) SharedCount(c echo.Context) error {
	n, err := h.service.CountSharedWith(c.Request().Context(), actorFrom(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"shared": n})
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	p, err := h.service.Get(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

type updateRequest struct {
	FirstName *string    `json:"first_name"`
	LastName  *string    `json:"last_name"`
	BirthDate *time.Time `json:"birth_date"`
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := h.service.Update(c.Request().Context(), actorFrom(c), id, UpdateParams{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		BirthDate: req.BirthDate,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
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
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	var req visibilityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := h.service.SetVisibility(c.Request().Context(), actorFrom(c), id, visibility.Visibility(req.Visibility))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

type sharesRequest struct {
	UserIDs []uuid.UUID `json:"user_ids"`
}

func (h *Handler) ReplaceShares(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	var req sharesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := h.service.ReplaceShares(c.Request().Context(), actorFrom(c), id, req.UserIDs)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

type assignGroupRequest struct {
	GroupID *uuid.UUID `json:"group_id"`
}

func (h *Handler) AssignGroup(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	var req assignGroupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := h.service.AssignGroup(c.Request().Context(), actorFrom(c), id, req.GroupID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UploadThumbnail(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	file, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	src, err := file.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to open upload")
	}
	defer src.Close()

	p, err := h.service.SetThumbnail(c.Request().Context(), actorFrom(c), id, file.Filename, src)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListByGroup(c echo.Context) error {
	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid case group id")
	}
	page := pagination.FromContext(c)
	patients, total, err := h.service.ListByGroup(c.Request().Context(), actorFrom(c), groupID, page.Limit, page.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(patients, total, page))
}

type commentRequest struct {
	Body string `json:"body"`
}

func (h *Handler) AddComment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	var req commentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	comment, err := h.service.AddComment(c.Request().Context(), actorFrom(c), id, req.Body)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, comment)
}

func (h *Handler) ListComments(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	page := pagination.FromContext(c)
	comments, total, err := h.service.ListComments(c.Request().Context(), actorFrom(c), id, page.Limit, page.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(comments, total, page))
}

func (h *Handler) DeleteComment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid comment id")
	}
	if err := h.service.DeleteComment(c.Request().Context(), actorFrom(c), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
