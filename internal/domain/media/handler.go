package media

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
	g.POST("/patients/:id/media", h.Upload)
	g.GET("/patients/:id/media", h.ListForPatient)
	g.GET("/media/:id", h.Get)
	g.GET("/media/:id/content", h.Download)
	g.DELETE("/media/:id", h.Delete)
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

func (h *Handler) Upload(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	kind := Kind(c.FormValue("kind"))
	file, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	src, err := file.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to open upload")
	}
	defer src.Close()

	m, err := h.service.Upload(c.Request().Context(), actorFrom(c), UploadParams{
		PatientID:   patientID,
		Kind:        kind,
		FileName:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Body:        src,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) ListForPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	page := pagination.FromContext(c)
	items, total, err := h.service.ListForPatient(c.Request().Context(), actorFrom(c), patientID,
		Kind(c.QueryParam("kind")), page.Limit, page.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, page))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid media id")
	}
	m, err := h.service.Get(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) Download(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid media id")
	}
	m, rc, err := h.service.Open(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return httpError(err)
	}
	defer rc.Close()

	contentType := m.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return c.Stream(http.StatusOK, contentType, rc)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid media id")
	}
	if err := h.service.Delete(c.Request().Context(), actorFrom(c), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
