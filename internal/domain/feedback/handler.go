// Package feedback routes user feedback to the practice mailbox.
package feedback

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/smilehealth/smilehealth/internal/platform/auth"
	"github.com/smilehealth/smilehealth/internal/platform/notification"
)

// maxAttachmentSize bounds a single feedback attachment.
const maxAttachmentSize = 10 << 20

type Handler struct {
	mailer *notification.Mailer
}

func NewHandler(mailer *notification.Mailer) *Handler {
	return &Handler{mailer: mailer}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/feedback", h.Submit)
}

// Submit accepts a multipart form with a message and optional file
// attachments and queues it for delivery. The response does not wait
// for the mail to go out.
func (h *Handler) Submit(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	if userID == uuid.Nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}

	message := strings.TrimSpace(c.FormValue("message"))
	if message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}

	var attachments []notification.Attachment
	if form, err := c.MultipartForm(); err == nil && form != nil {
		for _, file := range form.File["attachments"] {
			if file.Size > maxAttachmentSize {
				return echo.NewHTTPError(http.StatusBadRequest,
					fmt.Sprintf("attachment %s exceeds the size limit", file.Filename))
			}
			src, err := file.Open()
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "failed to open attachment")
			}
			data, err := io.ReadAll(src)
			src.Close()
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "failed to read attachment")
			}
			attachments = append(attachments, notification.Attachment{
				FileName:    file.Filename,
				ContentType: file.Header.Get("Content-Type"),
				Data:        data,
			})
		}
	}

	subject := fmt.Sprintf("Feedback from %s", auth.UsernameFromContext(c.Request().Context()))
	body := fmt.Sprintf("User: %s\n\n%s", userID, message)
	h.mailer.SendFeedback(subject, body, attachments)

	return c.JSON(http.StatusAccepted, map[string]string{"status": "queued"})
}
