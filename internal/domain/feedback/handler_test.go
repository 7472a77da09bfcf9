package feedback

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/smilehealth/smilehealth/internal/platform/auth"
	"github.com/smilehealth/smilehealth/internal/platform/notification"
)

func newRequest(t *testing.T, message string, attach map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if message != "" {
		w.WriteField("message", message)
	}
	for name, content := range attach {
		fw, err := w.CreateFormFile("attachments", name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(content))
	}
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/feedback", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func asUser(req *http.Request, userID uuid.UUID) *http.Request {
	ctx := context.WithValue(req.Context(), auth.UserIDKey, userID)
	ctx = context.WithValue(ctx, auth.UsernameKey, "drsmith")
	return req.WithContext(ctx)
}

func TestSubmitQueuesMailWithAttachments(t *testing.T) {
	sender := &notification.LoopbackSender{}
	mailer := notification.NewMailer(sender, "feedback@example.com", zerolog.Nop())
	h := NewHandler(mailer)

	e := echo.New()
	req := asUser(newRequest(t, "the 3D viewer is slow", map[string]string{"trace.txt": "trace"}), uuid.New())
	rec := httptest.NewRecorder()

	if err := h.Submit(e.NewContext(req, rec)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}

	mailer.Wait()
	sent := sender.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent = %d messages, want 1", len(sent))
	}
	if !strings.Contains(sent[0].Body, "the 3D viewer is slow") {
		t.Fatalf("body = %q", sent[0].Body)
	}
	if len(sent[0].Attachments) != 1 || sent[0].Attachments[0].FileName != "trace.txt" {
		t.Fatalf("attachments = %+v", sent[0].Attachments)
	}
}

func TestSubmitRejectsBlankMessage(t *testing.T) {
	mailer := notification.NewMailer(&notification.LoopbackSender{}, "feedback@example.com", zerolog.Nop())
	h := NewHandler(mailer)

	e := echo.New()
	req := asUser(newRequest(t, "   ", nil), uuid.New())
	rec := httptest.NewRecorder()

	err := h.Submit(e.NewContext(req, rec))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("err = %v, want 400", err)
	}
}

func TestSubmitRequiresAuth(t *testing.T) {
	mailer := notification.NewMailer(&notification.LoopbackSender{}, "feedback@example.com", zerolog.Nop())
	h := NewHandler(mailer)

	e := echo.New()
	rec := httptest.NewRecorder()
	err := h.Submit(e.NewContext(newRequest(t, "hello", nil), rec))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("err = %v, want 401", err)
	}
}
