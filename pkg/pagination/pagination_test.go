package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func newContext(target string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec)
}

func TestFromContext_Defaults(t *testing.T) {
	p := FromContext(newContext("/"))

	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected default offset 0, got %d", p.Offset)
	}
}

func TestFromContext_Explicit(t *testing.T) {
	p := FromContext(newContext("/?limit=35&offset=70"))

	if p.Limit != 35 {
		t.Errorf("expected limit 35, got %d", p.Limit)
	}
	if p.Offset != 70 {
		t.Errorf("expected offset 70, got %d", p.Offset)
	}
}

func TestFromContext_CapsLimit(t *testing.T) {
	p := FromContext(newContext("/?limit=10000"))

	if p.Limit != MaxLimit {
		t.Errorf("expected limit capped at %d, got %d", MaxLimit, p.Limit)
	}
}

func TestNewResponse_HasMore(t *testing.T) {
	r := NewResponse(nil, 50, Params{Limit: 20, Offset: 0})
	if !r.HasMore {
		t.Error("expected has_more=true for first page of 50")
	}

	r = NewResponse(nil, 50, Params{Limit: 20, Offset: 40})
	if r.HasMore {
		t.Error("expected has_more=false for last page")
	}
}
