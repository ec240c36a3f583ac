package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const clientID = "3f1c1c7e-8b9a-4a57-9d55-0d7f6f1e2a10"

func TestFailUsesEnvelope(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/x", func(c *gin.Context) { Fail(c, http.StatusServiceUnavailable, ErrNoQuestions) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-ID", clientID)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", w.Code)
	}
	var body Response
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error == nil || body.Error.Code != ErrNoQuestions || body.Error.Message != GetMessage(ErrNoQuestions) {
		t.Fatalf("unexpected error body: %+v", body.Error)
	}
	if body.Metadata.RequestID != clientID {
		t.Fatalf("request id = %q", body.Metadata.RequestID)
	}
}

func TestRequestIDRejectsArbitraryHeaders(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, RequestID(c)) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-ID", "<script>")
	r.ServeHTTP(w, req)

	got := w.Body.String()
	if got == "" || got == "<script>" || w.Header().Get("X-Request-ID") != got {
		t.Fatalf("request id = %q, header = %q", got, w.Header().Get("X-Request-ID"))
	}
}

func TestEveryCodeHasMessage(t *testing.T) {
	for code := range messages {
		if GetMessage(code) == "" {
			t.Errorf("%s has empty message", code)
		}
	}
	if GetMessage("NOPE") == "" {
		t.Errorf("unknown code must still have a message")
	}
}

func TestPagination(t *testing.T) {
	p := NewPagination(2, 20, 41)
	if p.TotalPages != 3 {
		t.Fatalf("total pages = %d, want 3", p.TotalPages)
	}

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/?page=0&per_page=500", nil)
	page, perPage := PageParams(c, 20, 100)
	if page != 1 || perPage != 100 {
		t.Fatalf("PageParams = (%d, %d), want (1, 100)", page, perPage)
	}
}
