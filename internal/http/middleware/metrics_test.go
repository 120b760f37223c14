package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_RouteLabelsAndUnmatched(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics())
	r.GET("/chat/groups/:id", func(c *gin.Context) { c.String(http.StatusOK, "group") })
	r.POST("/chat/read", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	baseGroup := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/chat/groups/:id", "200"))
	baseRead := testutil.ToFloat64(httpReqs.WithLabelValues("POST", "/chat/read", "204"))
	baseMiss := testutil.ToFloat64(httpReqs.WithLabelValues("GET", unmatchedPath, "404"))

	for _, tc := range []struct {
		method, path string
		status       int
	}{
		{http.MethodGet, "/chat/groups/g1", http.StatusOK},
		{http.MethodGet, "/chat/groups/g2", http.StatusOK},
		{http.MethodPost, "/chat/read", http.StatusNoContent},
		{http.MethodGet, "/wp-login.php", http.StatusNotFound},
		{http.MethodGet, "/.env", http.StatusNotFound},
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		if w.Code != tc.status {
			t.Fatalf("%s %s -> %d, want %d", tc.method, tc.path, w.Code, tc.status)
		}
	}

	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/chat/groups/:id", "200")); got != baseGroup+2 {
		t.Fatalf("route counter = %v; want %v (ids must not become labels)", got, baseGroup+2)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("POST", "/chat/read", "204")); got != baseRead+1 {
		t.Fatalf("read counter = %v; want %v", got, baseRead+1)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", unmatchedPath, "404")); got != baseMiss+2 {
		t.Fatalf("unmatched counter = %v; want %v", got, baseMiss+2)
	}
	if inFlight := testutil.ToFloat64(httpInflight); inFlight != 0 {
		t.Fatalf("httpInflight = %v; want 0", inFlight)
	}
}

func TestAbortJSON_CountsRejections(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), func(c *gin.Context) {
		abortJSON(c, http.StatusTeapot, "test_reject", "no")
	})
	r.GET("/x", func(c *gin.Context) { t.Fatalf("handler must not run") })

	base := testutil.ToFloat64(httpRejected.WithLabelValues("test_reject"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusTeapot {
		t.Fatalf("status = %d", w.Code)
	}
	if got := testutil.ToFloat64(httpRejected.WithLabelValues("test_reject")); got != base+1 {
		t.Fatalf("rejected counter = %v; want %v", got, base+1)
	}
}
