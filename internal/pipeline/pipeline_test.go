package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/webdis-go/webdis-go/internal/aclengine"
	"github.com/webdis-go/webdis-go/internal/config"
	"github.com/webdis-go/webdis-go/internal/upstream"
	"github.com/webdis-go/webdis-go/internal/upstreamtest"
)

func newTestGateway(t *testing.T, rules []config.ACLRule) *Gateway {
	t.Helper()
	fr, err := upstreamtest.NewFakeRedis()
	if err != nil {
		t.Fatalf("NewFakeRedis: %v", err)
	}
	t.Cleanup(fr.Close)

	host, port := fr.Addr()
	session := upstream.New(upstream.Config{Host: host, Port: port}, zap.NewNop())
	t.Cleanup(session.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, _, err := session.AwaitConn(ctx); err != nil {
		t.Fatalf("session never connected: %v", err)
	}

	return &Gateway{
		Upstream: session,
		ACL:      aclengine.New(rules),
		Logger:   zap.NewNop(),
	}
}

func TestServeHTTPGetJSON(t *testing.T) {
	gw := newTestGateway(t, nil)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/SET/foo/bar", nil)
	gw.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("SET status = %d, body=%s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/GET/foo", nil)
	gw.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("GET status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	want := `{"GET":[true,"bar"]}`
	if rr.Body.String() != want {
		t.Errorf("body = %s, want %s", rr.Body.String(), want)
	}
}

func TestServeHTTPGetMissingKeyIsNull(t *testing.T) {
	gw := newTestGateway(t, nil)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/GET/nope", nil)
	gw.ServeHTTP(rr, req)
	if rr.Body.String() != `{"GET":null}` {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestServeHTTPETagNotModified(t *testing.T) {
	gw := newTestGateway(t, nil)
	rr := httptest.NewRecorder()
	gw.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/SET/foo/bar", nil))

	rr = httptest.NewRecorder()
	gw.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/GET/foo", nil))
	tag := rr.Header().Get("ETag")
	if tag == "" {
		t.Fatal("expected an ETag header")
	}

	rr2 := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/GET/foo", nil)
	req.Header.Set("If-None-Match", tag)
	gw.ServeHTTP(rr2, req)
	if rr2.Code != http.StatusNotModified {
		t.Errorf("status = %d, want 304", rr2.Code)
	}
}

func TestServeHTTPACLDeny(t *testing.T) {
	gw := newTestGateway(t, []config.ACLRule{{Verb: "GET", Enabled: true}})
	rr := httptest.NewRecorder()
	gw.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/SET/foo/bar", nil))
	if rr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rr.Code)
	}
}

func TestServeHTTPACLAllow(t *testing.T) {
	gw := newTestGateway(t, []config.ACLRule{{Verb: "GET", Enabled: true}})
	rr := httptest.NewRecorder()
	gw.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/GET/foo", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
}

func TestServeHTTPMethodNotAllowed(t *testing.T) {
	gw := newTestGateway(t, nil)
	rr := httptest.NewRecorder()
	gw.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/GET/foo", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rr.Code)
	}
}

func TestServeHTTPOptionsCORS(t *testing.T) {
	gw := newTestGateway(t, nil)
	rr := httptest.NewRecorder()
	gw.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/GET/foo", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("missing CORS header")
	}
}

func TestServeHTTPCrossDomainPolicy(t *testing.T) {
	gw := newTestGateway(t, nil)
	rr := httptest.NewRecorder()
	gw.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/crossdomain.xml", nil))
	if rr.Header().Get("Content-Type") != "application/xml" {
		t.Errorf("Content-Type = %q", rr.Header().Get("Content-Type"))
	}
	if rr.Body.Len() == 0 {
		t.Error("expected a non-empty crossdomain.xml body")
	}
}

func TestServeHTTPPostBody(t *testing.T) {
	gw := newTestGateway(t, nil)
	rr := httptest.NewRecorder()
	postReq := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("SET/k1/v1"))
	gw.ServeHTTP(rr, postReq)
	if rr.Code != http.StatusOK {
		t.Fatalf("POST status = %d, body=%s", rr.Code, rr.Body.String())
	}
}
