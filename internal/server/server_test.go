package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ytget/biliurl"
	"github.com/ytget/biliurl/errs"
	"github.com/ytget/biliurl/types"
)

type fakeResolver struct {
	url       string
	canonical string
	err       error
	lastReq   biliurl.Request
}

func (f *fakeResolver) Resolve(_ context.Context, req biliurl.Request) (string, *types.Playback, error) {
	f.lastReq = req
	if f.err != nil {
		return "", nil, f.err
	}
	return f.url, &types.Playback{URL: f.url}, nil
}

func (f *fakeResolver) ResolveCanonical(_ context.Context, link string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.canonical == "" {
		return link, nil
	}
	return f.canonical, nil
}

func newTestHandler(t *testing.T, r Resolver) http.Handler {
	t.Helper()
	srv, err := New(r, Config{Addr: ":0", DefaultQuality: "112"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv.Handler()
}

func do(t *testing.T, h http.Handler, method, target string) (*http.Response, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	resp := rec.Result()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func assertCORS(t *testing.T, resp *http.Response) {
	t.Helper()
	want := map[string]string{
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Methods": "GET,HEAD,POST,OPTIONS",
		"Access-Control-Max-Age":       "86400",
	}
	for k, v := range want {
		if got := resp.Header.Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(nil, Config{Addr: ":0"}); err == nil {
		t.Error("expected error without resolver")
	}
	if _, err := New(&fakeResolver{}, Config{}); err == nil {
		t.Error("expected error without address")
	}
}

func TestDownload(t *testing.T) {
	fr := &fakeResolver{url: "https://upos.example/v.flv?x=1"}
	h := newTestHandler(t, fr)

	resp, body := do(t, h, http.MethodGet, "/api/download?bilibili=https://b23.tv/abc&qn=80")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %q", resp.StatusCode, body)
	}
	if body != fr.url {
		t.Fatalf("body = %q", body)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
	assertCORS(t, resp)
	if fr.lastReq.Link != "https://b23.tv/abc" || fr.lastReq.Quality != "80" {
		t.Fatalf("request = %+v", fr.lastReq)
	}
}

func TestDownloadDefaultQuality(t *testing.T) {
	fr := &fakeResolver{url: "u"}
	h := newTestHandler(t, fr)
	do(t, h, http.MethodGet, "/api/download?bilibili=https://b23.tv/abc")
	if fr.lastReq.Quality != "112" {
		t.Fatalf("quality = %q, want default 112", fr.lastReq.Quality)
	}
}

func TestDownloadMissingLink(t *testing.T) {
	h := newTestHandler(t, &fakeResolver{})
	resp, body := do(t, h, http.MethodGet, "/api/download")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.HasPrefix(body, "INPUT: ") {
		t.Fatalf("body = %q", body)
	}
	assertCORS(t, resp)
}

func TestDownloadErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "invalid link", err: errs.New(errs.KindInvalidLink, errs.StageClassify, "nope"), status: 400, code: "INVALID_LINK"},
		{name: "redirect", err: errs.New(errs.KindRedirect, errs.StageExpand, "location header is empty"), status: 400, code: "REDIRECT"},
		{name: "upstream", err: errs.Upstream(errs.StagePageList, 503, "bad"), status: 502, code: "UPSTREAM_HTTP"},
		{name: "timeout", err: errs.Transport(errs.StageKeys, "request", context.DeadlineExceeded, true), status: 504, code: "UPSTREAM_HTTP"},
		{name: "shape", err: errs.New(errs.KindResponseShape, errs.StagePlayURL, "durl is empty"), status: 502, code: "RESPONSE_SHAPE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, &fakeResolver{err: tt.err})
			resp, body := do(t, h, http.MethodGet, "/api/download?bilibili=x")
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if !strings.HasPrefix(body, tt.code+": ") {
				t.Fatalf("body = %q, want code %s", body, tt.code)
			}
		})
	}
}

func TestGetReal(t *testing.T) {
	h := newTestHandler(t, &fakeResolver{canonical: "https://www.bilibili.com/video/BV1xx411c7mD"})
	resp, body := do(t, h, http.MethodGet, "/api/getreal?bilibili=https://b23.tv/abc")
	if resp.StatusCode != http.StatusOK || body != "https://www.bilibili.com/video/BV1xx411c7mD" {
		t.Fatalf("got %d %q", resp.StatusCode, body)
	}
	assertCORS(t, resp)
}

func TestPreflight(t *testing.T) {
	h := newTestHandler(t, &fakeResolver{})
	for _, path := range []string{"/api/download", "/api/getreal"} {
		resp, _ := do(t, h, http.MethodOptions, path)
		if resp.StatusCode != http.StatusNoContent {
			t.Errorf("OPTIONS %s = %d", path, resp.StatusCode)
		}
		assertCORS(t, resp)
	}
}

func TestHealthzAndNotFound(t *testing.T) {
	h := newTestHandler(t, &fakeResolver{})
	if resp, body := do(t, h, http.MethodGet, "/healthz"); resp.StatusCode != 200 || body != "ok" {
		t.Fatalf("healthz = %d %q", resp.StatusCode, body)
	}
	resp, _ := do(t, h, http.MethodGet, "/nope")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown route = %d", resp.StatusCode)
	}
	assertCORS(t, resp)
}

func TestUpstreamFailureThroughResolver(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer api.Close()

	h := newTestHandler(t, biliurl.New().WithAPIBase(api.URL))
	resp, body := do(t, h, http.MethodGet, "/api/download?bilibili=https://www.bilibili.com/video/BV1xx411c7mD")
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, body %q", resp.StatusCode, body)
	}
	if !strings.Contains(body, "503") || !strings.Contains(body, "pagelist") {
		t.Fatalf("body should reference the failing stage and upstream status: %q", body)
	}
}
