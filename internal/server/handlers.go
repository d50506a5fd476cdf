package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/ytget/biliurl"
	"github.com/ytget/biliurl/errs"
	"github.com/ytget/biliurl/internal/logger"
)

const (
	paramLink    = "bilibili"
	paramQuality = "qn"

	contentTypeText = "text/plain; charset=utf-8"
)

type handlers struct {
	resolver       Resolver
	defaultQuality string
	log            *logger.ComponentLogger
}

// download answers GET /api/download?bilibili=<link>&qn=<code> with the
// direct media URL.
func (h *handlers) download(w http.ResponseWriter, r *http.Request) {
	link, ok := h.requireLink(w, r)
	if !ok {
		return
	}
	qn := strings.TrimSpace(r.URL.Query().Get(paramQuality))
	if qn == "" {
		qn = h.defaultQuality
	}

	u, _, err := h.resolver.Resolve(r.Context(), biliurl.Request{Link: link, Quality: qn})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeText(w, http.StatusOK, u)
}

// getReal answers GET /api/getreal?bilibili=<link> with the canonical link.
func (h *handlers) getReal(w http.ResponseWriter, r *http.Request) {
	link, ok := h.requireLink(w, r)
	if !ok {
		return
	}
	canon, err := h.resolver.ResolveCanonical(r.Context(), link)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeText(w, http.StatusOK, canon)
}

func (h *handlers) healthz(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "ok")
}

func (h *handlers) requireLink(w http.ResponseWriter, r *http.Request) (string, bool) {
	link := strings.TrimSpace(r.URL.Query().Get(paramLink))
	if link == "" {
		h.writeError(w, errs.New(errs.KindInput, errs.StageInput, "missing "+paramLink+" parameter"))
		return "", false
	}
	return link, true
}

// writeError renders err as "<CODE>: <message>" with the status mapped from
// its kind.
func (h *handlers) writeError(w http.ResponseWriter, err error) {
	status := errs.HTTPStatus(err)
	h.log.Warn("request failed", map[string]interface{}{
		"status": status,
		"code":   errs.KindOf(err).Code(),
		"error":  err.Error(),
	})
	writeText(w, status, errs.KindOf(err).Code()+": "+err.Error())
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", contentTypeText)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
