package biliurl

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ytget/biliurl/bilibili/api"
	"github.com/ytget/biliurl/bilibili/link"
	"github.com/ytget/biliurl/bilibili/quality"
	"github.com/ytget/biliurl/bilibili/wbi"
	"github.com/ytget/biliurl/client"
	"github.com/ytget/biliurl/errs"
	"github.com/ytget/biliurl/internal/logger"
	"github.com/ytget/biliurl/types"
)

// Options holds the resolver configuration. Use the chainable setters on
// Resolver to populate it.
type Options struct {
	Session    string
	Quality    string
	APIBase    string
	HTTPClient *http.Client
	Client     *client.Client
	Mixer      wbi.Mixer
	Now        func() time.Time
}

// Request is a single resolution. Empty Quality and Session fall back to the
// resolver's configuration.
type Request struct {
	Link    string
	Quality string
	Session string
}

// Resolver turns Bilibili share links into direct media URLs. It keeps no
// state between calls and is safe for concurrent use once configured.
type Resolver struct {
	options Options
}

// New creates a Resolver with anonymous access and the default quality.
func New() *Resolver {
	return &Resolver{options: Options{Quality: quality.Default}}
}

// WithSession sets the SESSDATA cookie value sent to the playurl endpoint.
func (r *Resolver) WithSession(session string) *Resolver {
	r.options.Session = strings.TrimSpace(session)
	return r
}

// WithQuality sets the default quality code. Unknown codes resolve to
// quality.Default.
func (r *Resolver) WithQuality(qn string) *Resolver {
	r.options.Quality = quality.Normalize(qn)
	return r
}

// WithAPIBase overrides the API origin (api.DefaultBaseURL when empty).
func (r *Resolver) WithAPIBase(base string) *Resolver {
	r.options.APIBase = base
	return r
}

// WithHTTPClient sets a custom HTTP client used for every upstream call.
func (r *Resolver) WithHTTPClient(hc *http.Client) *Resolver {
	r.options.HTTPClient = hc
	return r
}

// WithClient sets a preconfigured client (timeouts, proxy, rate limit).
func (r *Resolver) WithClient(c *client.Client) *Resolver {
	r.options.Client = c
	return r
}

// WithMixer replaces the built-in mixin table.
func (r *Resolver) WithMixer(m wbi.Mixer) *Resolver {
	r.options.Mixer = m
	return r
}

// WithClock overrides the wts timestamp source.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.options.Now = now
	return r
}

// ResolveURL resolves rawLink with the configured session and quality and
// returns the first direct URL together with the playback metadata.
func (r *Resolver) ResolveURL(ctx context.Context, rawLink string) (string, *types.Playback, error) {
	return r.Resolve(ctx, Request{Link: rawLink})
}

// Resolve runs the whole pipeline for req: classify, expand short links,
// look up the first part, fetch WBI keys, sign and query playurl. Any stage
// failure aborts the call.
func (r *Resolver) Resolve(ctx context.Context, req Request) (string, *types.Playback, error) {
	log := logger.WithComponent(logger.ComponentResolver)

	qn := r.options.Quality
	if strings.TrimSpace(req.Quality) != "" {
		qn = quality.Normalize(req.Quality)
	}
	if qn == "" {
		qn = quality.Default
	}
	session := r.options.Session
	if s := strings.TrimSpace(req.Session); s != "" {
		session = s
	}

	c := r.httpClient()
	apiClient := api.New(c, r.options.APIBase)

	ref, err := r.reference(ctx, c, apiClient, req.Link)
	if err != nil {
		log.Warn("resolve failed", map[string]interface{}{"link": req.Link, "error": err.Error()})
		return "", nil, err
	}

	keys, err := apiClient.Nav(ctx)
	if err != nil {
		log.Warn("resolve failed", map[string]interface{}{"bvid": ref.BVID, "error": err.Error()})
		return "", nil, err
	}
	signer, err := wbi.NewSigner(keys, r.options.Mixer)
	if err != nil {
		return "", nil, errs.Wrap(errs.KindResponseShape, errs.StageSign, "derive mixin key", err)
	}
	signer.WithClock(r.options.Now)
	query := signer.Sign(wbi.PlayURLParams(ref.BVID, ref.CID, qn))
	logger.WithComponent(logger.ComponentWBI).Debug("query signed", map[string]interface{}{"query": query})

	pb, err := apiClient.PlayURL(ctx, query, session)
	if err != nil {
		log.Warn("resolve failed", map[string]interface{}{"bvid": ref.BVID, "error": err.Error()})
		return "", nil, err
	}

	log.Info("resolved", map[string]interface{}{
		"bvid":    ref.BVID,
		"cid":     ref.CID,
		"qn":      qn,
		"quality": pb.Quality,
		"session": session != "",
	})
	return pb.URL, pb, nil
}

// ResolveCanonical returns rawLink unchanged when it is a platform link and
// the expanded origin+path when it is a short link.
func (r *Resolver) ResolveCanonical(ctx context.Context, rawLink string) (string, error) {
	return canonical(ctx, r.httpClient(), rawLink)
}

// Reference resolves rawLink down to its first part without touching the
// signed endpoints.
func (r *Resolver) Reference(ctx context.Context, rawLink string) (*types.VideoReference, error) {
	c := r.httpClient()
	return r.reference(ctx, c, api.New(c, r.options.APIBase), rawLink)
}

func (r *Resolver) reference(ctx context.Context, c *client.Client, apiClient *api.Client, rawLink string) (*types.VideoReference, error) {
	canon, err := canonical(ctx, c, rawLink)
	if err != nil {
		return nil, err
	}
	bvid, err := link.ExtractBVID(canon)
	if err != nil {
		return nil, err
	}
	cid, err := apiClient.PageList(ctx, bvid)
	if err != nil {
		return nil, err
	}
	return &types.VideoReference{
		RawLink:       rawLink,
		CanonicalLink: canon,
		BVID:          bvid,
		CID:           cid,
	}, nil
}

func canonical(ctx context.Context, c *client.Client, rawLink string) (string, error) {
	rawLink = strings.TrimSpace(rawLink)
	if rawLink == "" {
		return "", errs.New(errs.KindInput, errs.StageInput, "link is required")
	}
	switch link.Classify(rawLink) {
	case link.Short:
		return link.NewExpander(c).Expand(ctx, rawLink)
	case link.Platform:
		return rawLink, nil
	default:
		return "", errs.New(errs.KindInvalidLink, errs.StageClassify, "not a bilibili or b23.tv link: "+rawLink)
	}
}

func (r *Resolver) httpClient() *client.Client {
	c := r.options.Client
	if c == nil {
		c = client.New()
	}
	if r.options.HTTPClient != nil {
		c = c.WithHTTPClient(r.options.HTTPClient)
	}
	return c
}
