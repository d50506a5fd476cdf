// Package api talks to the three api.bilibili.com endpoints the resolver
// needs: nav (WBI key fragments), pagelist (part ids) and playurl (media URLs).
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ytget/biliurl/bilibili/wbi"
	"github.com/ytget/biliurl/client"
	"github.com/ytget/biliurl/errs"
	"github.com/ytget/biliurl/internal/logger"
	"github.com/ytget/biliurl/types"
)

// DefaultBaseURL is the production API origin.
const DefaultBaseURL = "https://api.bilibili.com"

const (
	navPath      = "/x/web-interface/nav"
	pageListPath = "/x/player/pagelist"
	playURLPath  = "/x/player/playurl"

	sessionCookie = "SESSDATA"
	headerCookie  = "Cookie"
	headerAccept  = "Accept"
	acceptJSON    = "application/json, text/plain, */*"
)

// Client for the Bilibili web API.
type Client struct {
	http    *client.Client
	baseURL string
	log     *logger.ComponentLogger
}

// New creates a Client sending requests through c to baseURL
// (DefaultBaseURL when empty).
func New(c *client.Client, baseURL string) *Client {
	if c == nil {
		c = client.New()
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{http: c, baseURL: baseURL, log: logger.WithComponent(logger.ComponentAPI)}
}

// BaseURL returns the API origin requests are sent to.
func (c *Client) BaseURL() string { return c.baseURL }

// envelope is the common {code, message, data} wrapper of every endpoint.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type navData struct {
	WbiImg struct {
		ImgURL string `json:"img_url"`
		SubURL string `json:"sub_url"`
	} `json:"wbi_img"`
}

type pageEntry struct {
	CID  json.Number `json:"cid"`
	Page int         `json:"page"`
	Part string      `json:"part"`
}

type durlEntry struct {
	Order     int      `json:"order"`
	Length    int64    `json:"length"`
	Size      int64    `json:"size"`
	URL       string   `json:"url"`
	BackupURL []string `json:"backup_url"`
}

type playURLData struct {
	Quality       int         `json:"quality"`
	Format        string      `json:"format"`
	TimeLength    int64       `json:"timelength"`
	AcceptQuality []int       `json:"accept_quality"`
	Durl          []durlEntry `json:"durl"`
}

// Nav fetches the current WBI key fragments. The envelope code is not
// checked: anonymous callers get -101 together with a usable wbi_img.
func (c *Client) Nav(ctx context.Context) (types.SigningKeys, error) {
	env, err := c.get(ctx, errs.StageKeys, navPath, "", nil)
	if err != nil {
		return types.SigningKeys{}, err
	}
	var data navData
	if err := decodeData(env, &data); err != nil {
		return types.SigningKeys{}, errs.Wrap(errs.KindResponseShape, errs.StageKeys, "decode nav data", err)
	}
	img, err := wbi.KeyFromURL(data.WbiImg.ImgURL)
	if err != nil {
		return types.SigningKeys{}, errs.Wrap(errs.KindResponseShape, errs.StageKeys, "img_url", err)
	}
	sub, err := wbi.KeyFromURL(data.WbiImg.SubURL)
	if err != nil {
		return types.SigningKeys{}, errs.Wrap(errs.KindResponseShape, errs.StageKeys, "sub_url", err)
	}
	c.log.Debug("wbi keys fetched", map[string]interface{}{"nav_code": env.Code})
	return types.SigningKeys{ImgKey: img, SubKey: sub}, nil
}

// PageList returns the cid of the first part of bvid.
func (c *Client) PageList(ctx context.Context, bvid string) (string, error) {
	env, err := c.get(ctx, errs.StagePageList, pageListPath, "bvid="+url.QueryEscape(bvid), nil)
	if err != nil {
		return "", err
	}
	if env.Code != 0 {
		return "", errs.New(errs.KindResponseShape, errs.StagePageList,
			fmt.Sprintf("api code %d: %s", env.Code, env.Message))
	}
	var pages []pageEntry
	if err := decodeData(env, &pages); err != nil {
		return "", errs.Wrap(errs.KindResponseShape, errs.StagePageList, "decode page list", err)
	}
	if len(pages) == 0 {
		return "", errs.New(errs.KindResponseShape, errs.StagePageList, "page list is empty")
	}
	cid := pages[0].CID.String()
	if cid == "" || cid == "0" {
		return "", errs.New(errs.KindResponseShape, errs.StagePageList, "first page has no cid")
	}
	c.log.Debug("page list fetched", map[string]interface{}{"bvid": bvid, "cid": cid, "pages": len(pages)})
	return cid, nil
}

// PlayURL requests the playback descriptor for a signed query. session, when
// non-empty, is sent as the SESSDATA cookie.
func (c *Client) PlayURL(ctx context.Context, signedQuery, session string) (*types.Playback, error) {
	var header http.Header
	if session != "" {
		header = http.Header{headerCookie: []string{sessionCookie + "=" + session}}
	}
	env, err := c.get(ctx, errs.StagePlayURL, playURLPath, signedQuery, header)
	if err != nil {
		return nil, err
	}
	if env.Code != 0 {
		return nil, errs.New(errs.KindResponseShape, errs.StagePlayURL,
			fmt.Sprintf("api code %d: %s", env.Code, env.Message))
	}
	var data playURLData
	if err := decodeData(env, &data); err != nil {
		return nil, errs.Wrap(errs.KindResponseShape, errs.StagePlayURL, "decode playurl data", err)
	}
	if len(data.Durl) == 0 || data.Durl[0].URL == "" {
		return nil, errs.New(errs.KindResponseShape, errs.StagePlayURL, "durl is empty")
	}
	first := data.Durl[0]
	pb := &types.Playback{
		URL:           first.URL,
		BackupURLs:    first.BackupURL,
		Quality:       data.Quality,
		Format:        data.Format,
		Size:          first.Size,
		LengthMS:      first.Length,
		AcceptQuality: data.AcceptQuality,
	}
	if pb.LengthMS == 0 {
		pb.LengthMS = data.TimeLength
	}
	return pb, nil
}

func (c *Client) get(ctx context.Context, stage errs.Stage, path, query string, header http.Header) (*envelope, error) {
	u := c.baseURL + path
	if query != "" {
		u += "?" + query
	}
	if header == nil {
		header = http.Header{}
	}
	if header.Get(headerAccept) == "" {
		header.Set(headerAccept, acceptJSON)
	}

	resp, cancel, err := c.http.Get(ctx, u, header)
	if err != nil {
		return nil, errs.Transport(stage, "request "+path, err, client.IsTimeout(err))
	}
	defer cancel()
	defer func() { _ = resp.Body.Close() }()

	c.log.Trace("api response", map[string]interface{}{
		"path":     path,
		"status":   resp.StatusCode,
		"encoding": resp.Header.Get("Content-Encoding"),
	})
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errs.Upstream(stage, resp.StatusCode, path+" returned a non-success status")
	}

	body, err := client.ReadBody(resp)
	if err != nil {
		return nil, errs.Transport(stage, "read "+path+" body", err, client.IsTimeout(err))
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errs.Wrap(errs.KindResponseShape, stage, "decode "+path+" envelope", err)
	}
	return &env, nil
}

func decodeData(env *envelope, v interface{}) error {
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return fmt.Errorf("data field is missing")
	}
	return json.Unmarshal(env.Data, v)
}
