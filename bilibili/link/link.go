// Package link classifies Bilibili share links, expands b23.tv short links and
// extracts BV identifiers from canonical links.
package link

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/ytget/biliurl/client"
	"github.com/ytget/biliurl/errs"
	"github.com/ytget/biliurl/internal/logger"
)

const (
	shortHost    = "b23.tv"
	platformHost = "bilibili.com"
	bvidPrefix   = "BV"
)

// Kind is the classification of a raw link.
type Kind int

const (
	// Invalid links match neither the short nor the platform domain.
	Invalid Kind = iota
	// Short links live on b23.tv and must be expanded first.
	Short
	// Platform links live on bilibili.com and are used directly.
	Platform
)

func (k Kind) String() string {
	switch k {
	case Short:
		return "short"
	case Platform:
		return "platform"
	default:
		return "invalid"
	}
}

// Classify reports whether raw is a short link, a platform link or neither.
// Links without a scheme are read as https.
func Classify(raw string) Kind {
	u, err := parseLoose(raw)
	if err != nil {
		return Invalid
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case matchesDomain(host, shortHost):
		return Short
	case matchesDomain(host, platformHost):
		return Platform
	default:
		return Invalid
	}
}

// ExtractBVID returns the first path segment of canonical starting with "BV".
func ExtractBVID(canonical string) (string, error) {
	path := canonical
	if u, err := parseLoose(canonical); err == nil {
		path = u.Path
	}
	for _, seg := range strings.Split(path, "/") {
		if strings.HasPrefix(seg, bvidPrefix) && len(seg) > len(bvidPrefix) {
			return seg, nil
		}
	}
	return "", errs.New(errs.KindMissingIdentifier, errs.StageExtract, "no BV identifier in link "+canonical)
}

// Expander expands short links by reading a single redirect response.
type Expander struct {
	client *client.Client
	log    *logger.ComponentLogger
}

// NewExpander creates an Expander that sends its request through c with
// redirect following disabled.
func NewExpander(c *client.Client) *Expander {
	if c == nil {
		c = client.New()
	}
	return &Expander{client: c.NoRedirect(), log: logger.WithComponent(logger.ComponentLink)}
}

// Expand issues one GET for short and returns origin+path of its Location.
// Query and fragment of the target are dropped.
func (e *Expander) Expand(ctx context.Context, short string) (string, error) {
	u, err := parseLoose(short)
	if err != nil {
		return "", errs.Wrap(errs.KindInput, errs.StageExpand, "parse short link", err)
	}

	resp, cancel, err := e.client.Get(ctx, u.String(), nil)
	if err != nil {
		return "", errs.Transport(errs.StageExpand, "request short link", err, client.IsTimeout(err))
	}
	defer cancel()
	_ = resp.Body.Close()

	location := strings.TrimSpace(resp.Header.Get("Location"))
	e.log.Debug("short link response", map[string]interface{}{
		"status":   resp.StatusCode,
		"location": location,
	})
	if location == "" {
		if resp.StatusCode >= http.StatusBadRequest {
			return "", errs.Upstream(errs.StageExpand, resp.StatusCode, "short link did not redirect")
		}
		return "", errs.New(errs.KindRedirect, errs.StageExpand, "location header is empty")
	}

	target, err := u.Parse(location)
	if err != nil {
		return "", errs.Wrap(errs.KindRedirect, errs.StageExpand, "parse location header", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return "", errs.New(errs.KindRedirect, errs.StageExpand, "location is not an absolute url: "+location)
	}
	return target.Scheme + "://" + target.Host + target.EscapedPath(), nil
}

func matchesDomain(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func parseLoose(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errs.New(errs.KindInput, errs.StageInput, "link is empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Host == "" {
		return nil, errs.New(errs.KindInput, errs.StageInput, "link has no host")
	}
	return u, nil
}
