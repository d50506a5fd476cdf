package wbi

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ytget/biliurl/types"
)

const (
	mixinKeyLen   = 32
	keyFragLen    = 32
	paramWts      = "wts"
	paramWRid     = "w_rid"
	filteredChars = "!'()*"
)

// mixinKeyEncTab is the platform's published permutation over img_key+sub_key.
var mixinKeyEncTab = [64]int{
	46, 47, 18, 2, 53, 8, 23, 32, 15, 50, 10, 31, 58, 3, 45, 35, 27, 43, 5, 49,
	33, 9, 42, 19, 29, 28, 14, 39, 12, 38, 41, 13, 37, 48, 7, 16, 24, 55, 40, 61,
	26, 17, 0, 1, 60, 51, 30, 4, 22, 25, 54, 21, 56, 59, 6, 63, 57, 62, 11, 36,
	20, 34, 44, 52,
}

// ErrBadKeyFragment is returned when a key fragment cannot be derived from a
// nav URL.
var ErrBadKeyFragment = errors.New("wbi: malformed key fragment url")

// Mixer derives the 32-character mixin key from the concatenated fragments.
type Mixer interface {
	Mix(orig string) (string, error)
}

// TableMixer applies the built-in permutation table.
type TableMixer struct{}

// Mix implements Mixer.
func (TableMixer) Mix(orig string) (string, error) {
	if len(orig) != len(mixinKeyEncTab) {
		return "", errors.New("wbi: key fragments must total 64 characters")
	}
	return MixinKey(orig), nil
}

// MixinKey selects characters of orig in table order and truncates to 32.
// Indices beyond len(orig) are skipped.
func MixinKey(orig string) string {
	var b strings.Builder
	b.Grow(mixinKeyLen)
	for _, n := range mixinKeyEncTab {
		if n < len(orig) {
			b.WriteByte(orig[n])
		}
		if b.Len() == mixinKeyLen {
			break
		}
	}
	return b.String()
}

// KeyFromURL returns the file name of a nav image URL without its
// extension: the text after the last '/' and before the last '.'.
func KeyFromURL(raw string) (string, error) {
	slash := strings.LastIndex(raw, "/")
	dot := strings.LastIndex(raw, ".")
	if raw == "" || dot <= slash+1 {
		return "", ErrBadKeyFragment
	}
	key := raw[slash+1 : dot]
	if len(key) != keyFragLen {
		return "", ErrBadKeyFragment
	}
	return key, nil
}

// Params is the set of query fields to sign. Keys are case-sensitive.
type Params map[string]string

// PlayURLParams builds the playurl parameter set for one part at quality qn.
func PlayURLParams(bvid, cid, qn string) Params {
	return Params{
		"bvid":  bvid,
		"cid":   cid,
		"qn":    qn,
		"fnval": "1",
		"fnver": "0",
		"fourk": "1",
	}
}

// Signer signs parameter sets with a fixed pair of key fragments.
type Signer struct {
	mixinKey string
	now      func() time.Time
}

// NewSigner derives the mixin key from keys using mixer (TableMixer when nil).
func NewSigner(keys types.SigningKeys, mixer Mixer) (*Signer, error) {
	if mixer == nil {
		mixer = TableMixer{}
	}
	mk, err := mixer.Mix(keys.ImgKey + keys.SubKey)
	if err != nil {
		return nil, err
	}
	if len(mk) != mixinKeyLen {
		return nil, errors.New("wbi: mixin key must be 32 characters, got " + strconv.Itoa(len(mk)))
	}
	return &Signer{mixinKey: mk, now: time.Now}, nil
}

// WithClock overrides the source of the wts timestamp.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	if now != nil {
		s.now = now
	}
	return s
}

// MixinKey returns the derived key.
func (s *Signer) MixinKey() string { return s.mixinKey }

// Sign returns the canonical query for params plus a trailing w_rid.
// params is not modified.
func (s *Signer) Sign(params Params) string {
	return Sign(params, s.mixinKey, s.now())
}

// Sign stamps params with wts=at, canonicalizes them and appends
// w_rid=md5(query+mixinKey) in lowercase hex.
func Sign(params Params, mixinKey string, at time.Time) string {
	query := Canonical(params, at)
	sum := md5.Sum([]byte(query + mixinKey))
	return query + "&" + paramWRid + "=" + hex.EncodeToString(sum[:])
}

// Canonical returns the sorted, filtered and percent-encoded query for params
// with wts=at injected.
func Canonical(params Params, at time.Time) string {
	all := make(Params, len(params)+1)
	for k, v := range params {
		all[k] = v
	}
	all[paramWts] = strconv.FormatInt(at.Unix(), 10)

	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		v := stripFiltered(all[k])
		pairs = append(pairs, encodeURIComponent(k)+"="+encodeURIComponent(v))
	}
	return strings.Join(pairs, "&")
}

func stripFiltered(v string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(filteredChars, r) {
			return -1
		}
		return r
	}, v)
}

const upperhex = "0123456789ABCDEF"

// encodeURIComponent escapes s exactly like the JavaScript builtin of the
// same name: everything but A-Z a-z 0-9 - _ . ! ~ * ' ( ) is %XX-encoded
// byte by byte from UTF-8.
func encodeURIComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
