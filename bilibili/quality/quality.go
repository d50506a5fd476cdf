// Package quality normalizes playurl quality codes (qn).
package quality

import (
	"sort"
	"strconv"
	"strings"
)

// Default is used whenever the requested code is absent or not accepted.
const Default = "112"

// labels lists every accepted qn with its display name.
var labels = map[int]string{
	32:  "480P",
	64:  "720P",
	74:  "720P60",
	80:  "1080P",
	112: "1080P+",
	116: "1080P60",
	120: "4K",
}

// Accepted returns the accepted codes in ascending order.
func Accepted() []int {
	out := make([]int, 0, len(labels))
	for qn := range labels {
		out = append(out, qn)
	}
	sort.Ints(out)
	return out
}

// IsAccepted reports whether code, after trimming, is exactly one of the
// accepted codes. Leading zeros and signs are rejected.
func IsAccepted(code string) bool {
	code = strings.TrimSpace(code)
	n, err := strconv.Atoi(code)
	if err != nil || strconv.Itoa(n) != code {
		return false
	}
	_, ok := labels[n]
	return ok
}

// Normalize returns the trimmed code when it is accepted and Default otherwise.
func Normalize(code string) string {
	if IsAccepted(code) {
		return strings.TrimSpace(code)
	}
	return Default
}

// Describe returns the display name of qn, or "" for unknown codes.
func Describe(qn int) string {
	return labels[qn]
}
