// Package biliurl resolves Bilibili share links into direct media URLs.
//
// Features:
//   - b23.tv short link expansion (single request, no redirect following)
//   - WBI request signing with the built-in table or a script override
//   - Optional SESSDATA session for higher quality tiers
//   - Quality code normalization with a fixed accepted set
//
// Usage:
//
//	url, info, err := biliurl.New().
//		WithSession(os.Getenv("SESSION")).
//		WithQuality("80").
//		ResolveURL(ctx, "https://b23.tv/xxxxxx")
package biliurl
