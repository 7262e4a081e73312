// Package metadata resolves best-effort titles and thumbnails for saved
// links. Every strategy is bounded by its own timeout and every failure
// degrades to an empty result; nothing in this package returns an error to
// its caller.
package metadata

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// Many platforms serve stripped-down HTML (without OG tags) to agents that
// do not look like a browser.
const userAgent = "Mozilla/5.0 (compatible; LinkSaver/1.0; +https://github.com/linksaver/linksaver)"

const (
	ogFetchTimeout       = 8 * time.Second
	oembedFetchTimeout   = 5 * time.Second
	platformFetchTimeout = 8 * time.Second

	maxTitleLen = 500
	maxBodySize = 1 << 20 // HTML beyond 1 MiB has no useful meta tags
)

// Metadata is the best-effort result of resolution. Empty fields mean the
// field could not be resolved.
type Metadata struct {
	Title        string
	ThumbnailURL string
}

// Resolver discovers link metadata. The interface hides the regex-based
// extraction so it could be swapped for a real HTML parser without touching
// the fallback-chain orchestration.
type Resolver interface {
	// Resolve fetches title and thumbnail for a freshly saved link.
	Resolve(ctx context.Context, url string) Metadata
	// ResolveThumbnail retries thumbnail discovery for a link whose
	// thumbnail is still missing, using the platform fallback chain only.
	ResolveThumbnail(ctx context.Context, url string) string
}

// HTTPResolver implements Resolver with plain HTTP fetches and tolerant
// meta-tag pattern matching.
type HTTPResolver struct {
	client         *http.Client
	oembedEndpoint string
}

// NewHTTPResolver creates the production resolver. Timeouts are applied
// per call, not on the client.
func NewHTTPResolver() *HTTPResolver {
	return &HTTPResolver{
		client:         &http.Client{},
		oembedEndpoint: "https://api.instagram.com/oembed",
	}
}

var (
	youtubeVideoIDRe = regexp.MustCompile(`(?i)(?:youtube\.com/watch\?v=|youtube\.com/shorts/|youtu\.be/)([a-zA-Z0-9_-]{11})`)
	instagramRe      = regexp.MustCompile(`(?i)instagram\.com|instagr\.am`)
	facebookRe       = regexp.MustCompile(`(?i)facebook\.com|fb\.watch|fb\.com`)
	linkedinRe       = regexp.MustCompile(`(?i)linkedin\.com`)
)

// metaPatterns builds attribute-order-agnostic patterns for a meta tag:
// attribute order inside the tag is not guaranteed, so both orders are tried.
func metaPatterns(attr, value string) []*regexp.Regexp {
	v := regexp.QuoteMeta(value)
	return []*regexp.Regexp{
		regexp.MustCompile(`(?i)<meta[^>]*` + attr + `=["']` + v + `["'][^>]*content=["']([^"']+)["']`),
		regexp.MustCompile(`(?i)<meta[^>]*content=["']([^"']+)["'][^>]*` + attr + `=["']` + v + `["']`),
	}
}

func concat(groups ...[]*regexp.Regexp) []*regexp.Regexp {
	var out []*regexp.Regexp
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

var (
	ogTitlePatterns = metaPatterns("property", "og:title")
	ogImagePatterns = metaPatterns("property", "og:image")

	instagramImagePatterns = concat(
		metaPatterns("property", "og:image"),
		metaPatterns("name", "twitter:image"),
		metaPatterns("property", "twitter:image"),
		metaPatterns("property", "og:image:secure_url"),
	)
	facebookImagePatterns = concat(
		metaPatterns("property", "og:image"),
		metaPatterns("property", "og:video:thumbnail"),
	)
	linkedinImagePatterns = concat(
		metaPatterns("property", "og:image"),
		metaPatterns("name", "twitter:image"),
	)
)

// YouTubeThumbnailURL derives a thumbnail directly from the video ID for
// watch, shorts and short-link URLs. YouTube rarely exposes og:image to
// non-browser fetches, and the derived URL needs no network call at all.
// Returns "" for anything that is not a YouTube video URL.
func YouTubeThumbnailURL(rawURL string) string {
	match := youtubeVideoIDRe.FindStringSubmatch(rawURL)
	if match == nil {
		return ""
	}
	return "https://img.youtube.com/vi/" + match[1] + "/hqdefault.jpg"
}

// Resolve runs the ordered strategy chain: generic Open Graph fetch first,
// then the platform fallbacks for whatever is still missing.
func (r *HTTPResolver) Resolve(ctx context.Context, rawURL string) Metadata {
	var md Metadata

	if html, ok := r.fetchHTML(ctx, rawURL, ogFetchTimeout); ok {
		md.ThumbnailURL = normalizeImageURL(firstMatch(html, ogImagePatterns))
		md.Title = truncateTitle(firstMatch(html, ogTitlePatterns))
	}

	if md.ThumbnailURL == "" {
		md.ThumbnailURL = r.ResolveThumbnail(ctx, rawURL)
	}

	return md
}

// ResolveThumbnail runs the platform fallback chain only. YouTube is pure
// derivation; the others re-fetch the page with platform-specific patterns.
func (r *HTTPResolver) ResolveThumbnail(ctx context.Context, rawURL string) string {
	if thumb := YouTubeThumbnailURL(rawURL); thumb != "" {
		return thumb
	}

	switch {
	case instagramRe.MatchString(rawURL):
		return r.instagramThumbnail(ctx, rawURL)
	case facebookRe.MatchString(rawURL):
		return r.htmlThumbnail(ctx, rawURL, facebookImagePatterns)
	case linkedinRe.MatchString(rawURL):
		return r.htmlThumbnail(ctx, rawURL, linkedinImagePatterns)
	}

	return ""
}

// instagramThumbnail tries the public oEmbed endpoint first, then falls
// back to an HTML fetch with a wider pattern set.
func (r *HTTPResolver) instagramThumbnail(ctx context.Context, rawURL string) string {
	if thumb := r.oembedThumbnail(ctx, rawURL); thumb != "" {
		return thumb
	}
	return r.htmlThumbnail(ctx, rawURL, instagramImagePatterns)
}

func (r *HTTPResolver) oembedThumbnail(ctx context.Context, rawURL string) string {
	ctx, cancel := context.WithTimeout(ctx, oembedFetchTimeout)
	defer cancel()

	endpoint := r.oembedEndpoint + "?url=" + url.QueryEscape(rawURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ""
	}

	var payload struct {
		ThumbnailURL string `json:"thumbnail_url"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&payload); err != nil {
		return ""
	}

	return normalizeImageURL(payload.ThumbnailURL)
}

func (r *HTTPResolver) htmlThumbnail(ctx context.Context, rawURL string, patterns []*regexp.Regexp) string {
	html, ok := r.fetchHTML(ctx, rawURL, platformFetchTimeout)
	if !ok {
		return ""
	}
	return normalizeImageURL(firstMatch(html, patterns))
}

// fetchHTML GETs a page with a browser-like User-Agent, following
// redirects, aborting at the timeout. Any failure returns ok=false.
func (r *HTTPResolver) fetchHTML(ctx context.Context, rawURL string, timeout time.Duration) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", false
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", false
	}

	return string(body), true
}

func firstMatch(html string, patterns []*regexp.Regexp) string {
	for _, p := range patterns {
		if match := p.FindStringSubmatch(html); match != nil {
			if value := strings.TrimSpace(match[1]); value != "" {
				return value
			}
		}
	}
	return ""
}

// normalizeImageURL accepts absolute http(s) URLs and upgrades
// protocol-relative ones to https; anything else is discarded.
func normalizeImageURL(href string) string {
	href = strings.TrimSpace(href)
	switch {
	case href == "":
		return ""
	case strings.HasPrefix(href, "//"):
		return "https:" + href
	case strings.HasPrefix(href, "http://"), strings.HasPrefix(href, "https://"):
		return href
	}
	return ""
}

func truncateTitle(title string) string {
	if runes := []rune(title); len(runes) > maxTitleLen {
		return string(runes[:maxTitleLen])
	}
	return title
}
