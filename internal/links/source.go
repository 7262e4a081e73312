package links

import (
	"strings"

	"github.com/linksaver/linksaver/internal/models"
)

// sourceRules are checked in order; the first hostname fragment found in
// the URL wins. fb.watch and youtu.be style short domains are included so
// shared mobile links classify the same as their canonical form.
var sourceRules = []struct {
	source    string
	fragments []string
}{
	{models.SourceInstagram, []string{"instagram.com", "instagr.am"}},
	{models.SourceFacebook, []string{"facebook.com", "fb.com", "fb.me", "fb.watch"}},
	{models.SourceTwitter, []string{"twitter.com", "x.com"}},
	{models.SourceTikTok, []string{"tiktok.com"}},
	{models.SourceYouTube, []string{"youtube.com", "youtu.be"}},
	{models.SourceLinkedIn, []string{"linkedin.com"}},
}

// InferSource classifies a URL by platform. Unknown URLs fall back to
// "other" rather than failing.
func InferSource(rawURL string) string {
	lower := strings.ToLower(rawURL)
	for _, rule := range sourceRules {
		for _, fragment := range rule.fragments {
			if strings.Contains(lower, fragment) {
				return rule.source
			}
		}
	}
	return models.SourceOther
}

var validCategories = map[string]struct{}{
	"nature":        {},
	"cooking":       {},
	"food":          {},
	"sports":        {},
	"music":         {},
	"tech":          {},
	"entertainment": {},
	"other":         {},
}

// ValidCategory reports whether a category is one of the supported values.
func ValidCategory(category string) bool {
	_, ok := validCategories[category]
	return ok
}
