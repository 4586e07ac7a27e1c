// Package fallback synthesizes deterministic placeholder content for requests
// whose provider attempts all failed. Nothing here performs I/O.
package fallback

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/semantrix/adaptroute/internal/models"
)

// Platform names recognized as hints.
const (
	PlatformTwitter   = "twitter"
	PlatformLinkedIn  = "linkedin"
	PlatformInstagram = "instagram"
	PlatformFacebook  = "facebook"
	PlatformTikTok    = "tiktok"
	PlatformBlog      = "blog"
	PlatformEmail     = "email"
	PlatformGeneric   = "generic"
)

// TwitterLimit is the maximum length of twitter-flavored fallback text.
const TwitterLimit = 280

// Placeholder is returned when nothing usable can be extracted from the prompt.
const Placeholder = "Content generation is temporarily unavailable. Please try again in a few moments."

const excerptLimit = 600

var (
	// "Original content: """..."""" and the same with single triple quotes.
	tripleQuoted = regexp.MustCompile(`(?is)original\s+content\s*:?\s*(?:"""|''')(.+?)(?:"""|''')`)
	// "Original content: "..."".
	quoted = regexp.MustCompile(`(?is)original\s+content\s*:?\s*"([^"]+)"`)
	// "Original content:" followed by text up to a blank line or the end.
	labeled = regexp.MustCompile(`(?is)original\s+content\s*:\s*(.+?)(?:\n\s*\n|$)`)

	whitespace = regexp.MustCompile(`\s+`)
)

// platformAliases maps prompt words to platforms, checked in order.
var platformAliases = []struct {
	platform string
	words    []string
}{
	{PlatformTwitter, []string{"twitter", "tweet", "x.com", "x post", "x thread"}},
	{PlatformLinkedIn, []string{"linkedin"}},
	{PlatformInstagram, []string{"instagram", "insta "}},
	{PlatformFacebook, []string{"facebook"}},
	{PlatformTikTok, []string{"tiktok", "tik tok"}},
	{PlatformEmail, []string{"email", "e-mail", "newsletter"}},
	{PlatformBlog, []string{"blog", "article"}},
}

// Synthesize returns fallback text for req. It is deterministic and never
// returns an empty string.
func Synthesize(req models.GenerationRequest, platformHint string) string {
	platform := NormalizePlatform(platformHint)
	if platform == "" {
		platform = InferPlatform(req.Prompt)
	}

	excerpt := ExtractOriginal(req.Prompt)
	if excerpt == "" {
		return Placeholder
	}

	return render(platform, excerpt)
}

// NormalizePlatform maps a hint to a known platform, or "" when unrecognized.
func NormalizePlatform(hint string) string {
	switch strings.ToLower(strings.TrimSpace(hint)) {
	case "twitter", "x":
		return PlatformTwitter
	case "linkedin":
		return PlatformLinkedIn
	case "instagram", "ig":
		return PlatformInstagram
	case "facebook", "fb":
		return PlatformFacebook
	case "tiktok":
		return PlatformTikTok
	case "blog", "article":
		return PlatformBlog
	case "email", "newsletter":
		return PlatformEmail
	case "generic":
		return PlatformGeneric
	default:
		return ""
	}
}

// InferPlatform finds the first platform named in prompt.
func InferPlatform(prompt string) string {
	lower := strings.ToLower(prompt)
	for _, alias := range platformAliases {
		for _, w := range alias.words {
			if strings.Contains(lower, w) {
				return alias.platform
			}
		}
	}
	return PlatformGeneric
}

// ExtractOriginal pulls the labeled original content out of prompt. Without a
// label the whole prompt is used. The result is whitespace-collapsed and capped.
func ExtractOriginal(prompt string) string {
	var text string
	for _, re := range []*regexp.Regexp{tripleQuoted, quoted, labeled} {
		if m := re.FindStringSubmatch(prompt); len(m) > 1 {
			text = m[1]
			break
		}
	}
	if text == "" {
		text = prompt
	}

	text = strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
	return truncate(text, excerptLimit)
}

func render(platform, excerpt string) string {
	switch platform {
	case PlatformTwitter:
		return truncate(excerpt+" #update", TwitterLimit)
	case PlatformLinkedIn:
		return fmt.Sprintf("%s\n\nWhat are your thoughts? Share them in the comments.\n\n#professional #insights", excerpt)
	case PlatformInstagram:
		return fmt.Sprintf("%s\n\nDouble tap if you agree.\n\n#instagood #inspiration", excerpt)
	case PlatformFacebook:
		return fmt.Sprintf("%s\n\nLet us know what you think below.", excerpt)
	case PlatformTikTok:
		return fmt.Sprintf("%s\n\n#fyp #foryou", excerpt)
	case PlatformBlog:
		return fmt.Sprintf("## Overview\n\n%s\n\n## Key takeaways\n\n- %s", excerpt, firstSentence(excerpt))
	case PlatformEmail:
		return fmt.Sprintf("Hi there,\n\n%s\n\nBest regards", excerpt)
	default:
		return excerpt
	}
}

func firstSentence(s string) string {
	if i := strings.IndexAny(s, ".!?"); i > 0 {
		return s[:i+1]
	}
	return s
}

// truncate shortens s to at most limit runes, ending with an ellipsis when cut.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}
