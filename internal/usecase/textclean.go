package usecase

import (
	"regexp"
	"strings"
)

var (
	markdownLinkRe = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^\)]+)\)`)
	bareURLRe      = regexp.MustCompile(`https?://[^\s\n)]+`)
	emptyParenRe   = regexp.MustCompile(`\(\s*\)`)
	spaceRunRe     = regexp.MustCompile(`[ \t]{2,}`)

	// Pictographs, dingbats, flags, variation selectors and joiners.
	// Hangul and CJK ranges are deliberately left alone.
	emojiRe = regexp.MustCompile(`[\x{1F000}-\x{1FAFF}\x{2600}-\x{27BF}\x{2B00}-\x{2BFF}\x{1F1E6}-\x{1F1FF}\x{FE0E}\x{FE0F}\x{200D}\x{20E3}\x{E0020}-\x{E007F}]`)
)

// speechText prepares reply text for synthesis: markdown links keep their
// title, raw URLs and emoji are removed, and leftover "()" is dropped.
func speechText(s string) string {
	s = markdownLinkRe.ReplaceAllString(s, "$1")
	s = bareURLRe.ReplaceAllString(s, "")
	s = emojiRe.ReplaceAllString(s, "")
	s = emptyParenRe.ReplaceAllString(s, "")
	s = spaceRunRe.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, ln := range lines {
		ln = strings.TrimSpace(ln)
		if ln != "" {
			out = append(out, ln)
		}
	}
	return strings.Join(out, "\n")
}
