package usecase

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/rs/zerolog"

	"voice-companion/internal/domain"
	"voice-companion/internal/domain/model"
	"voice-companion/internal/domain/ports/adapter"
	"voice-companion/internal/infra/metrics"
)

// Link sources, in the order they are tried.
const (
	LinkSourceCitation = "citation"
	LinkSourceMarkdown = "markdown"
	LinkSourceBareURL  = "bare_url"
	LinkSourceStatic   = "static"
	LinkSourceNone     = "none"
)

const noContentText = "추천 콘텐츠를 찾지 못했어요."

// Recommendation is the outcome of the recommendation track.
type Recommendation struct {
	Links  []model.Link
	Source string
	// SearchErr is set when the search call itself failed.
	SearchErr error
}

// Recommender finds content for a dominant emotion. It never fails the
// turn: no links at all is a valid outcome.
type Recommender interface {
	Recommend(ctx context.Context, dominant model.EmotionLabel) Recommendation
}

var _ Recommender = (*recommender)(nil)

// StaticLinks is the pre-vetted fallback table keyed by emotion.
type StaticLinks map[model.EmotionLabel][]model.Link

var (
	comfortLinks = []model.Link{
		{Title: "마음이 편안해지는 로파이", URL: "https://www.youtube.com/watch?v=jfKfPfyJRdk"},
		{Title: "스트레스 해소 ASMR", URL: "https://www.youtube.com/watch?v=1ZYbU82GVz4"},
	}
	energyLinks = []model.Link{
		{Title: "신나는 팝송 플레이리스트", URL: "https://www.youtube.com/watch?v=JGwWNGJdvx8"},
		{Title: "힘이 되는 응원가", URL: "https://www.youtube.com/watch?v=2vjPBrBU-TM"},
	}
	relaxLinks = []model.Link{
		{Title: "수면 유도 음악", URL: "https://www.youtube.com/watch?v=1ZYbU82GVz4"},
		{Title: "자연 소리 ASMR", URL: "https://www.youtube.com/watch?v=DWcJFNfaw9c"},
	}
)

// DefaultStaticLinks maps every label onto one of the comfort, relax or
// energy lists.
func DefaultStaticLinks() StaticLinks {
	return StaticLinks{
		model.EmotionSorrow:   comfortLinks,
		model.EmotionAnger:    relaxLinks,
		model.EmotionHate:     relaxLinks,
		model.EmotionJoy:      energyLinks,
		model.EmotionPleasure: energyLinks,
		model.EmotionLove:     energyLinks,
		model.EmotionDesire:   energyLinks,
	}
}

type recommender struct {
	search   adapter.ContentSearcher
	static   StaticLinks
	maxLinks int
	pick     func(n int) int
	log      *zerolog.Logger
}

// NewRecommender builds a recommender. search may be nil, in which case
// only the static table is used.
func NewRecommender(search adapter.ContentSearcher, static StaticLinks, maxLinks int, logger *zerolog.Logger) *recommender {
	if maxLinks <= 0 {
		maxLinks = 3
	}
	l := logger.With().Str("component", "recommender").Logger()
	return &recommender{search: search, static: static, maxLinks: maxLinks, pick: rand.IntN, log: &l}
}

// SearchQuery is the content query scoped to one emotion.
func SearchQuery(l model.EmotionLabel) string {
	return fmt.Sprintf("%s 감정을 느낄 때 듣기 좋은 노래나 위로가 되는 영상", l.LocalName())
}

func (r *recommender) Recommend(ctx context.Context, dominant model.EmotionLabel) Recommendation {
	var rec Recommendation
	if r.search != nil {
		res, err := r.search.Search(ctx, SearchQuery(dominant))
		if err != nil {
			rec.SearchErr = fmt.Errorf("%w: %v", domain.ErrSearch, err)
			r.log.Warn().Err(err).Str("emotion", string(dominant)).Msg("content search failed")
		} else if links, src := extractLinks(res, r.maxLinks); len(links) > 0 {
			rec.Links, rec.Source = links, src
			metrics.IncLinkSource(src)
			return rec
		}
	}

	if pool := r.static[dominant]; len(pool) > 0 {
		rec.Links = []model.Link{pool[r.pick(len(pool))]}
		rec.Source = LinkSourceStatic
	} else {
		rec.Source = LinkSourceNone
	}
	metrics.IncLinkSource(rec.Source)
	return rec
}

// linkExtractor is one strategy over a search result.
type linkExtractor struct {
	source  string
	extract func(res adapter.SearchResult) []model.Link
}

var linkExtractors = []linkExtractor{
	{source: LinkSourceCitation, extract: citationLinks},
	{source: LinkSourceMarkdown, extract: markdownLinks},
	{source: LinkSourceBareURL, extract: bareLinks},
}

// extractLinks returns the first non-empty strategy's links, deduplicated
// by URL and capped at limit.
func extractLinks(res adapter.SearchResult, limit int) ([]model.Link, string) {
	for _, ex := range linkExtractors {
		if links := dedupeLinks(ex.extract(res), limit); len(links) > 0 {
			return links, ex.source
		}
	}
	return nil, LinkSourceNone
}

func citationLinks(res adapter.SearchResult) []model.Link {
	out := make([]model.Link, 0, len(res.Citations))
	for _, c := range res.Citations {
		out = append(out, model.Link{Title: strings.TrimSpace(c.Title), URL: c.URL})
	}
	return out
}

func markdownLinks(res adapter.SearchResult) []model.Link {
	var out []model.Link
	for _, m := range markdownLinkRe.FindAllStringSubmatch(res.Text, -1) {
		out = append(out, model.Link{Title: strings.TrimSpace(m[1]), URL: m[2]})
	}
	return out
}

func bareLinks(res adapter.SearchResult) []model.Link {
	var out []model.Link
	for _, u := range bareURLRe.FindAllString(res.Text, -1) {
		out = append(out, model.Link{URL: strings.TrimRight(u, ".,;:!?\"'")})
	}
	return out
}

func dedupeLinks(in []model.Link, limit int) []model.Link {
	seen := make(map[string]struct{}, len(in))
	out := make([]model.Link, 0, limit)
	for _, l := range in {
		if !strings.HasPrefix(l.URL, "http://") && !strings.HasPrefix(l.URL, "https://") {
			continue
		}
		if _, dup := seen[l.URL]; dup {
			continue
		}
		seen[l.URL] = struct{}{}
		out = append(out, l)
		if len(out) == limit {
			break
		}
	}
	return out
}

// displayText is the tone sentence followed by the numbered link list.
func displayText(tone string, links []model.Link) string {
	var b strings.Builder
	b.WriteString(tone)
	b.WriteString("\n\n")
	if len(links) == 0 {
		b.WriteString(noContentText)
		return b.String()
	}
	for i, l := range links {
		fmt.Fprintf(&b, "* 추천 콘텐츠 %d: %s\n", i+1, l.URL)
	}
	return strings.TrimRight(b.String(), "\n")
}
