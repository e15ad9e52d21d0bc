package headless

import (
	"context"
	"regexp"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/trendsift/viral-engine/api/types"
	"github.com/trendsift/viral-engine/internal/providers"
)

// rawCounters is what the in-page script hands back. Counts stay strings
// because platforms render them as "1,234", "12.5K" or localized words.
type rawCounters struct {
	Likes    string `json:"likes"`
	Comments string `json:"comments"`
	Views    string `json:"views"`
	Author   string `json:"author"`
	Body     string `json:"body"`
}

// Instagram renders each counter in its own span, so the script scans spans
// for the counter keywords in English and Portuguese.
const instagramCountersJS = `(function(){
	const out = {likes: '', comments: '', views: '', author: '', body: ''};
	const authorSelectors = ['header h2 a', 'header a[role="link"]', 'article header a'];
	for (const sel of authorSelectors) {
		const el = document.querySelector(sel);
		if (el && el.textContent && el.textContent.trim()) {
			out.author = el.textContent.trim();
			break;
		}
	}
	const spans = document.querySelectorAll('span');
	for (const span of spans) {
		const text = (span.textContent || '').trim();
		if (!text || text.length > 60 || !/\d/.test(text)) continue;
		const lower = text.toLowerCase();
		if (!out.likes && (lower.includes('like') || lower.includes('curtida'))) out.likes = text;
		else if (!out.comments && (lower.includes('comment') || lower.includes('coment'))) out.comments = text;
		else if (!out.views && (lower.includes('view') || lower.includes('visualiza'))) out.views = text;
	}
	out.body = (document.body.innerText || '').slice(0, 20000);
	return out;
})()`

// Facebook spreads counters through free text, so the script only grabs the
// author and the body. The counts come out of the body via regexes on the Go
// side.
const facebookCountersJS = `(function(){
	const out = {likes: '', comments: '', views: '', author: '', body: ''};
	const authorSelectors = ['h2 a', 'h3 a', 'strong a', '[data-ad-rendering-role="profile_name"] a'];
	for (const sel of authorSelectors) {
		const el = document.querySelector(sel);
		if (el && el.textContent && el.textContent.trim()) {
			out.author = el.textContent.trim();
			break;
		}
	}
	out.body = (document.body.innerText || '').slice(0, 20000);
	return out;
})()`

// genericCountersJS covers platforms with no dedicated script. Body text
// plus the og:title author is usually enough for the regex pass.
const genericCountersJS = `(function(){
	const out = {likes: '', comments: '', views: '', author: '', body: ''};
	const og = document.querySelector('meta[property="og:title"]');
	if (og && og.content) out.author = og.content.split(' - ')[0].trim();
	out.body = (document.body.innerText || '').slice(0, 20000);
	return out;
})()`

// mediaURLJS recovers a media URL the way a reader would: og:image first,
// then the largest CDN-hosted image on the page.
const mediaURLJS = `(function(){
	const og = document.querySelector('meta[property="og:image"]');
	if (og && og.content) return og.content;
	const hosts = ['cdninstagram', 'fbcdn', 'scontent', 'twimg', 'ytimg'];
	let best = '';
	let bestArea = 0;
	const imgs = document.querySelectorAll('img');
	for (const img of imgs) {
		const src = img.currentSrc || img.src || '';
		if (!src || !hosts.some(h => src.includes(h))) continue;
		const area = (img.naturalWidth || 0) * (img.naturalHeight || 0);
		if (area > bestArea) {
			best = src;
			bestArea = area;
		}
	}
	return best;
})()`

func countersScriptFor(platform string) string {
	switch platform {
	case types.PlatformInstagram:
		return instagramCountersJS
	case types.PlatformFacebook:
		return facebookCountersJS
	default:
		return genericCountersJS
	}
}

func extractCounters(ctx context.Context, platform string) (*rawCounters, error) {
	var raw rawCounters
	if err := chromedp.Run(ctx, chromedp.Evaluate(countersScriptFor(platform), &raw)); err != nil {
		return nil, err
	}
	return &raw, nil
}

var (
	leadingCountRe = regexp.MustCompile(`\d[\d.,]*\s?[KkMmBb]?`)

	bodyLikesRe    = regexp.MustCompile(`(?i)([\d.,]+\s?[KkMmBb]?)\s*(?:likes?|curtidas?|reactions?|reações?)`)
	bodyCommentsRe = regexp.MustCompile(`(?i)(?:Ver todos os\s+)?([\d.,]+\s?[KkMmBb]?)\s*(?:comments?|comentários?)`)
	bodySharesRe   = regexp.MustCompile(`(?i)([\d.,]+\s?[KkMmBb]?)\s*(?:shares?|compartilhamentos?)`)
	bodyViewsRe    = regexp.MustCompile(`(?i)([\d.,]+\s?[KkMmBb]?)\s*(?:views?|visualizações?|reproduções?)`)
)

// countFrom pulls the first parseable number out of a counter span text.
func countFrom(text string) int64 {
	match := leadingCountRe.FindString(text)
	if match == "" {
		return 0
	}
	n, err := providers.ParseCount(strings.ReplaceAll(match, " ", ""))
	if err != nil {
		return 0
	}
	return n
}

// countFromBody applies a body-text regex and parses its capture group.
func countFromBody(re *regexp.Regexp, body string) int64 {
	m := re.FindStringSubmatch(body)
	if len(m) < 2 {
		return 0
	}
	n, err := providers.ParseCount(strings.ReplaceAll(m[1], " ", ""))
	if err != nil {
		return 0
	}
	return n
}

// engagementFromCounters turns raw page text into counts. ok is false when
// nothing countable was on the page, which sends the caller down a tier.
func engagementFromCounters(raw *rawCounters) (*providers.Engagement, bool) {
	eng := &providers.Engagement{
		Likes:    countFrom(raw.Likes),
		Comments: countFrom(raw.Comments),
		Views:    countFrom(raw.Views),
		Author:   strings.TrimPrefix(raw.Author, "@"),
	}
	if eng.Likes == 0 {
		eng.Likes = countFromBody(bodyLikesRe, raw.Body)
	}
	if eng.Comments == 0 {
		eng.Comments = countFromBody(bodyCommentsRe, raw.Body)
	}
	if eng.Views == 0 {
		eng.Views = countFromBody(bodyViewsRe, raw.Body)
	}
	eng.Shares = countFromBody(bodySharesRe, raw.Body)

	ok := eng.Likes > 0 || eng.Comments > 0 || eng.Views > 0 || eng.Shares > 0
	return eng, ok
}
