// Package guides fetches live ARAM build summaries and turns them into
// guide documents. Every failure is absorbed: a champion whose page cannot
// be fetched or parsed simply yields no document.
package guides

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/bits-and-blooms/bloom/v3"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"

	"aramcoach/internal/facts"
)

const (
	defaultBaseURL = "https://www.metasrc.com/lol/aram/build/"
	userAgent      = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0 Safari/537.36"
	maxGuideLen    = 800
)

// DocIDPrefix keeps fetched guide ids apart from the ids of a patch's own guides
const DocIDPrefix = "metasrc:"

var (
	itemsRe  = regexp.MustCompile(`(?s)For items, our build recommends:\s*(.*?)\.\s*For runes`)
	runesRe  = regexp.MustCompile(`(?s)For runes, the strongest choice is\s*(.*?)\s*\(Primary\)\s*with\s*(.*?)\s*\(Keystone\),\s*and\s*(.*?)\s*\(Secondary\)`)
	spellsRe = regexp.MustCompile(`The optimal Summoner Spells for this build are\s*(.*?)\.\s*`)
	startRe  = regexp.MustCompile(`Starting items should include\s*(.*?)\.`)
	tierRe   = regexp.MustCompile(`Tier:\s*([A-Z])\s*Win\s*(\d+\.\d+)%\s*Pick\s*(\d+\.\d+)%\s*Games:\s*([\d,]+)\s*KDA:\s*(\d+\.\d+)\s*Score:\s*(\d+\.\d+)`)
	andRe    = regexp.MustCompile(`\s+and\s+`)
	slugRe   = regexp.MustCompile(`[^a-z0-9 ]`)
)

// Fetcher pulls METAsrc ARAM build pages. Found guides are cached for ttl;
// champions without a page are remembered in a bloom filter and not asked
// for again.
type Fetcher struct {
	baseURL     string
	httpClient  *http.Client
	concurrency int
	ttl         time.Duration
	logger      *zap.Logger

	mu      sync.RWMutex
	cache   map[string]cachedGuide
	missing *bloom.BloomFilter
}

type cachedGuide struct {
	text    string
	fetched time.Time
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithBaseURL sets the build page prefix (for testing)
func WithBaseURL(url string) Option {
	return func(f *Fetcher) {
		if !strings.HasSuffix(url, "/") {
			url += "/"
		}
		f.baseURL = url
	}
}

// WithConcurrency bounds parallel page fetches
func WithConcurrency(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

// WithTimeout sets the per-page timeout
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.httpClient.Timeout = d
		}
	}
}

// WithTTL sets how long fetched guides are reused
func WithTTL(d time.Duration) Option {
	return func(f *Fetcher) { f.ttl = d }
}

// NewFetcher creates a fetcher with a 15s page timeout
func NewFetcher(logger *zap.Logger, opts ...Option) *Fetcher {
	f := &Fetcher{
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		concurrency: 4,
		ttl:         6 * time.Hour,
		logger:      logger.Named("guides"),
		cache:       make(map[string]cachedGuide),
		missing:     bloom.NewWithEstimates(10000, 0.001),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns one document per champion with a usable guide, in input order
func (f *Fetcher) Fetch(ctx context.Context, champs []string) []facts.GuideDocument {
	texts := make([]string, len(champs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i, champ := range champs {
		slug := Slugify(champ)
		if slug == "" {
			continue
		}
		g.Go(func() error {
			texts[i] = f.guide(gctx, champ, slug)
			return nil
		})
	}
	_ = g.Wait()

	var docs []facts.GuideDocument
	for i, text := range texts {
		if text == "" {
			continue
		}
		docs = append(docs, facts.GuideDocument{ID: DocIDPrefix + Slugify(champs[i]), Champion: champs[i], Text: text})
	}
	f.logger.Debug("guides fetched", zap.Int("requested", len(champs)), zap.Int("found", len(docs)))
	return docs
}

func (f *Fetcher) guide(ctx context.Context, champ, slug string) string {
	f.mu.RLock()
	cached, ok := f.cache[slug]
	known404 := f.missing.TestString(slug)
	f.mu.RUnlock()

	if ok && time.Since(cached.fetched) < f.ttl {
		return cached.text
	}
	if known404 {
		return ""
	}

	text, notFound, err := f.fetch(ctx, slug)
	if err != nil {
		f.logger.Warn("failed to fetch guide", zap.String("champion", champ), zap.Error(err))
		return ""
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if notFound {
		f.missing.AddString(slug)
		return ""
	}
	if text != "" {
		f.cache[slug] = cachedGuide{text: text, fetched: time.Now()}
	}
	return text
}

func (f *Fetcher) fetch(ctx context.Context, slug string) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+slug, nil)
	if err != nil {
		return "", false, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", true, nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("status %d", resp.StatusCode)
	}

	text, err := PageText(resp.Body)
	if err != nil {
		return "", false, err
	}
	return Summarize(text), false, nil
}

// Slugify converts a champion name to the METAsrc URL slug: accents and
// punctuation dropped, spaces to hyphens.
func Slugify(name string) string {
	decomposed := norm.NFD.String(strings.ToLower(name))
	var sb strings.Builder
	for _, r := range decomposed {
		if r < unicode.MaxASCII {
			sb.WriteRune(r)
		}
	}
	s := strings.NewReplacer("'", "", ".", "").Replace(sb.String())
	s = slugRe.ReplaceAllString(s, "")
	return strings.ReplaceAll(strings.TrimSpace(s), " ", "-")
}

// PageText returns the visible text of an HTML page with whitespace collapsed
func PageText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	var parts []string
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			parts = append(parts, n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(doc)
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " "), nil
}

// Summarize extracts the build summary from page text. It returns "" when
// nothing recognizable is found.
func Summarize(text string) string {
	var parts []string

	if m := itemsRe.FindStringSubmatch(text); m != nil {
		items := splitTrim(m[1], ",")
		if len(items) > 6 {
			items = items[:6]
		}
		parts = append(parts, "Core items: "+strings.Join(items, ", "))
	}
	if m := runesRe.FindStringSubmatch(text); m != nil {
		primary, keystone, secondary := strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), strings.TrimSpace(m[3])
		parts = append(parts, fmt.Sprintf("Runes: %s (%s) with %s", keystone, primary, secondary))
	}
	if m := spellsRe.FindStringSubmatch(text); m != nil {
		var spells []string
		for _, s := range andRe.Split(m[1], -1) {
			spells = append(spells, strings.TrimSpace(s))
		}
		parts = append(parts, "Summoner spells: "+strings.Join(spells, ", "))
	}
	if m := startRe.FindStringSubmatch(text); m != nil {
		parts = append(parts, "Starting items: "+strings.Join(splitTrim(m[1], ","), ", "))
	}
	if m := tierRe.FindStringSubmatch(text); m != nil {
		parts = append(parts, fmt.Sprintf("Tier %s, Win rate: %s%%, Pick rate: %s%%, KDA: %s", m[1], m[2], m[3], m[5]))
	}

	if len(parts) == 0 {
		return ""
	}
	out := strings.Join(parts, ". ")
	if len(out) > maxGuideLen {
		out = strings.ToValidUTF8(out[:maxGuideLen-3], "") + "..."
	}
	return strings.TrimSpace(out)
}

func splitTrim(s, sep string) []string {
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
