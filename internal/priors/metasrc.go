package priors

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
)

const defaultStatsURL = "https://www.metasrc.com/lol/aram/stats"

// Plausible ARAM win-rate window. Percentages outside it are other columns.
const (
	minWinRate = 0.35
	maxWinRate = 0.65
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

var percentRe = regexp.MustCompile(`([0-9]{1,2}\.[0-9]+)%`)

// MetaSrcSource scrapes the METAsrc ARAM stats table. The whole table is
// fetched at once and kept for ttl.
type MetaSrcSource struct {
	url        string
	httpClient *http.Client
	ttl        time.Duration

	mu      sync.Mutex
	table   map[string]float64
	fetched time.Time
}

// MetaSrcOption configures a MetaSrcSource
type MetaSrcOption func(*MetaSrcSource)

// WithStatsURL overrides the stats page URL (for testing)
func WithStatsURL(url string) MetaSrcOption {
	return func(s *MetaSrcSource) {
		s.url = url
	}
}

// WithHTTPClient sets the HTTP client
func WithHTTPClient(c *http.Client) MetaSrcOption {
	return func(s *MetaSrcSource) {
		s.httpClient = c
	}
}

// NewMetaSrcSource creates a scraper with a 30s timeout and a one hour table TTL
func NewMetaSrcSource(ttl time.Duration, opts ...MetaSrcOption) *MetaSrcSource {
	if ttl <= 0 {
		ttl = time.Hour
	}
	s := &MetaSrcSource{
		url:        defaultStatsURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		ttl:        ttl,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WinRates returns the rates of the requested champions found in the table
func (s *MetaSrcSource) WinRates(ctx context.Context, champs []string) (map[string]float64, error) {
	table, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(champs))
	for _, c := range champs {
		key := NormalizeName(c)
		if wr, ok := table[key]; ok {
			out[key] = wr
		}
	}
	return out, nil
}

func (s *MetaSrcSource) load(ctx context.Context) (map[string]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.table != nil && time.Since(s.fetched) < s.ttl {
		return s.table, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch win rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metasrc returned status %d", resp.StatusCode)
	}

	table, err := ParseStatsTable(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(table) == 0 {
		return nil, fmt.Errorf("no win rates found in stats page")
	}

	s.table = table
	s.fetched = time.Now()
	return table, nil
}

// ParseStatsTable extracts champion win rates from a stats page. Each table
// row contributes its first percentage inside the plausible window.
func ParseStatsTable(r io.Reader) (map[string]float64, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stats page: %w", err)
	}

	root := doc
	if tbody := findElement(doc, "tbody"); tbody != nil {
		root = tbody
	}

	out := make(map[string]float64)
	walk(root, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.Data != "tr" {
			return true
		}
		name := rowChampion(n)
		if name == "" {
			return false
		}
		for _, m := range percentRe.FindAllStringSubmatch(textContent(n), -1) {
			v, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			wr := v / 100
			if wr >= minWinRate && wr <= maxWinRate {
				out[NormalizeName(name)] = wr
				break
			}
		}
		return false
	})
	return out, nil
}

// rowChampion finds the champion name in a build link or a hidden span
func rowChampion(tr *html.Node) string {
	var name string
	walk(tr, func(n *html.Node) bool {
		if name != "" {
			return false
		}
		if n.Type != html.ElementNode {
			return true
		}
		switch n.Data {
		case "a":
			if strings.Contains(attr(n, "href"), "aram/build/") {
				if t := strings.TrimSpace(textContent(n)); isChampName(t) {
					name = t
				}
			}
		case "span":
			if _, ok := hasAttr(n, "hidden"); ok {
				if t := strings.TrimSpace(textContent(n)); isChampName(t) {
					name = t
				}
			}
		}
		return true
	})
	return name
}

func isChampName(s string) bool {
	if s == "" || s[0] < 'A' || s[0] > 'Z' {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r == '\'' || r == ' ' || r == '.') {
			return false
		}
	}
	return true
}

func walk(n *html.Node, visit func(*html.Node) bool) {
	if !visit(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func findElement(n *html.Node, tag string) *html.Node {
	var found *html.Node
	walk(n, func(c *html.Node) bool {
		if found != nil {
			return false
		}
		if c.Type == html.ElementNode && c.Data == tag {
			found = c
			return false
		}
		return true
	})
	return found
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
			sb.WriteByte(' ')
		}
		return true
	})
	return sb.String()
}

func attr(n *html.Node, key string) string {
	v, _ := hasAttr(n, key)
	return v
}

func hasAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
