// Package ddragon downloads item, champion and rune data from Riot's Data
// Dragon CDN and turns it into patch facts.
package ddragon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"aramcoach/internal/facts"
)

const defaultBaseURL = "https://ddragon.leagueoflegends.com"

// ErrVersionNotFound is returned when no published version matches a patch prefix
var ErrVersionNotFound = errors.New("no matching ddragon version")

// Client fetches static game data
type Client struct {
	baseURL    string
	language   string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithBaseURL sets a custom base URL (for testing)
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithLanguage sets the data locale, en_US by default
func WithLanguage(lang string) Option {
	return func(c *Client) {
		if lang != "" {
			c.language = lang
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l.Named("ddragon") }
}

// NewClient creates a Data Dragon client
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		language:   "en_US",
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ResolveVersion returns the newest version for "latest" (or ""), otherwise
// the first published version starting with patch.
func (c *Client) ResolveVersion(ctx context.Context, patch string) (string, error) {
	var versions []string
	if err := c.getJSON(ctx, c.baseURL+"/api/versions.json", &versions); err != nil {
		return "", fmt.Errorf("failed to fetch versions: %w", err)
	}
	if len(versions) == 0 {
		return "", fmt.Errorf("no versions available")
	}

	patch = strings.TrimSpace(patch)
	if patch == "" || patch == "latest" {
		return versions[0], nil
	}
	for _, v := range versions {
		if strings.HasPrefix(v, patch) {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrVersionNotFound, patch)
}

// PatchID reduces a full version like 14.19.1 to its major.minor patch id
func PatchID(version string) string {
	parts := strings.SplitN(version, ".", 3)
	if len(parts) < 2 {
		return version
	}
	return parts[0] + "." + parts[1]
}

// Items fetches every item of a version, sorted by id, with functional tags added
func (c *Client) Items(ctx context.Context, version string) ([]facts.Item, error) {
	var payload struct {
		Data map[string]struct {
			Name string `json:"name"`
			Gold struct {
				Total int `json:"total"`
			} `json:"gold"`
			Tags []string `json:"tags"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, c.dataURL(version, "item.json"), &payload); err != nil {
		return nil, fmt.Errorf("failed to fetch items: %w", err)
	}

	items := make([]facts.Item, 0, len(payload.Data))
	for idStr, v := range payload.Data {
		id, err := strconv.Atoi(idStr)
		if err != nil {
			continue
		}
		name := v.Name
		if name == "" {
			name = idStr
		}
		items = append(items, facts.Item{
			ID:    id,
			Name:  name,
			Price: v.Gold.Total,
			Tags:  AugmentTags(name, v.Tags),
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

// Champions fetches every champion of a version, sorted by name
func (c *Client) Champions(ctx context.Context, version string) ([]facts.Champion, error) {
	var payload struct {
		Data map[string]struct {
			Key  string   `json:"key"`
			Name string   `json:"name"`
			Tags []string `json:"tags"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, c.dataURL(version, "champion.json"), &payload); err != nil {
		return nil, fmt.Errorf("failed to fetch champions: %w", err)
	}

	champs := make([]facts.Champion, 0, len(payload.Data))
	for id, v := range payload.Data {
		key, name := v.Key, v.Name
		if key == "" {
			key = id
		}
		if name == "" {
			name = id
		}
		tags := v.Tags
		if tags == nil {
			tags = []string{}
		}
		champs = append(champs, facts.Champion{Key: key, Name: name, Tags: tags})
	}
	sort.Slice(champs, func(i, j int) bool {
		return strings.ToLower(champs[i].Name) < strings.ToLower(champs[j].Name)
	})
	return champs, nil
}

// Runes fetches every rune of every tree, sorted by id
func (c *Client) Runes(ctx context.Context, version string) ([]facts.Rune, error) {
	var trees []struct {
		Name  string `json:"name"`
		Slots []struct {
			Runes []struct {
				ID   int    `json:"id"`
				Name string `json:"name"`
			} `json:"runes"`
		} `json:"slots"`
	}
	if err := c.getJSON(ctx, c.dataURL(version, "runesReforged.json"), &trees); err != nil {
		return nil, fmt.Errorf("failed to fetch runes: %w", err)
	}

	var runes []facts.Rune
	for _, tree := range trees {
		treeName := tree.Name
		if treeName == "" {
			treeName = "Unknown"
		}
		for _, slot := range tree.Slots {
			for _, r := range slot.Runes {
				runes = append(runes, facts.Rune{ID: r.ID, Name: r.Name, Tree: treeName})
			}
		}
	}
	sort.Slice(runes, func(i, j int) bool { return runes[i].ID < runes[j].ID })
	return runes, nil
}

// PatchFacts resolves patch and downloads its full data set. The returned
// facts are keyed by the major.minor id and carry no guide documents.
func (c *Client) PatchFacts(ctx context.Context, patch string) (facts.PatchFacts, string, error) {
	version, err := c.ResolveVersion(ctx, patch)
	if err != nil {
		return facts.PatchFacts{}, "", err
	}

	items, err := c.Items(ctx, version)
	if err != nil {
		return facts.PatchFacts{}, version, err
	}
	champs, err := c.Champions(ctx, version)
	if err != nil {
		return facts.PatchFacts{}, version, err
	}
	runes, err := c.Runes(ctx, version)
	if err != nil {
		return facts.PatchFacts{}, version, err
	}

	id := PatchID(version)
	if p := strings.TrimSpace(patch); p != "" && p != "latest" {
		id = p
	}
	c.logger.Info("patch data fetched",
		zap.String("version", version),
		zap.String("patch", id),
		zap.Int("items", len(items)),
		zap.Int("champions", len(champs)),
		zap.Int("runes", len(runes)))

	return facts.PatchFacts{Patch: id, Items: items, Champions: champs, Runes: runes}, version, nil
}

func (c *Client) dataURL(version, file string) string {
	return fmt.Sprintf("%s/cdn/%s/data/%s/%s", c.baseURL, version, c.language, file)
}

func (c *Client) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
