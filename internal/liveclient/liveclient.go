// Package liveclient reads the running game from the League client's local
// Live Client Data API, so in-game questions can pick up both team
// compositions without typing them.
package liveclient

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://127.0.0.1:2999/liveclientdata"

// ErrNoGame is returned when no game is running or the active player is not
// in the player list.
var ErrNoGame = errors.New("no live game")

// Player is one entry of the live player list
type Player struct {
	ChampionName string `json:"championName"`
	RiotID       string `json:"riotId"`
	SummonerName string `json:"summonerName"`
	Team         string `json:"team"`
	IsBot        bool   `json:"isBot"`
	IsDead       bool   `json:"isDead"`
	Level        int    `json:"level"`
}

// matches reports whether p is the active player
func (p Player) matches(active string) bool {
	return active != "" && (strings.EqualFold(p.RiotID, active) || strings.EqualFold(p.SummonerName, active))
}

// GameState is the live game reduced to what an in-game question needs
type GameState struct {
	MyChamp   string   `json:"my_champ"`
	AllyComp  []string `json:"ally_comp"`
	EnemyComp []string `json:"enemy_comp"`
}

// Client talks to the game's local API. The game serves a self-signed
// certificate on localhost.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithBaseURL sets a custom base URL (for testing)
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(url, "/") }
}

// WithHTTPClient sets the HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a live client with a 2s timeout
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 2 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Players fetches every player in the game
func (c *Client) Players(ctx context.Context) ([]Player, error) {
	var players []Player
	if err := c.get(ctx, "/playerlist", &players); err != nil {
		return nil, fmt.Errorf("failed to fetch players: %w", err)
	}
	return players, nil
}

// ActivePlayer returns the Riot id (or summoner name) of the local player
func (c *Client) ActivePlayer(ctx context.Context) (string, error) {
	var name string
	if err := c.get(ctx, "/activeplayername", &name); err != nil {
		return "", fmt.Errorf("failed to fetch active player: %w", err)
	}
	return name, nil
}

// GameState splits the player list into the local player's champion, the
// allies and the enemies.
func (c *Client) GameState(ctx context.Context) (GameState, error) {
	active, err := c.ActivePlayer(ctx)
	if err != nil {
		return GameState{}, err
	}
	players, err := c.Players(ctx)
	if err != nil {
		return GameState{}, err
	}
	return Split(players, active)
}

// Split groups players by the active player's team
func Split(players []Player, active string) (GameState, error) {
	var me *Player
	for i := range players {
		if players[i].matches(active) {
			me = &players[i]
			break
		}
	}
	if me == nil {
		return GameState{}, fmt.Errorf("%w: %q not in player list", ErrNoGame, active)
	}

	gs := GameState{MyChamp: me.ChampionName, AllyComp: []string{}, EnemyComp: []string{}}
	for _, p := range players {
		if p.Team == me.Team {
			gs.AllyComp = append(gs.AllyComp, p.ChampionName)
		} else {
			gs.EnemyComp = append(gs.EnemyComp, p.ChampionName)
		}
	}
	return gs, nil
}

func (c *Client) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoGame, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
