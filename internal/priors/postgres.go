package priors

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSource computes win rates from collected match participants.
// Champions with fewer than minGames games are left out.
type PostgresSource struct {
	pool     *pgxpool.Pool
	minGames int
}

// NewPostgresSource connects to databaseURL and verifies the connection
func NewPostgresSource(ctx context.Context, databaseURL string, minGames int) (*PostgresSource, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresSource{pool: pool, minGames: minGames}, nil
}

// Close closes the connection pool
func (p *PostgresSource) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// WinRates aggregates wins over games per champion name
func (p *PostgresSource) WinRates(ctx context.Context, champs []string) (map[string]float64, error) {
	if len(champs) == 0 {
		return map[string]float64{}, nil
	}

	keys := make([]string, len(champs))
	for i, c := range champs {
		keys[i] = NormalizeName(c)
	}

	rows, err := p.pool.Query(ctx, `
		SELECT
			lower(replace(replace(champion_name, '''', ''), ' ', '')) AS champ_key,
			COUNT(*) AS games,
			SUM(CASE WHEN win THEN 1 ELSE 0 END) AS wins
		FROM participants
		WHERE lower(replace(replace(champion_name, '''', ''), ' ', '')) = ANY($1)
		GROUP BY champ_key
	`, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to query win rates: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64, len(champs))
	for rows.Next() {
		var key string
		var games, wins int
		if err := rows.Scan(&key, &games, &wins); err != nil {
			return nil, fmt.Errorf("failed to scan win rate: %w", err)
		}
		if games == 0 || games < p.minGames {
			continue
		}
		out[key] = float64(wins) / float64(games)
	}
	return out, rows.Err()
}
