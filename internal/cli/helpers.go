package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/leadfunnel/leadfunnel/internal/funnel"
	"github.com/leadfunnel/leadfunnel/internal/store"
)

// withStore opens the database, executes the function, and handles cleanup.
func withStore(fn func(*store.SQLiteStore) error) error {
	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	return fn(s)
}

// getFunnel loads a stored funnel, turning ErrNotFound into a readable error.
func getFunnel(ctx context.Context, s *store.SQLiteStore, id string) (*store.FunnelRecord, error) {
	rec, err := s.GetFunnel(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("funnel '%s' not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get funnel: %w", err)
	}
	return rec, nil
}

func readFunnelFile(path string) (*funnel.Funnel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	f, err := funnel.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid funnel in %s: %w", path, err)
	}
	return f, nil
}

// tokenFilePath returns the dashboard token file, stored alongside the database.
func tokenFilePath() string {
	return filepath.Join(filepath.Dir(cfg.DBPath), ".lf-token")
}

func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1000000, (n/1000)%1000, n%1000)
}

func formatPercent(rate float64) string {
	if rate == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", rate*100)
}
