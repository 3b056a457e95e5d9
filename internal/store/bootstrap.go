package store

import (
	"context"
	"fmt"
	"strings"
)

// Bootstrap creates the catalog and tree tables if they do not exist.
func (s *Store) Bootstrap(ctx context.Context) error {
	// pgx/stdlib accepts multi-statement Exec, but sqlite is safer one statement at a time.
	for _, stmt := range splitStatements(s.Dialect.SchemaSQL()) {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap %s schema: %w", s.Dialect.Name(), err)
		}
	}
	return nil
}

func splitStatements(ddl string) []string {
	var out []string
	for _, part := range strings.Split(ddl, ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
