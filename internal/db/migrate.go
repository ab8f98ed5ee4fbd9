package db

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
)

//go:embed sql/pre_automigrate_postgres.sql
var prePostgresSQL string

//go:embed sql/post_automigrate.sql
var postAutoMigrateSQL string

func (p *Pool) autoMigrate(ctx context.Context) error {
	if p == nil || p.gdb == nil {
		return fmt.Errorf("database pool is not initialized")
	}

	if p.Dialect() == "postgres" {
		if err := executeMigrationSQL(ctx, p, "pre-auto-migrate", prePostgresSQL); err != nil {
			return err
		}
	}

	if err := p.gdb.WithContext(ctx).AutoMigrate(autoMigrateModels()...); err != nil {
		return fmt.Errorf("gorm auto-migrate models: %w", err)
	}

	return executeMigrationSQL(ctx, p, "post-auto-migrate", postAutoMigrateSQL)
}

// executeMigrationSQL runs a script one statement at a time. Statements are separated
// by ";" at end of line; scripts must not contain semicolons inside literals.
func executeMigrationSQL(ctx context.Context, p *Pool, label, sqlText string) error {
	for i, statement := range splitStatements(sqlText) {
		if err := p.gdb.WithContext(ctx).Exec(statement).Error; err != nil {
			return fmt.Errorf("execute %s SQL statement %d: %w", label, i+1, err)
		}
	}
	return nil
}

func splitStatements(sqlText string) []string {
	var (
		out     []string
		current strings.Builder
	)
	for _, line := range strings.Split(sqlText, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			out = append(out, strings.TrimSuffix(strings.TrimSpace(current.String()), ";"))
			current.Reset()
		}
	}
	if rest := strings.TrimSpace(current.String()); rest != "" {
		out = append(out, rest)
	}
	return out
}
