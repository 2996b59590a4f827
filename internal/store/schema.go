package store

import (
	"context"
	"fmt"
	"strings"
)

type dialect struct {
	serial string
	float  string
}

func (s *Store) dialect() dialect {
	switch s.driver {
	case DriverPostgres:
		return dialect{serial: "SERIAL PRIMARY KEY", float: "DOUBLE PRECISION"}
	case DriverMySQL:
		return dialect{serial: "BIGINT AUTO_INCREMENT PRIMARY KEY", float: "DOUBLE"}
	default:
		return dialect{serial: "INTEGER PRIMARY KEY AUTOINCREMENT", float: "REAL"}
	}
}

// Migrate creates every table the assistant needs. It is safe to run on an
// already migrated database.
func (s *Store) Migrate(ctx context.Context) error {
	d := s.dialect()
	r := strings.NewReplacer("{serial}", d.serial, "{float}", d.float)

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id            {serial},
			email         VARCHAR(255) NOT NULL UNIQUE,
			username      VARCHAR(255) NOT NULL DEFAULT '',
			password_hash VARCHAR(255) NOT NULL DEFAULT '',
			role          VARCHAR(32)  NOT NULL DEFAULT 'customer',
			created_ts    BIGINT       NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			id          {serial},
			name        VARCHAR(255) NOT NULL,
			description TEXT         NOT NULL,
			price       {float}      NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS baskets (
			id      {serial},
			user_id BIGINT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS basket_items (
			id         {serial},
			basket_id  BIGINT NOT NULL,
			product_id BIGINT NOT NULL,
			quantity   INTEGER NOT NULL DEFAULT 1,
			UNIQUE (basket_id, product_id)
		)`,
		`CREATE TABLE IF NOT EXISTS coupons (
			id         {serial},
			code       VARCHAR(64) NOT NULL UNIQUE,
			user_id    BIGINT      NOT NULL,
			discount   INTEGER     NOT NULL,
			expires_ts BIGINT      NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS reviews (
			id         {serial},
			product_id BIGINT       NOT NULL,
			author     VARCHAR(255) NOT NULL,
			message    TEXT         NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS security_answers (
			id      {serial},
			user_id BIGINT       NOT NULL,
			answer  VARCHAR(255) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS cards (
			id        {serial},
			user_id   BIGINT       NOT NULL,
			full_name VARCHAR(255) NOT NULL,
			card_num  VARCHAR(32)  NOT NULL,
			exp_month INTEGER      NOT NULL,
			exp_year  INTEGER      NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id         {serial},
			user_id    VARCHAR(255) NOT NULL,
			role       VARCHAR(16)  NOT NULL,
			content    TEXT         NOT NULL,
			created_ts BIGINT       NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, r.Replace(stmt)); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}

	// MySQL has no CREATE INDEX IF NOT EXISTS; errors from a repeated run
	// are ignored there.
	index := `CREATE INDEX IF NOT EXISTS idx_chat_messages_user ON chat_messages(user_id, created_ts)`
	if s.driver == DriverMySQL {
		index = `CREATE INDEX idx_chat_messages_user ON chat_messages(user_id, created_ts)`
	}
	if _, err := s.db.ExecContext(ctx, index); err != nil && s.driver != DriverMySQL {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
