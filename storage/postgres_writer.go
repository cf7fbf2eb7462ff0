package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/rotisserie/eris"

	"vehicle-pricer/models"
	"vehicle-pricer/utils"
)

// PostgresWriter archives observations to PostgreSQL.
type PostgresWriter struct {
	db *sql.DB
}

// NewPostgresWriter opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresWriter.
func NewPostgresWriter(ctx context.Context, dsn string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: open")
	}

	ping := &utils.RetryConfig{MaxAttempts: 10, BaseDelay: 500 * time.Millisecond}
	if err := ping.Do(ctx, "postgres ping", db.PingContext); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	pw := &PostgresWriter{db: db}
	if err := pw.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "postgres: migrate")
	}

	return pw, nil
}

func (pw *PostgresWriter) migrate(ctx context.Context) error {
	_, err := pw.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS price_observations (
			id             BIGSERIAL PRIMARY KEY,
			run_id         UUID         NOT NULL,
			source         VARCHAR(50)  NOT NULL,
			tier           VARCHAR(20)  NOT NULL,
			category       VARCHAR(50)  NOT NULL DEFAULT '',
			brand          VARCHAR(80)  NOT NULL,
			model          VARCHAR(80)  NOT NULL,
			version        TEXT         NOT NULL DEFAULT '',
			min_year       INTEGER      NOT NULL DEFAULT 0,
			max_year       INTEGER      NOT NULL DEFAULT 0,
			transmission   VARCHAR(20)  NOT NULL DEFAULT '',
			mileage        INTEGER      NOT NULL DEFAULT 0,
			price          BIGINT       NOT NULL,
			kept           BOOLEAN      NOT NULL DEFAULT TRUE,
			market_average BIGINT       NOT NULL DEFAULT 0,
			url            TEXT         NOT NULL DEFAULT '',
			created_at     TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_observations_run     ON price_observations(run_id);
		CREATE INDEX IF NOT EXISTS idx_observations_vehicle ON price_observations(brand, model);
		CREATE INDEX IF NOT EXISTS idx_observations_source  ON price_observations(source);
	`)
	return err
}

var _ Archive = (*PostgresWriter)(nil)

// Record batch-inserts every observation of the valuation in one
// transaction.
func (pw *PostgresWriter) Record(ctx context.Context, v *models.Valuation) error {
	rows := Rows(v)
	if len(rows) == 0 {
		return nil
	}

	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer func() { _ = tx.Rollback() }()

	const batchSize = 50
	for i := 0; i < len(rows); i += batchSize {
		end := min(i+batchSize, len(rows))
		if err := insertBatch(ctx, tx, rows[i:end], v.CreatedAt); err != nil {
			return err
		}
	}
	return eris.Wrap(tx.Commit(), "postgres: commit")
}

const columnsPerRow = 16

func insertBatch(ctx context.Context, tx *sql.Tx, batch []ObservationRow, created time.Time) error {
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*columnsPerRow)

	for idx, r := range batch {
		placeholders := make([]string, columnsPerRow)
		for c := range placeholders {
			placeholders[c] = fmt.Sprintf("$%d", idx*columnsPerRow+c+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ",")+")")
		valueArgs = append(valueArgs,
			r.RunID, r.Source, r.Tier, r.Category, r.Brand, r.Model, r.Version,
			r.MinYear, r.MaxYear, r.Transmission, r.Mileage, r.Price, r.Kept, r.Average, r.URL, created)
	}

	query := fmt.Sprintf(`
		INSERT INTO price_observations (run_id, source, tier, category, brand, model, version,
			min_year, max_year, transmission, mileage, price, kept, market_average, url, created_at)
		VALUES %s
	`, strings.Join(valueStrings, ","))

	if _, err := tx.ExecContext(ctx, query, valueArgs...); err != nil {
		return eris.Wrap(err, "postgres: insert batch")
	}
	return nil
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}
