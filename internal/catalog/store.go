package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"asrprep/internal/config"
	"asrprep/internal/manifest"
)

// DefaultSQLitePath is used when the sqlite driver has no DSN.
const DefaultSQLitePath = "asrprep.db"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS recordings (
		part          VARCHAR(64)  NOT NULL,
		id            VARCHAR(255) NOT NULL,
		file_path     TEXT         NOT NULL,
		file_hash     VARCHAR(32)  NOT NULL DEFAULT '',
		sample_rate   INT          NOT NULL,
		num_samples   BIGINT       NOT NULL,
		duration_sec  DOUBLE       NOT NULL,
		channels      INT          NOT NULL,
		PRIMARY KEY (part, id)
	)`,
	`CREATE TABLE IF NOT EXISTS supervisions (
		part          VARCHAR(64)  NOT NULL,
		id            VARCHAR(255) NOT NULL,
		recording_id  VARCHAR(255) NOT NULL,
		start_sec     DOUBLE       NOT NULL,
		duration_sec  DOUBLE       NOT NULL,
		channel_id    INT          NOT NULL,
		speaker       VARCHAR(255) NOT NULL DEFAULT '',
		language      VARCHAR(64)  NOT NULL DEFAULT '',
		transcription TEXT         NOT NULL,
		PRIMARY KEY (part, id)
	)`,
}

// Store - SQL catalog of prepared manifests, one row per recording and
// supervision, keyed by (part, id).
type Store struct {
	conn   *sql.DB
	driver string
}

// DSN returns the data source name for cfg. For mysql without an explicit
// DSN it is assembled from host/port/user/password/name.
func DSN(cfg config.Catalog) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	if cfg.Driver == "mysql" {
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=true",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name)
	}
	return DefaultSQLitePath
}

// Open connects, pings and creates the tables when missing.
func Open(ctx context.Context, cfg config.Catalog) (*Store, error) {
	conn, err := sql.Open(cfg.Driver, DSN(cfg))
	if err != nil {
		return nil, err
	}

	if cfg.Driver == "sqlite" {
		// one writer; also keeps ":memory:" databases alive across calls
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(50)
		conn.SetMaxIdleConns(10)
		conn.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connect catalog (%s): %w", cfg.Driver, err)
	}

	s := &Store{conn: conn, driver: cfg.Driver}
	if err := s.migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create catalog schema: %w", err)
		}
	}
	return nil
}

func (s *Store) DB() *sql.DB {
	return s.conn
}

func (s *Store) Close() error {
	return s.conn.Close()
}

// ReplacePartition deletes the rows of part and inserts recs and sups in one
// transaction. hashes maps recording id to MD5 and may be nil.
func (s *Store) ReplacePartition(ctx context.Context, part string, recs *manifest.RecordingSet, sups *manifest.SupervisionSet, hashes map[string]string) (err error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM supervisions WHERE part = ?", part); err != nil {
		return fmt.Errorf("clear supervisions: %w", err)
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM recordings WHERE part = ?", part); err != nil {
		return fmt.Errorf("clear recordings: %w", err)
	}

	recStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO recordings
		(part, id, file_path, file_hash, sample_rate, num_samples, duration_sec, channels)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer recStmt.Close()

	for _, r := range recs.Recordings() {
		if _, err = recStmt.ExecContext(ctx, part, r.ID, r.Path(), hashes[r.ID],
			r.SamplingRate, r.NumSamples, r.Duration, r.NumChannels()); err != nil {
			return fmt.Errorf("insert recording %s: %w", r.ID, err)
		}
	}

	supStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO supervisions
		(part, id, recording_id, start_sec, duration_sec, channel_id, speaker, language, transcription)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer supStmt.Close()

	for _, sp := range sups.Segments() {
		if _, err = supStmt.ExecContext(ctx, part, sp.ID, sp.RecordingID, sp.Start, sp.Duration,
			sp.Channel, sp.Speaker, sp.Language, sp.Text); err != nil {
			return fmt.Errorf("insert supervision %s: %w", sp.ID, err)
		}
	}

	return tx.Commit()
}

// PartStats - per-partition totals.
type PartStats struct {
	Part         string
	Recordings   int
	Supervisions int
	Hours        float64
}

// Stats returns totals for every partition in the catalog, ordered by name.
func (s *Store) Stats(ctx context.Context) ([]PartStats, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT r.part, COUNT(*), COALESCE(SUM(r.duration_sec), 0),
		       (SELECT COUNT(*) FROM supervisions sp WHERE sp.part = r.part)
		FROM recordings r
		GROUP BY r.part
		ORDER BY r.part`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PartStats
	for rows.Next() {
		var ps PartStats
		var seconds float64
		if err := rows.Scan(&ps.Part, &ps.Recordings, &seconds, &ps.Supervisions); err != nil {
			return nil, err
		}
		ps.Hours = seconds / 3600
		out = append(out, ps)
	}
	return out, rows.Err()
}

// Transcription returns the stored text of one supervision.
func (s *Store) Transcription(ctx context.Context, part, id string) (string, error) {
	var text string
	err := s.conn.QueryRowContext(ctx,
		"SELECT transcription FROM supervisions WHERE part = ? AND id = ?", part, id).Scan(&text)
	return text, err
}

// RecordingHash returns the stored MD5 of one recording, "" when not hashed.
func (s *Store) RecordingHash(ctx context.Context, part, id string) (string, error) {
	var hash string
	err := s.conn.QueryRowContext(ctx,
		"SELECT file_hash FROM recordings WHERE part = ? AND id = ?", part, id).Scan(&hash)
	return hash, err
}
