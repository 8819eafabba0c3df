package gazetteer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite"

	"github.com/cognicore/gazette/pkg/gazette/internalerr"
)

// FileName is the name of the SQLite database holding a persisted index
// inside its directory.
const FileName = "gazetteer.db"

const formatVersion = 1

// Save writes idx into dir/gazetteer.db, creating dir if needed. An existing
// database is replaced.
func Save(ctx context.Context, dir string, idx *Index) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	path := filepath.Join(dir, FileName)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale index: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := initSchema(ctx, db); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	meta := map[string]string{
		"format_version": strconv.Itoa(formatVersion),
		"index_id":       idx.id,
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta(key, value) VALUES(?, ?)`, k, v); err != nil {
			return fmt.Errorf("write meta: %w", err)
		}
	}

	for _, name := range idx.entities {
		cfg := idx.configs[name]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entities(identifier, threshold) VALUES(?, ?)`, name, cfg.Threshold); err != nil {
			return fmt.Errorf("write entity %q: %w", name, err)
		}
		for raw, resolved := range cfg.Utterances {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO utterances(entity, raw_value, resolved_value) VALUES(?, ?, ?)`,
				name, raw, resolved); err != nil {
				return fmt.Errorf("write utterance of %q: %w", name, err)
			}
		}
	}

	return tx.Commit()
}

// Load reads the index persisted in dir by Save and recompiles it. The build
// identifier is preserved.
func Load(ctx context.Context, dir string) (*Index, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: index file %s: %v", internalerr.ErrSerialization, path, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", internalerr.ErrSerialization, path, err)
	}
	defer db.Close()

	meta, err := loadMeta(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("%w: read meta: %v", internalerr.ErrSerialization, err)
	}
	if meta["format_version"] != strconv.Itoa(formatVersion) {
		return nil, fmt.Errorf("%w: unsupported index format version %q",
			internalerr.ErrSerialization, meta["format_version"])
	}

	configs, err := loadConfigs(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("%w: read vocabulary: %v", internalerr.ErrSerialization, err)
	}

	idx, err := build(meta["index_id"], configs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrSerialization, err)
	}
	return idx, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS entities (
	identifier TEXT PRIMARY KEY,
	threshold REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS utterances (
	entity TEXT NOT NULL,
	raw_value TEXT NOT NULL,
	resolved_value TEXT NOT NULL,
	PRIMARY KEY(entity, raw_value),
	FOREIGN KEY(entity) REFERENCES entities(identifier) ON DELETE CASCADE
);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

func loadMeta(ctx context.Context, db *sql.DB) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

func loadConfigs(ctx context.Context, db *sql.DB) (map[string]EntityConfig, error) {
	configs := make(map[string]EntityConfig)

	rows, err := db.QueryContext(ctx, `SELECT identifier, threshold FROM entities`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var name string
		var threshold float64
		if err := rows.Scan(&name, &threshold); err != nil {
			rows.Close()
			return nil, err
		}
		configs[name] = EntityConfig{Threshold: threshold, Utterances: make(map[string]string)}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	rows, err = db.QueryContext(ctx, `SELECT entity, raw_value, resolved_value FROM utterances`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name, raw, resolved string
		if err := rows.Scan(&name, &raw, &resolved); err != nil {
			return nil, err
		}
		cfg, ok := configs[name]
		if !ok {
			return nil, fmt.Errorf("utterance references unknown entity %q", name)
		}
		cfg.Utterances[raw] = resolved
	}
	return configs, rows.Err()
}
