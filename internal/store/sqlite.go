package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/treeline-forestry/dta-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode plus foreign-key enforcement for the cascade deletes.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// The pragmas must apply to every pooled connection.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	date_key   TEXT PRIMARY KEY,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS general_page (
	date_key             TEXT PRIMARY KEY REFERENCES sessions(date_key) ON DELETE CASCADE,
	assessor_name        TEXT,
	date_label           TEXT,
	certificate_number   TEXT,
	map_attached         TEXT,
	district             TEXT,
	location             TEXT,
	licensee_cp          TEXT,
	block                TEXT,
	activity             TEXT,
	level_of_disturbance TEXT,
	other_reference      TEXT
);

CREATE TABLE IF NOT EXISTS tree_page (
	id            TEXT PRIMARY KEY,
	date_key      TEXT NOT NULL,
	tree_number   INTEGER NOT NULL,
	species       TEXT,
	tree_class    TEXT,
	wildlife_value TEXT,
	tree_height   TEXT,
	diameter      TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS lod_page (
	tree_page_id TEXT PRIMARY KEY REFERENCES tree_page(id) ON DELETE CASCADE,
	lod          INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS lod_details_page (
	tree_page_id TEXT PRIMARY KEY REFERENCES tree_page(id) ON DELETE CASCADE,
	ast          TEXT,
	rst          TEXT
);

CREATE TABLE IF NOT EXISTS danger_indicators_page (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	tree_page_id TEXT NOT NULL REFERENCES tree_page(id) ON DELETE CASCADE,
	label        TEXT NOT NULL,
	checked      INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS decision_page (
	tree_page_id TEXT PRIMARY KEY REFERENCES tree_page(id) ON DELETE CASCADE,
	decision     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tree_page_date_key ON tree_page(date_key);
CREATE INDEX IF NOT EXISTS idx_tree_page_day_number ON tree_page(date_key, tree_number);
CREATE INDEX IF NOT EXISTS idx_indicators_tree ON danger_indicators_page(tree_page_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveGeneral(ctx context.Context, dateKey string, general model.GeneralInfo) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save general")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (date_key, updated_at) VALUES (?, datetime('now'))
		 ON CONFLICT(date_key) DO UPDATE SET updated_at = datetime('now')`,
		dateKey,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: upsert session")
	}

	cols := make([]string, 0, len(generalColumns))
	updates := make([]string, 0, len(generalColumns))
	args := []any{dateKey}
	for _, gc := range generalColumns {
		cols = append(cols, gc.Column)
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", gc.Column, gc.Column))
		args = append(args, general.Get(gc.Key))
	}
	query := fmt.Sprintf(
		`INSERT INTO general_page (date_key, %s) VALUES (?%s)
		 ON CONFLICT(date_key) DO UPDATE SET %s`,
		strings.Join(cols, ", "),
		strings.Repeat(", ?", len(cols)),
		strings.Join(updates, ", "),
	)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return eris.Wrap(err, "sqlite: upsert general page")
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit save general")
}

func (s *SQLiteStore) LoadGeneral(ctx context.Context, dateKey string) (model.GeneralInfo, error) {
	cols := make([]string, 0, len(generalColumns))
	for _, gc := range generalColumns {
		cols = append(cols, gc.Column)
	}
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM general_page WHERE date_key = ?`, strings.Join(cols, ", ")),
		dateKey,
	)

	vals := make([]sql.NullString, len(generalColumns))
	dest := make([]any, len(generalColumns))
	for i := range vals {
		dest[i] = &vals[i]
	}
	err := row.Scan(dest...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load general page")
	}

	general := make(model.GeneralInfo, len(generalColumns))
	for i, gc := range generalColumns {
		general[gc.Key] = vals[i].String
	}
	return general, nil
}

func (s *SQLiteStore) ListTrees(ctx context.Context) ([]model.TreeRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT
			t.id, t.tree_number, t.date_key,
			t.species, t.tree_class, t.wildlife_value, t.tree_height, t.diameter,
			l.lod, ld.ast, ld.rst, d.decision
		 FROM tree_page t
		 INNER JOIN lod_page l ON l.tree_page_id = t.id
		 INNER JOIN decision_page d ON d.tree_page_id = t.id
		 LEFT JOIN lod_details_page ld ON ld.tree_page_id = t.id
		 ORDER BY t.created_at DESC, t.tree_number DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list trees")
	}
	defer rows.Close()

	var trees []model.TreeRecord
	for rows.Next() {
		var rec model.TreeRecord
		var species, class, wildlife, height, diameter, ast, rst sql.NullString
		if err := rows.Scan(
			&rec.ID, &rec.TreeNumber, &rec.DateKey,
			&species, &class, &wildlife, &height, &diameter,
			&rec.LOD, &ast, &rst, &rec.Decision,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan tree")
		}
		rec.Tree = map[string]string{
			"species":       species.String,
			"treeClass":     class.String,
			"wildlifeValue": wildlife.String,
			"treeHeight":    height.String,
			"diameter":      diameter.String,
		}
		rec.AST = ast.String
		rec.RST = rst.String
		rec.LODChecks = map[string]bool{}
		trees = append(trees, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list trees iterate")
	}

	if err := s.loadIndicators(ctx, trees); err != nil {
		return nil, err
	}
	return trees, nil
}

// loadIndicators folds the indicator rows of every listed tree into its
// label to checked mapping.
func (s *SQLiteStore) loadIndicators(ctx context.Context, trees []model.TreeRecord) error {
	if len(trees) == 0 {
		return nil
	}
	byID := make(map[string]*model.TreeRecord, len(trees))
	for i := range trees {
		byID[trees[i].ID] = &trees[i]
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT tree_page_id, label, checked FROM danger_indicators_page`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: load indicators")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			treeID, label string
			checked       int
		)
		if err := rows.Scan(&treeID, &label, &checked); err != nil {
			return eris.Wrap(err, "sqlite: scan indicator")
		}
		if rec, ok := byID[treeID]; ok {
			rec.LODChecks[label] = checked != 0
		}
	}
	return eris.Wrap(rows.Err(), "sqlite: load indicators iterate")
}

func (s *SQLiteStore) CreateTree(ctx context.Context, rec model.TreeRecord) (string, error) {
	id := uuid.New().String()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: begin create tree")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO tree_page (id, date_key, tree_number, species, tree_class, wildlife_value, tree_height, diameter)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, rec.DateKey, rec.TreeNumber,
		rec.TreeField("species"), rec.TreeField("treeClass"), rec.TreeField("wildlifeValue"),
		rec.TreeField("treeHeight"), rec.TreeField("diameter"),
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert tree page")
	}

	if err := insertTreeDetails(ctx, tx, id, rec); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", eris.Wrap(err, "sqlite: commit create tree")
	}
	return id, nil
}

func (s *SQLiteStore) UpdateTree(ctx context.Context, rec model.TreeRecord) (string, error) {
	id, err := s.resolveTreeID(ctx, rec)
	if err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: begin update tree")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`UPDATE tree_page
		 SET tree_number = ?, date_key = ?, species = ?, tree_class = ?, wildlife_value = ?, tree_height = ?, diameter = ?
		 WHERE id = ?`,
		rec.TreeNumber, rec.DateKey,
		rec.TreeField("species"), rec.TreeField("treeClass"), rec.TreeField("wildlifeValue"),
		rec.TreeField("treeHeight"), rec.TreeField("diameter"),
		id,
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: update tree page")
	}

	// Full replace of the detail rows: delete everything, then reinsert
	// the current snapshot inside the same transaction.
	for _, table := range []string{"lod_page", "lod_details_page", "danger_indicators_page", "decision_page"} {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE tree_page_id = ?`, table), id,
		); err != nil {
			return "", eris.Wrapf(err, "sqlite: clear %s", table)
		}
	}
	if err := insertTreeDetails(ctx, tx, id, rec); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", eris.Wrap(err, "sqlite: commit update tree")
	}
	return id, nil
}

func (s *SQLiteStore) DeleteTree(ctx context.Context, rec model.TreeRecord) error {
	id, err := s.resolveTreeID(ctx, rec)
	if err != nil {
		return err
	}
	// Detail rows also cascade via foreign keys; the explicit deletes keep
	// the invariant independent of the connection's pragma state.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin delete tree")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range []string{"lod_page", "lod_details_page", "danger_indicators_page", "decision_page"} {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE tree_page_id = ?`, table), id,
		); err != nil {
			return eris.Wrapf(err, "sqlite: delete from %s", table)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tree_page WHERE id = ?`, id); err != nil {
		return eris.Wrap(err, "sqlite: delete tree page")
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit delete tree")
}

// resolveTreeID resolves the persisted row for rec: by identifier when the
// record carries one, falling back to its (date key, tree number) slot for
// records created but not yet confirmed.
func (s *SQLiteStore) resolveTreeID(ctx context.Context, rec model.TreeRecord) (string, error) {
	if rec.ID != "" {
		var id string
		err := s.db.QueryRowContext(ctx,
			`SELECT id FROM tree_page WHERE id = ?`, rec.ID,
		).Scan(&id)
		if err == nil {
			return id, nil
		}
		if err != sql.ErrNoRows {
			return "", eris.Wrap(err, "sqlite: resolve tree by id")
		}
	}

	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM tree_page WHERE date_key = ? AND tree_number = ?`,
		rec.DateKey, rec.TreeNumber,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", eris.Wrap(err, "sqlite: resolve tree by day and number")
	}
	return id, nil
}

// insertTreeDetails writes the danger-level, stem-measurement, indicator,
// and decision rows for a tree page inside the caller's transaction.
func insertTreeDetails(ctx context.Context, tx *sql.Tx, id string, rec model.TreeRecord) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO lod_page (tree_page_id, lod) VALUES (?, ?)`,
		id, int(rec.LOD),
	); err != nil {
		return eris.Wrap(err, "sqlite: insert lod page")
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO lod_details_page (tree_page_id, ast, rst) VALUES (?, ?, ?)`,
		id, nullIfEmpty(rec.AST), nullIfEmpty(rec.RST),
	); err != nil {
		return eris.Wrap(err, "sqlite: insert lod details page")
	}

	for _, label := range checkedLabels(rec) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO danger_indicators_page (tree_page_id, label, checked) VALUES (?, ?, 1)`,
			id, label,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert indicator %q", label)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO decision_page (tree_page_id, decision) VALUES (?, ?)`,
		id, rec.Decision,
	); err != nil {
		return eris.Wrap(err, "sqlite: insert decision page")
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
