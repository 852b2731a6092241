package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/treeline-forestry/dta-cli/internal/db"
	"github.com/treeline-forestry/dta-cli/internal/model"
)

// PostgresStore implements Store using pgxpool, for crews that sync a
// shared office database instead of a local file.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	date_key   TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
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
	id             TEXT PRIMARY KEY,
	date_key       TEXT NOT NULL,
	tree_number    INTEGER NOT NULL,
	species        TEXT,
	tree_class     TEXT,
	wildlife_value TEXT,
	tree_height    TEXT,
	diameter       TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
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
	id           BIGSERIAL PRIMARY KEY,
	tree_page_id TEXT NOT NULL REFERENCES tree_page(id) ON DELETE CASCADE,
	label        TEXT NOT NULL,
	checked      BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS decision_page (
	tree_page_id TEXT PRIMARY KEY REFERENCES tree_page(id) ON DELETE CASCADE,
	decision     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tree_page_date_key ON tree_page(date_key);
CREATE INDEX IF NOT EXISTS idx_tree_page_day_number ON tree_page(date_key, tree_number);
CREATE INDEX IF NOT EXISTS idx_indicators_tree ON danger_indicators_page(tree_page_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveGeneral(ctx context.Context, dateKey string, general model.GeneralInfo) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save general")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO sessions (date_key, updated_at) VALUES ($1, now())
		 ON CONFLICT (date_key) DO UPDATE SET updated_at = now()`,
		dateKey,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: upsert session")
	}

	cols := make([]string, 0, len(generalColumns))
	updates := make([]string, 0, len(generalColumns))
	placeholders := make([]string, 0, len(generalColumns))
	args := []any{dateKey}
	for i, gc := range generalColumns {
		cols = append(cols, gc.Column)
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", gc.Column, gc.Column))
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+2))
		args = append(args, general.Get(gc.Key))
	}
	query := fmt.Sprintf(
		`INSERT INTO general_page (date_key, %s) VALUES ($1, %s)
		 ON CONFLICT (date_key) DO UPDATE SET %s`,
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(updates, ", "),
	)
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return eris.Wrap(err, "postgres: upsert general page")
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit save general")
}

func (s *PostgresStore) LoadGeneral(ctx context.Context, dateKey string) (model.GeneralInfo, error) {
	cols := make([]string, 0, len(generalColumns))
	for _, gc := range generalColumns {
		cols = append(cols, gc.Column)
	}
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM general_page WHERE date_key = $1`, strings.Join(cols, ", ")),
		dateKey,
	)

	vals := make([]*string, len(generalColumns))
	dest := make([]any, len(generalColumns))
	for i := range vals {
		dest[i] = &vals[i]
	}
	err := row.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load general page")
	}

	general := make(model.GeneralInfo, len(generalColumns))
	for i, gc := range generalColumns {
		if vals[i] != nil {
			general[gc.Key] = *vals[i]
		} else {
			general[gc.Key] = ""
		}
	}
	return general, nil
}

func (s *PostgresStore) ListTrees(ctx context.Context) ([]model.TreeRecord, error) {
	rows, err := s.pool.Query(ctx,
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
		return nil, eris.Wrap(err, "postgres: list trees")
	}
	defer rows.Close()

	var trees []model.TreeRecord
	for rows.Next() {
		var rec model.TreeRecord
		var species, class, wildlife, height, diameter, ast, rst *string
		var lod int
		if err := rows.Scan(
			&rec.ID, &rec.TreeNumber, &rec.DateKey,
			&species, &class, &wildlife, &height, &diameter,
			&lod, &ast, &rst, &rec.Decision,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan tree")
		}
		rec.LOD = model.LOD(lod)
		rec.Tree = map[string]string{
			"species":       deref(species),
			"treeClass":     deref(class),
			"wildlifeValue": deref(wildlife),
			"treeHeight":    deref(height),
			"diameter":      deref(diameter),
		}
		rec.AST = deref(ast)
		rec.RST = deref(rst)
		rec.LODChecks = map[string]bool{}
		trees = append(trees, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list trees iterate")
	}

	if err := s.loadIndicators(ctx, trees); err != nil {
		return nil, err
	}
	return trees, nil
}

func (s *PostgresStore) loadIndicators(ctx context.Context, trees []model.TreeRecord) error {
	if len(trees) == 0 {
		return nil
	}
	byID := make(map[string]*model.TreeRecord, len(trees))
	for i := range trees {
		byID[trees[i].ID] = &trees[i]
	}

	rows, err := s.pool.Query(ctx,
		`SELECT tree_page_id, label, checked FROM danger_indicators_page`,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: load indicators")
	}
	defer rows.Close()

	for rows.Next() {
		var treeID, label string
		var checked bool
		if err := rows.Scan(&treeID, &label, &checked); err != nil {
			return eris.Wrap(err, "postgres: scan indicator")
		}
		if rec, ok := byID[treeID]; ok {
			rec.LODChecks[label] = checked
		}
	}
	return eris.Wrap(rows.Err(), "postgres: load indicators iterate")
}

func (s *PostgresStore) CreateTree(ctx context.Context, rec model.TreeRecord) (string, error) {
	id := uuid.New().String()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", eris.Wrap(err, "postgres: begin create tree")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO tree_page (id, date_key, tree_number, species, tree_class, wildlife_value, tree_height, diameter)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, rec.DateKey, rec.TreeNumber,
		rec.TreeField("species"), rec.TreeField("treeClass"), rec.TreeField("wildlifeValue"),
		rec.TreeField("treeHeight"), rec.TreeField("diameter"),
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert tree page")
	}

	if err := insertTreeDetailsPgx(ctx, tx, id, rec); err != nil {
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", eris.Wrap(err, "postgres: commit create tree")
	}
	return id, nil
}

func (s *PostgresStore) UpdateTree(ctx context.Context, rec model.TreeRecord) (string, error) {
	id, err := s.resolveTreeID(ctx, rec)
	if err != nil {
		return "", err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", eris.Wrap(err, "postgres: begin update tree")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`UPDATE tree_page
		 SET tree_number = $1, date_key = $2, species = $3, tree_class = $4, wildlife_value = $5, tree_height = $6, diameter = $7
		 WHERE id = $8`,
		rec.TreeNumber, rec.DateKey,
		rec.TreeField("species"), rec.TreeField("treeClass"), rec.TreeField("wildlifeValue"),
		rec.TreeField("treeHeight"), rec.TreeField("diameter"),
		id,
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: update tree page")
	}

	for _, table := range []string{"lod_page", "lod_details_page", "danger_indicators_page", "decision_page"} {
		if _, err := tx.Exec(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE tree_page_id = $1`, table), id,
		); err != nil {
			return "", eris.Wrapf(err, "postgres: clear %s", table)
		}
	}
	if err := insertTreeDetailsPgx(ctx, tx, id, rec); err != nil {
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", eris.Wrap(err, "postgres: commit update tree")
	}
	return id, nil
}

func (s *PostgresStore) DeleteTree(ctx context.Context, rec model.TreeRecord) error {
	id, err := s.resolveTreeID(ctx, rec)
	if err != nil {
		return err
	}
	// Detail rows cascade via the foreign keys.
	_, err = s.pool.Exec(ctx, `DELETE FROM tree_page WHERE id = $1`, id)
	return eris.Wrap(err, "postgres: delete tree page")
}

func (s *PostgresStore) resolveTreeID(ctx context.Context, rec model.TreeRecord) (string, error) {
	if rec.ID != "" {
		var id string
		err := s.pool.QueryRow(ctx,
			`SELECT id FROM tree_page WHERE id = $1`, rec.ID,
		).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return "", eris.Wrap(err, "postgres: resolve tree by id")
		}
	}

	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM tree_page WHERE date_key = $1 AND tree_number = $2`,
		rec.DateKey, rec.TreeNumber,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", eris.Wrap(err, "postgres: resolve tree by day and number")
	}
	return id, nil
}

func insertTreeDetailsPgx(ctx context.Context, tx pgx.Tx, id string, rec model.TreeRecord) error {
	if _, err := tx.Exec(ctx,
		`INSERT INTO lod_page (tree_page_id, lod) VALUES ($1, $2)`,
		id, int(rec.LOD),
	); err != nil {
		return eris.Wrap(err, "postgres: insert lod page")
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO lod_details_page (tree_page_id, ast, rst) VALUES ($1, $2, $3)`,
		id, nullIfEmpty(rec.AST), nullIfEmpty(rec.RST),
	); err != nil {
		return eris.Wrap(err, "postgres: insert lod details page")
	}

	for _, label := range checkedLabels(rec) {
		if _, err := tx.Exec(ctx,
			`INSERT INTO danger_indicators_page (tree_page_id, label, checked) VALUES ($1, $2, TRUE)`,
			id, label,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert indicator %q", label)
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO decision_page (tree_page_id, decision) VALUES ($1, $2)`,
		id, rec.Decision,
	); err != nil {
		return eris.Wrap(err, "postgres: insert decision page")
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
