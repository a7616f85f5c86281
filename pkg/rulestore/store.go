package rulestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/CTAG07/bbmark/pkg/bbcode"
)

// DefaultSetName is the reserved name of the built-in tag set.
const DefaultSetName = "default"

var (
	// ErrRuleSetNotFound is returned when no rule set has the requested name.
	ErrRuleSetNotFound = errors.New("rule set not found")
	// ErrRuleSetExists is returned when creating a rule set whose name is taken.
	ErrRuleSetExists = errors.New("rule set already exists")
	// ErrReadOnly is returned when trying to modify the built-in set.
	ErrReadOnly = errors.New("rule set is read-only")
	// ErrInvalidName is returned for names that are empty or contain
	// characters other than letters, digits, '.', '_' and '-'.
	ErrInvalidName = errors.New("invalid rule set name")
)

var validName = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// RuleSetInfo holds the metadata of a stored rule set.
type RuleSetInfo struct {
	Id          int       `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Revision    int       `json:"revision"`
	RuleCount   int       `json:"rule_count"`
	BuiltIn     bool      `json:"built_in"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store is the entry point for reading and writing rule sets. It holds the
// database connection and prepared statements for the read paths.
// All methods are safe for concurrent use.
type Store struct {
	db           *sql.DB
	stmtGetSet   *sql.Stmt
	stmtListSets *sql.Stmt
	stmtGetRules *sql.Stmt
	logger       *slog.Logger
}

// NewStore creates a Store on db. SetupSchema must have been called on db.
// A nil logger discards all logs.
func NewStore(db *sql.DB, logger *slog.Logger) (*Store, error) {
	stmtGetSet, err := db.Prepare(`
SELECT s.set_id, s.description, s.revision, s.created_at, s.updated_at,
       (SELECT COUNT(*) FROM rule_set_rules r WHERE r.set_id = s.set_id)
FROM rule_sets s WHERE s.set_name = ?;`)
	if err != nil {
		return nil, err
	}

	stmtListSets, err := db.Prepare(`
SELECT s.set_id, s.set_name, s.description, s.revision, s.created_at, s.updated_at,
       (SELECT COUNT(*) FROM rule_set_rules r WHERE r.set_id = s.set_id)
FROM rule_sets s ORDER BY s.set_name;`)
	if err != nil {
		_ = stmtGetSet.Close()
		return nil, err
	}

	stmtGetRules, err := db.Prepare(`SELECT rule_name, pattern, template FROM rule_set_rules WHERE set_id = ? ORDER BY position;`)
	if err != nil {
		_ = stmtGetSet.Close()
		_ = stmtListSets.Close()
		return nil, err
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Store{
		db:           db,
		stmtGetSet:   stmtGetSet,
		stmtListSets: stmtListSets,
		stmtGetRules: stmtGetRules,
		logger:       logger,
	}, nil
}

// Close releases the prepared statements. The database itself is left open.
func (s *Store) Close() {
	_ = s.stmtGetSet.Close()
	_ = s.stmtListSets.Close()
	_ = s.stmtGetRules.Close()
}

// builtInInfo describes the reserved default set.
func builtInInfo() RuleSetInfo {
	return RuleSetInfo{
		Name:        DefaultSetName,
		Description: "built-in tag set " + bbcode.Version,
		Revision:    1,
		RuleCount:   len(bbcode.DefaultSpecs()),
		BuiltIn:     true,
	}
}

func checkName(name string) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if name == DefaultSetName {
		return fmt.Errorf("%w: %q", ErrReadOnly, name)
	}
	return nil
}

// checkSpecs compiles specs to reject bad patterns before anything is written.
func checkSpecs(specs []bbcode.RuleSpec) error {
	if _, err := bbcode.NewRuleTable(specs...); err != nil {
		return err
	}
	return nil
}

// CreateRuleSet stores a new rule set with the given rules at revision 1.
func (s *Store) CreateRuleSet(ctx context.Context, name, description string, specs []bbcode.RuleSpec) (RuleSetInfo, error) {
	if err := checkName(name); err != nil {
		return RuleSetInfo{}, err
	}
	if err := checkSpecs(specs); err != nil {
		return RuleSetInfo{}, fmt.Errorf("rule set %q rejected: %w", name, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return RuleSetInfo{}, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM rule_sets WHERE set_name = ?`, name).Scan(&exists)
	if err != nil {
		return RuleSetInfo{}, fmt.Errorf("failed to look up rule set %q: %w", name, err)
	}
	if exists > 0 {
		return RuleSetInfo{}, fmt.Errorf("%w: %q", ErrRuleSetExists, name)
	}

	now := time.Now().Unix()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO rule_sets (set_name, description, revision, created_at, updated_at) VALUES (?, ?, 1, ?, ?)`,
		name, description, now, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return RuleSetInfo{}, fmt.Errorf("%w: %q", ErrRuleSetExists, name)
		}
		return RuleSetInfo{}, fmt.Errorf("failed to insert rule set %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return RuleSetInfo{}, err
	}
	setID := int(id)

	if err = insertRules(ctx, tx, setID, 0, specs); err != nil {
		return RuleSetInfo{}, err
	}
	if err = tx.Commit(); err != nil {
		return RuleSetInfo{}, fmt.Errorf("could not commit transaction: %w", err)
	}

	s.logger.InfoContext(ctx, "Rule set created",
		slog.String("rule_set", name),
		slog.Int("rules", len(specs)),
	)
	return s.info(ctx, name)
}

// AppendRules adds rules to the end of an existing set and bumps its revision.
func (s *Store) AppendRules(ctx context.Context, name string, specs []bbcode.RuleSpec) (RuleSetInfo, error) {
	if err := checkName(name); err != nil {
		return RuleSetInfo{}, err
	}
	if err := checkSpecs(specs); err != nil {
		return RuleSetInfo{}, fmt.Errorf("rules for %q rejected: %w", name, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return RuleSetInfo{}, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	var setID, count int
	err = tx.QueryRowContext(ctx,
		`SELECT s.set_id, (SELECT COUNT(*) FROM rule_set_rules r WHERE r.set_id = s.set_id) FROM rule_sets s WHERE s.set_name = ?`,
		name).Scan(&setID, &count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RuleSetInfo{}, fmt.Errorf("%w: %q", ErrRuleSetNotFound, name)
		}
		return RuleSetInfo{}, fmt.Errorf("failed to look up rule set %q: %w", name, err)
	}

	if err = insertRules(ctx, tx, setID, count, specs); err != nil {
		return RuleSetInfo{}, err
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE rule_sets SET revision = revision + 1, updated_at = ? WHERE set_id = ?`,
		time.Now().Unix(), setID); err != nil {
		return RuleSetInfo{}, fmt.Errorf("failed to bump revision of %q: %w", name, err)
	}
	if err = tx.Commit(); err != nil {
		return RuleSetInfo{}, fmt.Errorf("could not commit transaction: %w", err)
	}

	s.logger.InfoContext(ctx, "Rules appended",
		slog.String("rule_set", name),
		slog.Int("rules", len(specs)),
	)
	return s.info(ctx, name)
}

func insertRules(ctx context.Context, tx *sql.Tx, setID, offset int, specs []bbcode.RuleSpec) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO rule_set_rules (set_id, position, rule_name, pattern, template) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(stmt)

	for i, spec := range specs {
		if _, err = stmt.ExecContext(ctx, setID, offset+i, spec.Name, spec.Pattern, spec.Template); err != nil {
			return fmt.Errorf("failed to insert rule %d: %w", offset+i, err)
		}
	}
	return nil
}

// info loads the metadata of a stored set.
func (s *Store) info(ctx context.Context, name string) (RuleSetInfo, error) {
	info := RuleSetInfo{Name: name}
	var created, updated int64
	err := s.stmtGetSet.QueryRowContext(ctx, name).Scan(&info.Id, &info.Description, &info.Revision, &created, &updated, &info.RuleCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RuleSetInfo{}, fmt.Errorf("%w: %q", ErrRuleSetNotFound, name)
		}
		return RuleSetInfo{}, fmt.Errorf("failed to load rule set %q: %w", name, err)
	}
	info.CreatedAt = time.Unix(created, 0).UTC()
	info.UpdatedAt = time.Unix(updated, 0).UTC()
	return info, nil
}

// GetRuleSet returns the metadata and rules of a set in application order.
func (s *Store) GetRuleSet(ctx context.Context, name string) (RuleSetInfo, []bbcode.RuleSpec, error) {
	if name == DefaultSetName {
		return builtInInfo(), bbcode.DefaultSpecs(), nil
	}

	info, err := s.info(ctx, name)
	if err != nil {
		return RuleSetInfo{}, nil, err
	}

	rows, err := s.stmtGetRules.QueryContext(ctx, info.Id)
	if err != nil {
		return RuleSetInfo{}, nil, fmt.Errorf("failed to query rules of %q: %w", name, err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	specs := make([]bbcode.RuleSpec, 0, info.RuleCount)
	for rows.Next() {
		var spec bbcode.RuleSpec
		if err = rows.Scan(&spec.Name, &spec.Pattern, &spec.Template); err != nil {
			return RuleSetInfo{}, nil, err
		}
		specs = append(specs, spec)
	}
	if err = rows.Err(); err != nil {
		return RuleSetInfo{}, nil, err
	}
	return info, specs, nil
}

// Table compiles a stored set (or the built-in one) into a new RuleTable.
func (s *Store) Table(ctx context.Context, name string) (*bbcode.RuleTable, RuleSetInfo, error) {
	info, specs, err := s.GetRuleSet(ctx, name)
	if err != nil {
		return nil, RuleSetInfo{}, err
	}
	table, err := bbcode.NewRuleTable(specs...)
	if err != nil {
		return nil, RuleSetInfo{}, fmt.Errorf("stored rule set %q does not compile: %w", name, err)
	}
	return table, info, nil
}

// ListRuleSets returns the built-in set followed by every stored set, sorted
// by name.
func (s *Store) ListRuleSets(ctx context.Context) ([]RuleSetInfo, error) {
	rows, err := s.stmtListSets.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	sets := []RuleSetInfo{builtInInfo()}
	for rows.Next() {
		var info RuleSetInfo
		var created, updated int64
		if err = rows.Scan(&info.Id, &info.Name, &info.Description, &info.Revision, &created, &updated, &info.RuleCount); err != nil {
			return nil, err
		}
		info.CreatedAt = time.Unix(created, 0).UTC()
		info.UpdatedAt = time.Unix(updated, 0).UTC()
		sets = append(sets, info)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return sets, nil
}

// DeleteRuleSet removes a set and all of its rules.
func (s *Store) DeleteRuleSet(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.ExecContext(ctx, `DELETE FROM rule_set_rules WHERE set_id = (SELECT set_id FROM rule_sets WHERE set_name = ?)`, name); err != nil {
		return fmt.Errorf("failed to remove rules of %q: %w", name, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM rule_sets WHERE set_name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to remove rule set %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %q", ErrRuleSetNotFound, name)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	s.logger.InfoContext(ctx, "Rule set removed", slog.String("rule_set", name))
	return nil
}
