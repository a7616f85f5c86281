package rulestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/CTAG07/bbmark/pkg/bbcode"
)

// ExportRuleSet returns a set as a self-contained rule file. The file never
// uses extends, so it imports into an empty store unchanged.
func (s *Store) ExportRuleSet(ctx context.Context, name string) (*bbcode.RuleFile, error) {
	info, specs, err := s.GetRuleSet(ctx, name)
	if err != nil {
		return nil, err
	}
	return &bbcode.RuleFile{
		Name:        info.Name,
		Description: info.Description,
		Rules:       specs,
	}, nil
}

// ImportRuleSet stores the rules described by f under f.Name. Extends and
// extras are flattened into the stored rules.
//
// If a set of that name exists and replace is false, ErrRuleSetExists is
// returned. With replace set, its rules and description are swapped out and
// its revision is bumped, so the revision of a name never goes backwards.
func (s *Store) ImportRuleSet(ctx context.Context, f *bbcode.RuleFile, replace bool) (RuleSetInfo, error) {
	if err := checkName(f.Name); err != nil {
		return RuleSetInfo{}, err
	}
	specs, err := f.Specs()
	if err != nil {
		return RuleSetInfo{}, err
	}
	if err = checkSpecs(specs); err != nil {
		return RuleSetInfo{}, fmt.Errorf("rule set %q rejected: %w", f.Name, err)
	}
	if !replace {
		return s.CreateRuleSet(ctx, f.Name, f.Description, specs)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return RuleSetInfo{}, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	var setID int
	err = tx.QueryRowContext(ctx, `SELECT set_id FROM rule_sets WHERE set_name = ?`, f.Name).Scan(&setID)
	if errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		return s.CreateRuleSet(ctx, f.Name, f.Description, specs)
	}
	if err != nil {
		return RuleSetInfo{}, fmt.Errorf("failed to look up rule set %q: %w", f.Name, err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM rule_set_rules WHERE set_id = ?`, setID); err != nil {
		return RuleSetInfo{}, fmt.Errorf("failed to remove rules of %q: %w", f.Name, err)
	}
	if err = insertRules(ctx, tx, setID, 0, specs); err != nil {
		return RuleSetInfo{}, err
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE rule_sets SET description = ?, revision = revision + 1, updated_at = ? WHERE set_id = ?`,
		f.Description, time.Now().Unix(), setID); err != nil {
		return RuleSetInfo{}, fmt.Errorf("failed to update rule set %q: %w", f.Name, err)
	}
	if err = tx.Commit(); err != nil {
		return RuleSetInfo{}, fmt.Errorf("could not commit transaction: %w", err)
	}

	s.logger.InfoContext(ctx, "Rule set replaced",
		slog.String("rule_set", f.Name),
		slog.Int("rules", len(specs)),
	)
	return s.info(ctx, f.Name)
}
