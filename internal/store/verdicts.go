package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/admit/internal/ir"
)

// WriteVerdict appends a verdict to the log.
// Uses ON CONFLICT(token) DO NOTHING for idempotency: a dispatch token is
// recorded once, duplicate writes are silently ignored.
func (s *Store) WriteVerdict(ctx context.Context, rec ir.VerdictRecord) error {
	if _, err := ir.ResultFromOutcome(rec.Outcome, rec.Reason); err != nil {
		return fmt.Errorf("write verdict: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verdicts
		(seq, token, invocation_id, app, entry_type, entry_address, module, function, outcome, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(token) DO NOTHING
	`,
		rec.Seq,
		rec.Token,
		nullable(rec.InvocationID),
		rec.App,
		rec.EntryType,
		rec.EntryAddress,
		nullable(rec.Module),
		nullable(rec.Function),
		string(rec.Outcome),
		nullable(rec.Reason),
	)
	if err != nil {
		return fmt.Errorf("write verdict: %w", err)
	}
	return nil
}

// ReadVerdicts returns verdicts in log order. An empty app returns every
// application's verdicts; limit <= 0 means no limit.
func (s *Store) ReadVerdicts(ctx context.Context, app string, limit int) ([]ir.VerdictRecord, error) {
	query := `SELECT ` + verdictColumns + ` FROM verdicts`
	var args []any
	if app != "" {
		query += ` WHERE app = ?`
		args = append(args, app)
	}
	query += ` ORDER BY seq ASC, id ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read verdicts: %w", err)
	}
	defer rows.Close()

	var out []ir.VerdictRecord
	for rows.Next() {
		rec, err := scanVerdict(rows)
		if err != nil {
			return nil, fmt.Errorf("read verdicts: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read verdicts: %w", err)
	}
	return out, nil
}

// ReadVerdictByToken returns the verdict recorded for a dispatch token.
func (s *Store) ReadVerdictByToken(ctx context.Context, token string) (ir.VerdictRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+verdictColumns+` FROM verdicts WHERE token = ?`, token)
	rec, err := scanVerdict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.VerdictRecord{}, false, nil
	}
	if err != nil {
		return ir.VerdictRecord{}, false, fmt.Errorf("read verdict %s: %w", token, err)
	}
	return rec, true, nil
}

// ReadVerdictsByInvocation returns every verdict sharing an invocation id:
// the same entry dispatched to the same module more than once.
func (s *Store) ReadVerdictsByInvocation(ctx context.Context, invocationID string) ([]ir.VerdictRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+verdictColumns+` FROM verdicts
		WHERE invocation_id = ?
		ORDER BY seq ASC, id ASC
	`, invocationID)
	if err != nil {
		return nil, fmt.Errorf("read verdicts by invocation: %w", err)
	}
	defer rows.Close()

	var out []ir.VerdictRecord
	for rows.Next() {
		rec, err := scanVerdict(rows)
		if err != nil {
			return nil, fmt.Errorf("read verdicts by invocation: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LastSeq returns the highest recorded seq, 0 for an empty log. Used to
// resume the dispatcher clock after a restart.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM verdicts`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq.Int64, nil
}
