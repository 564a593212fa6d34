package store

import (
	"database/sql"
	"fmt"

	"github.com/roach88/admit/internal/ir"
)

// nullable stores "" as NULL for optional TEXT columns.
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const verdictColumns = `id, seq, token, invocation_id, app, entry_type, entry_address, module, function, outcome, reason`

// scanVerdict reads one verdicts row selected with verdictColumns.
func scanVerdict(row rowScanner) (ir.VerdictRecord, error) {
	var rec ir.VerdictRecord
	var invocationID, module, function, reason sql.NullString
	var outcome string
	if err := row.Scan(
		&rec.ID, &rec.Seq, &rec.Token, &invocationID, &rec.App, &rec.EntryType,
		&rec.EntryAddress, &module, &function, &outcome, &reason,
	); err != nil {
		return ir.VerdictRecord{}, err
	}

	if _, err := ir.ResultFromOutcome(ir.Outcome(outcome), reason.String); err != nil {
		return ir.VerdictRecord{}, fmt.Errorf("verdict %d: %w", rec.ID, err)
	}
	rec.InvocationID = invocationID.String
	rec.Module = module.String
	rec.Function = function.String
	rec.Outcome = ir.Outcome(outcome)
	rec.Reason = reason.String
	return rec, nil
}
