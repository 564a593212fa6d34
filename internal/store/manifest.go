package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/admit/internal/ir"
)

// ImportSummary describes the effect of ImportManifest.
type ImportSummary struct {
	App            string
	ManifestDigest string
	Modules        int
	EntryTypes     int
	Unchanged      bool // the stored manifest already had this digest
}

// ImportManifest stores an application's manifest, replacing any modules
// previously imported for the same application. The replacement is atomic:
// concurrent registry lookups see either the old or the new manifest.
//
// Code artifacts no longer referenced by any module are removed.
func (s *Store) ImportManifest(ctx context.Context, m *ir.AppManifest) (ImportSummary, error) {
	digest, err := ir.ManifestDigest(m)
	if err != nil {
		return ImportSummary{}, fmt.Errorf("import manifest: %w", err)
	}
	summary := ImportSummary{App: m.Name, ManifestDigest: digest, Modules: len(m.Modules)}
	for _, mod := range m.Modules {
		summary.EntryTypes += len(mod.EntryTypes)
	}

	var existing string
	err = s.db.QueryRowContext(ctx, `SELECT manifest_digest FROM apps WHERE name = ?`, m.Name).Scan(&existing)
	switch {
	case err == nil && existing == digest:
		summary.Unchanged = true
		return summary, nil
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return ImportSummary{}, fmt.Errorf("import manifest: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ImportSummary{}, fmt.Errorf("import manifest: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM modules WHERE app = ?`, m.Name); err != nil {
		return ImportSummary{}, fmt.Errorf("import manifest: clear modules: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO apps (name, manifest_digest) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET manifest_digest = excluded.manifest_digest
	`, m.Name, digest); err != nil {
		return ImportSummary{}, fmt.Errorf("import manifest: app: %w", err)
	}

	for i, mod := range m.Modules {
		codeDigest, err := writeCode(ctx, tx, mod.Code)
		if err != nil {
			return ImportSummary{}, fmt.Errorf("import manifest: module %s: %w", mod.Name, err)
		}
		runtime := mod.Runtime
		if runtime == "" {
			runtime = ir.RuntimeCUE
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO modules (app, name, position, runtime, code_digest)
			VALUES (?, ?, ?, ?, ?)
		`, m.Name, mod.Name, i, runtime, codeDigest); err != nil {
			return ImportSummary{}, fmt.Errorf("import manifest: module %s: %w", mod.Name, err)
		}
		for j, t := range mod.EntryTypes {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO module_entry_types (app, entry_type, module, position)
				VALUES (?, ?, ?, ?)
			`, m.Name, t, mod.Name, j); err != nil {
				return ImportSummary{}, fmt.Errorf("import manifest: entry type %q of module %s: %w", t, mod.Name, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM code_artifacts
		WHERE digest NOT IN (SELECT code_digest FROM modules)
	`); err != nil {
		return ImportSummary{}, fmt.Errorf("import manifest: prune code: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return ImportSummary{}, fmt.Errorf("import manifest: commit: %w", err)
	}
	return summary, nil
}

// writeCode stores code once per digest and returns the digest.
func writeCode(ctx context.Context, tx *sql.Tx, code []byte) (string, error) {
	if code == nil {
		code = []byte{}
	}
	digest := ir.CodeDigest(code)
	data, compression := compressCode(code)
	_, err := tx.ExecContext(ctx, `
		INSERT INTO code_artifacts (digest, size, compression, data)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(digest) DO NOTHING
	`, digest, len(code), compression, data)
	if err != nil {
		return "", fmt.Errorf("write code: %w", err)
	}
	return digest, nil
}

// Apps returns the names of imported applications, sorted.
func (s *Store) Apps(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM apps ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list apps: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list apps: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// LoadManifest rebuilds an imported manifest, modules in import order.
func (s *Store) LoadManifest(ctx context.Context, app string) (*ir.AppManifest, bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM apps WHERE name = ?`, app).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load manifest: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name FROM modules WHERE app = ? ORDER BY position ASC
	`, app)
	if err != nil {
		return nil, false, fmt.Errorf("load manifest: %w", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, false, fmt.Errorf("load manifest: %w", err)
		}
		names = append(names, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("load manifest: %w", err)
	}

	m := &ir.AppManifest{Name: app}
	for _, name := range names {
		artifact, ok, err := s.fetchCode(ctx, app, name)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}
		types, err := s.entryTypes(ctx, app, name)
		if err != nil {
			return nil, false, err
		}
		m.Modules = append(m.Modules, ir.ModuleSpec{
			Name:       name,
			Runtime:    artifact.Runtime,
			EntryTypes: types,
			Code:       artifact.Code,
		})
	}
	return m, true, nil
}

func (s *Store) entryTypes(ctx context.Context, app, module string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_type FROM module_entry_types
		WHERE app = ? AND module = ?
		ORDER BY position ASC
	`, app, module)
	if err != nil {
		return nil, fmt.Errorf("entry types: %w", err)
	}
	defer rows.Close()

	var types []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("entry types: %w", err)
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

// fetchCode loads and verifies a module's code.
func (s *Store) fetchCode(ctx context.Context, app, module string) (ir.CodeArtifact, bool, error) {
	var (
		runtime, digest, compression string
		size                         int
		data                         []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT m.runtime, c.digest, c.size, c.compression, c.data
		FROM modules m
		JOIN code_artifacts c ON c.digest = m.code_digest
		WHERE m.app = ? AND m.name = ?
	`, app, module).Scan(&runtime, &digest, &size, &compression, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.CodeArtifact{}, false, nil
	}
	if err != nil {
		return ir.CodeArtifact{}, false, fmt.Errorf("fetch code %s/%s: %w", app, module, err)
	}

	code, err := decompressCode(data, compression, size)
	if err != nil {
		return ir.CodeArtifact{}, false, fmt.Errorf("fetch code %s/%s: %w", app, module, err)
	}
	if got := ir.CodeDigest(code); got != digest {
		return ir.CodeArtifact{}, false, fmt.Errorf("fetch code %s/%s: digest mismatch (stored %s, computed %s)", app, module, digest, got)
	}

	return ir.CodeArtifact{
		Module:  ir.ModuleIdentity{App: app, Module: module},
		Runtime: runtime,
		Code:    code,
		Digest:  digest,
	}, true, nil
}
