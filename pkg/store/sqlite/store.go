// Package sqlite provides a SQLite-backed pseudo-spectrum store
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ChrisMcGann/ffim/pkg/core"
	"github.com/ChrisMcGann/ffim/pkg/store"
	_ "github.com/mattn/go-sqlite3"
)

// Store persists binned spectra in a single SQLite file, one row per spectrum.
type Store struct {
	db         *sql.DB
	path       string
	appendStmt *sql.Stmt
}

// NewStore opens (or creates) the store at path
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; concurrent bin loads queue behind it.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:   db,
		path: path,
	}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// createTables creates the required database schema
func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS PseudoSpectrumTable (
		SpectrumId INTEGER PRIMARY KEY AUTOINCREMENT,
		Pass INTEGER NOT NULL,
		Bin INTEGER NOT NULL,
		ScanIndex INTEGER,
		RetentionTime DOUBLE,
		MSLevel INTEGER,
		blobMass BLOB,
		blobIntensity BLOB,
		blobIonMobility BLOB
	);

	CREATE INDEX IF NOT EXISTS PseudoSpectrumBinIndex
		ON PseudoSpectrumTable (Pass, Bin, SpectrumId);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

// prepareStatements prepares SQL statements for batch insertion
func (s *Store) prepareStatements() error {
	var err error

	s.appendStmt, err = s.db.Prepare(`
		INSERT INTO PseudoSpectrumTable (
			Pass, Bin, ScanIndex, RetentionTime, MSLevel,
			blobMass, blobIntensity, blobIonMobility
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare append statement: %w", err)
	}

	return nil
}

// Append writes spectra after the existing rows of key in one transaction
func (s *Store) Append(ctx context.Context, key core.BinKey, spectra []*core.Spectrum) error {
	if len(spectra) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt := tx.StmtContext(ctx, s.appendStmt)

	for _, spec := range spectra {
		mz, intensity, im := store.PeakArrays(spec.Peaks)
		_, err := stmt.ExecContext(ctx,
			key.Pass,                        // Pass
			key.Bin,                         // Bin
			spec.Index,                      // ScanIndex
			spec.RT,                         // RetentionTime
			spec.MSLevel,                    // MSLevel
			store.EncodeFloat64s(mz),        // blobMass
			store.EncodeFloat64s(intensity), // blobIntensity
			store.EncodeFloat64s(im),        // blobIonMobility
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert spectrum %s into %s: %w", spec.Name(), key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", key, err)
	}
	return nil
}

// Load reads all spectra of key in append order
func (s *Store) Load(ctx context.Context, key core.BinKey) ([]*core.Spectrum, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ScanIndex, RetentionTime, MSLevel, blobMass, blobIntensity, blobIonMobility
		FROM PseudoSpectrumTable
		WHERE Pass = ? AND Bin = ?
		ORDER BY SpectrumId
	`, key.Pass, key.Bin)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", key, err)
	}
	defer rows.Close()

	var spectra []*core.Spectrum
	for rows.Next() {
		spec := &core.Spectrum{SourceFormat: "binned", SourceFile: s.path}
		var mzBlob, intBlob, imBlob []byte
		if err := rows.Scan(&spec.Index, &spec.RT, &spec.MSLevel, &mzBlob, &intBlob, &imBlob); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", key, err)
		}

		mz, err := store.DecodeFloat64s(mzBlob)
		if err != nil {
			return nil, err
		}
		intensity, err := store.DecodeFloat64s(intBlob)
		if err != nil {
			return nil, err
		}
		im, err := store.DecodeFloat64s(imBlob)
		if err != nil {
			return nil, err
		}
		if spec.Peaks, err = store.JoinPeaks(mz, intensity, im); err != nil {
			return nil, err
		}

		spectra = append(spectra, spec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading %s: %w", key, err)
	}
	return spectra, nil
}

// Delete removes every spectrum stored under key
func (s *Store) Delete(ctx context.Context, key core.BinKey) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM PseudoSpectrumTable WHERE Pass = ? AND Bin = ?`, key.Pass, key.Bin)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Close closes the prepared statements and the database
func (s *Store) Close() error {
	if s.appendStmt != nil {
		s.appendStmt.Close()
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
