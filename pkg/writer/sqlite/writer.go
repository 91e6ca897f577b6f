// Package sqlite provides SQLite database writing for feature finding results
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ChrisMcGann/ffim/pkg/core"
	"github.com/ChrisMcGann/ffim/pkg/store"
)

const (
	// Date format for RunTable and HeaderTable (ISO 8601)
	dateFormat = "2006-01-02 15:04:05"
	// Schema version stored in HeaderTable
	schemaVersion = 1
)

// Run describes one feature finding run
type Run struct {
	ID         uuid.UUID
	InputFile  string
	NumBins    int
	IMStart    float64
	IMEnd      float64
	Parameters string // effective parameters as YAML
	Created    time.Time
}

// Bin describes one IM bin of a run
type Bin struct {
	Pass      int
	Bin       int
	CenterIM  float64
	AverageIM float64
	Points    int
	Features  int
}

// Writer handles writing features to SQLite database files
type Writer struct {
	db          *sql.DB
	outputPath  string
	runID       string
	featureStmt *sql.Stmt
	binStmt     *sql.Stmt
	features    int
	closed      bool
}

// NewWriter creates a new SQLite writer
func NewWriter(outputPath string) (*Writer, error) {
	db, err := sql.Open("sqlite3", outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	w := &Writer{
		db:         db,
		outputPath: outputPath,
	}

	if err := w.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	if err := w.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}

	return w, nil
}

// createTables creates the required database schema
func (w *Writer) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS RunTable (
		RunId TEXT PRIMARY KEY,
		InputFile TEXT,
		NumBins INTEGER,
		ImStart DOUBLE,
		ImEnd DOUBLE,
		Parameters TEXT,
		CreationDate TEXT
	);

	CREATE TABLE IF NOT EXISTS BinTable (
		RunId TEXT NOT NULL,
		Pass INTEGER NOT NULL,
		Bin INTEGER NOT NULL,
		CenterIonMobility DOUBLE,
		AverageIonMobility DOUBLE,
		Points INTEGER,
		Features INTEGER,
		PRIMARY KEY (RunId, Pass, Bin)
	);

	CREATE TABLE IF NOT EXISTS FeatureTable (
		FeatureId INTEGER PRIMARY KEY AUTOINCREMENT,
		RunId TEXT NOT NULL,
		FeatureKey TEXT,
		RetentionTime DOUBLE,
		MassToCharge DOUBLE,
		Intensity DOUBLE,
		Charge INTEGER,
		Quality DOUBLE,
		IonMobility DOUBLE,
		blobHullRT BLOB,
		blobHullMass BLOB
	);

	CREATE TABLE IF NOT EXISTS HeaderTable (
		version INTEGER NOT NULL DEFAULT 0,
		CreationDate TEXT,
		Description TEXT
	);
	`

	_, err := w.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

// prepareStatements prepares SQL statements for batch insertion
func (w *Writer) prepareStatements() error {
	var err error

	w.featureStmt, err = w.db.Prepare(`
		INSERT INTO FeatureTable (
			RunId, FeatureKey, RetentionTime, MassToCharge, Intensity,
			Charge, Quality, IonMobility, blobHullRT, blobHullMass
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare feature statement: %w", err)
	}

	w.binStmt, err = w.db.Prepare(`
		INSERT OR REPLACE INTO BinTable (
			RunId, Pass, Bin, CenterIonMobility, AverageIonMobility, Points, Features
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare bin statement: %w", err)
	}

	return nil
}

// WriteRun records the run every later row belongs to. A zero ID is replaced
// by a random one.
func (w *Writer) WriteRun(run Run) (uuid.UUID, error) {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.Created.IsZero() {
		run.Created = time.Now()
	}

	_, err := w.db.Exec(`
		INSERT INTO RunTable (RunId, InputFile, NumBins, ImStart, ImEnd, Parameters, CreationDate)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID.String(), run.InputFile, run.NumBins, run.IMStart, run.IMEnd, run.Parameters, run.Created.Format(dateFormat))
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert run: %w", err)
	}

	w.runID = run.ID.String()
	return run.ID, nil
}

// WriteBin writes the statistics of one bin
func (w *Writer) WriteBin(bin Bin) error {
	if w.runID == "" {
		return fmt.Errorf("failed to insert bin %d/%d: no run written", bin.Pass, bin.Bin)
	}
	_, err := w.binStmt.Exec(w.runID, bin.Pass, bin.Bin, bin.CenterIM, bin.AverageIM, bin.Points, bin.Features)
	if err != nil {
		return fmt.Errorf("failed to insert bin %d/%d: %w", bin.Pass, bin.Bin, err)
	}
	return nil
}

// WriteFeature writes a single feature to the database
func (w *Writer) WriteFeature(f core.MatchedFeature) error {
	if w.runID == "" {
		return fmt.Errorf("failed to insert %s: no run written", f.Feature)
	}

	// Encode hull as parallel float64 blobs
	hullRT := make([]float64, len(f.Hull))
	hullMZ := make([]float64, len(f.Hull))
	for i, p := range f.Hull {
		hullRT[i], hullMZ[i] = p[0], p[1]
	}

	// Features without IM binning store NULL
	var im interface{} = nil
	if f.IM != nil {
		im = *f.IM
	}

	_, err := w.featureStmt.Exec(
		w.runID,                       // RunId
		fmt.Sprintf("%016x", f.Key()), // FeatureKey
		f.RT,                          // RetentionTime
		f.MZ,                          // MassToCharge
		f.Intensity,                   // Intensity
		f.Charge,                      // Charge
		f.Quality,                     // Quality
		im,                            // IonMobility
		store.EncodeFloat64s(hullRT),  // blobHullRT
		store.EncodeFloat64s(hullMZ),  // blobHullMass
	)
	if err != nil {
		return fmt.Errorf("failed to insert feature: %w", err)
	}

	w.features++
	return nil
}

// Count returns the number of features written so far
func (w *Writer) Count() int {
	return w.features
}

// Finalize writes the header table and closes the database
func (w *Writer) Finalize() error {
	if w.closed {
		return nil
	}
	w.closed = true

	// Write HeaderTable
	_, err := w.db.Exec(`
		INSERT INTO HeaderTable (version, CreationDate, Description)
		VALUES (?, ?, ?)
	`, schemaVersion, time.Now().Format(dateFormat), fmt.Sprintf("%d features", w.features))
	if err != nil {
		w.db.Close()
		return fmt.Errorf("failed to insert header: %w", err)
	}

	// Close prepared statements
	if w.featureStmt != nil {
		w.featureStmt.Close()
	}
	if w.binStmt != nil {
		w.binStmt.Close()
	}

	// Close database
	if err := w.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

// Close closes the database connection (alias for Finalize)
func (w *Writer) Close() error {
	return w.Finalize()
}
