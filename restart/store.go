// Package restart persists the finalized threshold pressure vector so that a
// restarted run can inject it instead of deriving it again.
package restart

import (
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("no threshold pressures stored")

type Store struct {
	*sql.DB
}

func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id            TEXT PRIMARY KEY,
			title             TEXT,
			timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS thpres (
			run_id            TEXT,
			report_step       BIGINT,
			num_regions       BIGINT,
			data              BLOB,
			timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY(run_id, report_step),
			FOREIGN KEY(run_id) REFERENCES runs(run_id)
		);
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db}, nil
}

func (s *Store) NewRun(title string) (runID string, err error) {
	runID = uuid.New().String()
	if _, err = s.Exec(`INSERT INTO runs (run_id, title) VALUES (?, ?)`, runID, title); err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return
}

// LatestRun returns the most recently created run
func (s *Store) LatestRun() (runID string, err error) {
	err = s.QueryRow(`SELECT run_id FROM runs ORDER BY timestamp DESC, rowid DESC LIMIT 1`).Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return
}

// WriteThresholds stores the row major numRegions x numRegions vector for a
// report step, replacing any earlier one.
func (s *Store) WriteThresholds(runID string, step, numRegions int, values []float64) error {
	if len(values) != numRegions*numRegions {
		return fmt.Errorf("have %d values for %d regions", len(values), numRegions)
	}
	blob, err := EncodeVector(values)
	if err != nil {
		return err
	}
	_, err = s.Exec(`
		INSERT OR REPLACE INTO thpres (run_id, report_step, num_regions, data)
		VALUES (?, ?, ?, ?)`, runID, step, numRegions, blob)
	if err != nil {
		return fmt.Errorf("failed to write threshold pressures: %w", err)
	}
	return nil
}

// ReadThresholds returns the vector of the latest report step at or before step
func (s *Store) ReadThresholds(runID string, step int) (numRegions int, values []float64, err error) {
	var blob []byte
	err = s.QueryRow(`
		SELECT num_regions, data FROM thpres
		WHERE run_id = ? AND report_step <= ?
		ORDER BY report_step DESC LIMIT 1`, runID, step).Scan(&numRegions, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, fmt.Errorf("%w for run %s at step %d", ErrNotFound, runID, step)
	}
	if err != nil {
		return 0, nil, err
	}
	if values, err = DecodeVector(blob); err != nil {
		return 0, nil, err
	}
	if len(values) != numRegions*numRegions {
		return 0, nil, fmt.Errorf("stored vector has %d values for %d regions", len(values), numRegions)
	}
	return
}

// LatestStep is the highest report step stored for a run
func (s *Store) LatestStep(runID string) (step int, err error) {
	var st sql.NullInt64
	if err = s.QueryRow(`SELECT MAX(report_step) FROM thpres WHERE run_id = ?`, runID).Scan(&st); err != nil {
		return
	}
	if !st.Valid {
		return 0, fmt.Errorf("%w for run %s", ErrNotFound, runID)
	}
	return int(st.Int64), nil
}

// AnyStep passes as step to ReadThresholds to read the latest step
const AnyStep = math.MaxInt32
