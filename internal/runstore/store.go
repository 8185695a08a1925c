// Package runstore records completed fits in a SQLite database so that runs
// can be listed and compared later. The schema is managed with
// golang-migrate from migrations embedded in the binary.
package runstore

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/peakfit/internal/fit"
	"github.com/banshee-data/peakfit/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// Run is one persisted fit.
type Run struct {
	RunID      string          `json:"run_id"`
	ConfigPath string          `json:"config_path"`
	HistName   string          `json:"hist_name"`
	FitOption  string          `json:"fit_option"`
	StatusCode int             `json:"status_code"`
	Converged  bool            `json:"converged"`
	Chi2       float64         `json:"chi2"`
	NDF        int             `json:"ndf"`
	Message    string          `json:"message,omitempty"`
	ParamsJSON json.RawMessage `json:"params_json,omitempty"`
	CreatedAt  int64           `json:"created_at"`
}

// StoredParameter is the persisted form of one fitted parameter.
type StoredParameter struct {
	Index int `json:"index"`
	fit.Parameter
	Error float64 `json:"error"`
}

// NewRun builds a Run from a fit result and the parameter store contents
// after the fit. Errors are read from the fitted model when one is given.
func NewRun(res *fit.FitResult, params map[int]fit.Parameter) (*Run, error) {
	r := &Run{}
	if res != nil {
		r.StatusCode = res.Status.Code
		r.Converged = res.Status.Converged
		r.Chi2 = res.Status.Chi2
		r.NDF = res.Status.NDF
		r.Message = res.Status.Message
	}

	idx := make([]int, 0, len(params))
	for i := range params {
		idx = append(idx, i)
	}
	sort.Ints(idx)

	out := make([]StoredParameter, 0, len(idx))
	for _, i := range idx {
		sp := StoredParameter{Index: i, Parameter: params[i]}
		if res != nil && res.Model != nil && i < res.Model.NPar() {
			sp.Error = res.Model.ParError(i)
		}
		out = append(out, sp)
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal parameters: %w", err)
	}
	r.ParamsJSON = b
	return r, nil
}

// Parameters decodes ParamsJSON.
func (r *Run) Parameters() ([]StoredParameter, error) {
	if len(r.ParamsJSON) == 0 {
		return nil, nil
	}
	var out []StoredParameter
	if err := json.Unmarshal(r.ParamsJSON, &out); err != nil {
		return nil, fmt.Errorf("decode parameters of run %s: %w", r.RunID, err)
	}
	return out, nil
}

// Store persists fit runs.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and brings its schema up to
// date.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

// migrateUp applies all pending migrations. The migrate instance is not
// closed because that would close the shared database handle.
func (s *Store) migrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// MigrateVersion returns the current schema version and whether the last
// migration left the database dirty.
func (s *Store) MigrateVersion() (uint, bool, error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if err != nil {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Debugf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }

// Insert persists r. An empty RunID is replaced by a new UUID and a zero
// CreatedAt by the current time.
func (s *Store) Insert(r *Run) error {
	if r.RunID == "" {
		r.RunID = uuid.New().String()
	}
	if r.CreatedAt == 0 {
		r.CreatedAt = time.Now().UnixNano()
	}

	var paramsStr interface{}
	if len(r.ParamsJSON) > 0 {
		paramsStr = string(r.ParamsJSON)
	}
	var message interface{}
	if r.Message != "" {
		message = r.Message
	}

	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO fit_runs (
				run_id, config_path, hist_name, fit_option,
				status_code, converged, chi2, ndf,
				message, params_json, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.RunID, r.ConfigPath, r.HistName, r.FitOption,
			r.StatusCode, r.Converged, r.Chi2, r.NDF,
			message, paramsStr, r.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		return nil
	})
}

const selectRun = `
	SELECT run_id, config_path, hist_name, fit_option,
	       status_code, converged, chi2, ndf,
	       message, params_json, created_at
	FROM fit_runs`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(sc scanner) (*Run, error) {
	var r Run
	var message, paramsStr sql.NullString
	if err := sc.Scan(
		&r.RunID, &r.ConfigPath, &r.HistName, &r.FitOption,
		&r.StatusCode, &r.Converged, &r.Chi2, &r.NDF,
		&message, &paramsStr, &r.CreatedAt,
	); err != nil {
		return nil, err
	}
	r.Message = message.String
	if paramsStr.Valid {
		r.ParamsJSON = json.RawMessage(paramsStr.String)
	}
	return &r, nil
}

// Get returns the run with the given ID.
func (s *Store) Get(runID string) (*Run, error) {
	r, err := scanRun(s.db.QueryRow(selectRun+` WHERE run_id = ?`, runID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	return r, nil
}

// List returns up to limit runs, newest first. A limit of zero or less
// returns every run.
func (s *Store) List(limit int) ([]*Run, error) {
	query := selectRun + ` ORDER BY created_at DESC, run_id`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Delete removes the run with the given ID.
func (s *Store) Delete(runID string) error {
	return retryOnBusy(func() error {
		result, err := s.db.Exec(`DELETE FROM fit_runs WHERE run_id = ?`, runID)
		if err != nil {
			return fmt.Errorf("delete run: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil
	})
}

const (
	busyRetries = 5
	busyBackoff = 20 * time.Millisecond
)

// isSQLiteBusy reports whether err is a lock contention error.
func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// retryOnBusy runs fn, retrying with a linear backoff while it fails with
// SQLITE_BUSY.
func retryOnBusy(fn func() error) error {
	var err error
	for attempt := 0; attempt < busyRetries; attempt++ {
		if err = fn(); !isSQLiteBusy(err) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * busyBackoff)
	}
	return err
}
