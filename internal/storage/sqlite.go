package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding launch profiles, installed mod releases,
// launch history, and the background job queue.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "temlaunch.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for tests and maintenance queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Profiles ---

const profileColumns = `id, name, created_at, modified_at, window_width, window_height,
	is_fullscreen, disable_splash_screen, is_default, use_tem, use_xdead`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(r rowScanner) (Profile, error) {
	var p Profile
	var created, modified int64
	err := r.Scan(&p.ID, &p.Name, &created, &modified, &p.WindowWidth, &p.WindowHeight,
		&p.IsFullscreen, &p.DisableSplashScreen, &p.IsDefault, &p.UseTEM, &p.UseXDead)
	if err != nil {
		return Profile{}, err
	}
	p.CreatedAt = time.UnixMilli(created).UTC()
	p.ModifiedAt = time.UnixMilli(modified).UTC()
	return p, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// SaveProfile inserts p or replaces the stored profile with the same ID.
// A name already used by another profile yields ErrConflict.
func (s *Store) SaveProfile(p Profile) error {
	_, err := s.db.Exec(`
		INSERT INTO profiles (`+profileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			modified_at = excluded.modified_at,
			window_width = excluded.window_width,
			window_height = excluded.window_height,
			is_fullscreen = excluded.is_fullscreen,
			disable_splash_screen = excluded.disable_splash_screen,
			is_default = excluded.is_default,
			use_tem = excluded.use_tem,
			use_xdead = excluded.use_xdead`,
		p.ID, p.Name, p.CreatedAt.UnixMilli(), p.ModifiedAt.UnixMilli(), p.WindowWidth, p.WindowHeight,
		p.IsFullscreen, p.DisableSplashScreen, p.IsDefault, p.UseTEM, p.UseXDead,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("profile name %q: %w", p.Name, ErrConflict)
	}
	return err
}

func (s *Store) GetProfile(id string) (Profile, error) {
	p, err := scanProfile(s.db.QueryRow(`SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return Profile{}, ErrNotFound
	}
	return p, err
}

func (s *Store) GetProfileByName(name string) (Profile, error) {
	p, err := scanProfile(s.db.QueryRow(`SELECT `+profileColumns+` FROM profiles WHERE name = ?`, name))
	if err == sql.ErrNoRows {
		return Profile{}, ErrNotFound
	}
	return p, err
}

// ListProfiles returns all profiles in creation order.
func (s *Store) ListProfiles() ([]Profile, error) {
	rows, err := s.db.Query(`SELECT ` + profileColumns + ` FROM profiles ORDER BY created_at ASC, name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

func (s *Store) DeleteProfile(id string) error {
	res, err := s.db.Exec(`DELETE FROM profiles WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetDefaultProfile makes id the only default profile.
func (s *Store) SetDefaultProfile(id string, modifiedAt time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning default transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE profiles SET is_default = 0 WHERE is_default = 1 AND id != ?`, id); err != nil {
		return err
	}
	res, err := tx.Exec(`UPDATE profiles SET is_default = 1, modified_at = ? WHERE id = ?`, modifiedAt.UnixMilli(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// --- Mod Releases ---

func (s *Store) SetModRelease(mod, asset, version string) error {
	_, err := s.db.Exec(`
		INSERT INTO mod_releases (mod, asset, version, installed_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(mod) DO UPDATE SET asset = excluded.asset, version = excluded.version, installed_at = excluded.installed_at`,
		mod, asset, version, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetModRelease(mod string) (ModRelease, error) {
	var r ModRelease
	var installedAt string
	err := s.db.QueryRow(`SELECT mod, asset, version, installed_at FROM mod_releases WHERE mod = ?`, mod).
		Scan(&r.Mod, &r.Asset, &r.Version, &installedAt)
	if err == sql.ErrNoRows {
		return ModRelease{}, ErrNotFound
	}
	if err != nil {
		return ModRelease{}, err
	}
	if r.InstalledAt, err = time.Parse(time.RFC3339, installedAt); err != nil {
		return ModRelease{}, fmt.Errorf("parsing installed_at: %w", err)
	}
	return r, nil
}

func (s *Store) ListModReleases() ([]ModRelease, error) {
	rows, err := s.db.Query(`SELECT mod, asset, version, installed_at FROM mod_releases ORDER BY mod ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ModRelease
	for rows.Next() {
		var r ModRelease
		var installedAt string
		if err := rows.Scan(&r.Mod, &r.Asset, &r.Version, &installedAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, installedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing installed_at: %w", err)
		}
		r.InstalledAt = t
		results = append(results, r)
	}
	return results, rows.Err()
}

// --- Launches ---

// launchTimeLayout is fixed width so started_at sorts lexically.
const launchTimeLayout = "2006-01-02T15:04:05.000000000Z"

func (s *Store) StartLaunch(l Launch) error {
	started := l.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO launches (id, profile_id, profile_name, started_at) VALUES (?, ?, ?, ?)`,
		l.ID, l.ProfileID, l.ProfileName, started.UTC().Format(launchTimeLayout),
	)
	return err
}

// FinishLaunch records the game's exit. launchErr is nil when the game ran and exited normally.
func (s *Store) FinishLaunch(id string, exitCode int, launchErr error) error {
	var msg string
	if launchErr != nil {
		msg = launchErr.Error()
	}
	res, err := s.db.Exec(`UPDATE launches SET finished_at = ?, exit_code = ?, error = ? WHERE id = ?`,
		time.Now().UTC().Format(launchTimeLayout), exitCode, msg, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecentLaunches returns up to limit launches, most recent first.
func (s *Store) RecentLaunches(limit int) ([]Launch, error) {
	rows, err := s.db.Query(`
		SELECT id, profile_id, profile_name, started_at, finished_at, exit_code, error
		FROM launches ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Launch
	for rows.Next() {
		var l Launch
		var startedAt string
		var finishedAt sql.NullString
		var exitCode sql.NullInt64
		if err := rows.Scan(&l.ID, &l.ProfileID, &l.ProfileName, &startedAt, &finishedAt, &exitCode, &l.Error); err != nil {
			return nil, err
		}
		if l.StartedAt, err = time.Parse(launchTimeLayout, startedAt); err != nil {
			return nil, fmt.Errorf("parsing started_at: %w", err)
		}
		if finishedAt.Valid {
			if l.FinishedAt, err = time.Parse(launchTimeLayout, finishedAt.String); err != nil {
				return nil, fmt.Errorf("parsing finished_at: %w", err)
			}
		}
		l.ExitCode = int(exitCode.Int64)
		results = append(results, l)
	}
	return results, rows.Err()
}

// --- Jobs ---

func (s *Store) EnqueueJob(job Job) error {
	now := time.Now().UTC().Format(time.RFC3339)
	runAfter := now
	if !job.RunAfter.IsZero() {
		runAfter = job.RunAfter.UTC().Format(time.RFC3339)
	}
	maxAttempts := job.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 3
	}
	_, err := s.db.Exec(`
		INSERT INTO jobs (id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at)
		VALUES (?, ?, ?, 'pending', 0, ?, ?, ?, ?)`,
		job.ID, job.Type, job.PayloadJSON, maxAttempts, runAfter, now, now,
	)
	return err
}

func (s *Store) ClaimNextJob(types []string) (*Job, error) {
	if len(types) == 0 {
		return nil, nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	placeholders := strings.Repeat(",?", len(types)-1)
	query := `SELECT id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at, last_error
		FROM jobs
		WHERE status = 'pending' AND run_after <= ? AND type IN (?` + placeholders + `)
		ORDER BY run_after ASC, created_at ASC
		LIMIT 1`

	args := make([]interface{}, 0, len(types)+1)
	args = append(args, now)
	for _, t := range types {
		args = append(args, t)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}

	var j Job
	var runAfter, createdAt, updatedAt string
	var lastError sql.NullString
	err = tx.QueryRow(query, args...).Scan(
		&j.ID, &j.Type, &j.PayloadJSON, &j.Status, &j.Attempts, &j.MaxAttempts,
		&runAfter, &createdAt, &updatedAt, &lastError,
	)
	if err == sql.ErrNoRows {
		tx.Rollback()
		return nil, nil
	}
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("selecting next job: %w", err)
	}

	res, err := tx.Exec(`UPDATE jobs SET status = 'running', updated_at = ? WHERE id = ? AND status = 'pending'`, now, j.ID)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("updating job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("checking updated job rows: %w", err)
	}
	if n != 1 {
		tx.Rollback()
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	j.Status = "running"
	j.LastError = lastError.String
	if j.RunAfter, err = time.Parse(time.RFC3339, runAfter); err != nil {
		return nil, fmt.Errorf("parsing run_after for job %s: %w", j.ID, err)
	}
	if j.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at for job %s: %w", j.ID, err)
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339, now); err != nil {
		return nil, fmt.Errorf("parsing updated_at for job %s: %w", j.ID, err)
	}
	return &j, nil
}

// GetJob returns the job with the given ID.
func (s *Store) GetJob(id string) (Job, error) {
	var j Job
	var runAfter, createdAt, updatedAt string
	var lastError sql.NullString
	err := s.db.QueryRow(`
		SELECT id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at, last_error
		FROM jobs WHERE id = ?`, id,
	).Scan(&j.ID, &j.Type, &j.PayloadJSON, &j.Status, &j.Attempts, &j.MaxAttempts, &runAfter, &createdAt, &updatedAt, &lastError)
	if err == sql.ErrNoRows {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, err
	}
	j.LastError = lastError.String
	if j.RunAfter, err = time.Parse(time.RFC3339, runAfter); err != nil {
		return Job{}, fmt.Errorf("parsing run_after for job %s: %w", j.ID, err)
	}
	if j.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Job{}, fmt.Errorf("parsing created_at for job %s: %w", j.ID, err)
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Job{}, fmt.Errorf("parsing updated_at for job %s: %w", j.ID, err)
	}
	return j, nil
}

func (s *Store) CompleteJob(id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`UPDATE jobs SET status = 'completed', updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) FailJob(id string, errMsg string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning fail transaction: %w", err)
	}
	defer tx.Rollback()

	var attempts, maxAttempts int
	err = tx.QueryRow(`SELECT attempts, max_attempts FROM jobs WHERE id = ?`, id).Scan(&attempts, &maxAttempts)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	attempts++

	if attempts >= maxAttempts {
		_, err = tx.Exec(`UPDATE jobs SET status = 'failed', attempts = ?, last_error = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, now.Format(time.RFC3339), id)
	} else {
		backoff := time.Duration(math.Pow(2, float64(attempts))) * time.Second
		runAfter := now.Add(backoff)
		_, err = tx.Exec(`UPDATE jobs SET status = 'pending', attempts = ?, last_error = ?, run_after = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, runAfter.Format(time.RFC3339), now.Format(time.RFC3339), id)
	}

	if err != nil {
		return err
	}

	return tx.Commit()
}
