// Package memory is the episodic memory store: deduplicated UI
// snapshots and per-task execution records, kept across runs so future
// planning can consult past success rates.
package memory

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/agently/agently/pkg/ax"
	"github.com/agently/agently/pkg/intent"
)

// Store manages the SQLite connection and schema.
type Store struct {
	db *sql.DB
}

// NewStore opens the episodic memory database at path, creating the
// schema when needed. WAL mode keeps readers from blocking the writer.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open memory db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping memory db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS ui_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		ui_graph TEXT NOT NULL,
		active_application TEXT,
		element_count INTEGER NOT NULL,
		checksum TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS execution_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		task_description TEXT NOT NULL,
		ui_snapshot_id INTEGER NOT NULL,
		executed_actions TEXT NOT NULL,
		success_rate REAL NOT NULL,
		total_execution_time REAL NOT NULL,
		error_messages TEXT NOT NULL,
		FOREIGN KEY (ui_snapshot_id) REFERENCES ui_snapshots(id)
	);

	CREATE INDEX IF NOT EXISTS idx_records_task ON execution_records(task_description);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// SaveSnapshot stores a graph, deduplicated by structural checksum.
// Returns the snapshot row id (existing or new).
func (s *Store) SaveSnapshot(g *ax.Graph) (int64, error) {
	sum := Checksum(g)

	var existing int64
	err := s.db.QueryRow("SELECT id FROM ui_snapshots WHERE checksum = ?", sum).Scan(&existing)
	if err == nil {
		return existing, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("query snapshot: %w", err)
	}

	data, err := json.Marshal(g)
	if err != nil {
		return 0, fmt.Errorf("marshal graph: %w", err)
	}
	res, err := s.db.Exec(
		"INSERT INTO ui_snapshots (timestamp, ui_graph, active_application, element_count, checksum) VALUES (?, ?, ?, ?, ?)",
		g.Timestamp.Format(time.RFC3339Nano), string(data), g.ActiveApplication, len(g.Elements), sum,
	)
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	return res.LastInsertId()
}

// RecordEpisode stores one completed task execution.
func (s *Store) RecordEpisode(task string, snapshotID int64, outcomes []intent.Outcome) error {
	var succeeded int
	var total time.Duration
	var errs []string
	for _, o := range outcomes {
		if o.Success {
			succeeded++
		} else {
			errs = append(errs, o.ErrorMessage)
		}
		total += o.ExecutionTime
	}
	rate := 0.0
	if len(outcomes) > 0 {
		rate = float64(succeeded) / float64(len(outcomes))
	}

	actions, err := json.Marshal(outcomes)
	if err != nil {
		return fmt.Errorf("marshal outcomes: %w", err)
	}
	errData, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("marshal errors: %w", err)
	}

	_, err = s.db.Exec(
		"INSERT INTO execution_records (timestamp, task_description, ui_snapshot_id, executed_actions, success_rate, total_execution_time, error_messages) VALUES (?, ?, ?, ?, ?, ?, ?)",
		time.Now().Format(time.RFC3339Nano), task, snapshotID, string(actions), rate, total.Seconds(), string(errData),
	)
	if err != nil {
		return fmt.Errorf("insert execution record: %w", err)
	}
	return nil
}

// Episode is a stored execution record summary.
type Episode struct {
	ID          int64
	Timestamp   time.Time
	Task        string
	SuccessRate float64
	TotalTime   float64
}

// SimilarEpisodes returns past episodes whose task contains the given
// fragment, most recent first.
func (s *Store) SimilarEpisodes(taskFragment string, limit int) ([]Episode, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(
		"SELECT id, timestamp, task_description, success_rate, total_execution_time FROM execution_records WHERE task_description LIKE ? ORDER BY id DESC LIMIT ?",
		"%"+taskFragment+"%", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query episodes: %w", err)
	}
	defer rows.Close()

	var episodes []Episode
	for rows.Next() {
		var e Episode
		var ts string
		if err := rows.Scan(&e.ID, &ts, &e.Task, &e.SuccessRate, &e.TotalTime); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		episodes = append(episodes, e)
	}
	return episodes, rows.Err()
}

// Checksum derives a stable digest of a graph's structure, used to
// deduplicate snapshots of unchanged UI state. Element ids already
// encode role, geometry, and text, so hashing the sorted id set is
// enough.
func Checksum(g *ax.Graph) string {
	ids := make([]string, 0, len(g.Elements))
	for id := range g.Elements {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	h := sha256.New()
	for _, id := range ids {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
