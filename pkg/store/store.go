package store

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"selfevolve/pkg/core"
	"selfevolve/pkg/errors"
	"selfevolve/pkg/experiment"
	"selfevolve/pkg/strategy"
)

// SQLiteStore persists experiment results so interrupted runs can resume
// without repeating finalized items. One database can hold many experiments,
// keyed by experiment name.
type SQLiteStore struct {
	db *sql.DB
}

var _ experiment.ResultSink = (*SQLiteStore)(nil)

// Open opens (or creates) the results database at path.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.StoreFailed, "failed to open results database"),
			errors.Fields{"path": path})
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStore{db: db}
	if err := s.initDB(); err != nil {
		db.Close()
		return nil, err
	}

	// WAL lets the worker pool save results while the CLI reads stats.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.StoreFailed, "failed to enable WAL mode")
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.StoreFailed, "failed to set synchronous pragma")
	}

	return s, nil
}

func (s *SQLiteStore) initDB() error {
	query := `
	CREATE TABLE IF NOT EXISTS results (
		experiment TEXT NOT NULL,
		item_id    TEXT NOT NULL,
		verdict    TEXT NOT NULL,
		error      TEXT,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (experiment, item_id)
	);

	CREATE TABLE IF NOT EXISTS attempts (
		experiment        TEXT NOT NULL,
		item_id           TEXT NOT NULL,
		idx               INTEGER NOT NULL,
		stage             TEXT NOT NULL,
		strategy          TEXT NOT NULL,
		model             TEXT NOT NULL,
		prompt            TEXT NOT NULL,
		answer            TEXT NOT NULL,
		passed            INTEGER NOT NULL,
		feedback          TEXT,
		prompt_tokens     INTEGER,
		completion_tokens INTEGER,
		latency_ms        INTEGER,
		PRIMARY KEY (experiment, item_id, idx)
	);

	CREATE INDEX IF NOT EXISTS idx_results_experiment ON results(experiment);
	`

	if _, err := s.db.Exec(query); err != nil {
		return errors.Wrap(err, errors.StoreFailed, "failed to initialize results schema")
	}
	return nil
}

// HasResult reports whether an item has already been finalized for the
// experiment.
func (s *SQLiteStore) HasResult(experimentName, itemID string) (bool, error) {
	var one int
	err := s.db.QueryRow(
		`SELECT 1 FROM results WHERE experiment = ? AND item_id = ?`,
		experimentName, itemID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, errors.StoreFailed, "failed to query results")
	}
	return true, nil
}

// SaveResult stores a finalized result and its attempts in one transaction.
// Saving the same item again replaces the previous rows.
func (s *SQLiteStore) SaveResult(experimentName string, result experiment.ExperimentResult) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, errors.StoreFailed, "failed to begin transaction")
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT OR REPLACE INTO results (experiment, item_id, verdict, error, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		experimentName, result.ItemID, string(result.Verdict), result.Err, time.Now().UnixNano())
	if err != nil {
		return errors.Wrap(err, errors.StoreFailed, "failed to save result")
	}

	if _, err := tx.Exec(
		`DELETE FROM attempts WHERE experiment = ? AND item_id = ?`,
		experimentName, result.ItemID); err != nil {
		return errors.Wrap(err, errors.StoreFailed, "failed to clear previous attempts")
	}

	for _, a := range result.Attempts {
		var promptTokens, completionTokens int
		if a.Usage != nil {
			promptTokens = a.Usage.PromptTokens
			completionTokens = a.Usage.CompletionTokens
		}
		_, err = tx.Exec(
			`INSERT INTO attempts
			 (experiment, item_id, idx, stage, strategy, model, prompt, answer, passed, feedback, prompt_tokens, completion_tokens, latency_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			experimentName, result.ItemID, a.Index, string(a.Stage), string(a.Strategy),
			a.Model.String(), a.Prompt, a.Answer, a.Passed, a.Feedback,
			promptTokens, completionTokens, a.Latency.Milliseconds())
		if err != nil {
			return errors.Wrap(err, errors.StoreFailed, "failed to save attempt")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.StoreFailed, "failed to commit result")
	}
	return nil
}

// LoadResults returns all finalized results for an experiment in item order,
// with attempts reattached.
func (s *SQLiteStore) LoadResults(experimentName string) ([]experiment.ExperimentResult, error) {
	rows, err := s.db.Query(
		`SELECT item_id, verdict, error FROM results WHERE experiment = ? ORDER BY item_id`,
		experimentName)
	if err != nil {
		return nil, errors.Wrap(err, errors.StoreFailed, "failed to load results")
	}
	defer rows.Close()

	var results []experiment.ExperimentResult
	for rows.Next() {
		var r experiment.ExperimentResult
		var errText sql.NullString
		if err := rows.Scan(&r.ItemID, &r.Verdict, &errText); err != nil {
			return nil, errors.Wrap(err, errors.StoreFailed, "failed to scan result row")
		}
		r.Err = errText.String
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.StoreFailed, "failed to iterate results")
	}

	for i := range results {
		attempts, err := s.loadAttempts(experimentName, results[i].ItemID)
		if err != nil {
			return nil, err
		}
		results[i].Attempts = attempts
	}
	return results, nil
}

func (s *SQLiteStore) loadAttempts(experimentName, itemID string) ([]experiment.AttemptRecord, error) {
	rows, err := s.db.Query(
		`SELECT idx, stage, strategy, model, prompt, answer, passed, feedback, prompt_tokens, completion_tokens, latency_ms
		 FROM attempts WHERE experiment = ? AND item_id = ? ORDER BY idx`,
		experimentName, itemID)
	if err != nil {
		return nil, errors.Wrap(err, errors.StoreFailed, "failed to load attempts")
	}
	defer rows.Close()

	var attempts []experiment.AttemptRecord
	for rows.Next() {
		var a experiment.AttemptRecord
		var stage, strat, model string
		var feedback sql.NullString
		var promptTokens, completionTokens, latencyMS int64
		if err := rows.Scan(&a.Index, &stage, &strat, &model, &a.Prompt, &a.Answer,
			&a.Passed, &feedback, &promptTokens, &completionTokens, &latencyMS); err != nil {
			return nil, errors.Wrap(err, errors.StoreFailed, "failed to scan attempt row")
		}
		a.Stage = strategy.Stage(stage)
		a.Strategy = strategy.Strategy(strat)
		a.Model = core.ModelID(model)
		a.Feedback = feedback.String
		if promptTokens > 0 || completionTokens > 0 {
			a.Usage = &core.TokenInfo{
				PromptTokens:     int(promptTokens),
				CompletionTokens: int(completionTokens),
				TotalTokens:      int(promptTokens + completionTokens),
			}
		}
		a.Latency = time.Duration(latencyMS) * time.Millisecond
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// WriteSummaryArtifact serializes the run summary as indented JSON.
func WriteSummaryArtifact(path string, summary *experiment.Summary) error {
	return writeJSONArtifact(path, summary)
}

// WriteConfigArtifact records the exact configuration a run used, next to
// its summary, so a result set is reproducible from its artifacts alone.
func WriteConfigArtifact(path string, cfg experiment.Config) error {
	return writeJSONArtifact(path, cfg)
}

func writeJSONArtifact(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.StoreFailed, "failed to encode artifact")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, errors.StoreFailed, "failed to create artifact directory")
	}
	// Write-then-rename so a crash mid-write never leaves a torn artifact.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.StoreFailed, "failed to write artifact"),
			errors.Fields{"path": path})
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrap(err, errors.StoreFailed, "failed to finalize artifact")
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
