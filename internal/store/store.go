// Package store persists finished runs in SQLite.
//
// A run is stored as one row of run metadata plus its ledger decisions and
// generation results in request order. Reports read back with LoadRun are
// equal to the saved ones except that result errors are restored as plain
// messages.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Iron-Ham/montage/internal/errors"
	"github.com/Iron-Ham/montage/internal/ledger"
	"github.com/Iron-Ham/montage/internal/pipeline"
	"github.com/Iron-Ham/montage/internal/provider"
	"github.com/Iron-Ham/montage/internal/resilience"
)

// Store is a SQLite-backed run archive. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies
// migrations. The parent directory is created when missing.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.NewConfigurationError("store path is empty", nil).WithKey("store.path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create store directory")
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open store")
	}
	// One writer at a time keeps SQLite from returning SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "migrate store")
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunSummary is one line of the run list.
type RunSummary struct {
	ID         string         `json:"id"`
	Mission    string         `json:"mission"`
	Phase      pipeline.Phase `json:"phase"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Decisions  int            `json:"decisions"`
	Requests   int            `json:"requests"`
	Success    int            `json:"success"`
	Degraded   int            `json:"degraded"`
	Failed     int            `json:"failed"`
	Canceled   int            `json:"canceled"`
	Error      string         `json:"error,omitempty"`
}

// SaveRun stores rep, replacing any earlier copy of the same run.
func (s *Store) SaveRun(ctx context.Context, rep *pipeline.Report) error {
	request, err := json.Marshal(rep.Request)
	if err != nil {
		return errors.Wrap(err, "encode request")
	}
	negotiations, err := marshalNullable(rep.Negotiations, len(rep.Negotiations) == 0)
	if err != nil {
		return errors.Wrap(err, "encode negotiations")
	}
	requests, err := marshalNullable(rep.Requests, len(rep.Requests) == 0)
	if err != nil {
		return errors.Wrap(err, "encode requests")
	}
	retryStates, err := marshalNullable(rep.RetryStates, len(rep.RetryStates) == 0)
	if err != nil {
		return errors.Wrap(err, "encode retry states")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Children go with the run through ON DELETE CASCADE.
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id=?`, rep.RunID); err != nil {
		return errors.Wrap(err, "replace run")
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO runs(id,mission,phase,started_at,finished_at,error,request_json,negotiations_json,requests_json,retry_states_json) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		rep.RunID, rep.Request.Mission, string(rep.Phase), formatTime(rep.StartedAt), nullableTime(rep.FinishedAt),
		nullable(rep.Error), string(request), negotiations, requests, retryStates); err != nil {
		return errors.Wrap(err, "insert run")
	}

	for i, d := range rep.Decisions {
		if _, err := tx.ExecContext(ctx, `INSERT INTO decisions(run_id,seq,topic_id,value,source,confidence,rationale,decided_at,rounds,agreement,converged) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
			rep.RunID, i, d.TopicID, d.Value, string(d.Source), d.Confidence, d.Rationale, formatTime(d.Timestamp),
			d.Rounds, d.Agreement, d.Converged); err != nil {
			return errors.Wrapf(err, "insert decision %s", d.TopicID)
		}
	}

	for i, r := range rep.Results {
		waits, err := marshalNullable(r.Waits, len(r.Waits) == 0)
		if err != nil {
			return errors.Wrap(err, "encode waits")
		}
		artifact, err := marshalNullable(r.Artifact, r.Artifact == nil)
		if err != nil {
			return errors.Wrap(err, "encode artifact")
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO results(run_id,seq,request_id,idempotency_key,capability,status,provider,attempts,remediations,waits_json,artifact_json,error) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
			rep.RunID, i, r.RequestID, r.IdempotencyKey, string(r.Capability), string(r.Status), nullable(r.Provider),
			r.Attempts, r.Remediations, waits, artifact, nullable(r.Error())); err != nil {
			return errors.Wrapf(err, "insert result %s", r.RequestID)
		}
	}

	return tx.Commit()
}

// ListRuns returns the most recent runs first. limit <= 0 means no limit.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT r.id, r.mission, r.phase, r.started_at, COALESCE(r.finished_at,''), COALESCE(r.error,''),
  (SELECT COUNT(*) FROM decisions d WHERE d.run_id = r.id),
  (SELECT COUNT(*) FROM results x WHERE x.run_id = r.id),
  (SELECT COUNT(*) FROM results x WHERE x.run_id = r.id AND x.status = ?),
  (SELECT COUNT(*) FROM results x WHERE x.run_id = r.id AND x.status = ?),
  (SELECT COUNT(*) FROM results x WHERE x.run_id = r.id AND x.status = ?),
  (SELECT COUNT(*) FROM results x WHERE x.run_id = r.id AND x.status = ?)
FROM runs r ORDER BY r.started_at DESC, r.id LIMIT ?`,
		string(resilience.StatusSuccess), string(resilience.StatusDegraded),
		string(resilience.StatusFailedTerminal), string(resilience.StatusCanceled), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var rs RunSummary
		var phase, started, finished string
		if err := rows.Scan(&rs.ID, &rs.Mission, &phase, &started, &finished, &rs.Error,
			&rs.Decisions, &rs.Requests, &rs.Success, &rs.Degraded, &rs.Failed, &rs.Canceled); err != nil {
			return nil, err
		}
		rs.Phase = pipeline.Phase(phase)
		if rs.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if rs.FinishedAt, err = parseTime(finished); err != nil {
			return nil, err
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

// LoadRun reads a stored run back. A missing run is a NotFoundError.
func (s *Store) LoadRun(ctx context.Context, id string) (*pipeline.Report, error) {
	rep := &pipeline.Report{RunID: id}
	var phase, started string
	var finished, runErr, negotiations, requests, retryStates sql.NullString
	var request string
	err := s.db.QueryRowContext(ctx, `SELECT phase,started_at,finished_at,error,request_json,negotiations_json,requests_json,retry_states_json FROM runs WHERE id=?`, id).
		Scan(&phase, &started, &finished, &runErr, &request, &negotiations, &requests, &retryStates)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("run", id)
	}
	if err != nil {
		return nil, err
	}

	rep.Phase = pipeline.Phase(phase)
	rep.Error = runErr.String
	if rep.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}
	if rep.FinishedAt, err = parseTime(finished.String); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(request), &rep.Request); err != nil {
		return nil, errors.Wrap(err, "decode request")
	}
	if err := unmarshalNullable(negotiations, &rep.Negotiations); err != nil {
		return nil, errors.Wrap(err, "decode negotiations")
	}
	if err := unmarshalNullable(requests, &rep.Requests); err != nil {
		return nil, errors.Wrap(err, "decode requests")
	}
	if err := unmarshalNullable(retryStates, &rep.RetryStates); err != nil {
		return nil, errors.Wrap(err, "decode retry states")
	}

	if rep.Decisions, err = s.Decisions(ctx, id); err != nil {
		return nil, err
	}
	if rep.Results, err = s.results(ctx, `WHERE run_id=? ORDER BY seq`, id); err != nil {
		return nil, err
	}
	return rep, nil
}

// Decisions returns the ledger of a run in append order.
func (s *Store) Decisions(ctx context.Context, runID string) ([]ledger.Decision, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT topic_id,value,source,confidence,rationale,decided_at,rounds,agreement,converged FROM decisions WHERE run_id=? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Decision
	for rows.Next() {
		var d ledger.Decision
		var source, decided string
		if err := rows.Scan(&d.TopicID, &d.Value, &source, &d.Confidence, &d.Rationale, &decided, &d.Rounds, &d.Agreement, &d.Converged); err != nil {
			return nil, err
		}
		d.Source = ledger.Source(source)
		if d.Timestamp, err = parseTime(decided); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ResultByKey finds the most recent stored result for an idempotency key.
func (s *Store) ResultByKey(ctx context.Context, key string) (resilience.Result, error) {
	res, err := s.results(ctx, `WHERE idempotency_key=? ORDER BY rowid DESC LIMIT 1`, key)
	if err != nil {
		return resilience.Result{}, err
	}
	if len(res) == 0 {
		return resilience.Result{}, errors.NewNotFoundError("result", key)
	}
	return res[0], nil
}

func (s *Store) results(ctx context.Context, where string, args ...any) ([]resilience.Result, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT request_id,idempotency_key,capability,status,COALESCE(provider,''),attempts,remediations,waits_json,artifact_json,COALESCE(error,'') FROM results `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []resilience.Result
	for rows.Next() {
		var r resilience.Result
		var capability, status, msg string
		var waits, artifact sql.NullString
		if err := rows.Scan(&r.RequestID, &r.IdempotencyKey, &capability, &status, &r.Provider,
			&r.Attempts, &r.Remediations, &waits, &artifact, &msg); err != nil {
			return nil, err
		}
		r.Capability = provider.Capability(capability)
		r.Status = resilience.Status(status)
		if msg != "" {
			r.Err = errors.New(msg)
		}
		if err := unmarshalNullable(waits, &r.Waits); err != nil {
			return nil, errors.Wrap(err, "decode waits")
		}
		if err := unmarshalNullable(artifact, &r.Artifact); err != nil {
			return nil, errors.Wrap(err, "decode artifact")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
