package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/taskferry/internal/storage"
)

// timeLayout is fixed width so that stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const jobColumns = `id, queue, func, args, kwargs, description, status, timeout_s, result_ttl_s, ttl_s,
  result, last_error, worker_name, created_at, started_at, ended_at`

// Options configures a Queue.
type Options struct {
	Dialect storage.Dialect
	// Name partitions the store; jobs are only visible to queues of the same name.
	Name string
	// DefaultTimeout replaces DefaultTimeout for requests without a timeout.
	DefaultTimeout time.Duration
}

// Queue is a client for the job_queue table.
type Queue struct {
	db             *sql.DB
	dialect        storage.Dialect
	name           string
	defaultTimeout time.Duration
	now            func() time.Time
}

func New(db *sql.DB, opts Options) *Queue {
	name := opts.Name
	if name == "" {
		name = "default"
	}
	dialect := opts.Dialect
	if dialect == "" {
		dialect = storage.DialectSQLite
	}
	timeout := opts.DefaultTimeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Queue{
		db:             db,
		dialect:        dialect,
		name:           name,
		defaultTimeout: timeout,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

func (q *Queue) formatNow() string {
	return q.now().UTC().Format(timeLayout)
}

func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (*Job, error) {
	if req.Func == "" {
		return nil, fmt.Errorf("func is empty")
	}

	var args, kwargs any
	var argsRaw, kwargsRaw json.RawMessage
	if req.Args != nil {
		b, err := json.Marshal(req.Args)
		if err != nil {
			return nil, fmt.Errorf("encode args: %w", err)
		}
		argsRaw, args = b, string(b)
	}
	if req.Kwargs != nil {
		b, err := json.Marshal(req.Kwargs)
		if err != nil {
			return nil, fmt.Errorf("encode kwargs: %w", err)
		}
		kwargsRaw, kwargs = b, string(b)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = q.defaultTimeout
	}
	resultTTL := req.ResultTTL
	if resultTTL == 0 {
		resultTTL = DefaultResultTTL
	}

	now := q.now().UTC()
	job := &Job{
		ID:          uuid.NewString(),
		Queue:       q.name,
		Func:        req.Func,
		Args:        argsRaw,
		Kwargs:      kwargsRaw,
		Description: req.Description,
		Status:      StatusQueued,
		Timeout:     timeout,
		ResultTTL:   resultTTL,
		TTL:         req.TTL,
		CreatedAt:   now,
		q:           q,
	}

	_, err := q.db.ExecContext(ctx, q.dialect.Rebind(`
INSERT INTO job_queue(
  id, queue, func, args, kwargs, description, status, timeout_s, result_ttl_s, ttl_s, created_at
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`), job.ID, job.Queue, job.Func, args, kwargs, job.Description, job.Status,
		toSeconds(timeout), toSeconds(resultTTL), toSeconds(req.TTL), now.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	return job, nil
}

// Fetch loads a job by ID.
func (q *Queue) Fetch(ctx context.Context, id string) (*Job, error) {
	row := q.db.QueryRowContext(ctx, q.dialect.Rebind(`SELECT `+jobColumns+`
FROM job_queue
WHERE id = ?;
`), id)
	job, err := q.scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch job: %w", err)
	}
	return job, nil
}

func (q *Queue) refresh(ctx context.Context, j *Job) error {
	var (
		statusS    string
		result     sql.NullString
		lastError  sql.NullString
		workerName sql.NullString
		startedAtS sql.NullString
		endedAtS   sql.NullString
	)
	err := q.db.QueryRowContext(ctx, q.dialect.Rebind(`
SELECT status, result, last_error, worker_name, started_at, ended_at
FROM job_queue
WHERE id = ?;
`), j.ID).Scan(&statusS, &result, &lastError, &workerName, &startedAtS, &endedAtS)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("refresh job %s: %w", j.ID, err)
	}

	j.Status = Status(statusS)
	j.ReturnValue = nil
	if result.Valid {
		j.ReturnValue = json.RawMessage(result.String)
	}
	j.LastError = nullString(lastError)
	j.WorkerName = nullString(workerName)
	j.StartedAt = parseNullTime(startedAtS)
	j.EndedAt = parseNullTime(endedAtS)
	return nil
}

// Dequeue claims the oldest queued job and marks it started. Returns (nil, nil)
// if the queue is empty. This is the worker-facing half of the store contract.
func (q *Queue) Dequeue(ctx context.Context, worker string) (*Job, error) {
	nowS := q.formatNow()

	row := q.db.QueryRowContext(ctx, q.dialect.Rebind(`
WITH next AS (
  SELECT id
  FROM job_queue
  WHERE queue = ? AND status = ?
  ORDER BY created_at ASC, id ASC
  LIMIT 1`+q.dialect.LockClause()+`
)
UPDATE job_queue
SET status = ?, started_at = ?, worker_name = ?
WHERE id IN (SELECT id FROM next)
RETURNING `+jobColumns+`;
`), q.name, StatusQueued, StatusStarted, nowS, worker)

	job, err := q.scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue job: %w", err)
	}
	return job, nil
}

// Complete moves a job to finished or failed, storing its result (finished)
// or error message (failed).
func (q *Queue) Complete(ctx context.Context, jobID string, status Status, result json.RawMessage, lastError *string) error {
	if jobID == "" {
		return fmt.Errorf("jobID is empty")
	}
	if status != StatusFinished && status != StatusFailed {
		return fmt.Errorf("invalid terminal status: %q", status)
	}

	var resultVal any
	if len(result) > 0 {
		if !json.Valid(result) {
			return fmt.Errorf("result for job %s is not valid JSON", jobID)
		}
		resultVal = string(result)
	}

	res, err := q.db.ExecContext(ctx, q.dialect.Rebind(`
UPDATE job_queue
SET status = ?, result = ?, last_error = ?, ended_at = ?
WHERE id = ? AND status IN (?, ?);
`), status, resultVal, lastError, q.formatNow(), jobID, StatusQueued, StatusStarted)
	if err != nil {
		return fmt.Errorf("update job completion: %w", err)
	}
	return q.checkTransition(ctx, res, jobID, ErrJobTerminal)
}

// Cancel marks a queued job canceled so no worker will claim it.
func (q *Queue) Cancel(ctx context.Context, jobID string) error {
	res, err := q.db.ExecContext(ctx, q.dialect.Rebind(`
UPDATE job_queue
SET status = ?, ended_at = ?
WHERE id = ? AND status = ?;
`), StatusCanceled, q.formatNow(), jobID, StatusQueued)
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	return q.checkTransition(ctx, res, jobID, ErrNotCancelable)
}

// checkTransition turns a zero-row status update into ErrJobNotFound or
// rejected, depending on whether the row exists.
func (q *Queue) checkTransition(ctx context.Context, res sql.Result, jobID string, rejected error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	job, err := q.Fetch(ctx, jobID)
	if err != nil {
		return err
	}
	return fmt.Errorf("job %s is %s: %w", jobID, job.Status, rejected)
}

// CountByStatus returns the number of jobs on this queue in each status.
func (q *Queue) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := q.db.QueryContext(ctx, q.dialect.Rebind(`
SELECT status, COUNT(*)
FROM job_queue
WHERE queue = ?
GROUP BY status;
`), q.name)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan job count: %w", err)
		}
		counts[Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job counts: %w", err)
	}
	return counts, nil
}

// PruneExpired deletes queued jobs whose TTL has elapsed since creation and
// terminal jobs whose result TTL has elapsed since they ended. Started jobs
// are never pruned.
func (q *Queue) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	rows, err := q.db.QueryContext(ctx, q.dialect.Rebind(`
SELECT id, status, created_at, ended_at, ttl_s, result_ttl_s
FROM job_queue
WHERE queue = ? AND status <> ?;
`), q.name, StatusStarted)
	if err != nil {
		return 0, fmt.Errorf("list prune candidates: %w", err)
	}

	var expired []string
	for rows.Next() {
		var (
			id, statusS, createdAtS string
			endedAtS                sql.NullString
			ttlS, resultTTLS        int64
		)
		if err := rows.Scan(&id, &statusS, &createdAtS, &endedAtS, &ttlS, &resultTTLS); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("scan prune candidate: %w", err)
		}
		if isExpired(now, Status(statusS), createdAtS, endedAtS, ttlS, resultTTLS) {
			expired = append(expired, id)
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, fmt.Errorf("iterate prune candidates: %w", err)
	}
	_ = rows.Close()

	if len(expired) == 0 {
		return 0, nil
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt := q.dialect.Rebind(`DELETE FROM job_queue WHERE id = ?;`)
	var deleted int64
	for _, id := range expired {
		res, err := tx.ExecContext(ctx, stmt, id)
		if err != nil {
			return 0, fmt.Errorf("delete expired job %s: %w", id, err)
		}
		n, _ := res.RowsAffected()
		deleted += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return deleted, nil
}

func isExpired(now time.Time, status Status, createdAtS string, endedAtS sql.NullString, ttlS, resultTTLS int64) bool {
	switch {
	case status == StatusQueued:
		if ttlS <= 0 {
			return false
		}
		createdAt, err := time.Parse(timeLayout, createdAtS)
		if err != nil {
			return false
		}
		return now.After(createdAt.Add(time.Duration(ttlS) * time.Second))
	case status.Terminal():
		endedAt := parseNullTime(endedAtS)
		if endedAt == nil || resultTTLS < 0 {
			return false
		}
		return now.After(endedAt.Add(time.Duration(resultTTLS) * time.Second))
	default:
		return false
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (q *Queue) scanJob(row rowScanner) (*Job, error) {
	var (
		j           Job
		args        sql.NullString
		kwargs      sql.NullString
		description sql.NullString
		statusS     string
		timeoutS    int64
		resultTTLS  int64
		ttlS        int64
		result      sql.NullString
		lastError   sql.NullString
		workerName  sql.NullString
		createdAtS  string
		startedAtS  sql.NullString
		endedAtS    sql.NullString
	)
	err := row.Scan(
		&j.ID, &j.Queue, &j.Func, &args, &kwargs, &description, &statusS, &timeoutS, &resultTTLS, &ttlS,
		&result, &lastError, &workerName, &createdAtS, &startedAtS, &endedAtS,
	)
	if err != nil {
		return nil, err
	}

	j.q = q
	j.Status = Status(statusS)
	j.Description = description.String
	j.Timeout = time.Duration(timeoutS) * time.Second
	j.ResultTTL = time.Duration(resultTTLS) * time.Second
	j.TTL = time.Duration(ttlS) * time.Second
	if args.Valid {
		j.Args = json.RawMessage(args.String)
	}
	if kwargs.Valid {
		j.Kwargs = json.RawMessage(kwargs.String)
	}
	if result.Valid {
		j.ReturnValue = json.RawMessage(result.String)
	}
	j.LastError = nullString(lastError)
	j.WorkerName = nullString(workerName)
	if t, err := time.Parse(timeLayout, createdAtS); err == nil {
		j.CreatedAt = t
	}
	j.StartedAt = parseNullTime(startedAtS)
	j.EndedAt = parseNullTime(endedAtS)
	return &j, nil
}

func toSeconds(d time.Duration) int64 {
	if d <= 0 {
		return int64(d / time.Second)
	}
	s := int64(d / time.Second)
	if d%time.Second != 0 {
		s++
	}
	return s
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil
	}
	return &t
}
