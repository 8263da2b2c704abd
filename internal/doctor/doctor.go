// Package doctor checks a loaded taskferry configuration for problems that
// pass schema validation but are likely to bite at submit time.
package doctor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/mattjoyce/taskferry/internal/config"
	"github.com/mattjoyce/taskferry/internal/storage"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// StoreProbe attempts to reach the configured queue store.
type StoreProbe func(ctx context.Context, opts storage.Options) error

// Doctor validates configuration and, when a probe is set, store reachability.
type Doctor struct {
	cfg   *config.Config
	probe StoreProbe
}

// New creates a Doctor for cfg. probe may be nil to skip the connectivity check.
func New(cfg *config.Config, probe StoreProbe) *Doctor {
	return &Doctor{cfg: cfg, probe: probe}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate(ctx context.Context) *Result {
	r := &Result{Valid: true}

	d.validateIntegrity(r)
	d.validateQueueStore(ctx, r)
	d.warnSuspiciousTiming(r)
	d.warnBackends(r)
	d.warnExperiment(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateIntegrity surfaces .checksums warnings that Load tolerates.
func (d *Doctor) validateIntegrity(r *Result) {
	if d.cfg.Path == "" {
		d.addWarning(r, "integrity", "", "no config file found; running on built-in defaults")
		return
	}
	res, err := config.Verify(d.cfg.Path)
	if err != nil {
		d.addError(r, "integrity", "", err.Error())
		return
	}
	for _, msg := range res.Errors {
		d.addError(r, "integrity", "", msg)
	}
	for _, msg := range res.Warnings {
		d.addWarning(r, "integrity", "", msg)
	}
}

// validateQueueStore checks the DSN shape for the driver and pings the store.
func (d *Doctor) validateQueueStore(ctx context.Context, r *Result) {
	q := d.cfg.Queue
	dialect, err := storage.ParseDialect(q.Driver)
	if err != nil {
		d.addError(r, "queue", "queue.driver", err.Error())
		return
	}

	switch dialect {
	case storage.DialectSQLite:
		if strings.Contains(q.DSN, "://") {
			d.addError(r, "queue", "queue.dsn",
				fmt.Sprintf("sqlite dsn looks like a URL (%s); set queue.driver: postgres or use a file path", redactDSN(q.DSN)))
			return
		}
		if !filepath.IsAbs(q.DSN) {
			d.addWarning(r, "queue", "queue.dsn",
				fmt.Sprintf("relative sqlite path %q resolves against the working directory; workers started elsewhere will not see the same queue", q.DSN))
		}
		// Also runs under --offline.
		if err := storage.CheckLocalFilesystem(q.DSN); errors.Is(err, storage.ErrNetworkFilesystem) {
			d.addError(r, "queue", "queue.dsn", err.Error())
			return
		}
	case storage.DialectPostgres:
		// key=value DSNs are valid for pgx; only URLs are inspected further.
		if !strings.Contains(q.DSN, "://") {
			break
		}
		u, err := url.Parse(q.DSN)
		if err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
			d.addError(r, "queue", "queue.dsn", "postgres dsn must use the postgres:// or postgresql:// scheme")
			return
		}
		if u.Query().Get("sslmode") == "disable" && u.Hostname() != "localhost" && u.Hostname() != "127.0.0.1" {
			d.addWarning(r, "queue", "queue.dsn", "sslmode=disable against a non-local host")
		}
	}

	if d.probe == nil {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := d.probe(pctx, storage.Options{Driver: q.Driver, DSN: q.DSN}); err != nil {
		d.addError(r, "queue", "queue.dsn",
			fmt.Sprintf("queue store unreachable (%s %s): %v", dialect, redactDSN(q.DSN), err))
	}
}

// warnSuspiciousTiming flags poll intervals and timeouts that are legal but unusual.
func (d *Doctor) warnSuspiciousTiming(r *Result) {
	q := d.cfg.Queue
	if q.SleepTime.Std() < 100*time.Millisecond {
		d.addWarning(r, "timing", "queue.sleep_time",
			fmt.Sprintf("poll interval %s refreshes every job more than ten times a second", q.SleepTime))
	}
	if q.SleepTime.Std() > 10*time.Minute {
		d.addWarning(r, "timing", "queue.sleep_time",
			fmt.Sprintf("poll interval %s delays noticing completion by up to that long", q.SleepTime))
	}
	if q.DefaultTimeout.Std() < q.SleepTime.Std() {
		d.addWarning(r, "timing", "queue.default_timeout",
			fmt.Sprintf("default_timeout %s is shorter than sleep_time %s", q.DefaultTimeout, q.SleepTime))
	}
	if q.BatchSize > 1000 {
		d.addWarning(r, "timing", "queue.batch_size",
			fmt.Sprintf("batch_size %d puts a large statement list into a single job", q.BatchSize))
	}
}

// warnBackends notes which task kinds fall back to the built-in function names.
func (d *Doctor) warnBackends(r *Result) {
	b := d.cfg.Backends
	unset := make([]string, 0, 4)
	for field, fn := range map[string]string{
		"run_statements": b.RunStatements,
		"matrix_builder": b.MatrixBuilder,
		"subsetter":      b.Subsetter,
		"train_tester":   b.TrainTester,
	} {
		if fn == "" {
			unset = append(unset, field)
		}
	}
	if len(unset) == 0 {
		return
	}
	slices.Sort(unset)
	d.addWarning(r, "backends", "backends",
		fmt.Sprintf("using built-in function names for: %s", strings.Join(unset, ", ")))
}

func (d *Doctor) warnExperiment(r *Result) {
	if d.cfg.Experiment.DBRef == "" {
		d.addWarning(r, "experiment", "experiment.db_ref",
			"db_ref is empty; statement batches will be sent without a database reference")
	}
}

// redactDSN hides any password embedded in a URL-style DSN.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
