package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/mattjoyce/taskferry/internal/config"
	"github.com/mattjoyce/taskferry/internal/queue"
)

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stdout failed: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stderr failed: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	// Drain concurrently so chatty commands cannot fill the pipe buffer.
	var wg sync.WaitGroup
	var stdoutBytes, stderrBytes []byte
	wg.Add(2)
	go func() { defer wg.Done(); stdoutBytes, _ = io.ReadAll(stdoutR) }()
	go func() { defer wg.Done(); stderrBytes, _ = io.ReadAll(stderrR) }()

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	wg.Wait()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdoutBytes), string(stderrBytes)
}

func setVersionMetadataForTest(t *testing.T, v, commit, built string) {
	t.Helper()

	origVersion := version
	origCommit := gitCommit
	origBuildDate := buildDate

	version = v
	gitCommit = commit
	buildDate = built

	t.Cleanup(func() {
		version = origVersion
		gitCommit = origCommit
		buildDate = origBuildDate
	})
}

// writeConfigFixture writes a config.yaml using a sqlite store inside dir and
// returns its path. extra is appended verbatim.
func writeConfigFixture(t *testing.T, dir, extra string) string {
	t.Helper()
	content := `service:
  log_level: error
queue:
  name: experiments
  driver: sqlite
  dsn: ` + filepath.Join(dir, "queue.db") + `
  sleep_time: 10ms
  batch_size: 2
experiment:
  db_ref: postgres://localhost/experiments
` + extra
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func openFixtureQueue(t *testing.T, path string) *queue.Queue {
	t.Helper()
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	db, q, err := openQueue(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return q
}

// startEchoWorker completes every job on q with its kwargs as the result.
// Jobs whose kwargs carry "fail": true are failed instead.
func startEchoWorker(t *testing.T, q *queue.Queue) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ctx.Err() == nil {
			job, err := q.Dequeue(ctx, "echo-worker")
			if err != nil || job == nil {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			var kwargs map[string]any
			_ = json.Unmarshal(job.Kwargs, &kwargs)
			if fail, _ := kwargs["fail"].(bool); fail {
				msg := "worker refused task"
				_ = q.Complete(ctx, job.ID, queue.StatusFailed, nil, &msg)
				continue
			}
			result := job.Kwargs
			if len(result) == 0 || string(result) == "null" || string(result) == "{}" {
				result = json.RawMessage(`{"ok":true}`)
			}
			_ = q.Complete(ctx, job.ID, queue.StatusFinished, result, nil)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestPrintUsageListsEveryNoun(t *testing.T) {
	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"help"})
	})
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	for _, want := range []string{"submit sql FILE", "job inspect <id>", "queue prune", "config lock", "$TASKFERRY_CONFIG"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("usage missing %q:\n%s", want, stdout)
		}
	}
}

func TestRunCLIUnknownCommand(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"deploy"})
	})
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Unknown command: deploy") {
		t.Fatalf("stderr = %q", stderr)
	}
}

func TestNounActionHelp(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"submit", "help"}, "Actions: sql, matrix, train-test, subset"},
		{[]string{"submit", "subset", "--help"}, "Usage: taskferry submit subset FILE"},
		{[]string{"job", "--help"}, "Actions: inspect, cancel"},
		{[]string{"job", "inspect", "-h"}, "Usage: taskferry job inspect <job_id>"},
		{[]string{"queue", "help"}, "Actions: stats, prune"},
		{[]string{"queue", "prune", "--help"}, "Usage: taskferry queue prune"},
		{[]string{"config", "-h"}, "Actions: check, lock"},
		{[]string{"config", "check", "--help"}, "[--strict] [--offline]"},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, "_"), func(t *testing.T) {
			code, stdout, _ := captureOutputWithExitCode(t, func() int {
				return runCLI(tt.args)
			})
			if code != 0 {
				t.Fatalf("exit code = %d, want 0", code)
			}
			if !strings.Contains(stdout, tt.want) {
				t.Fatalf("stdout = %q, want substring %q", stdout, tt.want)
			}
		})
	}
}

func TestNounUnknownAction(t *testing.T) {
	for _, noun := range []string{"submit", "job", "queue", "config"} {
		t.Run(noun, func(t *testing.T) {
			code, _, stderr := captureOutputWithExitCode(t, func() int {
				return runCLI([]string{noun, "explode"})
			})
			if code != 1 {
				t.Fatalf("exit code = %d, want 1", code)
			}
			if !strings.Contains(stderr, "Unknown "+noun+" action: explode") {
				t.Fatalf("stderr = %q", stderr)
			}
		})
	}
}

func TestRunCLIRootVersionFlag(t *testing.T) {
	setVersionMetadataForTest(t, "1.2.3", "0123456789abcdef", "2026-01-02T03:04:05Z")

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"--version"})
	})
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if !strings.Contains(stdout, "taskferry 1.2.3") {
		t.Fatalf("stdout = %q", stdout)
	}
}

func TestRunVersionJSONOutputIncludesMetadata(t *testing.T) {
	setVersionMetadataForTest(t, "1.2.3", "0123456789abcdef", "2026-01-02T03:04:05Z")

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runVersion([]string{"--json"})
	})
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	var info versionInfo
	if err := json.Unmarshal([]byte(stdout), &info); err != nil {
		t.Fatalf("unmarshal version JSON: %v\n%s", err, stdout)
	}
	if info.Version != "1.2.3" {
		t.Fatalf("version = %q", info.Version)
	}
	if info.BuildTime != "2026-01-02T03:04:05Z" {
		t.Fatalf("build time = %q", info.BuildTime)
	}
	if info.Commit == "" || len(info.Commit) > len("0123456789abcdef") {
		t.Fatalf("commit = %q", info.Commit)
	}
}

func TestSplitPositional(t *testing.T) {
	positional, flags := splitPositional([]string{"abc", "--json", "--config", "x.yaml", "def"}, "config")
	if strings.Join(positional, ",") != "abc,def" {
		t.Fatalf("positional = %v", positional)
	}
	if strings.Join(flags, ",") != "--json,--config,x.yaml" {
		t.Fatalf("flags = %v", flags)
	}
}

func TestReadStatementsSkipsBlankAndComments(t *testing.T) {
	input := `
-- seed fixtures
INSERT INTO a VALUES (1);

   INSERT INTO a VALUES (2);
  -- indented comment
INSERT INTO b VALUES ('x--y');
`
	got, err := readStatements(strings.NewReader(input))
	if err != nil {
		t.Fatalf("readStatements: %v", err)
	}
	want := []string{"INSERT INTO a VALUES (1);", "INSERT INTO a VALUES (2);", "INSERT INTO b VALUES ('x--y');"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("statements = %q, want %q", got, want)
	}
}

func TestReadTaskListAcceptsYAMLAndJSON(t *testing.T) {
	yamlInput := `
- subset_hash: abc
  config:
    features: [a, b]
- subset_hash: def
`
	jsonInput := `[{"subset_hash": "abc", "config": {"features": ["a", "b"]}}, {"subset_hash": "def"}]`

	for name, input := range map[string]string{"yaml": yamlInput, "json": jsonInput} {
		t.Run(name, func(t *testing.T) {
			tasks, err := readTaskList(strings.NewReader(input))
			if err != nil {
				t.Fatalf("readTaskList: %v", err)
			}
			if len(tasks) != 2 {
				t.Fatalf("len(tasks) = %d, want 2", len(tasks))
			}
			data, err := json.Marshal(tasks[0])
			if err != nil {
				t.Fatalf("marshal task: %v", err)
			}
			if string(data) != `{"config":{"features":["a","b"]},"subset_hash":"abc"}` {
				t.Fatalf("task[0] = %s", data)
			}
			if tasks[1]["subset_hash"] != "def" {
				t.Fatalf("task[1] = %v", tasks[1])
			}
		})
	}
}

func TestReadTaskListNormalizesNonStringKeys(t *testing.T) {
	tasks, err := readTaskList(strings.NewReader("- thresholds:\n    1: low\n    2: high\n"))
	if err != nil {
		t.Fatalf("readTaskList: %v", err)
	}
	if _, err := json.Marshal(tasks[0]); err != nil {
		t.Fatalf("task does not marshal to JSON: %v", err)
	}
}

func TestReadTaskListRejectsEmptyEntry(t *testing.T) {
	if _, err := readTaskList(strings.NewReader("- a: 1\n- \n")); err == nil {
		t.Fatal("expected error for empty task")
	}
}

func TestReadTaskListEmptyFile(t *testing.T) {
	tasks, err := readTaskList(strings.NewReader(""))
	if err != nil {
		t.Fatalf("readTaskList: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("tasks = %v, want none", tasks)
	}
}

func TestReadTaskMap(t *testing.T) {
	tasks, err := readTaskMap(strings.NewReader(`{"m-2": {"matrix_type": "test"}, "m-1": {"matrix_type": "train"}}`))
	if err != nil {
		t.Fatalf("readTaskMap: %v", err)
	}
	if len(tasks) != 2 || tasks["m-1"]["matrix_type"] != "train" {
		t.Fatalf("tasks = %v", tasks)
	}
}

func TestReadTaskMapRejectsList(t *testing.T) {
	if _, err := readTaskMap(strings.NewReader("- a: 1\n")); err == nil {
		t.Fatal("expected error decoding a list as a matrix mapping")
	}
}

func TestWriteResultsPrintsNullForFailed(t *testing.T) {
	var sb strings.Builder
	err := writeResults(&sb, []json.RawMessage{json.RawMessage(`{"a":1}`), nil, json.RawMessage(`3`)})
	if err != nil {
		t.Fatalf("writeResults: %v", err)
	}
	if sb.String() != "{\"a\":1}\nnull\n3\n" {
		t.Fatalf("output = %q", sb.String())
	}
}

func TestRunSubmitMissingFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfigFixture(t, dir, "")

	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"submit", "subset", filepath.Join(dir, "missing.yaml"), "--config", cfgPath})
	})
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Failed to read") {
		t.Fatalf("stderr = %q", stderr)
	}
	if _, err := os.Stat(filepath.Join(dir, "queue.db")); !os.IsNotExist(err) {
		t.Fatalf("queue store should not be created for unreadable input, stat err = %v", err)
	}
}

func TestRunSubmitSubsetPrintsResultsInOrder(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfigFixture(t, dir, "")
	startEchoWorker(t, openFixtureQueue(t, cfgPath))

	tasksPath := filepath.Join(dir, "subsets.yaml")
	tasks := "- subset_hash: aaa\n- subset_hash: bbb\n  fail: true\n- subset_hash: ccc\n"
	if err := os.WriteFile(tasksPath, []byte(tasks), 0o644); err != nil {
		t.Fatalf("write tasks: %v", err)
	}

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"submit", "subset", tasksPath, "--config", cfgPath})
	})
	if code != 0 {
		t.Fatalf("exit code = %d, want 0; stderr=%s", code, stderr)
	}

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d result lines, want 3:\n%s", len(lines), stdout)
	}
	for i, want := range []string{"aaa", "", "ccc"} {
		if want == "" {
			if lines[i] != "null" {
				t.Fatalf("line %d = %q, want null", i, lines[i])
			}
			continue
		}
		var got map[string]any
		if err := json.Unmarshal([]byte(lines[i]), &got); err != nil {
			t.Fatalf("line %d is not JSON: %q", i, lines[i])
		}
		if got["subset_hash"] != want {
			t.Fatalf("line %d = %v, want subset_hash %s", i, got, want)
		}
	}
}

func TestRunSubmitMatrixUsesSortedKeys(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfigFixture(t, dir, "")
	startEchoWorker(t, openFixtureQueue(t, cfgPath))

	tasksPath := filepath.Join(dir, "matrices.json")
	if err := os.WriteFile(tasksPath, []byte(`{"zz": {"name": "last"}, "aa": {"name": "first"}}`), 0o644); err != nil {
		t.Fatalf("write tasks: %v", err)
	}

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"submit", "matrix", tasksPath, "--config", cfgPath})
	})
	if code != 0 {
		t.Fatalf("exit code = %d, want 0; stderr=%s", code, stderr)
	}
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 2 || !strings.Contains(lines[0], "first") || !strings.Contains(lines[1], "last") {
		t.Fatalf("stdout = %q", stdout)
	}
}

func TestRunSubmitSQLWithTracingLogsSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	dir := t.TempDir()
	cfgPath := writeConfigFixture(t, dir, "")
	// Override logging so span records at INFO are visible.
	data, _ := os.ReadFile(cfgPath)
	data = []byte(strings.Replace(string(data), "  log_level: error\n", "  log_level: info\n  trace: true\n", 1))
	if err := os.WriteFile(cfgPath, data, 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	q := openFixtureQueue(t, cfgPath)
	startEchoWorker(t, q)

	sqlPath := filepath.Join(dir, "inserts.sql")
	stmts := "-- fixtures\nINSERT INTO t VALUES (1);\nINSERT INTO t VALUES (2);\nINSERT INTO t VALUES (3);\n"
	if err := os.WriteFile(sqlPath, []byte(stmts), 0o644); err != nil {
		t.Fatalf("write sql: %v", err)
	}

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"submit", "sql", sqlPath, "--config", cfgPath})
	})
	if code != 0 {
		t.Fatalf("exit code = %d, want 0; stderr=%s", code, stderr)
	}
	if stdout != "" {
		t.Fatalf("sql submit should print nothing, got %q", stdout)
	}
	if !strings.Contains(stderr, `"span":"dispatch.submit"`) || !strings.Contains(stderr, `"span":"dispatch.wait_for"`) {
		t.Fatalf("expected span records in stderr:\n%s", stderr)
	}

	// Three statements with batch_size 2 make two jobs.
	counts, err := q.CountByStatus(context.Background())
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[queue.StatusFinished] != 2 {
		t.Fatalf("finished = %d, want 2 (counts %v)", counts[queue.StatusFinished], counts)
	}
}

func TestRunJobInspectAndCancel(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfigFixture(t, dir, "")
	q := openFixtureQueue(t, cfgPath)

	job, err := q.Enqueue(context.Background(), queue.EnqueueRequest{
		Func:   "subsetter.process_task",
		Kwargs: map[string]any{"subset_hash": "abc"},
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"job", "inspect", job.ID, "--config", cfgPath})
	})
	if code != 0 {
		t.Fatalf("inspect exit code = %d; stderr=%s", code, stderr)
	}
	if !strings.Contains(stdout, job.ID) || !strings.Contains(stdout, "subsetter.process_task") {
		t.Fatalf("inspect output = %q", stdout)
	}

	code, stdout, stderr = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"job", "inspect", job.ID, "--json", "--config", cfgPath})
	})
	if code != 0 {
		t.Fatalf("inspect --json exit code = %d; stderr=%s", code, stderr)
	}
	var report map[string]any
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("inspect --json output is not JSON: %v\n%s", err, stdout)
	}

	code, stdout, _ = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"job", "cancel", job.ID, "--config", cfgPath})
	})
	if code != 0 || !strings.Contains(stdout, "Canceled job "+job.ID) {
		t.Fatalf("cancel exit code = %d, stdout = %q", code, stdout)
	}

	code, _, stderr = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"job", "cancel", job.ID, "--config", cfgPath})
	})
	if code != 1 || !strings.Contains(stderr, "cannot be canceled") {
		t.Fatalf("second cancel exit code = %d, stderr = %q", code, stderr)
	}

	code, _, stderr = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"job", "cancel", "no-such-job", "--config", cfgPath})
	})
	if code != 1 || !strings.Contains(stderr, "not found") {
		t.Fatalf("missing cancel exit code = %d, stderr = %q", code, stderr)
	}
}

func TestRunQueueStatsAndPrune(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfigFixture(t, dir, "")
	q := openFixtureQueue(t, cfgPath)

	ctx := context.Background()
	if _, err := q.Enqueue(ctx, queue.EnqueueRequest{Func: "a"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	// Already expired once created.
	if _, err := q.Enqueue(ctx, queue.EnqueueRequest{Func: "b", TTL: time.Nanosecond}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"queue", "stats", "--json", "--config", cfgPath})
	})
	if code != 0 {
		t.Fatalf("stats exit code = %d; stderr=%s", code, stderr)
	}
	var stats map[string]any
	if err := json.Unmarshal([]byte(stdout), &stats); err != nil {
		t.Fatalf("stats output is not JSON: %v\n%s", err, stdout)
	}
	if stats["queue"] != "experiments" || stats["queued"] != float64(2) {
		t.Fatalf("stats = %v", stats)
	}

	time.Sleep(1100 * time.Millisecond)
	code, stdout, stderr = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"queue", "prune", "--config", cfgPath})
	})
	if code != 0 {
		t.Fatalf("prune exit code = %d; stderr=%s", code, stderr)
	}
	if !strings.Contains(stdout, "Pruned 1 job(s)") {
		t.Fatalf("prune output = %q", stdout)
	}

	code, stdout, _ = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"queue", "stats", "--config", cfgPath})
	})
	if code != 0 || !strings.Contains(stdout, "total") {
		t.Fatalf("stats exit code = %d, stdout = %q", code, stdout)
	}
}

func TestRunConfigLockThenCheck(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfigFixture(t, dir, "backends:\n  run_statements: sql.run\n  matrix_builder: m.build\n  train_tester: tt.run\n  subsetter: s.run\n")

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "lock", "--config", dir})
	})
	if code != 0 {
		t.Fatalf("lock exit code = %d; stderr=%s", code, stderr)
	}
	if !strings.Contains(stdout, "Locked "+cfgPath) {
		t.Fatalf("lock output = %q", stdout)
	}
	if _, err := os.Stat(filepath.Join(dir, config.ChecksumFile)); err != nil {
		t.Fatalf("checksums not written: %v", err)
	}

	code, stdout, stderr = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "check", "--json", "--config", cfgPath})
	})
	if code != 0 {
		t.Fatalf("check exit code = %d; stdout=%s stderr=%s", code, stdout, stderr)
	}
	var result map[string]any
	if err := json.Unmarshal([]byte(stdout), &result); err != nil {
		t.Fatalf("check output is not JSON: %v\n%s", err, stdout)
	}
	if result["valid"] != true {
		t.Fatalf("check result = %v", result)
	}

	// Editing after lock must fail the load.
	f, err := os.OpenFile(cfgPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open config: %v", err)
	}
	_, _ = f.WriteString("# edited\n")
	_ = f.Close()

	code, _, stderr = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "check", "--offline", "--config", cfgPath})
	})
	if code != 1 || !strings.Contains(stderr, "integrity") {
		t.Fatalf("check after edit exit code = %d, stderr = %q", code, stderr)
	}
}

func TestRunConfigLockRefusesInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("queue:\n  batch_size: 0\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "lock", "--config", path})
	})
	if code != 1 || !strings.Contains(stderr, "Refusing to lock") {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}
	if _, err := os.Stat(filepath.Join(dir, config.ChecksumFile)); !os.IsNotExist(err) {
		t.Fatalf("checksums should not exist, stat err = %v", err)
	}
}

func TestRunConfigCheckStrictFailsOnWarnings(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfigFixture(t, dir, "")

	// No .checksums and unset backends both warn.
	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "check", "--offline", "--config", cfgPath})
	})
	if code != 0 {
		t.Fatalf("non-strict exit code = %d; stdout=%s", code, stdout)
	}

	code, _, _ = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "check", "--offline", "--strict", "--config", cfgPath})
	})
	if code != 1 {
		t.Fatalf("strict exit code = %d, want 1", code)
	}
}
