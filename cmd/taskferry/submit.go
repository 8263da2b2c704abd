package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/taskferry/internal/config"
	"github.com/mattjoyce/taskferry/internal/dispatch"
	"github.com/mattjoyce/taskferry/internal/log"
	"github.com/mattjoyce/taskferry/internal/queue"
	"github.com/mattjoyce/taskferry/internal/telemetry"
)

const tracerName = "github.com/mattjoyce/taskferry/cmd/taskferry"

func runSubmitNoun(args []string) int {
	if len(args) < 1 {
		printSubmitNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSubmitNounHelp(os.Stdout)
		return 0
	}

	kind := args[0]
	actionArgs := args[1:]

	switch kind {
	case "sql", "matrix", "train-test", "subset":
		if hasHelpFlag(actionArgs) {
			fmt.Printf("Usage: taskferry submit %s FILE [--config PATH]\n", kind)
			return 0
		}
		return runSubmit(kind, actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown submit action: %s\n", kind)
		return 1
	}
}

func printSubmitNounHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: taskferry submit <action> FILE [--config PATH]")
	fmt.Fprintln(w, "Actions: sql, matrix, train-test, subset")
}

func runSubmit(kind string, args []string) int {
	var configPath string
	fs := flag.NewFlagSet("submit "+kind, flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")

	positional, flagArgs := splitPositional(args, "config")
	if err := fs.Parse(flagArgs); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if len(positional) != 1 {
		fmt.Fprintf(os.Stderr, "Usage: taskferry submit %s FILE [--config PATH]\n", kind)
		return 1
	}
	file := positional[0]

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	setupLogging(cfg)
	logger := log.WithComponent("main")

	// Parse the input before touching the store so a typo costs nothing.
	input, err := readSubmitInput(kind, file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read %s: %v\n", file, err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, shutdownTracing, err := telemetry.InitTracing(telemetry.Config{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: currentVersionInfo().Version,
		Enabled:        cfg.Service.Trace,
		Logger:         log.WithComponent("trace"),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init tracing: %v\n", err)
		return 1
	}
	defer shutdownTracing(context.Background())

	db, q, err := openQueue(ctx, cfg)
	if err != nil {
		logger.Error("queue store unavailable", "driver", cfg.Queue.Driver, "error", err)
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer db.Close()

	d, err := newDispatcher(cfg, q, dispatch.WithTracer(tp.Tracer(tracerName)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create dispatcher: %v\n", err)
		return 1
	}

	logger.Info("submitting", "kind", kind, "file", file, "queue", q.Name())
	results, err := input.submit(ctx, d)
	if err != nil {
		logger.Error("submit failed", "kind", kind, "error", err)
		fmt.Fprintf(os.Stderr, "Submit failed: %v\n", err)
		return 1
	}

	if err := writeResults(os.Stdout, results); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write results: %v\n", err)
		return 1
	}
	return 0
}

// newDispatcher maps config onto a Dispatcher bound to q.
func newDispatcher(cfg *config.Config, q *queue.Queue, opts ...dispatch.Option) (*dispatch.Dispatcher, error) {
	opts = append([]dispatch.Option{
		dispatch.WithLogger(log.WithQueue(q.Name()).With("component", "dispatch")),
	}, opts...)
	return dispatch.New(dispatch.FromQueue(q), dispatch.Config{
		SleepTime:  cfg.Queue.SleepTime.Std(),
		BatchSize:  cfg.Queue.BatchSize,
		JobTimeout: cfg.Queue.DefaultTimeout.Std(),
		DBRef:      cfg.Experiment.DBRef,
		Backends: dispatch.Backends{
			RunStatements: cfg.Backends.RunStatements,
			MatrixBuilder: cfg.Backends.MatrixBuilder,
			TrainTester:   cfg.Backends.TrainTester,
			Subsetter:     cfg.Backends.Subsetter,
		},
	}, opts...)
}

// submitInput is a parsed submit file bound to the Dispatcher call that handles it.
type submitInput struct {
	statements []string
	matrix     map[string]dispatch.TaskDescriptor
	tasks      []dispatch.TaskDescriptor
	kind       string
}

func (in *submitInput) submit(ctx context.Context, d *dispatch.Dispatcher) ([]json.RawMessage, error) {
	switch in.kind {
	case "sql":
		return nil, d.ProcessInserts(ctx, in.statements)
	case "matrix":
		return d.ProcessMatrixBuildTasks(ctx, in.matrix)
	case "train-test":
		return d.ProcessTrainTestTasks(ctx, in.tasks)
	case "subset":
		return d.ProcessSubsetTasks(ctx, in.tasks)
	default:
		return nil, fmt.Errorf("unknown submit kind %q", in.kind)
	}
}

func readSubmitInput(kind, path string) (*submitInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	in := &submitInput{kind: kind}
	switch kind {
	case "sql":
		in.statements, err = readStatements(f)
	case "matrix":
		in.matrix, err = readTaskMap(f)
	default:
		in.tasks, err = readTaskList(f)
	}
	if err != nil {
		return nil, err
	}
	return in, nil
}

// readStatements returns one statement per non-blank line. Lines starting
// with "--" are comments.
func readStatements(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read statements: %w", err)
	}
	return out, nil
}

// readTaskList decodes a YAML (or JSON) sequence of task descriptors.
func readTaskList(r io.Reader) ([]dispatch.TaskDescriptor, error) {
	var raw []map[string]any
	if err := decodeYAML(r, &raw); err != nil {
		return nil, err
	}
	out := make([]dispatch.TaskDescriptor, len(raw))
	for i, m := range raw {
		if m == nil {
			return nil, fmt.Errorf("task %d is empty", i)
		}
		out[i] = dispatch.TaskDescriptor(normalizeMap(m))
	}
	return out, nil
}

// readTaskMap decodes a YAML (or JSON) mapping of matrix uuid to descriptor.
func readTaskMap(r io.Reader) (map[string]dispatch.TaskDescriptor, error) {
	var raw map[string]map[string]any
	if err := decodeYAML(r, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]dispatch.TaskDescriptor, len(raw))
	for key, m := range raw {
		if m == nil {
			return nil, fmt.Errorf("task %q is empty", key)
		}
		out[key] = dispatch.TaskDescriptor(normalizeMap(m))
	}
	return out, nil
}

func decodeYAML(r io.Reader, v any) error {
	if err := yaml.NewDecoder(r).Decode(v); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("parse tasks: %w", err)
	}
	return nil
}

// normalizeMap rewrites nested map[any]any values, which encoding/json
// cannot marshal, into map[string]any.
func normalizeMap(m map[string]any) map[string]any {
	for k, v := range m {
		m[k] = normalizeValue(v)
	}
	return m
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return normalizeMap(t)
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[fmt.Sprint(k)] = normalizeValue(vv)
		}
		return out
	case []any:
		for i := range t {
			t[i] = normalizeValue(t[i])
		}
		return t
	default:
		return v
	}
}

// writeResults prints one JSON value per line; failed jobs print null.
func writeResults(w io.Writer, results []json.RawMessage) error {
	bw := bufio.NewWriter(w)
	for _, r := range results {
		if r == nil {
			r = json.RawMessage("null")
		}
		if _, err := bw.Write(r); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}
