package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/mattjoyce/taskferry/internal/config"
	"github.com/mattjoyce/taskferry/internal/doctor"
	"github.com/mattjoyce/taskferry/internal/inspect"
	"github.com/mattjoyce/taskferry/internal/log"
	"github.com/mattjoyce/taskferry/internal/queue"
	"github.com/mattjoyce/taskferry/internal/storage"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage(os.Stderr)
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "submit":
		return runSubmitNoun(args)
	case "job":
		return runJobNoun(args)
	case "queue":
		return runQueueNoun(args)
	case "config":
		return runConfigNoun(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage(os.Stderr)
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: taskferry version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("taskferry %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if commit != "" {
		info.Commit = shortenCommit(commit)
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if t, err := time.Parse(time.RFC3339Nano, built); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}
	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `taskferry - submit experiment work to a job queue and wait for it

Usage:
  taskferry <noun> <action> [flags]

Submit Commands:
  submit sql FILE           Run SQL statements (one per line) in batches
  submit matrix FILE        Build matrices from a mapping of uuid -> task
  submit train-test FILE    Run train/test tasks from a list
  submit subset FILE        Run subset tasks from a list

Job Commands:
  job inspect <id>          Show a job's arguments, status and result
  job cancel <id>           Cancel a queued job

Queue Commands:
  queue stats               Count jobs by status
  queue prune               Delete expired jobs and results

Config Commands:
  config check              Validate configuration and reach the queue store
  config lock               Record the config file hash in .checksums

General:
  version                   Show version information
  help                      Show this help message

Every action accepts --config PATH. Without it taskferry looks at
$TASKFERRY_CONFIG, ~/.config/taskferry/config.yaml and ./config.yaml,
then falls back to built-in defaults.
`)
}

// --- NOUN DISPATCHERS ---

func runJobNoun(args []string) int {
	if len(args) < 1 {
		printJobNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printJobNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "inspect":
		if hasHelpFlag(actionArgs) {
			fmt.Println("Usage: taskferry job inspect <job_id> [--config PATH] [--json]")
			return 0
		}
		return runJobInspect(actionArgs)
	case "cancel":
		if hasHelpFlag(actionArgs) {
			fmt.Println("Usage: taskferry job cancel <job_id> [--config PATH]")
			return 0
		}
		return runJobCancel(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown job action: %s\n", action)
		return 1
	}
}

func runQueueNoun(args []string) int {
	if len(args) < 1 {
		printQueueNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printQueueNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "stats":
		if hasHelpFlag(actionArgs) {
			fmt.Println("Usage: taskferry queue stats [--config PATH] [--json]")
			return 0
		}
		return runQueueStats(actionArgs)
	case "prune":
		if hasHelpFlag(actionArgs) {
			fmt.Println("Usage: taskferry queue prune [--config PATH]")
			return 0
		}
		return runQueuePrune(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown queue action: %s\n", action)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			fmt.Println("Usage: taskferry config check [--config PATH] [--json] [--strict] [--offline]")
			return 0
		}
		return runConfigCheck(actionArgs)
	case "lock":
		if hasHelpFlag(actionArgs) {
			fmt.Println("Usage: taskferry config lock [--config PATH]")
			return 0
		}
		return runConfigLock(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printJobNounHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: taskferry job <action>")
	fmt.Fprintln(w, "Actions: inspect, cancel")
}

func printQueueNounHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: taskferry queue <action>")
	fmt.Fprintln(w, "Actions: stats, prune")
}

func printConfigNounHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: taskferry config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, lock")
}

// splitPositional pulls positional arguments out of args so flags may follow
// them ('taskferry job inspect <id> --json'). Flags named in valueFlags consume
// the argument that follows them.
func splitPositional(args []string, valueFlags ...string) (positional, flags []string) {
	takesValue := make(map[string]bool, len(valueFlags))
	for _, f := range valueFlags {
		takesValue["-"+f] = true
		takesValue["--"+f] = true
	}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			positional = append(positional, arg)
			continue
		}
		flags = append(flags, arg)
		if takesValue[arg] && i+1 < len(args) {
			i++
			flags = append(flags, args[i])
		}
	}
	return positional, flags
}

// --- SHARED WIRING ---

// loadConfig resolves and loads configuration, falling back to defaults when
// nothing is found.
func loadConfig(configPath string) (*config.Config, error) {
	path, err := config.DiscoverConfig(configPath)
	if errors.Is(err, config.ErrNoConfig) {
		return config.Defaults(), nil
	}
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}

// setupLogging routes logs to stderr; stdout carries command output.
func setupLogging(cfg *config.Config) {
	log.SetOutput(os.Stderr, cfg.Service.LogLevel, cfg.Service.LogFormat)
}

// openQueue opens the configured store and returns a queue client on it.
func openQueue(ctx context.Context, cfg *config.Config) (*sql.DB, *queue.Queue, error) {
	db, dialect, err := storage.Open(ctx, storage.Options{Driver: cfg.Queue.Driver, DSN: cfg.Queue.DSN})
	if err != nil {
		return nil, nil, fmt.Errorf("open queue store: %w\n"+
			"Hint: check queue.driver (%s) and queue.dsn in your config", err, cfg.Queue.Driver)
	}
	q := queue.New(db, queue.Options{
		Dialect:        dialect,
		Name:           cfg.Queue.Name,
		DefaultTimeout: cfg.Queue.DefaultTimeout.Std(),
	})
	return db, q, nil
}

// --- ACTIONS ---

func runJobInspect(args []string) int {
	var configPath string
	var jsonOut bool

	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&jsonOut, "json", false, "Output report in JSON")

	positional, flagArgs := splitPositional(args, "config")
	if err := fs.Parse(flagArgs); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if len(positional) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: taskferry job inspect <job_id> [--config PATH] [--json]")
		return 1
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	setupLogging(cfg)

	ctx := context.Background()
	db, q, err := openQueue(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer db.Close()

	var report string
	if jsonOut {
		report, err = inspect.BuildJSONReport(ctx, q, positional[0])
	} else {
		report, err = inspect.BuildReport(ctx, q, positional[0])
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Inspect failed: %v\n", err)
		return 1
	}
	fmt.Print(strings.TrimRight(report, "\n") + "\n")
	return 0
}

func runJobCancel(args []string) int {
	var configPath string
	fs := flag.NewFlagSet("cancel", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")

	positional, flagArgs := splitPositional(args, "config")
	if err := fs.Parse(flagArgs); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if len(positional) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: taskferry job cancel <job_id> [--config PATH]")
		return 1
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	setupLogging(cfg)

	ctx := context.Background()
	db, q, err := openQueue(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer db.Close()

	jobID := positional[0]
	if err := q.Cancel(ctx, jobID); err != nil {
		switch {
		case errors.Is(err, queue.ErrJobNotFound):
			fmt.Fprintf(os.Stderr, "Job %s not found\n", jobID)
		case errors.Is(err, queue.ErrNotCancelable):
			fmt.Fprintf(os.Stderr, "Job %s cannot be canceled: %v\n", jobID, err)
		default:
			fmt.Fprintf(os.Stderr, "Cancel failed: %v\n", err)
		}
		return 1
	}
	log.WithJob(jobID).Info("job canceled", "queue", q.Name())
	fmt.Printf("Canceled job %s\n", jobID)
	return 0
}

var statusOrder = []queue.Status{
	queue.StatusQueued,
	queue.StatusStarted,
	queue.StatusFinished,
	queue.StatusFailed,
	queue.StatusCanceled,
}

func runQueueStats(args []string) int {
	var configPath string
	var jsonOut bool
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&jsonOut, "json", false, "Output counts as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	setupLogging(cfg)

	ctx := context.Background()
	db, q, err := openQueue(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer db.Close()

	counts, err := q.CountByStatus(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to count jobs: %v\n", err)
		return 1
	}

	if jsonOut {
		out := map[string]any{"queue": q.Name()}
		for _, s := range statusOrder {
			out[string(s)] = counts[s]
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("Queue %s\n", q.Name())
	total := 0
	for _, s := range statusOrder {
		fmt.Printf("  %-9s %d\n", s, counts[s])
		total += counts[s]
	}
	fmt.Printf("  %-9s %d\n", "total", total)
	return 0
}

func runQueuePrune(args []string) int {
	var configPath string
	fs := flag.NewFlagSet("prune", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	setupLogging(cfg)

	ctx := context.Background()
	db, q, err := openQueue(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer db.Close()

	n, err := q.PruneExpired(ctx, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Prune failed: %v\n", err)
		return 1
	}
	log.WithQueue(q.Name()).Info("pruned expired jobs", "deleted", n)
	fmt.Printf("Pruned %d job(s) from queue %s\n", n, q.Name())
	return 0
}

func runConfigCheck(args []string) int {
	var configPath string
	var jsonOut, strict, offline bool

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")
	fs.BoolVar(&strict, "strict", false, "Treat warnings as errors")
	fs.BoolVar(&offline, "offline", false, "Skip connecting to the queue store")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	var probe doctor.StoreProbe
	if !offline {
		probe = func(ctx context.Context, opts storage.Options) error {
			db, _, err := storage.Open(ctx, opts)
			if err != nil {
				return err
			}
			return db.Close()
		}
	}

	result := doctor.New(cfg, probe).Validate(context.Background())

	if jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid || (strict && len(result.Warnings) > 0) {
		return 1
	}
	return 0
}

func runConfigLock(args []string) int {
	var configPath string
	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	path, err := config.DiscoverConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
		return 1
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, "config.yaml")
	}

	// Refuse to bless a file that would not load.
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read config: %v\n", err)
		return 1
	}
	if _, err := config.Parse(data); err != nil {
		fmt.Fprintf(os.Stderr, "Refusing to lock invalid config: %v\n", err)
		return 1
	}

	manifest, err := config.Lock(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Lock failed: %v\n", err)
		return 1
	}
	fmt.Printf("Locked %s (%d file(s) in manifest)\n", path, len(manifest.Hashes))
	return 0
}
