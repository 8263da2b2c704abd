package inspect

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mattjoyce/taskferry/internal/queue"
)

// Fetcher loads a single job by ID. *queue.Queue satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, id string) (*queue.Job, error)
}

// Report is the structured JSON representation of a job.
type Report struct {
	JobID       string          `json:"job_id"`
	Queue       string          `json:"queue"`
	Func        string          `json:"func"`
	Description string          `json:"description,omitempty"`
	Status      string          `json:"status"`
	Worker      string          `json:"worker,omitempty"`
	Timeout     string          `json:"timeout"`
	ResultTTL   string          `json:"result_ttl"`
	TTL         string          `json:"ttl"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	EndedAt     *time.Time      `json:"ended_at,omitempty"`
	Runtime     string          `json:"runtime,omitempty"`
	Args        json.RawMessage `json:"args"`
	Kwargs      json.RawMessage `json:"kwargs"`
	Result      json.RawMessage `json:"result,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
}

// BuildReport renders a terminal-friendly report for a job.
func BuildReport(ctx context.Context, f Fetcher, jobID string) (string, error) {
	report, err := gatherReportData(ctx, f, jobID)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	fmt.Fprintf(&out, "Job Report\n")
	fmt.Fprintf(&out, "Job ID      : %s\n", report.JobID)
	fmt.Fprintf(&out, "Queue       : %s\n", report.Queue)
	fmt.Fprintf(&out, "Func        : %s\n", report.Func)
	fmt.Fprintf(&out, "Description : %s\n", renderUnset(report.Description, "<none>"))
	fmt.Fprintf(&out, "Status      : %s\n", report.Status)
	fmt.Fprintf(&out, "Worker      : %s\n", renderUnset(report.Worker, "<unclaimed>"))
	fmt.Fprintf(&out, "Timeout     : %s (result ttl %s, ttl %s)\n", report.Timeout, report.ResultTTL, report.TTL)
	fmt.Fprintf(&out, "Created     : %s\n", report.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&out, "Started     : %s\n", renderTime(report.StartedAt))
	fmt.Fprintf(&out, "Ended       : %s\n", renderTime(report.EndedAt))
	if report.Runtime != "" {
		fmt.Fprintf(&out, "Runtime     : %s\n", report.Runtime)
	}
	fmt.Fprintf(&out, "\n")

	writeJSONBlock(&out, "args", report.Args)
	writeJSONBlock(&out, "kwargs", report.Kwargs)
	if len(report.Result) > 0 {
		writeJSONBlock(&out, "result", report.Result)
	}
	if report.LastError != "" {
		fmt.Fprintf(&out, "last_error:\n")
		for _, line := range strings.Split(strings.TrimSpace(report.LastError), "\n") {
			fmt.Fprintf(&out, "  %s\n", line)
		}
	}

	return strings.TrimRight(out.String(), "\n") + "\n", nil
}

// BuildJSONReport returns the machine-readable JSON job report.
func BuildJSONReport(ctx context.Context, f Fetcher, jobID string) (string, error) {
	report, err := gatherReportData(ctx, f, jobID)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal json report: %w", err)
	}
	return string(data), nil
}

func gatherReportData(ctx context.Context, f Fetcher, jobID string) (*Report, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, fmt.Errorf("job_id is required")
	}

	job, err := f.Fetch(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job %q: %w", jobID, err)
	}

	report := &Report{
		JobID:       job.ID,
		Queue:       job.Queue,
		Func:        job.Func,
		Description: job.Description,
		Status:      string(job.Status),
		Timeout:     job.Timeout.String(),
		ResultTTL:   job.ResultTTL.String(),
		TTL:         job.TTL.String(),
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		EndedAt:     job.EndedAt,
		Args:        orEmpty(job.Args, "[]"),
		Kwargs:      orEmpty(job.Kwargs, "{}"),
		Result:      job.ReturnValue,
	}
	if job.WorkerName != nil {
		report.Worker = *job.WorkerName
	}
	if job.LastError != nil {
		report.LastError = *job.LastError
	}
	if job.StartedAt != nil && job.EndedAt != nil {
		report.Runtime = job.EndedAt.Sub(*job.StartedAt).String()
	}
	return report, nil
}

func writeJSONBlock(out *strings.Builder, label string, raw json.RawMessage) {
	fmt.Fprintf(out, "%s:\n", label)
	for _, line := range strings.Split(strings.TrimSpace(prettyJSON(raw)), "\n") {
		fmt.Fprintf(out, "  %s\n", line)
	}
}

func prettyJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "null"
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(out)
}

func orEmpty(raw json.RawMessage, fallback string) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(fallback)
	}
	return raw
}

func renderTime(t *time.Time) string {
	if t == nil {
		return "<none>"
	}
	return t.Format(time.RFC3339)
}

func renderUnset(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
