package cilogs

import "strings"

// ErrorCategory classifies the kind of failure a CI step's output points at.
type ErrorCategory string

const (
	CategoryConnectivity       ErrorCategory = "connectivity"
	CategoryHealthCheck        ErrorCategory = "health_check"
	CategoryDependency         ErrorCategory = "dependency"
	CategoryApplicationStartup ErrorCategory = "application_startup"
	CategoryUnknown            ErrorCategory = "unknown"
)

// StepLog is one step of a CI job with its captured output.
type StepLog struct {
	Name   string   `json:"name"`
	Status string   `json:"status"`
	Output []string `json:"output"`
}

// JobLog is one CI job with its steps in declaration order.
type JobLog struct {
	Name   string    `json:"name"`
	Status string    `json:"status"`
	Steps  []StepLog `json:"steps"`
}

// WorkflowLog is the parsed job→step tree of one CI run.
type WorkflowLog struct {
	Jobs          []JobLog `json:"jobs"`
	OverallStatus string   `json:"overall_status"`
	Conclusion    string   `json:"conclusion"`
}

// FailurePoint identifies the first failing step of a run, used as weak
// evidence when live probes are inconclusive.
type FailurePoint struct {
	JobName       string        `json:"job_name"`
	StepName      string        `json:"step_name"`
	ErrorMessage  string        `json:"error_message"`
	ErrorCategory ErrorCategory `json:"error_category"`
}

const (
	statusCompleted = "completed"
	statusFailed    = "failed"
)

// errorPatterns are the lower-cased substrings that mark an output line as
// an error. A step containing any of them is considered failed.
var errorPatterns = []string{
	"error:",
	"failed",
	"exception",
	"timeout",
	"connection refused",
	"command not found",
	"no such file",
}

// Parse builds the job→step tree from a raw workflow log. Job headers are
// unindented "name\ttimestamp" lines, step headers are indented one level,
// and output lines are indented below their step.
func Parse(raw string) *WorkflowLog {
	log := &WorkflowLog{OverallStatus: statusCompleted, Conclusion: "success"}

	lines := strings.Split(raw, "\n")
	var job *JobLog
	var step *StepLog

	flushStep := func() {
		if job != nil && step != nil {
			job.Steps = append(job.Steps, *step)
		}
		step = nil
	}
	flushJob := func() {
		flushStep()
		if job != nil {
			log.Jobs = append(log.Jobs, *job)
		}
		job = nil
	}

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}

		indented := line[0] == ' ' || line[0] == '\t'
		trimmed := strings.TrimLeft(line, " \t")

		switch {
		case !indented && strings.Contains(line, "\t"):
			// New job header.
			flushJob()
			job = &JobLog{
				Name:   strings.SplitN(line, "\t", 2)[0],
				Status: statusCompleted,
			}
		case indented && strings.Contains(trimmed, "\t") && job != nil:
			// New step header, one level in.
			flushStep()
			step = &StepLog{
				Name:   strings.SplitN(trimmed, "\t", 2)[0],
				Status: statusCompleted,
			}
		case indented && step != nil:
			step.Output = append(step.Output, trimmed)
			if matchesErrorPattern(trimmed) {
				step.Status = statusFailed
				job.Status = statusFailed
				log.OverallStatus = statusFailed
				log.Conclusion = "failure"
			}
		}
	}
	flushJob()

	return log
}

// matchesErrorPattern reports whether a single output line looks like an
// error according to the fixed pattern set.
func matchesErrorPattern(line string) bool {
	lower := strings.ToLower(line)
	for _, p := range errorPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// IdentifyFailurePoint returns the first failed (job, step) pair in
// declaration order, or nil if the run has no failure.
func (w *WorkflowLog) IdentifyFailurePoint() *FailurePoint {
	for _, job := range w.Jobs {
		for _, step := range job.Steps {
			if step.Status != statusFailed {
				continue
			}
			return &FailurePoint{
				JobName:       job.Name,
				StepName:      step.Name,
				ErrorMessage:  firstErrorLine(step.Output),
				ErrorCategory: categorize(step.Output),
			}
		}
	}
	return nil
}

// ExtractErrorMessages returns every error-matching output line of the run,
// in declaration order.
func (w *WorkflowLog) ExtractErrorMessages() []string {
	var msgs []string
	for _, job := range w.Jobs {
		for _, step := range job.Steps {
			for _, line := range step.Output {
				if matchesErrorPattern(line) {
					msgs = append(msgs, line)
				}
			}
		}
	}
	return msgs
}

func firstErrorLine(output []string) string {
	for _, line := range output {
		if matchesErrorPattern(line) {
			return line
		}
	}
	return ""
}

// categorize keyword-matches a failed step's output into an ErrorCategory.
// Connectivity wins over the weaker keyword classes.
func categorize(output []string) ErrorCategory {
	text := strings.ToLower(strings.Join(output, "\n"))

	switch {
	case strings.Contains(text, "ssh") &&
		(strings.Contains(text, "timeout") || strings.Contains(text, "timed out") ||
			strings.Contains(text, "connection")):
		return CategoryConnectivity
	case strings.Contains(text, "health") || strings.Contains(text, "endpoint"):
		return CategoryHealthCheck
	case strings.Contains(text, "npm") || strings.Contains(text, "node"):
		return CategoryDependency
	case strings.Contains(text, "pm2") || strings.Contains(text, "application"):
		return CategoryApplicationStartup
	default:
		return CategoryUnknown
	}
}
