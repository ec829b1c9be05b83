// Package logger provides logging for plan replay execution.
//
// The console logger emits leveled, timestamped progress lines for step
// and run events. It is thread-safe and colorizes output when writing to
// a terminal.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/models"
)

// Log level constants for filtering
const (
	levelTrace int = 0
	levelDebug int = 1
	levelInfo  int = 2
	levelWarn  int = 3
	levelError int = 4
)

// ConsoleLogger logs replay progress to a writer with timestamps and
// thread safety. All output is prefixed with [HH:MM:SS] timestamps. It
// supports level filtering; color output is enabled automatically when
// the writer is a TTY.
type ConsoleLogger struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool
}

// NewConsoleLogger creates a ConsoleLogger writing to w. If w is nil,
// messages are silently discarded. Valid levels: trace, debug, info,
// warn, error (case-insensitive); empty or invalid defaults to "info".
func NewConsoleLogger(w io.Writer, logLevel string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      w,
		logLevel:    normalizeLogLevel(logLevel),
		colorOutput: isTerminal(w),
	}
}

// isTerminal checks if the writer is a terminal that supports colors.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if color.NoColor {
		// Honors the NO_COLOR convention.
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// normalizeLogLevel lowercases and validates a level, defaulting to "info".
func normalizeLogLevel(level string) string {
	normalized := strings.ToLower(strings.TrimSpace(level))

	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if validLevels[normalized] {
		return normalized
	}

	return "info"
}

// shouldLog checks if a message at the given level should be logged.
func (cl *ConsoleLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(cl.logLevel)
}

func logLevelToInt(level string) int {
	switch level {
	case "trace":
		return levelTrace
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// LogTrace logs a trace-level message (most verbose).
func (cl *ConsoleLogger) LogTrace(message string) {
	cl.logWithLevel("TRACE", message)
}

// LogDebug logs a debug-level message.
func (cl *ConsoleLogger) LogDebug(message string) {
	cl.logWithLevel("DEBUG", message)
}

// LogInfo logs an info-level message.
func (cl *ConsoleLogger) LogInfo(message string) {
	cl.logWithLevel("INFO", message)
}

// LogWarn logs a warning-level message.
func (cl *ConsoleLogger) LogWarn(message string) {
	cl.logWithLevel("WARN", message)
}

// LogError logs an error-level message.
func (cl *ConsoleLogger) LogError(message string) {
	cl.logWithLevel("ERROR", message)
}

// logWithLevel logs a message at the given level if filtering allows it.
// Format: "[HH:MM:SS] [LEVEL] <message>"
func (cl *ConsoleLogger) logWithLevel(level string, message string) {
	if cl.writer == nil {
		return
	}
	if !cl.shouldLog(strings.ToLower(level)) {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	var formatted string
	if cl.colorOutput {
		formatted = fmt.Sprintf("[%s] [%s] %s\n", ts, colorizeLevel(level), message)
	} else {
		formatted = fmt.Sprintf("[%s] [%s] %s\n", ts, level, message)
	}

	cl.writer.Write([]byte(formatted))
}

// colorizeLevel maps a level tag to its ANSI-colored form.
func colorizeLevel(level string) string {
	switch strings.ToUpper(level) {
	case "TRACE":
		return color.New(color.FgHiBlack).Sprint(level)
	case "DEBUG":
		return color.New(color.FgCyan).Sprint(level)
	case "INFO":
		return color.New(color.FgBlue).Sprint(level)
	case "WARN":
		return color.New(color.FgYellow).Sprint(level)
	case "ERROR":
		return color.New(color.FgRed).Sprint(level)
	default:
		return level
	}
}

// LogStepStart logs the start of a step execution at INFO level.
// Format: "[HH:MM:SS] Step N (operation): description"
func (cl *ConsoleLogger) LogStepStart(step models.Step) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	var line string
	if cl.colorOutput {
		header := color.New(color.Bold).Sprintf("Step %d", step.Index)
		line = fmt.Sprintf("[%s] %s (%s): %s\n", ts, header, step.Operation, step.Description)
	} else {
		line = fmt.Sprintf("[%s] Step %d (%s): %s\n", ts, step.Index, step.Operation, step.Description)
	}
	cl.writer.Write([]byte(line))
}

// LogStepComplete logs the terminal status of a step at INFO level.
// Format: "[HH:MM:SS] Step N <status> (<duration>)"
func (cl *ConsoleLogger) LogStepComplete(result models.StepResult) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	status := result.Status
	if cl.colorOutput {
		switch result.Status {
		case models.StepSuccess:
			status = color.New(color.FgGreen).Sprint(result.Status)
		case models.StepFailed:
			status = color.New(color.FgRed).Sprint(result.Status)
		case models.StepDegraded:
			status = color.New(color.FgYellow).Sprint(result.Status)
		}
	}

	line := fmt.Sprintf("[%s] Step %d %s (%s)\n", ts, result.Index, status, formatDuration(result.Duration))
	cl.writer.Write([]byte(line))
}

// LogRetry logs a retry attempt at WARN level.
func (cl *ConsoleLogger) LogRetry(stepIndex, attempt, maxRetries int, cause string) {
	cl.LogWarn(fmt.Sprintf("Step %d retry %d/%d: %s", stepIndex, attempt, maxRetries, cause))
}

// LogRunComplete logs the run summary at INFO level.
// Format: "[HH:MM:SS] Plan <key> <status>: N/M steps succeeded (<duration>)"
func (cl *ConsoleLogger) LogRunComplete(report *models.ExecutionReport) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	succeeded := 0
	for _, sr := range report.Steps {
		if sr.Status == models.StepSuccess {
			succeeded++
		}
	}

	status := report.Status
	if cl.colorOutput {
		switch {
		case report.Succeeded():
			status = color.New(color.FgGreen).Sprint(report.Status)
		case report.Status == models.StatusFailed:
			status = color.New(color.FgRed).Sprint(report.Status)
		default:
			status = color.New(color.FgYellow).Sprint(report.Status)
		}
	}

	line := fmt.Sprintf("[%s] Plan %s@v%d %s: %d/%d steps succeeded (%s)\n",
		timestamp(), report.PlanID, report.PlanVersion, status, succeeded, len(report.Steps), formatDuration(report.TotalTime))
	cl.writer.Write([]byte(line))
}

// timestamp returns the current time formatted as HH:MM:SS.
func timestamp() string {
	return time.Now().Format("15:04:05")
}

// formatDuration renders a duration rounded to a readable precision.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	if d < time.Minute {
		return d.Round(100 * time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}
