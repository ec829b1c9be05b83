package logger

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/models"
)

func TestLogLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	cl := NewConsoleLogger(&buf, "warn")

	cl.LogDebug("debug message")
	cl.LogInfo("info message")
	cl.LogWarn("warn message")
	cl.LogError("error message")

	output := buf.String()
	if strings.Contains(output, "debug message") || strings.Contains(output, "info message") {
		t.Errorf("messages below warn should be filtered, got: %s", output)
	}
	if !strings.Contains(output, "warn message") || !strings.Contains(output, "error message") {
		t.Errorf("warn and error messages should be logged, got: %s", output)
	}
}

func TestInvalidLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	cl := NewConsoleLogger(&buf, "loud")

	cl.LogDebug("hidden")
	cl.LogInfo("shown")

	output := buf.String()
	if strings.Contains(output, "hidden") {
		t.Error("debug should be filtered under default info level")
	}
	if !strings.Contains(output, "shown") {
		t.Error("info should be logged under default info level")
	}
}

func TestNilWriterDiscards(t *testing.T) {
	cl := NewConsoleLogger(nil, "info")
	// Must not panic.
	cl.LogInfo("into the void")
	cl.LogStepStart(models.Step{Index: 1, Operation: models.OpDelegate})
	cl.LogRunComplete(&models.ExecutionReport{})
}

func TestLogStepEvents(t *testing.T) {
	var buf bytes.Buffer
	cl := NewConsoleLogger(&buf, "info")

	cl.LogStepStart(models.Step{Index: 2, Operation: models.OpExecuteCommand, Description: "run tests"})
	cl.LogStepComplete(models.StepResult{Index: 2, Status: models.StepSuccess, Duration: 120 * time.Millisecond})

	output := buf.String()
	if !strings.Contains(output, "Step 2 (execute_command): run tests") {
		t.Errorf("missing step start line: %s", output)
	}
	if !strings.Contains(output, "Step 2 success") {
		t.Errorf("missing step complete line: %s", output)
	}
}

func TestLogRunComplete(t *testing.T) {
	var buf bytes.Buffer
	cl := NewConsoleLogger(&buf, "info")

	cl.LogRunComplete(&models.ExecutionReport{
		PlanID:      "plan-1",
		PlanVersion: 2,
		Status:      models.StatusDegraded,
		Steps: []models.StepResult{
			{Index: 1, Status: models.StepSuccess},
			{Index: 2, Status: models.StepDegraded},
		},
		TotalTime: 3 * time.Second,
	})

	output := buf.String()
	if !strings.Contains(output, "plan-1@v2") {
		t.Errorf("missing plan key: %s", output)
	}
	if !strings.Contains(output, "1/2 steps succeeded") {
		t.Errorf("missing step summary: %s", output)
	}
}

func TestConcurrentLogging(t *testing.T) {
	var buf bytes.Buffer
	cl := NewConsoleLogger(&buf, "info")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cl.LogInfo("concurrent line")
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 20 {
		t.Errorf("expected 20 complete lines, got %d", len(lines))
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1m30s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
