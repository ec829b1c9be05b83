package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/filelock"
	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/models"
)

// ReadArtifact reads a file and captures its content as the step output.
// Params: path (required).
type ReadArtifact struct {
	workDir string
}

// NewReadArtifact creates a read adapter rooted at workDir. Relative
// paths resolve against it; an empty workDir means the process CWD.
func NewReadArtifact(workDir string) *ReadArtifact {
	return &ReadArtifact{workDir: workDir}
}

func (a *ReadArtifact) Name() string { return models.OpReadArtifact }

func (a *ReadArtifact) Invoke(ctx context.Context, params map[string]string) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}

	path, err := requireParam(params, "path")
	if err != nil {
		return Output{}, err
	}
	resolved := resolvePath(a.workDir, path)

	data, err := os.ReadFile(resolved)
	if err != nil {
		return Output{}, fmt.Errorf("read artifact %s: %w", resolved, err)
	}

	return Output{Value: string(data), Ref: resolved}, nil
}

// WriteArtifact writes content to a file atomically under a file lock so
// concurrent executions never interleave partial writes.
// Params: path (required), content.
type WriteArtifact struct {
	workDir string
}

// NewWriteArtifact creates a write adapter rooted at workDir.
func NewWriteArtifact(workDir string) *WriteArtifact {
	return &WriteArtifact{workDir: workDir}
}

func (a *WriteArtifact) Name() string { return models.OpWriteArtifact }

func (a *WriteArtifact) Invoke(ctx context.Context, params map[string]string) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}

	path, err := requireParam(params, "path")
	if err != nil {
		return Output{}, err
	}
	resolved := resolvePath(a.workDir, path)
	content := params["content"]

	if err := filelock.LockAndWrite(resolved, []byte(content)); err != nil {
		return Output{}, fmt.Errorf("write artifact %s: %w", resolved, err)
	}

	return Output{Value: content, Ref: resolved}, nil
}

// resolvePath joins a relative path onto the working directory. Absolute
// paths pass through unchanged.
func resolvePath(workDir, path string) string {
	if workDir == "" || filepath.IsAbs(path) || strings.HasPrefix(path, "~") {
		return path
	}
	return filepath.Join(workDir, path)
}
