// internal/lint/lint.go
package lint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"autopatch/internal/events"
)

// Timeout bounds a single linter run
const Timeout = 2 * time.Minute

// Run executes the linter matching projectType and returns its combined
// output. Project types without a configured linter yield an empty summary.
// A non-zero linter exit is expected when issues exist and is not an error.
func Run(ctx context.Context, root, projectType string, emitter *events.Emitter) (string, error) {
	var cmd *exec.Cmd

	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	switch projectType {
	case "python":
		emitter.Log("Running pylint analysis...", events.LevelInfo)
		cmd = exec.CommandContext(ctx, "pylint", root)
	case "node":
		emitter.Log("Running ESLint analysis...", events.LevelInfo)
		cmd = exec.CommandContext(ctx, "npx", "eslint", "--format", "json", root)
	default:
		emitter.Log(fmt.Sprintf("No linter configured for project type: %s", projectType), events.LevelWarning)
		return "", nil
	}
	cmd.Dir = root

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		emitter.Log("Lint analysis timed out", events.LevelError)
		return "", fmt.Errorf("lint timed out after %s", Timeout)
	}

	output := stdout.String() + stderr.String()
	if err == nil {
		emitter.Log("Lint analysis completed - no issues found", events.LevelSuccess)
	} else if _, isExit := err.(*exec.ExitError); isExit {
		emitter.Log(fmt.Sprintf("Lint analysis completed with issues: %v", err), events.LevelWarning)
	} else {
		emitter.Log(fmt.Sprintf("Lint analysis failed: %v", err), events.LevelError)
		return "", fmt.Errorf("run linter: %w", err)
	}

	return output, nil
}

// DetectProjectType guesses the linter family from files present in the tree
func DetectProjectType(tree map[string][]string) string {
	hasPy := false
	hasNode := false
	for dir, files := range tree {
		for _, f := range files {
			if f == "package.json" && dir == "" {
				hasNode = true
			}
			if len(f) > 3 && f[len(f)-3:] == ".py" {
				hasPy = true
			}
		}
	}
	if hasNode {
		return "node"
	}
	if hasPy {
		return "python"
	}
	return ""
}
