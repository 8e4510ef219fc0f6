package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Answer is the value the executed code passed to final_answer. Image is
// set instead of Content for binary answers.
type Answer struct {
	Content string
	Image   []byte
}

// Result captures one code execution: everything the code printed, any PNG
// files it left in the working directory, and the final answer if it
// produced one.
type Result struct {
	Output string
	Images [][]byte
	Final  *Answer
}

// Executor runs one step's code. A non-nil error describes a failed
// execution; the partial Result is still meaningful (stderr ends up in
// Output).
type Executor interface {
	Execute(ctx context.Context, code string) (Result, error)
}

// PythonExecutor runs each step in a fresh interpreter inside a temp
// directory. A small prelude defines final_answer, which reports the
// terminal value through a result file.
type PythonExecutor struct {
	Python  string        // interpreter binary, default "python3"
	Timeout time.Duration // per-step wall clock limit, default 2 minutes
}

const executorPrelude = `import base64 as _b64, json as _json, sys as _sys

def final_answer(value):
    if isinstance(value, (bytes, bytearray)):
        _payload = {"type": "image", "content": _b64.b64encode(bytes(value)).decode("ascii")}
    else:
        _payload = {"type": "text", "content": str(value)}
    with open(_RESULT_PATH, "w") as _fh:
        _json.dump(_payload, _fh)
    _sys.stdout.flush()
    _sys.exit(0)

`

func (e *PythonExecutor) Execute(ctx context.Context, code string) (Result, error) {
	tmpDir, err := os.MkdirTemp("", "agentchat-exec-")
	if err != nil {
		return Result{}, fmt.Errorf("create exec dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	resultPath := filepath.Join(tmpDir, "final_answer.json")
	script := fmt.Sprintf("_RESULT_PATH = %q\n%s%s\n", resultPath, executorPrelude, code)
	scriptPath := filepath.Join(tmpDir, "step.py")
	if err := os.WriteFile(scriptPath, []byte(script), 0o600); err != nil {
		return Result{}, fmt.Errorf("write step code: %w", err)
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	python := e.Python
	if python == "" {
		python = "python3"
	}

	var output bytes.Buffer
	cmd := exec.CommandContext(execCtx, python, scriptPath)
	cmd.Dir = tmpDir
	cmd.Stdout = &output
	cmd.Stderr = &output
	runErr := cmd.Run()

	result := Result{Output: output.String()}
	result.Images = collectImages(tmpDir)
	result.Final = readAnswer(resultPath)

	// final_answer exits 0, so a surviving result file means success
	// regardless of anything stderr picked up along the way.
	if runErr != nil && result.Final == nil {
		return result, fmt.Errorf("python: %w", runErr)
	}
	return result, nil
}

// collectImages gathers PNG files the code dropped in its working
// directory, in name order for determinism.
func collectImages(dir string) [][]byte {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".png") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var images [][]byte
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil || len(data) == 0 {
			continue
		}
		images = append(images, data)
	}
	return images
}

func readAnswer(path string) *Answer {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var payload struct {
		Type    string `json:"type"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil
	}
	if payload.Type == "image" {
		img, err := base64.StdEncoding.DecodeString(payload.Content)
		if err != nil {
			return nil
		}
		return &Answer{Image: img}
	}
	return &Answer{Content: payload.Content}
}
