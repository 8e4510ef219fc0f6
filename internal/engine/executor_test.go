package engine

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func requirePython(t *testing.T) string {
	t.Helper()
	python, err := exec.LookPath("python3")
	if err != nil {
		t.Skip("python3 not available")
	}
	return python
}

func TestPythonExecutorCapturesOutput(t *testing.T) {
	python := requirePython(t)
	executor := &PythonExecutor{Python: python}

	result, err := executor.Execute(context.Background(), "print('hello from step')")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(result.Output, "hello from step") {
		t.Fatalf("stdout not captured: %q", result.Output)
	}
	if result.Final != nil {
		t.Fatalf("no final answer expected")
	}
}

func TestPythonExecutorFinalAnswer(t *testing.T) {
	python := requirePython(t)
	executor := &PythonExecutor{Python: python}

	result, err := executor.Execute(context.Background(), "final_answer(6 * 7)")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Final == nil || result.Final.Content != "42" {
		t.Fatalf("unexpected final answer: %+v", result.Final)
	}
}

func TestPythonExecutorImageFinalAnswer(t *testing.T) {
	python := requirePython(t)
	executor := &PythonExecutor{Python: python}

	result, err := executor.Execute(context.Background(),
		"final_answer(bytes([0x89]) + b'PNG\\r\\n\\x1a\\n' + bytes(4))")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Final == nil || len(result.Final.Image) == 0 {
		t.Fatalf("expected image answer: %+v", result.Final)
	}
}

func TestPythonExecutorCollectsSavedImages(t *testing.T) {
	python := requirePython(t)
	executor := &PythonExecutor{Python: python}

	code := "with open('plot.png', 'wb') as fh:\n" +
		"    fh.write(bytes([0x89]) + b'PNG\\r\\n\\x1a\\n' + bytes(8))\n" +
		"print('saved')"
	result, err := executor.Execute(context.Background(), code)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(result.Images) != 1 {
		t.Fatalf("expected 1 captured image, got %d", len(result.Images))
	}
}

func TestPythonExecutorReportsFailure(t *testing.T) {
	python := requirePython(t)
	executor := &PythonExecutor{Python: python}

	result, err := executor.Execute(context.Background(), "raise RuntimeError('boom')")
	if err == nil {
		t.Fatalf("expected execution error")
	}
	if !strings.Contains(result.Output, "boom") {
		t.Fatalf("traceback not captured: %q", result.Output)
	}
}

func TestPythonExecutorTimeout(t *testing.T) {
	python := requirePython(t)
	executor := &PythonExecutor{Python: python, Timeout: 200 * time.Millisecond}

	_, err := executor.Execute(context.Background(), "import time\ntime.sleep(10)")
	if err == nil {
		t.Fatalf("expected timeout error")
	}
}
