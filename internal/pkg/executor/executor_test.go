package executor

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
)

func TestExecuteSuccess(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	out, err := New().Execute(context.Background(), "sh", "-c", "printf hello")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out != "hello" {
		t.Errorf("stdout = %q, want %q", out, "hello")
	}
}

func TestExecuteCapturesStderr(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	_, err := New().Execute(context.Background(), "sh", "-c", "echo 'Invalid data found' >&2; exit 1")
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}

	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("error type = %T, want *CommandError", err)
	}
	if cmdErr.Stderr != "Invalid data found" {
		t.Errorf("Stderr = %q", cmdErr.Stderr)
	}
	if !strings.Contains(err.Error(), "stderr: Invalid data found") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestExecuteMissingBinary(t *testing.T) {
	_, err := New().Execute(context.Background(), "definitely-not-a-real-binary-xyz")
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
}
