package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	return New(Config{GracePeriod: time.Second})
}

// sleepMarker returns a sleep duration unique enough to find in /proc.
func sleepMarker() string {
	return fmt.Sprintf("300.0%d%d", os.Getpid(), time.Now().UnixNano()%100000)
}

// processWithArg scans the process table for a live command line containing
// marker.
func processWithArg(t *testing.T, marker string) bool {
	t.Helper()
	entries, err := os.ReadDir("/proc")
	if err != nil {
		t.Skipf("no /proc: %v", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if name[0] < '0' || name[0] > '9' {
			continue
		}
		data, err := os.ReadFile(filepath.Join("/proc", name, "cmdline"))
		if err != nil {
			continue
		}
		if strings.Contains(string(data), marker) {
			return true
		}
	}
	return false
}

// waitGone polls until no process carries marker or the deadline passes.
func waitGone(t *testing.T, marker string) bool {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !processWithArg(t, marker) {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return false
}

func TestRunCapturesOutput(t *testing.T) {
	r := newTestRunner(t)
	res := r.Run(context.Background(), Spec{
		Command: "sh",
		Args:    []string{"-c", "echo out; echo err 1>&2"},
	})
	if res.Status != StatusSuccess {
		t.Fatalf("status = %q, want success (err: %s)", res.Status, res.Err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("exit code = %d, want 0", res.ExitCode)
	}
	if res.Stdout != "out\n" {
		t.Fatalf("stdout = %q", res.Stdout)
	}
	if res.Stderr != "err\n" {
		t.Fatalf("stderr = %q", res.Stderr)
	}
	if res.Duration <= 0 {
		t.Fatalf("duration not measured")
	}
}

func TestRunDeliversStdin(t *testing.T) {
	r := newTestRunner(t)
	res := r.Run(context.Background(), Spec{
		Command: "cat",
		Stdin:   "hello stdin",
		Timeout: 10 * time.Second,
	})
	if res.Status != StatusSuccess {
		t.Fatalf("status = %q (err: %s)", res.Status, res.Err)
	}
	if res.Stdout != "hello stdin" {
		t.Fatalf("stdout = %q", res.Stdout)
	}
}

func TestRunNonZeroExit(t *testing.T) {
	r := newTestRunner(t)
	res := r.Run(context.Background(), Spec{
		Command: "sh",
		Args:    []string{"-c", "echo boom 1>&2; exit 3"},
	})
	if res.Status != StatusError {
		t.Fatalf("status = %q, want error", res.Status)
	}
	if res.ExitCode != 3 {
		t.Fatalf("exit code = %d, want 3", res.ExitCode)
	}
	if !strings.Contains(res.Stderr, "boom") {
		t.Fatalf("stderr = %q, want boom", res.Stderr)
	}
	if res.Err == "" {
		t.Fatalf("expected error detail")
	}
}

func TestRunNotFound(t *testing.T) {
	r := newTestRunner(t)
	res := r.Run(context.Background(), Spec{Command: "relay-no-such-binary"})
	if res.Status != StatusNotFound {
		t.Fatalf("status = %q, want not-found", res.Status)
	}
	if !strings.Contains(res.Err, "not found") {
		t.Fatalf("err = %q", res.Err)
	}
}

func TestRunEmptyCommand(t *testing.T) {
	r := newTestRunner(t)
	res := r.Run(context.Background(), Spec{})
	if res.Status != StatusError {
		t.Fatalf("status = %q, want error", res.Status)
	}
}

func TestRunTimeoutTerminatesProcess(t *testing.T) {
	r := newTestRunner(t)
	marker := sleepMarker()
	timeout := 200 * time.Millisecond

	start := time.Now()
	res := r.Run(context.Background(), Spec{
		Command: "sh",
		Args:    []string{"-c", "exec sleep " + marker},
		Timeout: timeout,
	})
	elapsed := time.Since(start)

	if res.Status != StatusTimeout {
		t.Fatalf("status = %q, want timeout (err: %s)", res.Status, res.Err)
	}
	// The duration must track the timeout, not the sleep length.
	if res.Duration < timeout/2 {
		t.Fatalf("duration %s implausibly short for timeout %s", res.Duration, timeout)
	}
	if elapsed > 3*time.Second {
		t.Fatalf("took %s, expected roughly the timeout", elapsed)
	}
	if !waitGone(t, marker) {
		t.Fatalf("process still running after timeout")
	}
}

func TestRunCancelTerminatesProcess(t *testing.T) {
	r := newTestRunner(t)
	marker := sleepMarker()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	res := r.Run(ctx, Spec{
		Command: "sh",
		Args:    []string{"-c", "exec sleep " + marker},
		Timeout: time.Minute,
	})
	if res.Status != StatusCancelled {
		t.Fatalf("status = %q, want cancelled (err: %s)", res.Status, res.Err)
	}
	if !waitGone(t, marker) {
		t.Fatalf("process still running after cancel")
	}
}

func TestRunNormalExitLeavesNoProcess(t *testing.T) {
	r := newTestRunner(t)
	marker := sleepMarker()
	res := r.Run(context.Background(), Spec{
		Command: "sh",
		Args:    []string{"-c", "sleep 0.1 " + "#" + marker},
	})
	if res.Status != StatusSuccess {
		t.Fatalf("status = %q (err: %s)", res.Status, res.Err)
	}
	if !waitGone(t, marker) {
		t.Fatalf("process lingered after normal exit")
	}
}

func TestRunBoundedCapture(t *testing.T) {
	r := New(Config{CaptureLimit: 1000, GracePeriod: time.Second})
	res := r.Run(context.Background(), Spec{
		Command: "sh",
		Args:    []string{"-c", "i=0; while [ $i -lt 2000 ]; do echo 0123456789; i=$((i+1)); done"},
	})
	if res.Status != StatusSuccess {
		t.Fatalf("status = %q (err: %s)", res.Status, res.Err)
	}
	if len(res.Stdout) != 1000 {
		t.Fatalf("captured %d bytes, want exactly the limit", len(res.Stdout))
	}
	if !res.StdoutTruncated {
		t.Fatalf("expected stdout truncation flag")
	}
	if res.StderrTruncated {
		t.Fatalf("stderr should not be truncated")
	}
}

func TestReapIdempotent(t *testing.T) {
	r := newTestRunner(t)

	cmd := exec.Command("true")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		r.reap(cmd)
		r.reap(cmd)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("reap hung")
	}

	// And again on a fully waited process.
	cmd2 := exec.Command("true")
	if err := cmd2.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	r.reap(cmd2)
	r.reap(cmd2)
}

func TestCaptureBuffer(t *testing.T) {
	b := newCaptureBuffer(10)
	n, err := b.Write([]byte("0123456789abcdef"))
	if err != nil || n != 16 {
		t.Fatalf("write = %d, %v", n, err)
	}
	if b.String() != "0123456789" {
		t.Fatalf("buf = %q", b.String())
	}
	if !b.Truncated() {
		t.Fatalf("expected truncation")
	}
	if _, err := b.Write([]byte("x")); err != nil {
		t.Fatalf("write after limit: %v", err)
	}
	if len(b.String()) != 10 {
		t.Fatalf("buffer grew past limit")
	}
}
