// Package testutil provides helpers shared by the dispatch gateway's test
// suites: deterministic port allocation and fake agent-CLI scripts standing
// in for codex/claude/gemini.
package testutil

import (
	"fmt"
	"hash/fnv"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// AllocateTestPort returns a deterministic port based on the test name.
func AllocateTestPort(t *testing.T) int {
	t.Helper()
	return AllocateTestPortN(t, 0)
}

// AllocateTestPortN returns a deterministic port based on test name and
// index. Use different index values to get multiple unique ports within the
// same test.
func AllocateTestPortN(t *testing.T, n int) int {
	t.Helper()
	h := fnv.New32a()
	h.Write([]byte(t.Name()))
	h.Write([]byte{byte(n)})
	return 20000 + int(h.Sum32()%10000)
}

// WaitForHealthy waits for a URL to return 200 OK.
func WaitForHealthy(t *testing.T, url string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: 500 * time.Millisecond}

	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil && resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			return
		}
		if resp != nil {
			resp.Body.Close()
		}
		time.Sleep(50 * time.Millisecond)
	}

	t.Fatalf("service at %s did not become healthy within %v", url, timeout)
}

// Eventually retries a condition until it returns true or timeout expires.
func Eventually(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("condition did not become true within timeout")
}

// WriteFakeAgentBinary writes an executable shell script to dir/name that
// echoes output and exits with exitCode, simulating codex/claude/gemini's
// argv contract (last positional argument is the prompt, ignored by the
// stub). Returns the script's path.
func WriteFakeAgentBinary(t *testing.T, dir, name, output string, exitCode int, sleep time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	script := fmt.Sprintf("#!/bin/sh\n")
	if sleep > 0 {
		script += fmt.Sprintf("sleep %.3f\n", sleep.Seconds())
	}
	script += fmt.Sprintf("printf '%%s' %q\n", output)
	script += fmt.Sprintf("exit %d\n", exitCode)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("writing fake agent binary: %v", err)
	}
	return path
}

// WriteSigtermResponsiveAgentBinary writes an executable shell script that
// installs no TERM trap, so the default disposition kills it immediately
// when the process group is signaled. Used to exercise the prompt-exit
// cancellation path, as distinct from WriteHangingAgentBinary's
// SIGKILL-escalation path.
func WriteSigtermResponsiveAgentBinary(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\nsleep 30\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("writing sigterm-responsive agent binary: %v", err)
	}
	return path
}

// WriteHangingAgentBinary writes an executable shell script that ignores
// SIGTERM and sleeps for 30 seconds, used to exercise the supervisor's
// SIGKILL escalation after a cancel's grace window.
func WriteHangingAgentBinary(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\ntrap '' TERM\nsleep 30\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("writing hanging agent binary: %v", err)
	}
	return path
}
