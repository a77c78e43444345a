package probe

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"uplite/internal/domain"
)

// Grace period for ping process teardown on top of the configured timeout.
const pingGrace = 5 * time.Second

var pingTimeRE = regexp.MustCompile(`time[=<]([0-9.]+)\s*ms`)

func (p *Prober) checkPing(ctx context.Context, t domain.Target) domain.CheckResult {
	timeout := t.TimeoutDuration()
	cctx, cancel := context.WithTimeout(ctx, timeout+pingGrace)
	defer cancel()

	cmd := exec.CommandContext(cctx, "ping", pingArgs(t.Address, timeout)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	latency := msSince(start)

	if errors.Is(cctx.Err(), context.DeadlineExceeded) {
		return downResult(nil, "Ping timeout")
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = "Ping failed"
		}
		return downResult(nil, msg)
	}

	// Prefer the tool-reported round-trip time: it excludes process
	// spawn overhead. Wall clock is the fallback.
	if rtt, ok := parsePingTime(stdout.String()); ok {
		latency = rtt
	}
	return upResult(latency, "")
}

// pingArgs builds the one-packet echo invocation for the host platform.
func pingArgs(address string, timeout time.Duration) []string {
	if runtime.GOOS == "windows" {
		return []string{"-n", "1", "-w", strconv.Itoa(int(timeout.Milliseconds())), address}
	}
	secs := int(timeout.Seconds())
	if secs < 1 {
		secs = 1
	}
	return []string{"-c", "1", "-W", strconv.Itoa(secs), address}
}

// parsePingTime extracts the round-trip time from ping output, accepting
// both "time=12.3 ms" (unix) and "time=12ms" / "time<1ms" (windows).
func parsePingTime(out string) (float64, bool) {
	m := pingTimeRE.FindStringSubmatch(strings.ToLower(out))
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
