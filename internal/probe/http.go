package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"uplite/internal/domain"
)

var probeHeaders = map[string]string{
	"User-Agent":    "UpLite-Monitor/1.0 (Connection Monitor)",
	"Accept":        "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Cache-Control": "no-cache",
}

func (p *Prober) checkHTTP(ctx context.Context, t domain.Target) domain.CheckResult {
	target, err := normalizeURL(t.Address, t.Port)
	if err != nil {
		return downResult(nil, err.Error())
	}

	cctx, cancel := context.WithTimeout(ctx, t.TimeoutDuration())
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodGet, target, nil)
	if err != nil {
		return downResult(nil, err.Error())
	}
	for k, v := range probeHeaders {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	latency := msSince(start)
	if err != nil {
		return downResult(nil, transportError(err))
	}
	defer resp.Body.Close()

	// 401/403 mean the service answered; a gated service still counts
	// as alive.
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return upResult(latency, "Service up (authentication required)")
	case resp.StatusCode == http.StatusForbidden:
		return upResult(latency, "Service up (access forbidden but responsive)")
	case resp.StatusCode < 400:
		return upResult(latency, "")
	default:
		msg := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		return downResult(&latency, msg)
	}
}

// normalizeURL ensures the address carries a scheme (default http) and,
// when a port is configured and not already embedded, injects it into the
// host part without disturbing credentials.
func normalizeURL(address string, port int) (string, error) {
	if !strings.HasPrefix(address, "http://") && !strings.HasPrefix(address, "https://") {
		address = "http://" + address
	}
	u, err := url.Parse(address)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", address, err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("invalid URL %q: missing host", address)
	}
	if port > 0 && u.Port() == "" {
		// Hostname strips IPv6 brackets so JoinHostPort can re-add them;
		// u.Host never includes userinfo, so credentials survive.
		u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(port))
	}
	return u.String(), nil
}

func transportError(err error) string {
	var nerr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
		return "Connection timeout"
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return "Connection refused"
	}
	// Unwrap the url.Error envelope so the stored message is the
	// underlying transport failure.
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err.Error()
	}
	return err.Error()
}
