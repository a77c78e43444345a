package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"uplite/internal/domain"
)

// checkTCP opens one connection to (address, port) within the target's
// timeout. A refused connect still reports the elapsed time up to the
// failure; timeouts and DNS errors report no latency.
func (p *Prober) checkTCP(ctx context.Context, t domain.Target, port int) domain.CheckResult {
	if port <= 0 {
		port = 80
	}
	cctx, cancel := context.WithTimeout(ctx, t.TimeoutDuration())
	defer cancel()

	var d net.Dialer
	start := time.Now()
	conn, err := d.DialContext(cctx, "tcp", net.JoinHostPort(t.Address, strconv.Itoa(port)))
	latency := msSince(start)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			return downResult(nil, fmt.Sprintf("DNS resolution failed: %s", dnsErr.Err))
		}
		var nerr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
			return downResult(nil, "Connection timeout")
		}
		return downResult(&latency, fmt.Sprintf("Connection failed: %v", err))
	}
	conn.Close()
	return upResult(latency, "")
}

func (p *Prober) checkDatabase(ctx context.Context, t domain.Target) domain.CheckResult {
	port := t.Port
	if port <= 0 {
		port = defaultDatabasePort(t.Address)
	}
	return p.checkTCP(ctx, t, port)
}

// defaultDatabasePort infers a well-known port from the address when none
// is configured.
func defaultDatabasePort(address string) int {
	a := strings.ToLower(address)
	switch {
	case strings.Contains(a, "mysql"):
		return 3306
	case strings.Contains(a, "postgres"):
		return 5432
	case strings.Contains(a, "redis"):
		return 6379
	case strings.Contains(a, "mongodb"):
		return 27017
	default:
		return 3306
	}
}
