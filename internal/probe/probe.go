package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"uplite/internal/domain"
)

// Checker performs a single liveness check for a target. Implementations
// never return an error: every failure mode is folded into the result's
// status and error text.
type Checker interface {
	Check(ctx context.Context, t domain.Target) domain.CheckResult
}

// Prober dispatches on the target's protocol kind. One instance is shared
// by all checks; per-target deadlines come from the context and the
// target's configured timeout.
type Prober struct {
	client *http.Client
}

func New() *Prober {
	return &Prober{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				// Self-signed certificates are common on monitored
				// intranet targets.
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
	}
}

func (p *Prober) Check(ctx context.Context, t domain.Target) domain.CheckResult {
	switch t.Kind {
	case domain.KindHTTP:
		return p.checkHTTP(ctx, t)
	case domain.KindPing:
		return p.checkPing(ctx, t)
	case domain.KindTCP:
		return p.checkTCP(ctx, t, t.Port)
	case domain.KindDatabase:
		return p.checkDatabase(ctx, t)
	default:
		return unknownResult(fmt.Sprintf("unknown connection type: %s", t.Kind))
	}
}

func upResult(latencyMS float64, note string) domain.CheckResult {
	return domain.CheckResult{
		Status:       domain.StatusUp,
		ResponseTime: &latencyMS,
		Err:          note,
		CheckedAt:    time.Now().UTC(),
	}
}

func downResult(latencyMS *float64, msg string) domain.CheckResult {
	return domain.CheckResult{
		Status:       domain.StatusDown,
		ResponseTime: latencyMS,
		Err:          msg,
		CheckedAt:    time.Now().UTC(),
	}
}

func unknownResult(msg string) domain.CheckResult {
	return domain.CheckResult{
		Status:    domain.StatusUnknown,
		Err:       msg,
		CheckedAt: time.Now().UTC(),
	}
}

func msSince(start time.Time) float64 {
	return time.Since(start).Seconds() * 1000
}
