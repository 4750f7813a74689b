// Package checker performs single-domain availability probes: a cheap DNS
// A-record query first, then WHOIS as the slower disambiguator. Each phase is
// bounded by its own timeout. DNS queries go through miekg/dns, WHOIS through
// likexian/whois.
package checker

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/likexian/whois"
	"github.com/miekg/dns"
	"golang.org/x/net/idna"
	"golang.org/x/sync/errgroup"

	"github.com/namescout/namescout/internal/domainutil"
	"github.com/namescout/namescout/internal/metrics"
	"github.com/namescout/namescout/internal/models"
)

// freeKeywords indicate an unregistered domain in WHOIS output. Ordered and
// scanned before registeredKeywords so cheap "free" signals short-circuit the
// longer registered list on parked domains.
var freeKeywords = []string{
	"no match",
	"not found",
	"no entries found",
	"domain you requested is not known",
	"status: available",
	"available for purchase",
	"status: free",
	"the queried object does not exist",
	"no data found",
}

// registeredKeywords indicate a registered domain in WHOIS output.
var registeredKeywords = []string{
	"domain name:",
	"registrar:",
	"domain status:",
	"creation date:",
	"expiry date:",
	"nameserver:",
	"name server:",
	"redacted for privacy",
}

type dnsOutcome int

const (
	dnsResolved dnsOutcome = iota // answer present, domain is in use
	dnsMissed                     // no such host, fall through to WHOIS
	dnsTimeout                    // resolver did not answer in time
)

// Checker runs bounded DNS+WHOIS probes. The resolve and whoisLookup funcs are
// injectable for tests; production wiring uses miekg/dns and likexian/whois.
type Checker struct {
	timeout     time.Duration
	dnsServer   string
	resolve     func(ctx context.Context, fqdn string) dnsOutcome
	whoisLookup func(ctx context.Context, fqdn string) (string, error)
}

// New creates a checker probing the given DNS server with the per-phase timeout.
func New(dnsServer string, timeout time.Duration) *Checker {
	c := &Checker{timeout: timeout, dnsServer: dnsServer}
	c.resolve = c.resolveA
	c.whoisLookup = c.whoisQuery
	return c
}

// Check probes a single domain and returns its 4-valued worker status.
func (c *Checker) Check(ctx context.Context, domain string) models.WorkerStatus {
	fqdn := domainutil.Normalize(domain)

	ascii, err := idna.Lookup.ToASCII(fqdn)
	if err != nil {
		// The validator filters these upstream; reaching here means a recheck
		// of a legacy record or a direct status query.
		return models.StatusInvalid
	}

	start := time.Now()
	status := c.check(ctx, ascii)
	metrics.CheckDuration.Observe(time.Since(start).Seconds())
	metrics.ChecksTotal.WithLabelValues(string(status)).Inc()
	return status
}

func (c *Checker) check(ctx context.Context, fqdn string) models.WorkerStatus {
	switch c.resolve(ctx, fqdn) {
	case dnsResolved:
		return models.StatusRegistered
	case dnsTimeout:
		return models.StatusNonConclusive
	case dnsMissed:
		// fall through to WHOIS
	}

	// Scan whatever output came back even on lookup error: a timed-out WHOIS
	// query may still have produced enough partial text to classify.
	output, _ := c.whoisLookup(ctx, fqdn)
	lowered := strings.ToLower(output)
	if containsAny(lowered, freeKeywords) {
		return models.StatusFree
	}
	if containsAny(lowered, registeredKeywords) {
		return models.StatusRegistered
	}
	return models.StatusNonConclusive
}

// resolveA issues a recursive A query against the configured resolver.
func (c *Checker) resolveA(ctx context.Context, fqdn string) dnsOutcome {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(fqdn), dns.TypeA)
	msg.RecursionDesired = true

	client := &dns.Client{Timeout: c.timeout}
	resp, _, err := client.ExchangeContext(ctx, msg, c.dnsServer)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return dnsTimeout
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return dnsTimeout
		}
		// Resolver unreachable behaves like a timeout: no signal either way.
		return dnsTimeout
	}

	if resp.Rcode == dns.RcodeSuccess && len(resp.Answer) > 0 {
		return dnsResolved
	}
	// NXDOMAIN, or NOERROR without A records, or SERVFAIL: no positive signal,
	// let WHOIS disambiguate.
	return dnsMissed
}

// whoisQuery delegates the port-43 conversation (server discovery, referral
// following) to likexian/whois with the phase timeout.
func (c *Checker) whoisQuery(_ context.Context, fqdn string) (string, error) {
	client := whois.NewClient()
	client.SetTimeout(c.timeout)
	return client.Whois(fqdn)
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// CheckAll probes a batch of domains with bounded concurrency. Used by the
// recheck job handler; single-domain check jobs go through Check directly.
func (c *Checker) CheckAll(ctx context.Context, domains []string, maxConcurrent int) []models.CheckResult {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	results := make([]models.CheckResult, len(domains))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)

	for i, d := range domains {
		i, d := i, d
		g.Go(func() error {
			results[i] = models.CheckResult{
				Domain: domainutil.Normalize(d),
				Status: c.Check(gctx, d),
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}
