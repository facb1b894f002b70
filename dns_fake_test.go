package emailguard_test

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/optimode/emailguard/internal/resolver"
)

// staticDNS answers from a table keyed by "name:TYPE". Missing keys are
// definitive negatives.
type staticDNS map[string][]string

func (s staticDNS) Query(_ context.Context, domain, recordType string) (resolver.Result, error) {
	records, ok := s[strings.ToLower(domain)+":"+recordType]
	if !ok {
		return resolver.Result{Records: []string{}, Provider: "static"}, nil
	}
	return resolver.Result{Success: true, Records: records, TTL: 300, Provider: "static"}, nil
}

// recordingDNS wraps staticDNS with failures, latency and a query log.
type recordingDNS struct {
	staticDNS
	errs  map[string]error
	delay time.Duration

	mu      sync.Mutex
	queries []string
}

func newRecordingDNS(answers staticDNS) *recordingDNS {
	return &recordingDNS{staticDNS: answers, errs: map[string]error{}}
}

func (r *recordingDNS) Query(ctx context.Context, domain, recordType string) (resolver.Result, error) {
	key := strings.ToLower(domain) + ":" + recordType
	r.mu.Lock()
	r.queries = append(r.queries, key)
	r.mu.Unlock()

	if r.delay > 0 {
		select {
		case <-ctx.Done():
			return resolver.Result{}, ctx.Err()
		case <-time.After(r.delay):
		}
	}
	if err, ok := r.errs[key]; ok {
		return resolver.Result{}, err
	}
	return r.staticDNS.Query(ctx, domain, recordType)
}

func (r *recordingDNS) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queries)
}

// exampleDNS is a small world shared by the tests and examples.
func exampleDNS() staticDNS {
	return staticDNS{
		"example.com:A":     {"93.184.216.34"},
		"example.com:MX":    {"10 mx.example.com."},
		"mailinator.com:MX": {"10 mail.mailinator.com."},
		"spammy.test:A":     {"192.0.2.10"},
		"spammy.test:MX":    {"10 mx.spammy.test."},

		"10.2.0.192.zen.spamhaus.org:A": {"127.0.0.2"},
	}
}
