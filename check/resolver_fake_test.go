package check_test

import (
	"context"
	"strings"
	"sync"

	"github.com/optimode/emailguard/internal/resolver"
)

// fakeResolver answers from a table keyed by "name:TYPE". Missing keys are
// definitive negatives; keys in errs fail.
type fakeResolver struct {
	mu      sync.Mutex
	answers map[string][]string
	errs    map[string]error
	queries []string
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{answers: map[string][]string{}, errs: map[string]error{}}
}

func (f *fakeResolver) set(name, rrtype string, records ...string) *fakeResolver {
	f.answers[strings.ToLower(name)+":"+rrtype] = records
	return f
}

func (f *fakeResolver) fail(name, rrtype string, err error) *fakeResolver {
	f.errs[strings.ToLower(name)+":"+rrtype] = err
	return f
}

func (f *fakeResolver) Query(_ context.Context, domain, recordType string) (resolver.Result, error) {
	key := strings.ToLower(domain) + ":" + recordType

	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, key)

	if err, ok := f.errs[key]; ok {
		return resolver.Result{}, err
	}
	records, ok := f.answers[key]
	if !ok {
		return resolver.Result{Success: false, Records: []string{}, Provider: "fake"}, nil
	}
	return resolver.Result{Success: true, Records: records, TTL: 300, Provider: "fake"}, nil
}

func (f *fakeResolver) queried(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, q := range f.queries {
		if q == key {
			return true
		}
	}
	return false
}
