package parse_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/optimode/emailguard/internal/parse"
)

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"  User@Example.COM ",
		"already@normal.com",
		"\tMiXeD.Case+Tag@Sub.Domain.ORG\n",
		"",
		"用户@MÜNCHEN.de",
	}
	for _, in := range inputs {
		once := parse.Normalize(in)
		assert.Equal(t, once, parse.Normalize(once), "input %q", in)
	}
	assert.Equal(t, "user@example.com", parse.Normalize("  User@Example.COM "))
}

func TestCleanList(t *testing.T) {
	cleaned, dups := parse.CleanList([]string{
		"A@example.com",
		"a@example.com ",
		"",
		"  ",
		"b@example.com",
		"B@EXAMPLE.COM",
	})
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, cleaned)
	assert.Equal(t, 2, dups)
}
