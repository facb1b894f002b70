package check_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optimode/emailguard/check"
	"github.com/optimode/emailguard/internal/parse"
)

func TestDisposableChecker(t *testing.T) {
	c := check.NewDisposableChecker("Burner.Example")

	tests := []struct {
		email string
		want  bool
	}{
		{"x@mailinator.com", true},
		{"x@sub.guerrillamail.com", true},
		{"x@burner.example", true},
		{"x@gmail.com", false},
		{"x@company.io", false},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			result := c.Check(context.Background(), parse.NewEmail(tt.email))
			assert.Equal(t, tt.want, result.IsDisposable)
			assert.NotEmpty(t, result.Message)
		})
	}

	assert.True(t, c.Check(context.Background(), parse.NewEmail("@@")).Skipped)
}

func TestRoleChecker(t *testing.T) {
	c := check.NewRoleChecker()

	tests := []struct {
		email string
		role  string
	}{
		{"admin@example.com", "admin"},
		{"Support@example.com", "support"},
		{"info.de@example.com", "info"},
		{"sales_team@example.com", "sales"},
		{"support2@example.com", "support"},
		{"noreply+list@example.com", "noreply"},
		{"john.doe@example.com", ""},
		{"administration-dept@example.com", ""},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			result := c.Check(context.Background(), parse.NewEmail(tt.email))
			if tt.role == "" {
				assert.False(t, result.IsRoleBased)
				assert.Nil(t, result.Role)
				return
			}
			assert.True(t, result.IsRoleBased)
			require.NotNil(t, result.Role)
			assert.Equal(t, tt.role, *result.Role)
		})
	}
}

func TestFreeProviderChecker(t *testing.T) {
	c := check.NewFreeProviderChecker()

	result := c.Check(context.Background(), parse.NewEmail("jane@GMAIL.com"))
	assert.True(t, result.IsFree)
	require.NotNil(t, result.Provider)
	assert.Equal(t, "Gmail", *result.Provider)

	result = c.Check(context.Background(), parse.NewEmail("jane@yahoo.co.uk"))
	assert.True(t, result.IsFree)
	assert.Equal(t, "Yahoo", *result.Provider)

	result = c.Check(context.Background(), parse.NewEmail("jane@acme.io"))
	assert.False(t, result.IsFree)
	assert.Nil(t, result.Provider)
}

func TestTypoChecker(t *testing.T) {
	c := check.NewTypoChecker(check.TypoConfig{})

	tests := []struct {
		email      string
		suggestion string
	}{
		{"john@gmial.com", "john@gmail.com"},
		{"john@gmail.con", "john@gmail.com"},
		{"john@hotmial.com", "john@hotmail.com"},
		{"john@outlookk.com", "john@outlook.com"},
		{`"john doe"@gmial.com`, `"john doe"@gmail.com`},
		{"john@gmail.com", ""},
		{"john@mail.com", ""},
		{"john@acme-corp.com", ""},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			result := c.Check(context.Background(), parse.NewEmail(tt.email))
			if tt.suggestion == "" {
				assert.False(t, result.HasTypo)
				assert.Nil(t, result.Suggestion)
				return
			}
			assert.True(t, result.HasTypo)
			require.NotNil(t, result.Suggestion)
			assert.Equal(t, tt.suggestion, *result.Suggestion)
		})
	}
}

func TestCatchAllChecker(t *testing.T) {
	c := check.NewCatchAllChecker()

	result := c.Check(context.Background(), parse.NewEmail("x@33mail.com"))
	assert.True(t, result.IsCatchAll)

	result = c.Check(context.Background(), parse.NewEmail("x@bob.33mail.com"))
	assert.True(t, result.IsCatchAll)

	result = c.Check(context.Background(), parse.NewEmail("x@catchall.example.org"))
	assert.True(t, result.IsCatchAll)
	assert.Contains(t, result.Reason, "pattern")

	result = c.Check(context.Background(), parse.NewEmail("x@example.com"))
	assert.False(t, result.IsCatchAll)
}
