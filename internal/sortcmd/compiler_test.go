package sortcmd

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxpilot/inboxpilot/internal/inbox"
	"github.com/inboxpilot/inboxpilot/internal/nlu"
	"github.com/inboxpilot/inboxpilot/internal/schema"
	"github.com/inboxpilot/inboxpilot/internal/store"
)

type stubCapability struct {
	response json.RawMessage
	err      error
	requests []nlu.Request
}

func (s *stubCapability) ModelVersion() string { return "stub-1" }

func (s *stubCapability) Complete(ctx context.Context, req nlu.Request) (json.RawMessage, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return s.response, nil
}

func sampleEmails(n int) []*inbox.Email {
	emails := make([]*inbox.Email, 0, n)
	for i := 0; i < n; i++ {
		emails = append(emails, &inbox.Email{
			ID:         "em-" + string(rune('a'+i)),
			Subject:    "Subject",
			From:       "sender@example.com",
			ReceivedAt: time.Date(2025, 2, 10, 9, 0, 0, 0, time.UTC).Add(-time.Duration(i) * time.Hour),
		})
	}
	return emails
}

func TestCompileSupportedInstruction(t *testing.T) {
	stub := &stubCapability{response: json.RawMessage(
		`{"supported":true,"rule":{"field":"receivedAt","order":"desc"}}`,
	)}
	compiler := NewCompiler(stub, nil)

	rule, err := compiler.Compile(context.Background(), "newest first", sampleEmails(3))
	require.NoError(t, err)
	assert.Equal(t, schema.SortFieldReceivedAt, rule.Field)
	assert.Equal(t, "desc", rule.Order)
	assert.Nil(t, rule.Filter)
}

func TestCompileWithFilter(t *testing.T) {
	stub := &stubCapability{response: json.RawMessage(
		`{"supported":true,"rule":{"field":"receivedAt","order":"desc","filter":{"field":"classification","equals":"sponsorship"}}}`,
	)}
	compiler := NewCompiler(stub, nil)

	rule, err := compiler.Compile(context.Background(), "show sponsorship emails, newest first", nil)
	require.NoError(t, err)
	require.NotNil(t, rule.Filter)
	assert.Equal(t, schema.SortFieldClassification, rule.Filter.Field)
	assert.Equal(t, "sponsorship", rule.Filter.Equals)
}

func TestCompileBlankText(t *testing.T) {
	compiler := NewCompiler(&stubCapability{}, nil)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := compiler.Compile(context.Background(), text, nil)
		var verr *schema.ValidationError
		require.ErrorAs(t, err, &verr, "text %q", text)
	}
}

func TestCompileUnsupportedInstruction(t *testing.T) {
	stub := &stubCapability{response: json.RawMessage(`{"supported":false}`)}
	compiler := NewCompiler(stub, nil)

	_, err := compiler.Compile(context.Background(), "do the thing xyz123", nil)
	var unsupported *UnsupportedCommandError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "do the thing xyz123", unsupported.Text)
	assert.NotEqual(t, unsupported.Error(), unsupported.Message())
}

func TestCompileRejectsOutOfSchemaRule(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"unknown field", `{"supported":true,"rule":{"field":"priority","order":"desc"}}`},
		{"bad order", `{"supported":true,"rule":{"field":"from","order":"descending"}}`},
		{"missing rule", `{"supported":true}`},
		{"filter without equals", `{"supported":true,"rule":{"field":"from","order":"asc","filter":{"field":"read"}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubCapability{response: json.RawMessage(tt.response)}
			compiler := NewCompiler(stub, nil)

			_, err := compiler.Compile(context.Background(), "sort somehow", nil)
			var unsupported *UnsupportedCommandError
			assert.ErrorAs(t, err, &unsupported)
		})
	}
}

func TestCompileTruncatesSample(t *testing.T) {
	stub := &stubCapability{response: json.RawMessage(
		`{"supported":true,"rule":{"field":"from","order":"asc"}}`,
	)}
	compiler := NewCompiler(stub, nil)

	_, err := compiler.Compile(context.Background(), "sort by sender", sampleEmails(8))
	require.NoError(t, err)

	require.Len(t, stub.requests, 1)
	prompt := stub.requests[0].Prompt
	assert.Equal(t, SampleLimit, countLines(prompt, "- from="))
}

func TestCompilePromptExcludesBodies(t *testing.T) {
	stub := &stubCapability{response: json.RawMessage(
		`{"supported":true,"rule":{"field":"subject","order":"asc"}}`,
	)}
	compiler := NewCompiler(stub, nil)

	sample := sampleEmails(1)
	sample[0].Body = "CONFIDENTIAL CONTRACT TERMS"

	_, err := compiler.Compile(context.Background(), "sort by subject", sample)
	require.NoError(t, err)
	assert.NotContains(t, stub.requests[0].Prompt, "CONFIDENTIAL")
}

func TestCompileCompletionFailure(t *testing.T) {
	stub := &stubCapability{err: errors.New("deadline exceeded")}
	compiler := NewCompiler(stub, nil)

	_, err := compiler.Compile(context.Background(), "newest first", nil)
	require.Error(t, err)

	var unsupported *UnsupportedCommandError
	assert.False(t, errors.As(err, &unsupported))
}

func TestCompileForTenantLoadsRecentSample(t *testing.T) {
	ns := store.NewMemoryStore().Namespace("u1")
	for i, id := range []string{"em-old", "em-new"} {
		_, err := ns.Merge(context.Background(), store.CollectionEmails, id, store.Fields{
			inbox.FieldSubject:    "Subject " + id,
			inbox.FieldFrom:       "sender@example.com",
			inbox.FieldReceivedAt: time.Date(2025, 2, 10+i, 9, 0, 0, 0, time.UTC).Format(time.RFC3339),
		})
		require.NoError(t, err)
	}

	stub := &stubCapability{response: json.RawMessage(
		`{"supported":true,"rule":{"field":"receivedAt","order":"desc"}}`,
	)}
	compiler := NewCompiler(stub, nil)

	_, err := compiler.CompileForTenant(context.Background(), ns, "newest first")
	require.NoError(t, err)

	prompt := stub.requests[0].Prompt
	assert.Contains(t, prompt, "Subject em-new")
	assert.Contains(t, prompt, "Subject em-old")
}

func countLines(s, prefix string) int {
	count := 0
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(line, prefix) {
			count++
		}
	}
	return count
}
