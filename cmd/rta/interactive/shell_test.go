package interactive

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/georgejecook/roku-test-automation/cmd/rta/commands"
)

func TestSplitLine(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"   ", nil},
		{"get global stringValue", []string{"get", "global", "stringValue"}},
		{`set global user '{"name": "bob"}'`, []string{"set", "global", "user", `{"name": "bob"}`}},
		{`text "hello world"`, []string{"text", "hello world"}},
	}
	for _, tt := range tests {
		got, err := splitLine(tt.in)
		require.NoError(t, err, tt.in)
		if len(tt.want) == 0 {
			assert.Empty(t, got, tt.in)
			continue
		}
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := splitLine(`set global user '{"name"`)
	assert.Error(t, err)
}

func newTestShell(status func() string) (*Shell, *bytes.Buffer) {
	var out bytes.Buffer
	return &Shell{env: &commands.Env{Out: &out}, status: status}, &out
}

func TestExec(t *testing.T) {
	ctx := context.Background()

	t.Run("Help", func(t *testing.T) {
		s, out := newTestShell(nil)
		assert.True(t, s.Exec(ctx, "help"))
		for _, c := range commands.All() {
			assert.Contains(t, out.String(), c.Name)
		}
	})

	t.Run("Status", func(t *testing.T) {
		s, out := newTestShell(func() string { return "CONNECTED" })
		assert.True(t, s.Exec(ctx, "status"))
		assert.Contains(t, out.String(), "CONNECTED")
	})

	t.Run("Quit", func(t *testing.T) {
		s, _ := newTestShell(nil)
		assert.False(t, s.Exec(ctx, "quit"))
		assert.False(t, s.Exec(ctx, "EXIT"))
	})

	t.Run("Empty", func(t *testing.T) {
		s, out := newTestShell(nil)
		assert.True(t, s.Exec(ctx, "  "))
		assert.Empty(t, out.String())
	})

	t.Run("Unknown", func(t *testing.T) {
		s, out := newTestShell(nil)
		assert.True(t, s.Exec(ctx, "frobnicate"))
		assert.Contains(t, out.String(), "Unknown command: frobnicate")
	})

	t.Run("Usage", func(t *testing.T) {
		s, out := newTestShell(nil)
		assert.True(t, s.Exec(ctx, "get"))
		assert.Contains(t, out.String(), "Error: usage")
	})

	t.Run("UnterminatedQuote", func(t *testing.T) {
		s, out := newTestShell(nil)
		assert.True(t, s.Exec(ctx, `text "abc`))
		assert.Contains(t, out.String(), "Error:")
	})
}
