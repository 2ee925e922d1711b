package prompt

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestTerminal_Answers checks single answers, retries on unknown input and defaults.
func TestTerminal_Answers(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"y\n":         true,
		"YES\n":       true,
		"n\n":         false,
		"\n":          false,
		"maybe\ny\n":  true,
		"":            false,
		"no\n":        false,
		"  Yes  \r\n": true,
	}

	for input, want := range cases {
		var out bytes.Buffer

		confirmer := NewTerminal(strings.NewReader(input), &out, true)

		got, err := confirmer.Confirm(context.Background(), "Install Alpha?")
		require.NoError(t, err, input)
		require.Equal(t, want, got, input)
		require.Contains(t, out.String(), "Install Alpha?")
	}
}

// TestTerminal_ToAll remembers Yes to All and No to All for later questions.
func TestTerminal_ToAll(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	confirmer := NewTerminal(strings.NewReader("a\n"), &out, true)
	ctx := context.Background()

	for _, question := range []string{"Install Alpha?", "Update Beta?"} {
		confirmed, err := confirmer.Confirm(ctx, question)
		require.NoError(t, err)
		require.True(t, confirmed)
	}

	require.Equal(t, 1, strings.Count(out.String(), choices))

	confirmer = NewTerminal(strings.NewReader("l\ny\n"), &out, true)

	for i := 0; i < 2; i++ {
		confirmed, err := confirmer.Confirm(ctx, "Update Beta?")
		require.NoError(t, err)
		require.False(t, confirmed)
	}
}

// TestTerminal_NonInteractive declines without reading input.
func TestTerminal_NonInteractive(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	confirmer := NewTerminal(strings.NewReader("y\n"), &out, false)

	confirmed, err := confirmer.Confirm(context.Background(), "Install Alpha?")
	require.NoError(t, err)
	require.False(t, confirmed)
	require.Empty(t, out.String())
}

// TestTerminal_CanceledContext stops prompting.
func TestTerminal_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewTerminal(strings.NewReader("y\n"), new(bytes.Buffer), true).Confirm(ctx, "Install Alpha?")
	require.ErrorIs(t, err, context.Canceled)
}

// TestAlways returns its fixed answer.
func TestAlways(t *testing.T) {
	t.Parallel()

	confirmed, err := Always(true).Confirm(context.Background(), "Install Alpha?")
	require.NoError(t, err)
	require.True(t, confirmed)
}
