package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ARIHARAN-KC/nexa/internal/stage"
)

func TestParseDecisions(t *testing.T) {
	got, err := ParseDecisions("```json\n[{\"function\":\"coding_project\",\"args\":{\"lang\":\"go\"},\"reply\":\"On it\"}]\n```")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, FunctionProject, got[0].Function)
	assert.Equal(t, "On it", got[0].Reply)
	assert.Equal(t, map[string]any{"lang": "go"}, got[0].Args)
}

func TestParseDecisions_Invalid(t *testing.T) {
	cases := map[string]string{
		"prose":          "I think this is a project.",
		"object":         `{"function":"coding_project","args":{},"reply":"x"}`,
		"empty array":    `[]`,
		"missing reply":  `[{"function":"coding_project","args":{}}]`,
		"missing args":   `[{"function":"coding_project","reply":"x"}]`,
		"args is list":   `[{"function":"coding_project","args":[],"reply":"x"}]`,
		"args is null":   `[{"function":"coding_project","args":null,"reply":"x"}]`,
		"second invalid": `[{"function":"a","args":{},"reply":"x"},{"function":"b","reply":"y"}]`,
	}
	for name, reply := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDecisions(reply)
			assert.ErrorIs(t, err, stage.ErrMalformed)
		})
	}
}

func TestDecisionTaker_RetriesThenSucceeds(t *testing.T) {
	c := script("not json", `[{"function":"ordinary_conversation","args":{},"reply":"Hi there"}]`)
	got, err := NewDecisionTaker(c, Options{}).Run(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, FunctionConversation, got[0].Function)
	assert.Equal(t, "Hi there", got[0].Reply)
	assert.Equal(t, 2, c.calls())
	assert.Contains(t, c.prompts[0], "hello")
}

func TestDecisionTaker_ExhaustionIsFatal(t *testing.T) {
	c := script("nope")
	_, err := NewDecisionTaker(c, Options{}).Run(context.Background(), "hello")
	require.ErrorIs(t, err, stage.ErrExhausted)
	assert.Equal(t, DecisionAttempts, c.calls())
}

func TestDecisionTaker_ProviderErrorPropagates(t *testing.T) {
	boom := errors.New("connection refused")
	c := &scriptedClient{err: boom}
	_, err := NewDecisionTaker(c, Options{}).Run(context.Background(), "hello")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, c.calls())
}
