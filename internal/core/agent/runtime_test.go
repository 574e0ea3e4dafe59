package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_UnsupportedRuntime(t *testing.T) {
	_, err := New("cursor", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opencode")
	assert.Contains(t, err.Error(), "claude-code")
}

func TestRuntime_ModelPrecedence(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{"explicit wins", Options{Model: "gpt-x", ModelOverride: "env-model"}, "gpt-x"},
		{"env override next", Options{ModelOverride: "env-model"}, "env-model"},
		{"builtin default last", Options{}, "minimax-coding-plan/MiniMax-M2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt, err := New(RuntimeOpenCode, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rt.Model())
		})
	}
}

func TestRuntime_CommandPrecedence(t *testing.T) {
	rt, err := New(RuntimeClaudeCode, Options{CommandOverride: "/opt/bin/claude"})
	require.NoError(t, err)
	assert.Equal(t, "/opt/bin/claude", rt.Command())

	rt, err = New(RuntimeClaudeCode, Options{})
	require.NoError(t, err)
	assert.Equal(t, "claude", rt.Command())
}

func TestRuntime_BuildInvocation(t *testing.T) {
	tests := []struct {
		name     string
		runtime  string
		opts     Options
		wantCmd  string
		wantArgs []string
	}{
		{
			name:     "opencode layout",
			runtime:  RuntimeOpenCode,
			opts:     Options{Model: "m2"},
			wantCmd:  "opencode",
			wantArgs: []string{"run", "--model", "m2"},
		},
		{
			name:     "claude-code layout",
			runtime:  RuntimeClaudeCode,
			opts:     Options{Model: "sonnet"},
			wantCmd:  "claude",
			wantArgs: []string{"code", "--model", "sonnet"},
		},
		{
			name:     "default model filled in",
			runtime:  RuntimeClaudeCode,
			opts:     Options{},
			wantCmd:  "claude",
			wantArgs: []string{"code", "--model", "claude-4.5-sonnet"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt, err := New(tt.runtime, tt.opts)
			require.NoError(t, err)

			inv := rt.BuildInvocation()
			assert.Equal(t, tt.wantCmd, inv.Command)
			assert.Equal(t, tt.wantArgs, inv.Args)
			assert.Equal(t, tt.runtime, inv.Label)
		})
	}
}

func TestRuntime_BuildInvocation_Deterministic(t *testing.T) {
	rt, err := New(RuntimeOpenCode, Options{Model: "m"})
	require.NoError(t, err)

	assert.Equal(t, rt.BuildInvocation(), rt.BuildInvocation())
}
