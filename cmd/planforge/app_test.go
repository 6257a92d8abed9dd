package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmdHasAllSubcommands(t *testing.T) {
	cmd := rootCmd()

	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, want := range []string{"structure", "tasks", "quality", "handson", "recommend", "serve", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestParseProjectID(t *testing.T) {
	id, err := parseProjectID("2b8e9f4c-7a61-4a0e-9f2d-3c5a1b6d8e0f")
	require.NoError(t, err)
	assert.Equal(t, "2b8e9f4c-7a61-4a0e-9f2d-3c5a1b6d8e0f", id.String())

	_, err = parseProjectID("not-a-uuid")
	require.Error(t, err)
}

func TestSubcommandsRequireProjectID(t *testing.T) {
	for _, name := range []string{"structure", "tasks", "quality", "handson", "recommend"} {
		t.Run(name, func(t *testing.T) {
			cmd := rootCmd()
			cmd.SetArgs([]string{name})
			err := cmd.Execute()
			require.Error(t, err, "%s without a project id must fail", name)
		})
	}
}
