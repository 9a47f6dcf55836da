package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "run", "poll", "migrate", "retry-failed", "notify"}, names)
}

func TestPollRequiresSessionID(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"poll"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn"} {
		l, err := newLogger(level)
		require.NoError(t, err, level)
		assert.NotNil(t, l)
	}
	_, err := newLogger("loud")
	assert.Error(t, err)
}
