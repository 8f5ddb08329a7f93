package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunDispatch(t *testing.T) {
	var out, errOut bytes.Buffer

	require.Equal(t, 0, Run([]string{"bridge", "help"}, &out, &errOut))
	require.Contains(t, out.String(), "query")
	require.Contains(t, out.String(), "migrate")

	out.Reset()
	require.Equal(t, 2, Run([]string{"bridge"}, &out, &errOut))

	errOut.Reset()
	require.Equal(t, 2, Run([]string{"bridge", "frobnicate"}, &out, &errOut))
	require.Contains(t, errOut.String(), "Unknown command")
}

func TestRegisterRequiresFlags(t *testing.T) {
	var out, errOut bytes.Buffer
	require.Equal(t, 2, runRegisterCmd(nil, &out, &errOut))
	require.Contains(t, errOut.String(), "usage")
}

func TestReplayRequiresFlags(t *testing.T) {
	var out, errOut bytes.Buffer
	require.Equal(t, 2, runReplayCmd(nil, &out, &errOut))
	require.Contains(t, errOut.String(), "usage")

	errOut.Reset()
	args := []string{"--tenant", "GSG", "--type", "CSR_INGESTED",
		"--topic", "t", "--from", "not-a-time"}
	require.Equal(t, 2, runReplayCmd(args, &out, &errOut))
	require.Contains(t, errOut.String(), "--from")
}
