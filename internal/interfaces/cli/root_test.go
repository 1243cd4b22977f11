package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/rid-registry/pkg/errors"
)

// execute runs the root command with args and returns what it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestNewRootCommand_Structure(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "ridsync", cmd.Use)
	assert.NotEmpty(t, cmd.Short)

	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"ingest", "snapshot", "migrate", "serve", "listen", "version"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}

	for _, flag := range []string{"config", "log-level", "output"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "missing flag %q", flag)
	}
	assert.Equal(t, "text", cmd.PersistentFlags().Lookup("output").DefValue)
}

func TestRoot_RejectsUnknownOutputFormat(t *testing.T) {
	_, err := execute(t, "-o", "yaml", "snapshot", "list")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestRoot_MissingConfigFile(t *testing.T) {
	_, err := execute(t, "--config", "/nonexistent/ridsync.yaml", "snapshot", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config initialization failed")
}

func TestGetCLIContext_Missing(t *testing.T) {
	cmd := &cobra.Command{}
	_, err := GetCLIContext(cmd)
	assert.Error(t, err)

	cmd.SetContext(context.Background())
	_, err = GetCLIContext(cmd)
	assert.Error(t, err)
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "ridsync dev"), out)

	out, err = execute(t, "-o", "json", "version")
	require.NoError(t, err)
	assert.Contains(t, out, `"version": "dev"`)
	assert.Contains(t, out, `"go_version"`)
}

func TestFormatTable(t *testing.T) {
	out := FormatTable([]string{"ID", "NAME"}, [][]string{{"1", "Насос"}, {"22"}})
	want := "ID  NAME \n" +
		"--  -----\n" +
		"1   Насос\n" +
		"22       \n"
	assert.Equal(t, want, out)
	assert.Empty(t, FormatTable(nil, nil))
}

func TestPrintError(t *testing.T) {
	cmd := &cobra.Command{}
	var buf bytes.Buffer
	cmd.SetErr(&buf)

	PrintError(cmd, errors.InvalidParam("bad flag"))
	assert.Contains(t, buf.String(), "Error [")
	assert.Contains(t, buf.String(), "bad flag")

	buf.Reset()
	PrintError(cmd, assert.AnError)
	assert.Equal(t, "Error: "+assert.AnError.Error()+"\n", buf.String())

	buf.Reset()
	PrintError(cmd, nil)
	assert.Empty(t, buf.String())
}
