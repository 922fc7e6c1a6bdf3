package proc

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHelperProcess is re-executed as a child by the tests below.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("PROC_WANT_HELPER") != "1" {
		return
	}
	fmt.Fprint(os.Stdout, "out:"+os.Getenv("PROC_HELPER_VALUE"))
	fmt.Fprint(os.Stderr, "err")
	if os.Getenv("PROC_HELPER_SLEEP") == "1" {
		time.Sleep(10 * time.Second)
	}
	code, _ := strconv.Atoi(os.Getenv("PROC_HELPER_EXIT"))
	os.Exit(code)
}

func helperCommand(exit int) Command {
	return Command{
		Path: os.Args[0],
		Args: []string{"-test.run=TestHelperProcess"},
		Env: Environ(os.Environ(), map[string]string{
			"PROC_WANT_HELPER":  "1",
			"PROC_HELPER_EXIT":  strconv.Itoa(exit),
			"PROC_HELPER_VALUE": "hello world",
		}),
	}
}

func TestExecRunnerSuccess(t *testing.T) {
	res, err := NewExecRunner(nil).Run(context.Background(), helperCommand(0))
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.Equal(t, "out:hello world", res.Stdout)
	assert.Equal(t, "err", res.Stderr)
}

func TestExecRunnerNonZeroExit(t *testing.T) {
	res, err := NewExecRunner(nil).Run(context.Background(), helperCommand(3))
	require.NoError(t, err)
	assert.True(t, res.Ran)
	assert.False(t, res.Success())
	assert.Equal(t, 3, res.ExitCode)
}

func TestExecRunnerMissingBinary(t *testing.T) {
	res, err := NewExecRunner(nil).Run(context.Background(), Command{Path: "/nonexistent/matforge-binary"})
	assert.Error(t, err)
	assert.False(t, res.Ran)
	assert.False(t, res.Terminated)
}

func TestExecRunnerKilledByContext(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("exit status does not distinguish signals")
	}
	cmd := helperCommand(0)
	cmd.Env = append(cmd.Env, "PROC_HELPER_SLEEP=1")
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	res, err := NewExecRunner(nil).Run(ctx, cmd)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, res.Ran)
	assert.True(t, res.Terminated)
}

func TestEnviron(t *testing.T) {
	base := []string{"PATH=/usr/bin", "PYTHONPATH=/host/lib", "HOME=/home/u"}
	got := Environ(base, map[string]string{"PATH": "/env/bin:/usr/bin", "VIRTUAL_ENV": "/env"}, "PYTHONPATH")
	assert.Equal(t, []string{"HOME=/home/u", "PATH=/env/bin:/usr/bin", "VIRTUAL_ENV=/env"}, got)
}

func TestExitStatus(t *testing.T) {
	assert.Equal(t, 0, ExitStatus(nil))
	assert.Equal(t, 1, ExitStatus(fmt.Errorf("boom")))
	assert.True(t, CmdRan(nil))
	assert.False(t, CmdRan(fmt.Errorf("boom")))
	assert.False(t, Terminated(fmt.Errorf("boom")))
	assert.False(t, Terminated(nil))
}
