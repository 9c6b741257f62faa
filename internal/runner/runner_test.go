package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigkaa/goartstore/pdfvault/internal/domain/fault"
)

func testRunner(timeout time.Duration) *ExecRunner {
	return NewExecRunner(timeout, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh недоступен")
	}
}

func TestRun_Success(t *testing.T) {
	requireShell(t)
	r := testRunner(5 * time.Second)

	err := r.Run(context.Background(), Command{Tool: "sanitize", Binary: "sh", Args: []string{"-c", "echo ok"}})
	assert.NoError(t, err)
}

func TestRun_NonZeroExit(t *testing.T) {
	requireShell(t)
	r := testRunner(5 * time.Second)

	err := r.Run(context.Background(), Command{
		Tool:   "encrypt",
		Binary: "sh",
		Args:   []string{"-c", "echo 'bad password' >&2; exit 3"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, fault.ErrToolFailure))

	var fe *fault.Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "encrypt", fe.Stage)
	assert.Equal(t, 3, fe.ExitCode)
	assert.Contains(t, fe.Message, "bad password")
}

func TestRun_Timeout(t *testing.T) {
	requireShell(t)
	r := testRunner(100 * time.Millisecond)

	start := time.Now()
	err := r.Run(context.Background(), Command{Tool: "sanitize", Binary: "sh", Args: []string{"-c", "exec sleep 5"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, fault.ErrToolFailure))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 4*time.Second, "процесс должен быть убит по таймауту")
}

func TestRun_MissingBinary(t *testing.T) {
	r := testRunner(time.Second)

	err := r.Run(context.Background(), Command{Tool: "metadata", Binary: "/nonexistent/exiftool-pv"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, fault.ErrToolFailure))
}

func TestStderrTail(t *testing.T) {
	assert.Equal(t, "short", StderrTail("  short\n"))

	long := strings.Repeat("a", 600) + "END"
	tail := StderrTail(long)
	assert.Len(t, tail, MaxStderrTail)
	assert.True(t, strings.HasSuffix(tail, "END"))

	// кириллица занимает 2 байта: хвост не должен начинаться с обрывка символа
	cyr := strings.Repeat("я", 400)
	tail = StderrTail(cyr)
	assert.LessOrEqual(t, len(tail), MaxStderrTail)
	assert.True(t, strings.HasPrefix(tail, "я"))
}
