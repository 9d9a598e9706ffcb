package supervisor

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vllmd-project/launcher/pkg/api"
	"github.com/vllmd-project/launcher/pkg/gpu"
)

// TestMain lets this test binary also act as the fake "worker" process, the
// same re-exec idiom used by the standard library's os/exec tests
// (GO_WANT_HELPER_PROCESS=1): when that env var is set, the binary behaves
// according to HELPER_MODE instead of running the test suite.
func TestMain(m *testing.M) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") == "1" {
		runHelperProcess()
		return
	}
	os.Exit(m.Run())
}

func runHelperProcess() {
	switch os.Getenv("HELPER_MODE") {
	case "exit0":
		fmt.Println("hello from worker")
		os.Exit(0)
	case "ignore-term":
		signal.Ignore(syscall.SIGTERM)
		fmt.Println("ignoring sigterm")
		time.Sleep(5 * time.Second)
		os.Exit(0)
	default: // "sleep"
		fmt.Println("worker up")
		time.Sleep(5 * time.Second)
		os.Exit(0)
	}
}

func init() {
	WorkerBin = os.Args[0]
}

func helperConfig(mode string) api.VllmConfig {
	return api.VllmConfig{
		Options: "-helper",
		EnvVars: map[string]string{
			"GO_WANT_HELPER_PROCESS": "1",
			"HELPER_MODE":            mode,
		},
	}
}

func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	dir := t.TempDir()
	return New("test-instance", dir, gpu.New(), 0)
}

func TestStartAndStatusRunning(t *testing.T) {
	sup := newTestSupervisor(t)
	res, err := sup.Start(helperConfig("sleep"))
	require.NoError(t, err)
	require.Equal(t, api.StatusStarted, res.Status)
	require.NotZero(t, res.PID)

	status := sup.GetStatus()
	require.Equal(t, api.StateRunning, status.Status)
	require.Equal(t, res.PID, status.PID)

	stopRes, err := sup.Stop(2 * time.Second)
	require.NoError(t, err)
	require.Equal(t, api.StatusTerminated, stopRes.Status)
	require.Equal(t, res.PID, stopRes.PID)
}

func TestStartTwiceReturnsAlreadyRunning(t *testing.T) {
	sup := newTestSupervisor(t)
	_, err := sup.Start(helperConfig("sleep"))
	require.NoError(t, err)
	defer sup.Stop(time.Second)

	res, err := sup.Start(helperConfig("sleep"))
	require.NoError(t, err)
	require.Equal(t, api.StatusAlreadyRunning, res.Status)
}

func TestStopNeverStarted(t *testing.T) {
	sup := newTestSupervisor(t)
	res, err := sup.Stop(time.Second)
	require.NoError(t, err)
	require.Equal(t, api.StatusNotRunning, res.Status)
}

func TestForcedKillEscalation(t *testing.T) {
	sup := newTestSupervisor(t)
	res, err := sup.Start(helperConfig("ignore-term"))
	require.NoError(t, err)

	start := time.Now()
	stopRes, err := sup.Stop(200 * time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, api.StatusTerminated, stopRes.Status)
	require.Equal(t, res.PID, stopRes.PID)
	require.Less(t, time.Since(start), 4*time.Second, "escalation must not wait for the full sleep")
}

func TestChildExitsOnItsOwnReportsStopped(t *testing.T) {
	sup := newTestSupervisor(t)
	_, err := sup.Start(helperConfig("exit0"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return sup.GetStatus().Status == api.StateStopped
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUnknownGPUUUIDFailsStart(t *testing.T) {
	fake := gpu.New() // no GPUs enumerated in test environment
	sup := New("test-instance", t.TempDir(), fake, 0)

	cfg := helperConfig("exit0")
	cfg.GPUUUIDs = []string{"GPU-1"}
	_, err := sup.Start(cfg)
	require.Error(t, err, "unresolvable UUID must fail instance creation")
}

func TestLogFileRemovedAfterStop(t *testing.T) {
	dir := t.TempDir()
	sup := New("test-instance", dir, gpu.New(), 0)
	_, err := sup.Start(helperConfig("exit0"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return sup.GetStatus().Status == api.StateStopped
	}, 2*time.Second, 10*time.Millisecond)

	_, err = sup.Stop(time.Second)
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(dir, "test-instance.log"))
	require.True(t, os.IsNotExist(statErr))
}
