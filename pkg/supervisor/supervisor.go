// Package supervisor implements the InstanceSupervisor state machine from
// spec.md §4.4: spawn, liveness, graceful-then-forceful stop, and log-file
// lifecycle for one child worker process.
//
// Process-group handling is grounded on the gitpod supervisor
// (components/supervisor/pkg/supervisor/supervisor.go, prepareIDELaunch/
// terminateProcess) and gVisor's runsc command wrapper
// (pkg/shim/v1/runsccmd/runsc.go): the child is started in its own process
// group via SysProcAttr.Setpgid, and escalation signals the negated PID.
package supervisor

import (
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/procfs"

	"github.com/vllmd-project/launcher/pkg/api"
	"github.com/vllmd-project/launcher/pkg/gpu"
	"github.com/vllmd-project/launcher/pkg/logfile"
	"github.com/vllmd-project/launcher/pkg/logging"
)

// DefaultStopTimeout is the graceful-shutdown window from spec.md §4.4.
const DefaultStopTimeout = 10 * time.Second

// WorkerBin is the entrypoint executable invoked for every instance, the Go
// equivalent of the source's `vllm.entrypoints.openai.api_server` launch.
// It is configurable so tests can substitute a fake worker script.
var WorkerBin = "vllm"

// Supervisor manages the lifecycle of a single child worker process.
type Supervisor struct {
	ID         string
	LogDir     string
	Translator *gpu.Translator

	mu      sync.Mutex
	config  api.VllmConfig
	cmd     *exec.Cmd
	pid     int
	pidSeen bool
	state   api.State
	log     *logfile.LogFile
	exited  chan struct{} // closed once the wait goroutine observes exit
}

// New returns a NotStarted supervisor for instance id, owning the log file
// at <logDir>/<id>.log. maxLogBytes caps a single ranged log read
// (spec.md §4.2); a value <= 0 falls back to logfile.MaxResponseBytes.
func New(id, logDir string, translator *gpu.Translator, maxLogBytes int64) *Supervisor {
	return &Supervisor{
		ID:         id,
		LogDir:     logDir,
		Translator: translator,
		state:      api.StateNotStarted,
		log:        logfile.New(logPath(logDir, id), maxLogBytes),
	}
}

func logPath(logDir, id string) string {
	return logDir + string(os.PathSeparator) + id + ".log"
}

// Start spawns the worker child, or is a no-op if one is already running,
// per spec.md §4.4.
func (s *Supervisor) Start(config api.VllmConfig) (api.StartResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == api.StateRunning && s.isAliveLocked() {
		return api.StartResult{Status: api.StatusAlreadyRunning, InstanceID: s.ID, PID: s.pid}, nil
	}

	env, err := s.buildEnvLocked(config)
	if err != nil {
		return api.StartResult{}, err
	}

	args := strings.Fields(config.Options)
	cmd := exec.Command(WorkerBin, args...)
	cmd.Env = env
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdout = s.log.Writer(os.Stdout)
	cmd.Stderr = s.log.Writer(os.Stderr)

	if err := cmd.Start(); err != nil {
		s.state = api.StateNotStarted
		return api.StartResult{}, api.NewError(api.KindInternal, "failed to start worker: %v", err)
	}

	s.config = config
	s.cmd = cmd
	s.pid = cmd.Process.Pid
	s.pidSeen = true
	s.state = api.StateRunning
	s.exited = make(chan struct{})

	exited := s.exited
	go func() {
		_ = cmd.Wait()
		s.mu.Lock()
		if s.state == api.StateRunning {
			s.state = api.StateStopped
		}
		s.mu.Unlock()
		close(exited)
	}()

	logging.S().Infow("instance started", "id", s.ID, "pid", s.pid)
	return api.StartResult{Status: api.StatusStarted, InstanceID: s.ID, PID: s.pid}, nil
}

// buildEnvLocked resolves config.GPUUUIDs through the translator and
// returns the full environment for the child process, per spec.md §4.4
// step 1. Caller must hold s.mu.
func (s *Supervisor) buildEnvLocked(config api.VllmConfig) ([]string, error) {
	env := os.Environ()

	vars := make(map[string]string, len(config.EnvVars)+1)
	for k, v := range config.EnvVars {
		vars[k] = v
	}

	if len(config.GPUUUIDs) > 0 {
		indices, err := s.Translator.ResolveIndices(config.GPUUUIDs)
		if err != nil {
			return nil, err
		}
		strs := make([]string, len(indices))
		for i, idx := range indices {
			strs[i] = strconv.Itoa(idx)
		}
		vars["CUDA_VISIBLE_DEVICES"] = strings.Join(strs, ",")
	}

	for k, v := range vars {
		env = append(env, k+"="+v)
	}

	config.EnvVars = vars
	s.config = config
	return env, nil
}

// Stop performs the graceful-then-forceful termination sequence from
// spec.md §4.4. A zero timeout means "use DefaultStopTimeout".
func (s *Supervisor) Stop(timeout time.Duration) (api.StopResult, error) {
	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}

	s.mu.Lock()
	if s.cmd == nil || !s.isAliveLocked() {
		pid := s.pid
		hadPID := s.pidSeen
		s.state = api.StateTerminated
		s.mu.Unlock()

		s.log.Remove()
		if hadPID {
			return api.StopResult{Status: api.StatusTerminated, InstanceID: s.ID, PID: pid}, nil
		}
		return api.StopResult{Status: api.StatusNotRunning, InstanceID: s.ID}, nil
	}
	pid := s.pid
	exited := s.exited
	s.mu.Unlock()

	logging.S().Infow("stopping instance", "id", s.ID, "pid", pid, "timeout", timeout)

	_ = syscall.Kill(-pid, syscall.SIGTERM)

	select {
	case <-exited:
	case <-time.After(timeout):
		logging.S().Warnw("instance did not exit gracefully; escalating to SIGKILL", "id", s.ID, "pid", pid)
		_ = syscall.Kill(-pid, syscall.SIGKILL)
		select {
		case <-exited:
		case <-time.After(timeout):
			// best effort: the process group did not reap within a second
			// grace window either; proceed with cleanup regardless, per
			// spec.md §4.4 ("a stop that escalates to SIGKILL is not an
			// error").
		}
	}

	s.mu.Lock()
	s.state = api.StateTerminated
	s.mu.Unlock()

	s.log.Remove()

	return api.StopResult{Status: api.StatusTerminated, InstanceID: s.ID, PID: pid}, nil
}

// IsRunning reports whether a child handle exists and the child is alive.
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == api.StateRunning && s.isAliveLocked()
}

// isAliveLocked probes /proc for the child's pid using procfs, rather than
// a signal-0 probe, so that a crashed-and-reaped child is detected even
// before the wait goroutine updates s.state. Caller must hold s.mu.
func (s *Supervisor) isAliveLocked() bool {
	if s.cmd == nil || s.pid == 0 {
		return false
	}
	proc, err := procfs.NewProc(s.pid)
	if err != nil {
		return false
	}
	stat, err := proc.Stat()
	if err != nil {
		return false
	}
	return stat.State != "Z"
}

// GetStatus returns the current status, per spec.md §4.4.
func (s *Supervisor) GetStatus() api.StatusResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := api.StateNotStarted
	switch {
	case s.state == api.StateRunning && s.isAliveLocked():
		state = api.StateRunning
	case s.state == api.StateRunning:
		// child exited on its own; GetStatus observes this lazily.
		state = api.StateStopped
	case s.state == api.StateStopped:
		state = api.StateStopped
	case s.state == api.StateTerminated:
		state = api.StateTerminated
	}

	return api.StatusResult{Status: state, InstanceID: s.ID, PID: s.pid}
}

// GetLogBytes delegates to the instance's LogFile.
func (s *Supervisor) GetLogBytes(start int64, end *int64) ([]byte, int64, error) {
	return s.log.GetBytes(start, end)
}

// PID returns the last known PID, or 0 if the child never started.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pid
}
