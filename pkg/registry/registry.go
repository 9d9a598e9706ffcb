// Package registry implements the InstanceRegistry from spec.md §4.5: a
// concurrent directory of live supervisors keyed by instance id, with
// uniqueness, auto-id generation, and best-effort stop-all aggregation.
//
// Grounded on the teacher's task registry (pkg/task), which holds the same
// shape (a mutex-guarded map plus atomic insert-if-absent semantics) though
// for a different domain object; the auto-id scheme below follows spec.md
// §9's explicit design note rather than the teacher's own id generation,
// since no pack library produces the prescribed short hex token.
package registry

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/vllmd-project/launcher/pkg/api"
	"github.com/vllmd-project/launcher/pkg/gpu"
	"github.com/vllmd-project/launcher/pkg/logging"
	"github.com/vllmd-project/launcher/pkg/supervisor"
)

// autoIDBytes controls the length of a generated instance id: 8 random
// bytes render as 16 hex characters, matching the `[0-9a-f]+` pattern
// spec.md §8's scenario 1 asserts against.
const autoIDBytes = 8

// Registry is the launcher-wide directory of live supervisors.
type Registry struct {
	logDir      string
	translator  *gpu.Translator
	stopTimeout time.Duration
	maxLogBytes int64

	mu        sync.Mutex
	instances map[string]*supervisor.Supervisor
}

// New returns an empty Registry. Every supervisor it constructs writes its
// log file under logDir, resolves GPU UUIDs through translator, and caps a
// single ranged log read at maxLogBytes (spec.md §4.2; a value <= 0 falls
// back to logfile.MaxResponseBytes). A stopTimeout of zero falls back to
// supervisor.DefaultStopTimeout.
func New(logDir string, translator *gpu.Translator, stopTimeout time.Duration, maxLogBytes int64) *Registry {
	return &Registry{
		logDir:      logDir,
		translator:  translator,
		stopTimeout: stopTimeout,
		maxLogBytes: maxLogBytes,
		instances:   map[string]*supervisor.Supervisor{},
	}
}

// CreateInstance inserts a new supervisor for id (generating one if empty)
// and starts it, per spec.md §4.5.
func (r *Registry) CreateInstance(config api.VllmConfig, id string) (api.StartResult, error) {
	if err := config.Validate(); err != nil {
		return api.StartResult{}, err
	}

	r.mu.Lock()
	if id == "" {
		generated, err := r.generateUniqueIDLocked()
		if err != nil {
			r.mu.Unlock()
			return api.StartResult{}, err
		}
		id = generated
	} else if _, exists := r.instances[id]; exists {
		r.mu.Unlock()
		return api.StartResult{}, api.AlreadyExists(id)
	}

	sup := supervisor.New(id, r.logDir, r.translator, r.maxLogBytes)
	r.instances[id] = sup
	r.mu.Unlock()

	result, err := sup.Start(config)
	if err != nil {
		// the reservation is only good for a successful start; a failed
		// spawn must not leave a phantom entry behind for later lookups.
		r.mu.Lock()
		delete(r.instances, id)
		r.mu.Unlock()
		return api.StartResult{}, err
	}
	result.InstanceID = id
	return result, nil
}

// generateUniqueIDLocked returns a random hex id not already present in the
// map. Caller must hold r.mu.
func (r *Registry) generateUniqueIDLocked() (string, error) {
	for attempt := 0; attempt < 16; attempt++ {
		buf := make([]byte, autoIDBytes)
		if _, err := rand.Read(buf); err != nil {
			return "", api.NewError(api.KindInternal, "failed to generate instance id: %v", err)
		}
		id := hex.EncodeToString(buf)
		if _, exists := r.instances[id]; !exists {
			return id, nil
		}
	}
	return "", api.NewError(api.KindInternal, "failed to generate a unique instance id after repeated collisions")
}

// StopInstance stops and removes the named instance, per spec.md §4.5.
func (r *Registry) StopInstance(id string) (api.StopResult, error) {
	r.mu.Lock()
	sup, ok := r.instances[id]
	r.mu.Unlock()
	if !ok {
		return api.StopResult{}, api.NotFound(id)
	}

	result, err := sup.Stop(r.stopTimeout)

	r.mu.Lock()
	delete(r.instances, id)
	r.mu.Unlock()

	return result, err
}

// StopAllInstances performs a best-effort sweep: every live instance is
// stopped, per-id results are collected, and the map is cleared regardless
// of individual failures (spec.md §4.5, §7).
func (r *Registry) StopAllInstances() api.StopAllResult {
	r.mu.Lock()
	targets := make(map[string]*supervisor.Supervisor, len(r.instances))
	for id, sup := range r.instances {
		targets[id] = sup
	}
	r.instances = map[string]*supervisor.Supervisor{}
	r.mu.Unlock()

	var errs *multierror.Error
	stopped := make(map[string]api.StopResult, len(targets))
	for id, sup := range targets {
		result, err := sup.Stop(r.stopTimeout)
		if err != nil {
			errs = multierror.Append(errs, err)
			logging.S().Warnw("stop failed during stop-all", "id", id, "error", err)
			continue
		}
		stopped[id] = result
	}

	if errs != nil {
		logging.S().Warnw("stop-all completed with partial failures", "errors", errs.Error())
	}

	return api.StopAllResult{
		Status:           api.StatusAllStopped,
		StoppedInstances: stopped,
		TotalStopped:     len(stopped),
	}
}

// GetInstanceStatus returns the status of one instance.
func (r *Registry) GetInstanceStatus(id string) (api.StatusResult, error) {
	r.mu.Lock()
	sup, ok := r.instances[id]
	r.mu.Unlock()
	if !ok {
		return api.StatusResult{}, api.NotFound(id)
	}
	return sup.GetStatus(), nil
}

// GetAllInstancesStatus returns a status summary over every live instance.
func (r *Registry) GetAllInstancesStatus() api.AllStatusResult {
	r.mu.Lock()
	sups := make(map[string]*supervisor.Supervisor, len(r.instances))
	for id, sup := range r.instances {
		sups[id] = sup
	}
	r.mu.Unlock()

	statuses := make(map[string]api.StatusResult, len(sups))
	running := 0
	for id, sup := range sups {
		status := sup.GetStatus()
		statuses[id] = status
		if status.Status == api.StateRunning {
			running++
		}
	}

	return api.AllStatusResult{
		TotalInstances:   len(statuses),
		RunningInstances: running,
		Instances:        statuses,
	}
}

// ListInstances returns the ids of every live instance.
func (r *Registry) ListInstances() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.instances))
	for id := range r.instances {
		ids = append(ids, id)
	}
	return ids
}

// GetLogBytes delegates a ranged log read to the named instance's supervisor.
func (r *Registry) GetLogBytes(id string, start int64, end *int64) ([]byte, int64, error) {
	r.mu.Lock()
	sup, ok := r.instances[id]
	r.mu.Unlock()
	if !ok {
		return nil, 0, api.NotFound(id)
	}
	return sup.GetLogBytes(start, end)
}
