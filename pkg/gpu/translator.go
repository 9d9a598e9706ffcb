// Package gpu implements the UUID⇄ordinal-index translator described in
// spec.md §4.1, grounded on the NVML enumeration pattern used by the
// NVIDIA Kubernetes device plugin's resource manager
// (internal/rm/nvml_manager.go, internal/rm/nvml_devices.go).
package gpu

import (
	"fmt"
	"strings"
	"sync"

	"github.com/NVIDIA/go-nvml/pkg/nvml"

	"github.com/vllmd-project/launcher/pkg/api"
	"github.com/vllmd-project/launcher/pkg/logging"
)

// Translator maps stable GPU UUIDs to the 0-based ordinal indices the
// worker's CUDA_VISIBLE_DEVICES environment variable expects, and back.
// Enumeration happens at most once per process (spec.md §4.1); re-entry is
// a no-op.
type Translator struct {
	once sync.Once
	nvml enumerator

	mu          sync.RWMutex
	uuidToIndex map[string]int
	indexToUUID map[int]string
}

// New returns an unintialized Translator backed by the real NVML library.
// Enumeration happens lazily on first use so that constructing a launcher
// never requires a GPU to be present (e.g. in CI).
func New() *Translator {
	return newWithEnumerator(realNVML{})
}

func newWithEnumerator(e enumerator) *Translator {
	return &Translator{
		nvml:        e,
		uuidToIndex: map[string]int{},
		indexToUUID: map[int]string{},
	}
}

// ensure performs the one-time NVML enumeration. If the driver library
// fails to initialize, the translator is left in the empty state per
// spec.md §4.1; subsequent lookups fail with an UnknownDevice error rather
// than panicking or retrying.
func (t *Translator) ensure() {
	t.once.Do(func() {
		ret := t.nvml.Init()
		if ret != nvml.SUCCESS {
			logging.S().Warnw("nvml init failed; GPU translator will reject all UUIDs", "ret", nvml.ErrorString(ret))
			return
		}
		defer func() {
			if ret := t.nvml.Shutdown(); ret != nvml.SUCCESS {
				logging.S().Warnw("nvml shutdown failed", "ret", nvml.ErrorString(ret))
			}
		}()

		count, ret := t.nvml.DeviceCount()
		if ret != nvml.SUCCESS {
			logging.S().Warnw("nvml device count failed; GPU translator will reject all UUIDs", "ret", nvml.ErrorString(ret))
			return
		}

		t.mu.Lock()
		defer t.mu.Unlock()
		for i := 0; i < count; i++ {
			uuid, ret := t.nvml.DeviceUUID(i)
			if ret != nvml.SUCCESS {
				logging.S().Warnw("nvml get device uuid failed", "index", i, "ret", nvml.ErrorString(ret))
				continue
			}
			t.uuidToIndex[uuid] = i
			t.indexToUUID[i] = uuid
		}
	})
}

// UUIDToIndex resolves a GPU UUID to its ordinal index.
func (t *Translator) UUIDToIndex(uuid string) (int, error) {
	t.ensure()
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx, ok := t.uuidToIndex[uuid]
	if !ok {
		return 0, t.unknownDeviceLocked(uuid)
	}
	return idx, nil
}

// IndexToUUID resolves an ordinal index to its GPU UUID.
func (t *Translator) IndexToUUID(index int) (string, error) {
	t.ensure()
	t.mu.RLock()
	defer t.mu.RUnlock()
	uuid, ok := t.indexToUUID[index]
	if !ok {
		return "", t.unknownDeviceLocked(fmt.Sprintf("index %d", index))
	}
	return uuid, nil
}

// Mapping returns a snapshot of the full UUID to index mapping.
func (t *Translator) Mapping() map[string]int {
	t.ensure()
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]int, len(t.uuidToIndex))
	for k, v := range t.uuidToIndex {
		out[k] = v
	}
	return out
}

// ResolveIndices resolves an ordered list of GPU UUIDs to their ordinal
// indices, failing the whole call on the first unknown UUID (spec.md §3's
// create-instance invariant).
func (t *Translator) ResolveIndices(uuids []string) ([]int, error) {
	indices := make([]int, 0, len(uuids))
	for _, u := range uuids {
		idx, err := t.UUIDToIndex(u)
		if err != nil {
			return nil, err
		}
		indices = append(indices, idx)
	}
	return indices, nil
}

// unknownDeviceLocked builds an UnknownDevice error listing the currently
// available identifiers. Caller must hold t.mu (read lock is sufficient).
func (t *Translator) unknownDeviceLocked(want string) error {
	available := make([]string, 0, len(t.uuidToIndex))
	for uuid := range t.uuidToIndex {
		available = append(available, uuid)
	}
	return api.NewError(api.KindBadRequest, "unknown GPU device %q; available: [%s]", want, strings.Join(available, ", "))
}
