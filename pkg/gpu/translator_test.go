package gpu

import (
	"testing"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/stretchr/testify/require"

	"github.com/vllmd-project/launcher/pkg/api"
)

type fakeNVML struct {
	initErr  bool
	countErr bool
	uuids    []string
}

func (f *fakeNVML) Init() nvml.Return {
	if f.initErr {
		return nvml.ERROR_UNINITIALIZED
	}
	return nvml.SUCCESS
}

func (f *fakeNVML) Shutdown() nvml.Return { return nvml.SUCCESS }

func (f *fakeNVML) DeviceCount() (int, nvml.Return) {
	if f.countErr {
		return 0, nvml.ERROR_UNKNOWN
	}
	return len(f.uuids), nvml.SUCCESS
}

func (f *fakeNVML) DeviceUUID(index int) (string, nvml.Return) {
	if index < 0 || index >= len(f.uuids) {
		return "", nvml.ERROR_INVALID_ARGUMENT
	}
	return f.uuids[index], nvml.SUCCESS
}

func TestRoundTrip(t *testing.T) {
	fake := &fakeNVML{uuids: []string{"GPU-1", "GPU-2", "GPU-3"}}
	tr := newWithEnumerator(fake)

	for uuid := range tr.Mapping() {
		idx, err := tr.UUIDToIndex(uuid)
		require.NoError(t, err)
		back, err := tr.IndexToUUID(idx)
		require.NoError(t, err)
		require.Equal(t, uuid, back)
	}
}

func TestResolveIndicesInOrder(t *testing.T) {
	fake := &fakeNVML{uuids: []string{"GPU-1", "GPU-2", "GPU-3"}}
	tr := newWithEnumerator(fake)

	indices, err := tr.ResolveIndices([]string{"GPU-1", "GPU-3"})
	require.NoError(t, err)
	require.Equal(t, []int{0, 2}, indices)
}

func TestUnknownUUIDFailsLoudly(t *testing.T) {
	fake := &fakeNVML{uuids: []string{"GPU-1"}}
	tr := newWithEnumerator(fake)

	_, err := tr.UUIDToIndex("GPU-DOES-NOT-EXIST")
	require.Error(t, err)
	apiErr, ok := api.AsError(err)
	require.True(t, ok)
	require.Equal(t, api.KindBadRequest, apiErr.Kind)
	require.Contains(t, apiErr.Message, "GPU-1")
}

func TestEnumerationOnlyHappensOnce(t *testing.T) {
	fake := &fakeNVML{uuids: []string{"GPU-1"}}
	tr := newWithEnumerator(fake)

	_, _ = tr.UUIDToIndex("GPU-1")
	fake.uuids = []string{"GPU-1", "GPU-2"}
	_, err := tr.UUIDToIndex("GPU-2")
	require.Error(t, err, "second enumeration attempt must be a no-op")
}

func TestInitFailureLeavesEmptyState(t *testing.T) {
	fake := &fakeNVML{initErr: true, uuids: []string{"GPU-1"}}
	tr := newWithEnumerator(fake)

	_, err := tr.UUIDToIndex("GPU-1")
	require.Error(t, err)
}

func TestDeviceCountFailureLeavesEmptyState(t *testing.T) {
	fake := &fakeNVML{countErr: true, uuids: []string{"GPU-1"}}
	tr := newWithEnumerator(fake)

	_, err := tr.UUIDToIndex("GPU-1")
	require.Error(t, err)
}
