package gpu

import "github.com/NVIDIA/go-nvml/pkg/nvml"

// enumerator is the slice of the NVML API the translator needs to discover
// devices. It exists so tests can substitute a fake set of devices instead
// of requiring a physical GPU, the same separation the device plugin draws
// between the raw NVML bindings and its mockable `nvml.Interface`.
type enumerator interface {
	Init() nvml.Return
	Shutdown() nvml.Return
	DeviceCount() (int, nvml.Return)
	DeviceUUID(index int) (string, nvml.Return)
}

// realNVML is the enumerator backed by the actual NVML shared library.
type realNVML struct{}

func (realNVML) Init() nvml.Return     { return nvml.Init() }
func (realNVML) Shutdown() nvml.Return { return nvml.Shutdown() }

func (realNVML) DeviceCount() (int, nvml.Return) {
	return nvml.DeviceGetCount()
}

func (realNVML) DeviceUUID(index int) (string, nvml.Return) {
	device, ret := nvml.DeviceGetHandleByIndex(index)
	if ret != nvml.SUCCESS {
		return "", ret
	}
	return device.GetUUID()
}
