// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Common backend errors.
var (
	// ErrNotAvailable is returned when a requested API is not registered or
	// cannot create an instance on this machine.
	ErrNotAvailable = errors.New("backend: not available")

	// ErrNoAdapter is returned when an instance exposes no adapters or the
	// requested adapter index is out of range.
	ErrNoAdapter = errors.New("backend: no adapter")

	// ErrProvider is returned by Adopt when the provider does not expose
	// HAL objects.
	ErrProvider = errors.New("backend: provider does not expose HAL device")
)

// API names.
const (
	Auto   = "auto"
	Vulkan = "vulkan"
	Noop   = "noop"
)

// API is a GPU API that can create HAL instances.
type API interface {
	// Name returns the API identifier (e.g. "vulkan").
	Name() string

	// CreateInstance creates a new HAL instance.
	CreateInstance() (hal.Instance, error)
}

// AdapterInfo describes one adapter for the config dialog.
type AdapterInfo struct {
	Index      int
	Name       string
	Vendor     string
	DeviceType gputypes.DeviceType
}

// String returns a human-readable label.
func (a AdapterInfo) String() string {
	return fmt.Sprintf("%d: %s (%s)", a.Index, a.Name, a.DeviceType)
}

// Device is an open HAL device and queue.
type Device struct {
	// API is the name of the API the device was opened with, or "host" for
	// adopted devices.
	API     string
	Adapter AdapterInfo

	Device hal.Device
	Queue  hal.Queue

	// SurfaceFormat is the presentation format, BGRA8 unless a host
	// provider says otherwise.
	SurfaceFormat gputypes.TextureFormat

	instance  hal.Instance
	external  bool
	closeOnce sync.Once
}

// External reports whether the device belongs to the host.
func (d *Device) External() bool { return d.external }

// Close releases the device and instance in reverse creation order.
// Adopted devices are left alone. Close is safe to call more than once.
func (d *Device) Close() {
	d.closeOnce.Do(func() {
		if d.external {
			return
		}
		if d.Device != nil {
			d.Device.Destroy()
		}
		if d.instance != nil {
			d.instance.Destroy()
		}
	})
}

// Open creates a device on adapter index of the named API. With Auto, every
// registered API is tried in priority order and failures fall through to the
// next one.
func Open(name string, adapter int) (*Device, error) {
	if name == "" || name == Auto {
		var errs []error
		for _, api := range byPriority() {
			d, err := open(api, adapter)
			if err == nil {
				return d, nil
			}
			errs = append(errs, err)
			logger().Debug("backend: API unusable, trying next", "api", api.Name(), "err", err)
		}
		return nil, fmt.Errorf("%w: %w", ErrNotAvailable, errors.Join(errs...))
	}
	api := Get(name)
	if api == nil {
		return nil, fmt.Errorf("%w: %q", ErrNotAvailable, name)
	}
	return open(api, adapter)
}

func open(api API, index int) (*Device, error) {
	instance, err := api.CreateInstance()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: create instance: %w", ErrNotAvailable, api.Name(), err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if index < 0 || index >= len(adapters) {
		instance.Destroy()
		return nil, fmt.Errorf("%w: %s has %d adapters, want index %d", ErrNoAdapter, api.Name(), len(adapters), index)
	}
	selected := &adapters[index]

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("%s: open device: %w", api.Name(), err)
	}

	logger().Info("backend: GPU device opened", "api", api.Name(), "adapter", selected.Info.Name)
	return &Device{
		API:           api.Name(),
		Adapter:       adapterInfo(index, selected.Info),
		Device:        openDev.Device,
		Queue:         openDev.Queue,
		SurfaceFormat: gputypes.TextureFormatBGRA8Unorm,
		instance:      instance,
	}, nil
}

// Adopt wraps a host-owned device. The provider must implement
// HalDevice() any and HalQueue() any returning hal.Device and hal.Queue.
func Adopt(provider gpucontext.DeviceProvider) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrProvider
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrProvider)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrProvider)
	}

	format := provider.SurfaceFormat()
	if format == gputypes.TextureFormatUndefined {
		format = gputypes.TextureFormatBGRA8Unorm
	}
	logger().Debug("backend: adopted host GPU device", "format", format)
	return &Device{
		API:           "host",
		Adapter:       AdapterInfo{Name: "host"},
		Device:        device,
		Queue:         queue,
		SurfaceFormat: format,
		external:      true,
	}, nil
}

// EnumerateAdapters lists the adapters of the named API (Auto picks the
// default API).
func EnumerateAdapters(name string) ([]AdapterInfo, error) {
	var api API
	if name == "" || name == Auto {
		api = Default()
	} else {
		api = Get(name)
	}
	if api == nil {
		return nil, fmt.Errorf("%w: %q", ErrNotAvailable, name)
	}
	instance, err := api.CreateInstance()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNotAvailable, api.Name(), err)
	}
	defer instance.Destroy()

	exposed := instance.EnumerateAdapters(nil)
	out := make([]AdapterInfo, len(exposed))
	for i := range exposed {
		out[i] = adapterInfo(i, exposed[i].Info)
	}
	return out, nil
}

func adapterInfo(i int, info gputypes.AdapterInfo) AdapterInfo {
	return AdapterInfo{
		Index:      i,
		Name:       info.Name,
		Vendor:     info.Vendor,
		DeviceType: info.DeviceType,
	}
}
