// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"errors"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

type brokenAPI struct{}

func (brokenAPI) Name() string { return "broken" }

func (brokenAPI) CreateInstance() (hal.Instance, error) {
	return nil, errors.New("no driver")
}

func TestRegistryNoopAlwaysRegistered(t *testing.T) {
	if !IsRegistered(Noop) {
		t.Fatal("noop should be registered")
	}
	if IsRegistered("nonexistent") {
		t.Error("nonexistent should not be registered")
	}
	if Get("nonexistent") != nil {
		t.Error("Get(nonexistent) should return nil")
	}
	if Default() == nil {
		t.Fatal("Default() returned nil")
	}
}

func TestRegistryUnregister(t *testing.T) {
	Register("test-api", func() API { return brokenAPI{} })
	if !IsRegistered("test-api") {
		t.Error("test-api should be registered")
	}
	Unregister("test-api")
	if IsRegistered("test-api") {
		t.Error("test-api should be unregistered")
	}
}

func TestRegistryPriority(t *testing.T) {
	Register("zz-extra", func() API { return brokenAPI{} })
	t.Cleanup(func() { Unregister("zz-extra") })

	list := byPriority()
	if len(list) < 2 {
		t.Fatalf("byPriority() = %d APIs, want at least 2", len(list))
	}
	if last := list[len(list)-1]; last.Name() != "broken" {
		t.Errorf("last API = %q, want the unprioritized one", last.Name())
	}
	for i, a := range list {
		if a.Name() == Noop {
			if i+1 >= len(list) || list[i+1].Name() != "broken" {
				t.Errorf("noop should precede unprioritized APIs, order: %v", names(list))
			}
		}
	}
}

func TestOpenNoop(t *testing.T) {
	d, err := Open(Noop, 0)
	if err != nil {
		t.Fatalf("Open(noop) error = %v", err)
	}
	defer d.Close()

	if d.API != Noop || d.Device == nil || d.Queue == nil {
		t.Errorf("Open(noop) = %+v, want noop device and queue", d)
	}
	if d.Adapter.Name == "" {
		t.Error("adapter name is empty")
	}
	if d.External() {
		t.Error("opened device must not be external")
	}
	d.Close() // second Close is a no-op
}

func TestOpenErrors(t *testing.T) {
	Register("broken", func() API { return brokenAPI{} })
	t.Cleanup(func() { Unregister("broken") })

	tests := []struct {
		name    string
		api     string
		adapter int
		want    error
	}{
		{"unknown api", "metal", 0, ErrNotAvailable},
		{"instance failure", "broken", 0, ErrNotAvailable},
		{"adapter out of range", Noop, 3, ErrNoAdapter},
		{"negative adapter", Noop, -1, ErrNoAdapter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Open(tt.api, tt.adapter); !errors.Is(err, tt.want) {
				t.Errorf("Open(%q, %d) error = %v, want %v", tt.api, tt.adapter, err, tt.want)
			}
		})
	}
}

func TestOpenAutoFallsThrough(t *testing.T) {
	// Keep the machine's real drivers out of the test.
	registryMu.Lock()
	vk, hadVulkan := apis[Vulkan]
	registryMu.Unlock()
	Unregister(Vulkan)
	Register(Vulkan, func() API { return brokenAPI{} })
	t.Cleanup(func() {
		Unregister(Vulkan)
		if hadVulkan {
			Register(Vulkan, vk)
		}
	})

	d, err := Open(Auto, 0)
	if err != nil {
		t.Fatalf("Open(auto) error = %v", err)
	}
	defer d.Close()
	if d.API != Noop {
		t.Errorf("Open(auto) API = %q, want fallthrough to noop", d.API)
	}
}

func TestEnumerateAdapters(t *testing.T) {
	list, err := EnumerateAdapters(Noop)
	if err != nil {
		t.Fatalf("EnumerateAdapters(noop) error = %v", err)
	}
	if len(list) != 1 || list[0].Index != 0 {
		t.Fatalf("EnumerateAdapters(noop) = %v, want one adapter", list)
	}
	if got := list[0].String(); got == "" {
		t.Error("AdapterInfo.String() is empty")
	}
	if _, err := EnumerateAdapters("metal"); !errors.Is(err, ErrNotAvailable) {
		t.Errorf("EnumerateAdapters(metal) error = %v, want ErrNotAvailable", err)
	}
}

type hostProvider struct {
	dev    hal.Device
	queue  hal.Queue
	format gputypes.TextureFormat
}

func (p hostProvider) Device() gpucontext.Device             { return p.dev }
func (p hostProvider) Queue() gpucontext.Queue               { return p.queue }
func (p hostProvider) Adapter() gpucontext.Adapter           { return nil }
func (p hostProvider) SurfaceFormat() gputypes.TextureFormat { return p.format }
func (p hostProvider) HalDevice() any                        { return p.dev }
func (p hostProvider) HalQueue() any                         { return p.queue }
func (p hostProvider) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Type: gpucontext.AdapterTypeUnknown}
}

type plainProvider struct{ hostProvider }

func (plainProvider) HalDevice() {}

func TestAdopt(t *testing.T) {
	owner, err := Open(Noop, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer owner.Close()

	d, err := Adopt(hostProvider{dev: owner.Device, queue: owner.Queue, format: gputypes.TextureFormatRGBA8Unorm})
	if err != nil {
		t.Fatalf("Adopt() error = %v", err)
	}
	if !d.External() || d.Device != owner.Device {
		t.Errorf("Adopt() = %+v, want external wrapper of host device", d)
	}
	if d.SurfaceFormat != gputypes.TextureFormatRGBA8Unorm {
		t.Errorf("SurfaceFormat = %v, want RGBA8Unorm from provider", d.SurfaceFormat)
	}
	d.Close() // must leave the host device alone

	d2, err := Adopt(hostProvider{dev: owner.Device, queue: owner.Queue})
	if err != nil {
		t.Fatal(err)
	}
	if d2.SurfaceFormat != gputypes.TextureFormatBGRA8Unorm {
		t.Errorf("SurfaceFormat = %v, want BGRA8Unorm default", d2.SurfaceFormat)
	}
}

func TestAdoptRejectsProviders(t *testing.T) {
	if _, err := Adopt(hostProvider{}); !errors.Is(err, ErrProvider) {
		t.Errorf("Adopt(nil device) error = %v, want ErrProvider", err)
	}
	if _, err := Adopt(plainProvider{}); !errors.Is(err, ErrProvider) {
		t.Errorf("Adopt(no HAL) error = %v, want ErrProvider", err)
	}
}

func names(l []API) []string {
	out := make([]string, len(l))
	for i, a := range l {
		out[i] = a.Name()
	}
	return out
}
