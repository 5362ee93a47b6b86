// Package core implements the Vulkan rendering backend: instance and
// device setup, swapchain and frame synchronization, and graphics
// pipeline construction. The windowing loop, shader compilation and
// asset handling live outside this package; core only consumes a
// surface handle, a window size and paths to compiled shader bytecode.
package core

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// MaxFramesInFlight bounds how many frames the CPU may record before
// waiting for the GPU to catch up. Synchronization arrays on the
// surface and per-role command buffers on the device are sized by it.
const MaxFramesInFlight = 2

// Destroyer releases every GPU object a component owns. Destruction
// order between components matters: pipelines before surface, surface
// before device, device before context.
type Destroyer interface {
	Destroy()
}

// WindowInfo describes the platform window the renderer draws to.
// The windowing layer stays outside this package, so the surface is
// produced through a callback once the Vulkan instance exists.
type WindowInfo struct {
	// CreateSurface creates the platform presentation surface against
	// the given instance and returns the raw surface handle.
	CreateSurface func(instance vk.Instance) (unsafe.Pointer, error)

	// Width and Height are the window's current size in pixels, used
	// when the surface capabilities leave the extent undefined.
	Width  uint32
	Height uint32
}

// Version is an application version triple, converted to the packed
// Vulkan encoding when handed to the driver.
type Version [3]uint32

func (v Version) vulkan() uint32 {
	return vk.MakeVersion(int(v[0]), int(v[1]), int(v[2]))
}
