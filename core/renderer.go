package core

import (
	"errors"
	"unsafe"

	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"
)

// Renderer wires the context, device and surface together and drives
// the per-frame loop. All methods are meant to run on the thread that
// owns the window.
type Renderer struct {
	log log.FieldLogger

	config Configuration
	window WindowInfo

	context *VulkanContext
	device  *VulkanDevice
	surface *VulkanSurface

	activePipeline string

	windowWidth  uint32
	windowHeight uint32
}

// NewRenderer builds the full rendering stack: instance, logical
// device against the window's surface, then the swapchain surface.
// Construction unwinds on failure, a non-nil error means nothing is
// left allocated.
func NewRenderer(cfg Configuration, window WindowInfo, procAddr unsafe.Pointer, logger log.FieldLogger) (*Renderer, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	rendererLog := logger.WithField("component", "renderer")

	context, err := NewVulkanContext(cfg.Instance, procAddr, logger)
	if err != nil {
		return nil, err
	}

	surfacePtr, err := window.CreateSurface(context.Instance())
	if err != nil {
		context.Destroy()
		return nil, errors.New("window surface creation: " + err.Error())
	}
	rawSurface := vk.SurfaceFromPointer(uintptr(surfacePtr))

	device, err := NewVulkanDevice(context, rawSurface, logger)
	if err != nil {
		vk.DestroySurface(context.Instance(), rawSurface, nil)
		context.Destroy()
		return nil, err
	}

	surface, err := NewVulkanSurface(context, device, rawSurface, window, cfg.Renderer, logger)
	if err != nil {
		vk.DestroySurface(context.Instance(), rawSurface, nil)
		device.Destroy()
		context.Destroy()
		return nil, err
	}

	return &Renderer{
		log:          rendererLog,
		config:       cfg,
		window:       window,
		context:      context,
		device:       device,
		surface:      surface,
		windowWidth:  window.Width,
		windowHeight: window.Height,
	}, nil
}

// Device exposes the logical device wrapper.
func (r *Renderer) Device() *VulkanDevice {
	return r.device
}

// Surface exposes the swapchain surface wrapper.
func (r *Renderer) Surface() *VulkanSurface {
	return r.surface
}

// LoadShader registers a pipeline under name from the two SPIR-V files
// and binds the surface's framebuffers to its render pass. The first
// loaded pipeline becomes the one Render draws with.
func (r *Renderer) LoadShader(name, vertexPath, fragmentPath string) error {
	if err := r.device.CreatePipeline(r.surface, vertexPath, fragmentPath, name); err != nil {
		return err
	}
	pipeline, ok := r.device.Pipeline(name)
	if !ok {
		return errors.New("pipeline vanished after registration: " + name)
	}
	if err := r.surface.CreateFramebuffersForPipeline(pipeline); err != nil {
		return err
	}
	if r.activePipeline == "" {
		r.activePipeline = name
	}
	r.log.WithField("pipeline", name).Info("Loaded shader pipeline")
	return nil
}

// Render records and submits one frame with the active pipeline,
// drawing a single attribute-less triangle. A stale swapchain is not
// an error: the surface is recreated and the frame skipped.
func (r *Renderer) Render() error {
	if r.activePipeline == "" {
		return errors.New("no pipeline loaded")
	}

	frame := r.surface.CurrentFrameIndex()
	imageIndex, err := r.device.BeginGraphicsRenderPass(frame, r.surface, r.activePipeline)
	if errors.Is(err, ErrSwapchainOutOfDate) {
		return r.recreateSurface()
	}
	if err != nil {
		return err
	}

	r.device.DrawVertices(frame, 3)
	if err := r.device.EndGraphicsRenderPass(frame); err != nil {
		return err
	}

	err = r.surface.FlipBuffers(r.device, imageIndex)
	if errors.Is(err, ErrSwapchainOutOfDate) {
		return r.recreateSurface()
	}
	return err
}

// Resize records the new window size and rebuilds the swapchain.
func (r *Renderer) Resize(width, height uint32) error {
	r.windowWidth = width
	r.windowHeight = height
	return r.recreateSurface()
}

func (r *Renderer) recreateSurface() error {
	r.log.WithFields(log.Fields{
		"width":  r.windowWidth,
		"height": r.windowHeight,
	}).Debug("Rebuilding swapchain")
	return r.surface.Recreate(r.device, r.windowWidth, r.windowHeight)
}

// shutdownStep names one teardown action so failures can be attributed.
type shutdownStep struct {
	name string
	run  func() error
}

// runShutdown executes every step in order regardless of failures and
// returns the first error encountered.
func runShutdown(logger log.FieldLogger, steps []shutdownStep) error {
	var first error
	for _, step := range steps {
		if err := step.run(); err != nil {
			logger.WithField("step", step.name).Warn("Shutdown step failed: " + err.Error())
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Destroy drains the device and tears the stack down in reverse
// construction order. Safe to call once; the renderer is unusable
// afterwards.
func (r *Renderer) Destroy() {
	runShutdown(r.log, []shutdownStep{
		{"wait-idle", r.device.WaitIdle},
		{"surface", func() error { r.surface.Destroy(); return nil }},
		{"device", func() error { r.device.Destroy(); return nil }},
		{"context", func() error { r.context.Destroy(); return nil }},
	})
}
