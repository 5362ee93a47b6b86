package core

import (
	"errors"
	"math"

	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"
)

// ErrSwapchainOutOfDate reports that the swapchain no longer matches
// the surface, usually after a window resize. The caller should
// recreate the surface resources and retry on the next frame.
var ErrSwapchainOutOfDate = errors.New("swapchain out of date")

// VulkanSurface owns the presentation surface, the swapchain with its
// image views and framebuffers, and the per-frame synchronisation
// objects. It holds a reference on the logical device so the device
// outlives the swapchain.
type VulkanSurface struct {
	log log.FieldLogger

	instance vk.Instance
	device   *deviceHandle
	physical vk.PhysicalDevice

	surface vk.Surface

	preferredFormat      *vk.SurfaceFormat
	preferredPresentMode *vk.PresentMode
	desiredImages        uint32
	windowWidth          uint32
	windowHeight         uint32

	format      vk.SurfaceFormat
	presentMode vk.PresentMode
	extent      vk.Extent2D

	swapchain    vk.Swapchain
	images       []vk.Image
	imageViews   []vk.ImageView
	framebuffers []vk.Framebuffer

	boundRenderPass vk.RenderPass

	imageAvailable []vk.Semaphore
	renderFinished []vk.Semaphore
	frameInFlight  []vk.Fence

	currentFrame int
}

// NewVulkanSurface wraps an already created presentation surface and
// builds the swapchain, image views and frame synchronisation against
// it. The surface handle comes from the windowing layer through
// WindowInfo.CreateSurface and is owned by the returned value from
// here on.
func NewVulkanSurface(ctx *VulkanContext, device *VulkanDevice, surface vk.Surface, window WindowInfo, cfg RendererConfiguration, logger log.FieldLogger) (*VulkanSurface, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	logger = logger.WithField("component", "vulkan/surface")

	s := &VulkanSurface{
		log:                  logger,
		instance:             ctx.Instance(),
		device:               device.handle.retain(),
		physical:             device.PhysicalDevice(),
		surface:              surface,
		preferredFormat:      cfg.PreferredFormat,
		preferredPresentMode: cfg.PreferredPresentMode,
		desiredImages:        cfg.SwapchainSize,
		windowWidth:          window.Width,
		windowHeight:         window.Height,
	}

	if err := s.createSwapchain(); err != nil {
		s.device.release()
		return nil, err
	}
	if err := s.createSyncObjects(); err != nil {
		s.destroySwapchain()
		s.device.release()
		return nil, err
	}
	return s, nil
}

func (s *VulkanSurface) createSwapchain() error {
	device := s.device.vkDevice()

	var capabilities vk.SurfaceCapabilities
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceCapabilities(s.physical, s.surface, &capabilities)); err != nil {
		return errors.New("vk.GetPhysicalDeviceSurfaceCapabilities(): " + err.Error())
	}
	capabilities.Deref()
	capabilities.CurrentExtent.Deref()
	capabilities.MinImageExtent.Deref()
	capabilities.MaxImageExtent.Deref()

	var formatCount uint32
	vk.GetPhysicalDeviceSurfaceFormats(s.physical, s.surface, &formatCount, nil)
	if formatCount == 0 {
		return errors.New("surface reports no formats")
	}
	formats := make([]vk.SurfaceFormat, formatCount)
	vk.GetPhysicalDeviceSurfaceFormats(s.physical, s.surface, &formatCount, formats)
	for i := range formats {
		formats[i].Deref()
	}

	var modeCount uint32
	vk.GetPhysicalDeviceSurfacePresentModes(s.physical, s.surface, &modeCount, nil)
	if modeCount == 0 {
		return errors.New("surface reports no present modes")
	}
	modes := make([]vk.PresentMode, modeCount)
	vk.GetPhysicalDeviceSurfacePresentModes(s.physical, s.surface, &modeCount, modes)

	s.format = chooseSurfaceFormat(formats, s.preferredFormat)
	s.presentMode = choosePresentMode(modes, s.preferredPresentMode)
	s.extent = chooseExtent(capabilities, s.windowWidth, s.windowHeight)
	imageCount := swapImageCount(s.desiredImages, capabilities.MinImageCount, capabilities.MaxImageCount)

	s.log.WithFields(log.Fields{
		"format": s.format.Format,
		"mode":   s.presentMode,
		"width":  s.extent.Width,
		"height": s.extent.Height,
		"images": imageCount,
	}).Debug("Creating swapchain")

	scci := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          s.surface,
		MinImageCount:    imageCount,
		ImageFormat:      s.format.Format,
		ImageColorSpace:  s.format.ColorSpace,
		ImageExtent:      s.extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     vk.SurfaceTransformIdentityBit,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      s.presentMode,
		Clipped:          vk.True,
	}
	var swapchain vk.Swapchain
	if err := vk.Error(vk.CreateSwapchain(device, &scci, nil, &swapchain)); err != nil {
		return errors.New("vk.CreateSwapchain(): " + err.Error())
	}
	s.swapchain = swapchain

	var actualImageCount uint32
	vk.GetSwapchainImages(device, s.swapchain, &actualImageCount, nil)
	s.images = make([]vk.Image, actualImageCount)
	vk.GetSwapchainImages(device, s.swapchain, &actualImageCount, s.images)

	s.imageViews = make([]vk.ImageView, len(s.images))
	for i, image := range s.images {
		ivci := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    image,
			ViewType: vk.ImageViewType2d,
			Format:   s.format.Format,
			Components: vk.ComponentMapping{
				R: vk.ComponentSwizzleIdentity,
				G: vk.ComponentSwizzleIdentity,
				B: vk.ComponentSwizzleIdentity,
				A: vk.ComponentSwizzleIdentity,
			},
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: 1,
			},
		}
		if err := vk.Error(vk.CreateImageView(device, &ivci, nil, &s.imageViews[i])); err != nil {
			return errors.New("vk.CreateImageView(): " + err.Error())
		}
	}
	return nil
}

func (s *VulkanSurface) createSyncObjects() error {
	device := s.device.vkDevice()

	s.imageAvailable = make([]vk.Semaphore, MaxFramesInFlight)
	s.renderFinished = make([]vk.Semaphore, MaxFramesInFlight)
	s.frameInFlight = make([]vk.Fence, MaxFramesInFlight)

	sci := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	// Fences start signalled so the first frame does not block on a
	// submission that never happened.
	fci := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
		Flags: vk.FenceCreateFlags(vk.FenceCreateSignaledBit),
	}
	for i := 0; i < MaxFramesInFlight; i++ {
		if err := vk.Error(vk.CreateSemaphore(device, &sci, nil, &s.imageAvailable[i])); err != nil {
			return errors.New("vk.CreateSemaphore(): " + err.Error())
		}
		if err := vk.Error(vk.CreateSemaphore(device, &sci, nil, &s.renderFinished[i])); err != nil {
			return errors.New("vk.CreateSemaphore(): " + err.Error())
		}
		if err := vk.Error(vk.CreateFence(device, &fci, nil, &s.frameInFlight[i])); err != nil {
			return errors.New("vk.CreateFence(): " + err.Error())
		}
	}
	return nil
}

// chooseSurfaceFormat honours the preferred format when the surface
// offers it, then falls back to 8-bit BGRA in the sRGB non-linear
// colour space, then to whatever the surface lists first.
func chooseSurfaceFormat(formats []vk.SurfaceFormat, preferred *vk.SurfaceFormat) vk.SurfaceFormat {
	if preferred != nil {
		for _, f := range formats {
			if f.Format == preferred.Format && f.ColorSpace == preferred.ColorSpace {
				return f
			}
		}
	}
	for _, f := range formats {
		if f.ColorSpace != vk.ColorSpaceSrgbNonlinear {
			continue
		}
		if f.Format == vk.FormatB8g8r8a8Unorm || f.Format == vk.FormatB8g8r8a8Srgb {
			return f
		}
	}
	return formats[0]
}

// choosePresentMode honours the preferred mode when available, then
// relaxed FIFO, then FIFO, which the driver must always support.
func choosePresentMode(modes []vk.PresentMode, preferred *vk.PresentMode) vk.PresentMode {
	if preferred != nil {
		for _, m := range modes {
			if m == *preferred {
				return m
			}
		}
	}
	for _, m := range modes {
		if m == vk.PresentModeFifoRelaxed {
			return m
		}
	}
	return vk.PresentModeFifo
}

// chooseExtent takes the surface's current extent unless the driver
// leaves it unset with the 0xFFFFFFFF sentinel, in which case the
// window size is clamped into the supported range.
func chooseExtent(capabilities vk.SurfaceCapabilities, width, height uint32) vk.Extent2D {
	if capabilities.CurrentExtent.Width != math.MaxUint32 {
		return capabilities.CurrentExtent
	}
	return vk.Extent2D{
		Width:  clampUint32(width, capabilities.MinImageExtent.Width, capabilities.MaxImageExtent.Width),
		Height: clampUint32(height, capabilities.MinImageExtent.Height, capabilities.MaxImageExtent.Height),
	}
}

// swapImageCount clamps the requested image count into what the
// surface supports. Zero requests double buffering; a max of zero
// means no upper bound.
func swapImageCount(desired, min, max uint32) uint32 {
	count := desired
	if count == 0 {
		count = 2
	}
	if count < min {
		count = min
	}
	if max != 0 && count > max {
		count = max
	}
	return count
}

func nextFrameIndex(current int) int {
	return (current + 1) % MaxFramesInFlight
}

// CreateFramebuffersForPipeline builds one framebuffer per swapchain
// image view against the pipeline's render pass, replacing any
// framebuffers built for an earlier pipeline.
func (s *VulkanSurface) CreateFramebuffersForPipeline(pipeline *VulkanPipeline) error {
	device := s.device.vkDevice()

	s.destroyFramebuffers()
	s.framebuffers = make([]vk.Framebuffer, len(s.imageViews))
	for i, view := range s.imageViews {
		fci := vk.FramebufferCreateInfo{
			SType:           vk.StructureTypeFramebufferCreateInfo,
			RenderPass:      pipeline.RenderPass(),
			AttachmentCount: 1,
			PAttachments:    []vk.ImageView{view},
			Width:           s.extent.Width,
			Height:          s.extent.Height,
			Layers:          1,
		}
		if err := vk.Error(vk.CreateFramebuffer(device, &fci, nil, &s.framebuffers[i])); err != nil {
			return errors.New("vk.CreateFramebuffer(): " + err.Error())
		}
	}
	s.boundRenderPass = pipeline.RenderPass()
	return nil
}

// AcquireNextImage asks the presentation engine for the next swapchain
// image, signalling the current frame's image-available semaphore. A
// stale swapchain is reported as ErrSwapchainOutOfDate.
//
// The acquire takes no fence. The frame's in-flight fence is reset
// before this call and handed to the queue submission in FlipBuffers;
// a fence cannot be pending on an acquire and a submit at once.
func (s *VulkanSurface) AcquireNextImage() (uint32, error) {
	var imageIndex uint32
	result := vk.AcquireNextImage(
		s.device.vkDevice(), s.swapchain, math.MaxUint64,
		s.imageAvailable[s.currentFrame], vk.NullFence, &imageIndex)
	if result == vk.ErrorOutOfDate {
		return 0, ErrSwapchainOutOfDate
	}
	// Suboptimal still delivered a usable image; render it.
	if result != vk.Suboptimal {
		if err := vk.Error(result); err != nil {
			return 0, errors.New("vk.AcquireNextImage(): " + err.Error())
		}
	}
	return imageIndex, nil
}

// FlipBuffers submits the current frame's recorded work and presents
// the given swapchain image, then advances to the next frame slot. The
// submission waits on the image-available semaphore at the colour
// attachment output stage and signals the render-finished semaphore
// and the frame's fence.
func (s *VulkanSurface) FlipBuffers(device *VulkanDevice, imageIndex uint32) error {
	frame := s.currentFrame
	waits := []vk.Semaphore{s.imageAvailable[frame]}
	signals := []vk.Semaphore{s.renderFinished[frame]}
	stages := []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)}

	if err := device.SubmitGraphicsQueue(frame, waits, signals, stages, s.frameInFlight[frame]); err != nil {
		return err
	}

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    signals,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{s.swapchain},
		PImageIndices:      []uint32{imageIndex},
	}
	err := device.PresentQueue(&presentInfo)

	// The submission went through either way, so the frame slot moves
	// on even when presentation reports a stale swapchain.
	s.currentFrame = nextFrameIndex(s.currentFrame)
	return err
}

// Recreate tears the swapchain, image views, framebuffers and frame
// synchronisation down and rebuilds them for the new window size. The
// device is drained first. Fresh fences start signalled, so a frame
// abandoned between fence reset and submission cannot deadlock the
// next acquire.
func (s *VulkanSurface) Recreate(device *VulkanDevice, width, height uint32) error {
	if err := device.WaitIdle(); err != nil {
		return err
	}

	s.windowWidth = width
	s.windowHeight = height

	s.destroySyncObjects()
	s.destroySwapchain()
	s.currentFrame = 0

	if err := s.createSwapchain(); err != nil {
		return err
	}
	if err := s.createSyncObjects(); err != nil {
		return err
	}
	if s.boundRenderPass != vk.NullRenderPass {
		renderPass := s.boundRenderPass
		vkDevice := s.device.vkDevice()
		s.framebuffers = make([]vk.Framebuffer, len(s.imageViews))
		for i, view := range s.imageViews {
			fci := vk.FramebufferCreateInfo{
				SType:           vk.StructureTypeFramebufferCreateInfo,
				RenderPass:      renderPass,
				AttachmentCount: 1,
				PAttachments:    []vk.ImageView{view},
				Width:           s.extent.Width,
				Height:          s.extent.Height,
				Layers:          1,
			}
			if err := vk.Error(vk.CreateFramebuffer(vkDevice, &fci, nil, &s.framebuffers[i])); err != nil {
				return errors.New("vk.CreateFramebuffer(): " + err.Error())
			}
		}
	}
	s.log.WithFields(log.Fields{
		"width":  s.extent.Width,
		"height": s.extent.Height,
	}).Debug("Recreated swapchain")
	return nil
}

// CurrentFrameIndex returns the frame slot the next acquire will use.
func (s *VulkanSurface) CurrentFrameIndex() int {
	return s.currentFrame
}

// Extent returns the swapchain extent.
func (s *VulkanSurface) Extent() vk.Extent2D {
	return s.extent
}

// Format returns the chosen surface format.
func (s *VulkanSurface) Format() vk.SurfaceFormat {
	return s.format
}

// Framebuffer returns the framebuffer for a swapchain image index.
func (s *VulkanSurface) Framebuffer(imageIndex uint32) vk.Framebuffer {
	return s.framebuffers[imageIndex]
}

func (s *VulkanSurface) destroyFramebuffers() {
	device := s.device.vkDevice()
	for _, fb := range s.framebuffers {
		vk.DestroyFramebuffer(device, fb, nil)
	}
	s.framebuffers = nil
}

func (s *VulkanSurface) destroySwapchain() {
	device := s.device.vkDevice()
	s.destroyFramebuffers()
	for _, view := range s.imageViews {
		vk.DestroyImageView(device, view, nil)
	}
	s.imageViews = nil
	s.images = nil
	if s.swapchain != vk.NullSwapchain {
		vk.DestroySwapchain(device, s.swapchain, nil)
		s.swapchain = vk.NullSwapchain
	}
}

func (s *VulkanSurface) destroySyncObjects() {
	device := s.device.vkDevice()
	for _, sem := range s.imageAvailable {
		vk.DestroySemaphore(device, sem, nil)
	}
	for _, sem := range s.renderFinished {
		vk.DestroySemaphore(device, sem, nil)
	}
	for _, fence := range s.frameInFlight {
		vk.DestroyFence(device, fence, nil)
	}
	s.imageAvailable = nil
	s.renderFinished = nil
	s.frameInFlight = nil
}

// Destroy tears down synchronisation objects, framebuffers, image
// views, the swapchain and the surface, then releases the reference on
// the logical device. Callers drain the device first.
func (s *VulkanSurface) Destroy() {
	s.log.Debug("Destroying surface")
	s.destroySyncObjects()
	s.destroySwapchain()
	vk.DestroySurface(s.instance, s.surface, nil)
	s.surface = vk.NullSurface
	s.device.release()
	s.device = nil
}
