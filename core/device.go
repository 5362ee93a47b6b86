package core

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"
)

// package errors surfaced to callers of CreatePipeline. Everything
// else the device reports is driver-level and terminal.
var (
	ErrPipelineExists   = errors.New("pipeline name already registered")
	ErrShaderNotFound   = errors.New("shader file not found")
	ErrPipelineRegistry = errors.New("pipeline registry insert anomaly")
)

// QueueRole identifies what a device queue is used for.
type QueueRole int

// Queue roles the device creates queues and command pools for.
const (
	QueueGraphics QueueRole = iota
	QueuePresent
	QueueTransfer
	QueueCompute
)

var queueRoles = []QueueRole{QueueGraphics, QueuePresent, QueueTransfer, QueueCompute}

func (r QueueRole) String() string {
	switch r {
	case QueueGraphics:
		return "graphics"
	case QueuePresent:
		return "present"
	case QueueTransfer:
		return "transfer"
	case QueueCompute:
		return "compute"
	default:
		return "unknown"
	}
}

// QueueFamilyAssignment binds a queue role to a family index and the
// number of queues requested from that family.
type QueueFamilyAssignment struct {
	Family uint32
	Count  uint32
}

// deviceCandidate caches the physical device properties the selection
// heuristic needs, so the comparator stays free of driver calls.
type deviceCandidate struct {
	handle      vk.PhysicalDevice
	deviceType  vk.PhysicalDeviceType
	localMemory vk.DeviceSize
}

// betterCandidate keeps the incumbent unless the candidate is a
// discrete adapter with more device-local memory. A non-discrete
// candidate never replaces the incumbent.
func betterCandidate(best, candidate deviceCandidate) deviceCandidate {
	if candidate.deviceType != vk.PhysicalDeviceTypeDiscreteGpu {
		return best
	}
	if best.deviceType != vk.PhysicalDeviceTypeDiscreteGpu {
		return candidate
	}
	if candidate.localMemory > best.localMemory {
		return candidate
	}
	return best
}

// queueFamily caches one queue family's capabilities, with presentation
// support resolved against the target surface up front.
type queueFamily struct {
	index   uint32
	flags   vk.QueueFlags
	count   uint32
	present bool
}

func (f queueFamily) has(bit vk.QueueFlagBits) bool {
	return f.flags&vk.QueueFlags(bit) != 0
}

// pickGraphicsFamily selects the graphics-capable family with the most
// queues. Ties go to the later family.
func pickGraphicsFamily(families []queueFamily) (QueueFamilyAssignment, error) {
	var best *queueFamily
	for i := range families {
		f := &families[i]
		if !f.has(vk.QueueGraphicsBit) {
			continue
		}
		if best == nil || f.count >= best.count {
			best = f
		}
	}
	if best == nil {
		return QueueFamilyAssignment{}, errors.New("no queue family supports graphics")
	}
	return QueueFamilyAssignment{Family: best.index, Count: best.count}, nil
}

// pickPresentFamily reuses the graphics family when it can present to
// the surface. Otherwise it takes the presentation-capable family with
// the most queues; such a family is requested with a single queue.
func pickPresentFamily(families []queueFamily, graphics QueueFamilyAssignment) (QueueFamilyAssignment, error) {
	for i := range families {
		if families[i].index == graphics.Family && families[i].present {
			return graphics, nil
		}
	}
	var best *queueFamily
	for i := range families {
		f := &families[i]
		if !f.present {
			continue
		}
		if best == nil || f.count > best.count {
			best = f
		}
	}
	if best == nil {
		return QueueFamilyAssignment{}, errors.New("no queue family supports presentation on the surface")
	}
	return QueueFamilyAssignment{Family: best.index, Count: 1}, nil
}

// pickTransferFamily selects a transfer-capable family, preferring one
// that carries neither graphics nor compute over a mixed one, then the
// higher queue count.
func pickTransferFamily(families []queueFamily) (QueueFamilyAssignment, error) {
	var best *queueFamily
	for i := range families {
		f := &families[i]
		if !f.has(vk.QueueTransferBit) {
			continue
		}
		if best == nil {
			best = f
			continue
		}
		bestMixed := best.has(vk.QueueGraphicsBit) || best.has(vk.QueueComputeBit)
		currentMixed := f.has(vk.QueueGraphicsBit) || f.has(vk.QueueComputeBit)
		switch {
		case !bestMixed && currentMixed:
			// keep the dedicated family
		case bestMixed && !currentMixed:
			best = f
		case f.count >= best.count:
			best = f
		}
	}
	if best == nil {
		return QueueFamilyAssignment{}, errors.New("no queue family supports transfer")
	}
	return QueueFamilyAssignment{Family: best.index, Count: best.count}, nil
}

// pickComputeFamily selects a compute-capable family, preferring one
// without the graphics bit, then the higher queue count.
func pickComputeFamily(families []queueFamily) (QueueFamilyAssignment, error) {
	var best *queueFamily
	for i := range families {
		f := &families[i]
		if !f.has(vk.QueueComputeBit) {
			continue
		}
		if best == nil {
			best = f
			continue
		}
		switch {
		case best.has(vk.QueueGraphicsBit) && !f.has(vk.QueueGraphicsBit):
			best = f
		case !best.has(vk.QueueGraphicsBit) && f.has(vk.QueueGraphicsBit):
			// keep the non-graphics family
		case f.count > best.count:
			best = f
		}
	}
	if best == nil {
		return QueueFamilyAssignment{}, errors.New("no queue family supports compute")
	}
	return QueueFamilyAssignment{Family: best.index, Count: best.count}, nil
}

// buildQueueCreateInfos produces one creation request per distinct
// family index. A family shared by several roles appears once, with
// every queue at priority 1.0. A present-only family goes last with a
// single queue.
func buildQueueCreateInfos(assignments map[QueueRole]QueueFamilyAssignment) []vk.DeviceQueueCreateInfo {
	infos := []vk.DeviceQueueCreateInfo{}
	seen := map[uint32]bool{}
	for _, role := range []QueueRole{QueueGraphics, QueueTransfer, QueueCompute} {
		a := assignments[role]
		if seen[a.Family] {
			continue
		}
		seen[a.Family] = true
		infos = append(infos, queueCreateInfo(a))
	}
	if present := assignments[QueuePresent]; !seen[present.Family] {
		infos = append(infos, queueCreateInfo(present))
	}
	return infos
}

func queueCreateInfo(a QueueFamilyAssignment) vk.DeviceQueueCreateInfo {
	priorities := make([]float32, a.Count)
	for i := range priorities {
		priorities[i] = 1.0
	}
	return vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: a.Family,
		QueueCount:       a.Count,
		PQueuePriorities: priorities,
	}
}

// deviceHandle reference-counts the logical device. The device and the
// surface each hold a reference; pipelines observe without owning and
// must be torn down while the handle is still alive.
type deviceHandle struct {
	mu      sync.Mutex
	device  vk.Device
	refs    int
	destroy func(vk.Device)
}

func newDeviceHandle(device vk.Device) *deviceHandle {
	return &deviceHandle{
		device: device,
		refs:   1,
		destroy: func(d vk.Device) {
			vk.DestroyDevice(d, nil)
		},
	}
}

func (h *deviceHandle) retain() *deviceHandle {
	h.mu.Lock()
	h.refs++
	h.mu.Unlock()
	return h
}

func (h *deviceHandle) release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.refs == 0 {
		return
	}
	h.refs--
	if h.refs == 0 {
		h.destroy(h.device)
		h.device = nil
	}
}

func (h *deviceHandle) alive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.refs > 0
}

func (h *deviceHandle) vkDevice() vk.Device {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.device
}

// NewVulkanDevice selects a physical adapter, derives queue family
// assignments against the given presentation surface, creates the
// logical device with its queues, and allocates one command pool and
// MaxFramesInFlight command buffers per queue role.
func NewVulkanDevice(ctx *VulkanContext, surface vk.Surface, logger log.FieldLogger) (*VulkanDevice, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	logger = logger.WithField("component", "vulkan/device")

	candidates, err := enumerateCandidates(ctx.Instance())
	if err != nil {
		return nil, err
	}
	selected := candidates[0]
	for _, candidate := range candidates[1:] {
		selected = betterCandidate(selected, candidate)
	}
	logger.WithFields(log.Fields{
		"type":   selected.deviceType,
		"memory": uint64(selected.localMemory),
	}).Debug("Selected physical device")

	families, err := queryQueueFamilies(selected.handle, surface)
	if err != nil {
		return nil, err
	}

	assignments := map[QueueRole]QueueFamilyAssignment{}
	if assignments[QueueGraphics], err = pickGraphicsFamily(families); err != nil {
		return nil, err
	}
	if assignments[QueuePresent], err = pickPresentFamily(families, assignments[QueueGraphics]); err != nil {
		return nil, err
	}
	if assignments[QueueTransfer], err = pickTransferFamily(families); err != nil {
		return nil, err
	}
	if assignments[QueueCompute], err = pickComputeFamily(families); err != nil {
		return nil, err
	}
	for _, role := range queueRoles {
		logger.WithFields(log.Fields{
			"role":   role.String(),
			"family": assignments[role].Family,
			"queues": assignments[role].Count,
		}).Debug("Assigned queue family")
	}

	queueInfos := buildQueueCreateInfos(assignments)
	dci := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   1,
		PpEnabledExtensionNames: safeStrings([]string{vk.KhrSwapchainExtensionName}),
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{{}},
	}

	logger.Debug("Creating logical device")
	var logicalDevice vk.Device
	if err := vk.Error(vk.CreateDevice(selected.handle, &dci, nil, &logicalDevice)); err != nil {
		return nil, errors.New("vk.CreateDevice(): " + err.Error())
	}

	queues := map[QueueRole][]vk.Queue{}
	for _, role := range queueRoles {
		a := assignments[role]
		handles := make([]vk.Queue, a.Count)
		for i := uint32(0); i < a.Count; i++ {
			vk.GetDeviceQueue(logicalDevice, a.Family, i, &handles[i])
		}
		queues[role] = handles
	}

	device := &VulkanDevice{
		log:            logger,
		physicalDevice: selected.handle,
		handle:         newDeviceHandle(logicalDevice),
		assignments:    assignments,
		queues:         queues,
		commandPools:   map[QueueRole]vk.CommandPool{},
		commandBuffers: map[QueueRole][]vk.CommandBuffer{},
		pipelines:      map[string]*VulkanPipeline{},
	}

	if err := device.createCommandPools(); err != nil {
		device.Destroy()
		return nil, err
	}
	return device, nil
}

func enumerateCandidates(instance vk.Instance) ([]deviceCandidate, error) {
	var deviceCount uint32
	if err := vk.Error(vk.EnumeratePhysicalDevices(instance, &deviceCount, nil)); err != nil {
		return nil, fmt.Errorf("vulkan physical device enumeration failed: %s", err)
	}
	if deviceCount == 0 {
		return nil, errors.New("no Vulkan-capable physical device present")
	}
	handles := make([]vk.PhysicalDevice, deviceCount)
	if err := vk.Error(vk.EnumeratePhysicalDevices(instance, &deviceCount, handles)); err != nil {
		return nil, fmt.Errorf("vulkan physical device enumeration failed: %s", err)
	}

	candidates := make([]deviceCandidate, len(handles))
	for i, handle := range handles {
		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(handle, &properties)
		properties.Deref()

		candidates[i] = deviceCandidate{
			handle:      handle,
			deviceType:  properties.DeviceType,
			localMemory: deviceLocalMemory(handle),
		}
	}
	return candidates, nil
}

// deviceLocalMemory sums the sizes of all heaps flagged device-local.
func deviceLocalMemory(device vk.PhysicalDevice) vk.DeviceSize {
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(device, &memoryProperties)
	memoryProperties.Deref()

	var total vk.DeviceSize
	for i := uint32(0); i < memoryProperties.MemoryHeapCount; i++ {
		memoryProperties.MemoryHeaps[i].Deref()
		heap := memoryProperties.MemoryHeaps[i]
		if heap.Flags&vk.MemoryHeapFlags(vk.MemoryHeapDeviceLocalBit) != 0 {
			total += heap.Size
		}
	}
	return total
}

func queryQueueFamilies(device vk.PhysicalDevice, surface vk.Surface) ([]queueFamily, error) {
	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &familyCount, nil)
	if familyCount == 0 {
		return nil, errors.New("physical device reports no queue families")
	}
	properties := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &familyCount, properties)

	families := make([]queueFamily, familyCount)
	for i := uint32(0); i < familyCount; i++ {
		properties[i].Deref()
		var supported vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(device, i, surface, &supported)
		families[i] = queueFamily{
			index:   i,
			flags:   properties[i].QueueFlags,
			count:   properties[i].QueueCount,
			present: supported.B(),
		}
	}
	return families, nil
}

// VulkanDevice owns the logical device, its per-role queues, command
// pools and buffers, and the named pipeline registry. Reads (queue
// submission, presentation) take the read lock; pipeline creation and
// render pass recording take the write lock.
type VulkanDevice struct {
	mu  sync.RWMutex
	log log.FieldLogger

	physicalDevice vk.PhysicalDevice
	handle         *deviceHandle

	assignments map[QueueRole]QueueFamilyAssignment
	queues      map[QueueRole][]vk.Queue

	commandPools   map[QueueRole]vk.CommandPool
	commandBuffers map[QueueRole][]vk.CommandBuffer

	pipelines map[string]*VulkanPipeline
}

func (d *VulkanDevice) createCommandPools() error {
	device := d.handle.vkDevice()
	for _, role := range queueRoles {
		cpci := vk.CommandPoolCreateInfo{
			SType:            vk.StructureTypeCommandPoolCreateInfo,
			QueueFamilyIndex: d.assignments[role].Family,
			Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		}
		var pool vk.CommandPool
		if err := vk.Error(vk.CreateCommandPool(device, &cpci, nil, &pool)); err != nil {
			return errors.New("vk.CreateCommandPool(" + role.String() + "): " + err.Error())
		}
		d.commandPools[role] = pool

		cbai := vk.CommandBufferAllocateInfo{
			SType:              vk.StructureTypeCommandBufferAllocateInfo,
			CommandPool:        pool,
			Level:              vk.CommandBufferLevelPrimary,
			CommandBufferCount: MaxFramesInFlight,
		}
		buffers := make([]vk.CommandBuffer, MaxFramesInFlight)
		if err := vk.Error(vk.AllocateCommandBuffers(device, &cbai, buffers)); err != nil {
			return errors.New("vk.AllocateCommandBuffers(" + role.String() + "): " + err.Error())
		}
		d.commandBuffers[role] = buffers
	}
	return nil
}

// PhysicalDevice returns the selected adapter handle.
func (d *VulkanDevice) PhysicalDevice() vk.PhysicalDevice {
	return d.physicalDevice
}

// QueueFamilyAssignment returns the family assignment for a role.
func (d *VulkanDevice) QueueFamilyAssignment(role QueueRole) QueueFamilyAssignment {
	return d.assignments[role]
}

// CreatePipeline builds a graphics pipeline from the two shader files
// and registers it under name. The shader paths are resolved relative
// to the running executable and checked before any GPU object is
// created; on any failure the registry is left untouched.
func (d *VulkanDevice) CreatePipeline(surface *VulkanSurface, vertexPath, fragmentPath, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.pipelines[name]; exists {
		return fmt.Errorf("%w: %q", ErrPipelineExists, name)
	}
	for _, path := range []string{vertexPath, fragmentPath} {
		resolved, err := executableRelative(path)
		if err != nil {
			return err
		}
		if _, err := os.Stat(resolved); err != nil {
			return fmt.Errorf("%w: %s", ErrShaderNotFound, resolved)
		}
	}

	pipeline, err := NewVulkanPipeline(d, surface, vertexPath, fragmentPath, d.log)
	if err != nil {
		return err
	}
	if _, exists := d.pipelines[name]; exists {
		pipeline.Destroy()
		return fmt.Errorf("%w: %q", ErrPipelineRegistry, name)
	}
	d.pipelines[name] = pipeline
	d.log.WithField("pipeline", name).Debug("Registered pipeline")
	return nil
}

// Pipeline looks a registered pipeline up by name.
func (d *VulkanDevice) Pipeline(name string) (*VulkanPipeline, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	pipeline, ok := d.pipelines[name]
	return pipeline, ok
}

// BeginGraphicsRenderPass prepares one frame: it waits on the frame's
// in-flight fence, resets it, acquires the next swapchain image, and
// records the render pass preamble (clear, pipeline bind, dynamic
// viewport and scissor) into the frame's graphics command buffer. It
// returns the acquired image index.
func (d *VulkanDevice) BeginGraphicsRenderPass(frameIndex int, surface *VulkanSurface, pipelineName string) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pipeline, ok := d.pipelines[pipelineName]
	if !ok {
		return 0, fmt.Errorf("no pipeline registered under %q", pipelineName)
	}

	device := d.handle.vkDevice()
	fence := []vk.Fence{surface.frameInFlight[frameIndex]}
	if err := vk.Error(vk.WaitForFences(device, 1, fence, vk.True, math.MaxUint64)); err != nil {
		return 0, errors.New("vk.WaitForFences(): " + err.Error())
	}
	if err := vk.Error(vk.ResetFences(device, 1, fence)); err != nil {
		return 0, errors.New("vk.ResetFences(): " + err.Error())
	}

	imageIndex, err := surface.AcquireNextImage()
	if err != nil {
		return 0, err
	}

	commandBuffer := d.commandBuffers[QueueGraphics][frameIndex]
	if err := vk.Error(vk.ResetCommandBuffer(commandBuffer, 0)); err != nil {
		return 0, errors.New("vk.ResetCommandBuffer(): " + err.Error())
	}
	cbbi := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if err := vk.Error(vk.BeginCommandBuffer(commandBuffer, &cbbi)); err != nil {
		return 0, errors.New("vk.BeginCommandBuffer(): " + err.Error())
	}

	extent := surface.Extent()
	clearValues := make([]vk.ClearValue, 1)
	clearValues[0].SetColor([]float32{0.05, 0.05, 0.08, 1.0})

	rpbi := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  pipeline.RenderPass(),
		Framebuffer: surface.Framebuffer(imageIndex),
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: extent,
		},
		ClearValueCount: 1,
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(commandBuffer, &rpbi, vk.SubpassContentsInline)
	vk.CmdBindPipeline(commandBuffer, vk.PipelineBindPointGraphics, pipeline.Handle())

	viewport := vk.Viewport{
		X: 0, Y: 0,
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}
	scissor := vk.Rect2D{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: extent,
	}
	vk.CmdSetViewport(commandBuffer, 0, 1, []vk.Viewport{viewport})
	vk.CmdSetScissor(commandBuffer, 0, 1, []vk.Rect2D{scissor})

	return imageIndex, nil
}

// DrawVertices records a non-indexed draw of vertexCount vertices with
// a single instance into the frame's graphics command buffer.
func (d *VulkanDevice) DrawVertices(frameIndex int, vertexCount uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	vk.CmdDraw(d.commandBuffers[QueueGraphics][frameIndex], vertexCount, 1, 0, 0)
}

// EndGraphicsRenderPass closes the render pass and the frame's
// graphics command buffer.
func (d *VulkanDevice) EndGraphicsRenderPass(frameIndex int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	commandBuffer := d.commandBuffers[QueueGraphics][frameIndex]
	vk.CmdEndRenderPass(commandBuffer)
	if err := vk.Error(vk.EndCommandBuffer(commandBuffer)); err != nil {
		return errors.New("vk.EndCommandBuffer(): " + err.Error())
	}
	return nil
}

// SubmitGraphicsQueue submits the frame's graphics command buffer with
// the given wait/signal semaphores and fence.
func (d *VulkanDevice) SubmitGraphicsQueue(frameIndex int, waits, signals []vk.Semaphore, stageMask []vk.PipelineStageFlags, fence vk.Fence) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	submit := []vk.SubmitInfo{{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(waits)),
		PWaitSemaphores:      waits,
		PWaitDstStageMask:    stageMask,
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{d.commandBuffers[QueueGraphics][frameIndex]},
		SignalSemaphoreCount: uint32(len(signals)),
		PSignalSemaphores:    signals,
	}}
	if err := vk.Error(vk.QueueSubmit(d.queues[QueueGraphics][0], 1, submit, fence)); err != nil {
		return errors.New("vk.QueueSubmit(): " + err.Error())
	}
	return nil
}

// PresentQueue hands the present info to the presentation engine.
//
// Presentation currently runs on the first graphics queue even when a
// distinct present family was assigned. The swapchain images are
// created in exclusive sharing mode against the graphics family, so
// routing this through the dedicated present queue is not just a
// one-line change.
// TODO: create the swapchain in concurrent sharing mode when the
// present family differs and present on queues[QueuePresent].
func (d *VulkanDevice) PresentQueue(presentInfo *vk.PresentInfo) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := vk.QueuePresent(d.queues[QueueGraphics][0], presentInfo)
	if result == vk.ErrorOutOfDate {
		return ErrSwapchainOutOfDate
	}
	if err := vk.Error(result); err != nil {
		return errors.New("vk.QueuePresent(): " + err.Error())
	}
	return nil
}

// WaitIdle blocks until the logical device has finished all work.
func (d *VulkanDevice) WaitIdle() error {
	if err := vk.Error(vk.DeviceWaitIdle(d.handle.vkDevice())); err != nil {
		return errors.New("vk.DeviceWaitIdle(): " + err.Error())
	}
	return nil
}

// Destroy frees command buffers and pools, tears down every registered
// pipeline, and releases the device's reference on the logical device.
// Must run after the surface is destroyed.
func (d *VulkanDevice) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()

	device := d.handle.vkDevice()
	for _, role := range queueRoles {
		if buffers, ok := d.commandBuffers[role]; ok {
			vk.FreeCommandBuffers(device, d.commandPools[role], uint32(len(buffers)), buffers)
			delete(d.commandBuffers, role)
		}
		if pool, ok := d.commandPools[role]; ok {
			vk.DestroyCommandPool(device, pool, nil)
			delete(d.commandPools, role)
		}
	}

	for name, pipeline := range d.pipelines {
		d.log.WithField("pipeline", name).Debug("Destroying pipeline")
		pipeline.Destroy()
		delete(d.pipelines, name)
	}

	d.log.Debug("Releasing logical device")
	d.handle.release()
}
