package core

import (
	"errors"
	"os"
	"unsafe"

	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"

	"github.com/kolibri3d/kolibri/utility/cachefile"
)

// pipelineCacheFile sits next to the executable and carries the
// driver's pipeline cache blob between runs.
const pipelineCacheFile = "pipeline.cache"

// VulkanPipeline is a complete graphics pipeline: shader modules,
// pipeline cache, render pass, layout and the pipeline object itself.
// It observes the logical device without owning a reference, so it
// must be destroyed while the owning device is still alive.
type VulkanPipeline struct {
	log log.FieldLogger

	device *deviceHandle

	vertexShader   vk.ShaderModule
	fragmentShader vk.ShaderModule
	cache          vk.PipelineCache
	cachePath      string
	layout         vk.PipelineLayout
	renderPass     vk.RenderPass
	pipeline       vk.Pipeline
}

// NewVulkanPipeline builds a graphics pipeline that renders an
// attribute-less triangle list into the surface's colour format. Both
// shader paths are resolved relative to the running executable. The
// pipeline cache is primed from disk when a previous run left one.
func NewVulkanPipeline(device *VulkanDevice, surface *VulkanSurface, vertexPath, fragmentPath string, logger log.FieldLogger) (*VulkanPipeline, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	p := &VulkanPipeline{
		log:    logger.WithField("component", "vulkan/pipeline"),
		device: device.handle,
	}

	cleanup := func() {
		p.destroyObjects()
	}

	var err error
	if p.vertexShader, err = p.createShaderModule(vertexPath); err != nil {
		return nil, err
	}
	if p.fragmentShader, err = p.createShaderModule(fragmentPath); err != nil {
		cleanup()
		return nil, err
	}
	if err = p.createPipelineCache(); err != nil {
		cleanup()
		return nil, err
	}
	if err = p.createRenderPass(surface.Format().Format); err != nil {
		cleanup()
		return nil, err
	}
	if err = p.createPipeline(); err != nil {
		cleanup()
		return nil, err
	}
	return p, nil
}

func (p *VulkanPipeline) createShaderModule(path string) (vk.ShaderModule, error) {
	resolved, err := executableRelative(path)
	if err != nil {
		return vk.NullShaderModule, err
	}
	words, err := loadShaderWords(resolved)
	if err != nil {
		return vk.NullShaderModule, err
	}

	smci := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(words) * 4),
		PCode:    words,
	}
	var module vk.ShaderModule
	if err := vk.Error(vk.CreateShaderModule(p.device.vkDevice(), &smci, nil, &module)); err != nil {
		return vk.NullShaderModule, errors.New("vk.CreateShaderModule(): " + err.Error())
	}
	return module, nil
}

func (p *VulkanPipeline) createPipelineCache() error {
	resolved, err := executableRelative(pipelineCacheFile)
	if err != nil {
		return err
	}
	p.cachePath = resolved

	pcci := vk.PipelineCacheCreateInfo{
		SType: vk.StructureTypePipelineCacheCreateInfo,
	}
	// A stale or corrupt cache file is not an error, the driver
	// validates the blob and falls back to an empty cache.
	if blob, err := cachefile.Read(resolved); err == nil && len(blob) > 0 {
		pcci.InitialDataSize = uint(len(blob))
		pcci.PInitialData = unsafe.Pointer(&blob[0])
		p.log.WithField("bytes", len(blob)).Debug("Primed pipeline cache from disk")
	} else if err != nil && !os.IsNotExist(err) {
		p.log.WithField("path", resolved).Warn("Ignoring unreadable pipeline cache file")
	}

	var cache vk.PipelineCache
	if err := vk.Error(vk.CreatePipelineCache(p.device.vkDevice(), &pcci, nil, &cache)); err != nil {
		return errors.New("vk.CreatePipelineCache(): " + err.Error())
	}
	p.cache = cache
	return nil
}

// createRenderPass builds a single-subpass pass that clears the colour
// attachment, stores it, and hands it over in presentation layout. The
// external dependency orders the clear after the presentation engine
// is done reading the image.
func (p *VulkanPipeline) createRenderPass(format vk.Format) error {
	attachment := vk.AttachmentDescription{
		Format:         format,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutPresentSrc,
	}
	colorRef := vk.AttachmentReference{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments:    []vk.AttachmentReference{colorRef},
	}
	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
	}

	rpci := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: 1,
		PAttachments:    []vk.AttachmentDescription{attachment},
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}
	var renderPass vk.RenderPass
	if err := vk.Error(vk.CreateRenderPass(p.device.vkDevice(), &rpci, nil, &renderPass)); err != nil {
		return errors.New("vk.CreateRenderPass(): " + err.Error())
	}
	p.renderPass = renderPass
	return nil
}

func (p *VulkanPipeline) createPipeline() error {
	device := p.device.vkDevice()

	plci := vk.PipelineLayoutCreateInfo{
		SType: vk.StructureTypePipelineLayoutCreateInfo,
	}
	var layout vk.PipelineLayout
	if err := vk.Error(vk.CreatePipelineLayout(device, &plci, nil, &layout)); err != nil {
		return errors.New("vk.CreatePipelineLayout(): " + err.Error())
	}
	p.layout = layout

	stages := []vk.PipelineShaderStageCreateInfo{{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageVertexBit,
		Module: p.vertexShader,
		PName:  safeString("main"),
	}, {
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageFragmentBit,
		Module: p.fragmentShader,
		PName:  safeString("main"),
	}}

	// Vertices come out of gl_VertexIndex, there are no buffers bound.
	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: vk.PrimitiveTopologyTriangleList,
	}
	// Actual viewport and scissor are dynamic, recorded per frame.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}
	rasterization := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vk.PolygonModeFill,
		CullMode:    vk.CullModeFlags(vk.CullModeBackBit),
		FrontFace:   vk.FrontFaceClockwise,
		LineWidth:   1.0,
	}
	multisample := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
	}
	blendAttachment := vk.PipelineColorBlendAttachmentState{
		BlendEnable:         vk.True,
		SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
		DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		ColorBlendOp:        vk.BlendOpAdd,
		SrcAlphaBlendFactor: vk.BlendFactorSrcAlpha,
		DstAlphaBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		AlphaBlendOp:        vk.BlendOpAdd,
		ColorWriteMask: vk.ColorComponentFlags(
			vk.ColorComponentRBit | vk.ColorComponentGBit |
				vk.ColorComponentBBit | vk.ColorComponentABit),
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{blendAttachment},
	}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: 2,
		PDynamicStates:    []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor},
	}

	gpci := []vk.GraphicsPipelineCreateInfo{{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterization,
		PMultisampleState:   &multisample,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamicState,
		Layout:              p.layout,
		RenderPass:          p.renderPass,
		Subpass:             0,
	}}

	pipelines := make([]vk.Pipeline, 1)
	if err := vk.Error(vk.CreateGraphicsPipelines(device, p.cache, 1, gpci, nil, pipelines)); err != nil {
		return errors.New("vk.CreateGraphicsPipelines(): " + err.Error())
	}
	p.pipeline = pipelines[0]
	return nil
}

// RenderPass returns the pipeline's render pass handle.
func (p *VulkanPipeline) RenderPass() vk.RenderPass {
	return p.renderPass
}

// Handle returns the pipeline object handle.
func (p *VulkanPipeline) Handle() vk.Pipeline {
	return p.pipeline
}

// persistCache writes the driver's pipeline cache blob to disk. Best
// effort, a failure only logs.
func (p *VulkanPipeline) persistCache() {
	if p.cache == vk.NullPipelineCache || p.cachePath == "" {
		return
	}
	device := p.device.vkDevice()

	var size uint
	if err := vk.Error(vk.GetPipelineCacheData(device, p.cache, &size, nil)); err != nil || size == 0 {
		return
	}
	blob := make([]byte, size)
	if err := vk.Error(vk.GetPipelineCacheData(device, p.cache, &size, unsafe.Pointer(&blob[0]))); err != nil {
		return
	}
	if err := cachefile.Write(p.cachePath, blob[:size]); err != nil {
		p.log.WithField("path", p.cachePath).Warn("Could not persist pipeline cache: " + err.Error())
		return
	}
	p.log.WithField("bytes", size).Debug("Persisted pipeline cache")
}

func (p *VulkanPipeline) destroyObjects() {
	device := p.device.vkDevice()
	if p.pipeline != vk.NullPipeline {
		vk.DestroyPipeline(device, p.pipeline, nil)
		p.pipeline = vk.NullPipeline
	}
	if p.renderPass != vk.NullRenderPass {
		vk.DestroyRenderPass(device, p.renderPass, nil)
		p.renderPass = vk.NullRenderPass
	}
	if p.cache != vk.NullPipelineCache {
		vk.DestroyPipelineCache(device, p.cache, nil)
		p.cache = vk.NullPipelineCache
	}
	if p.layout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(device, p.layout, nil)
		p.layout = vk.NullPipelineLayout
	}
	if p.vertexShader != vk.NullShaderModule {
		vk.DestroyShaderModule(device, p.vertexShader, nil)
		p.vertexShader = vk.NullShaderModule
	}
	if p.fragmentShader != vk.NullShaderModule {
		vk.DestroyShaderModule(device, p.fragmentShader, nil)
		p.fragmentShader = vk.NullShaderModule
	}
}

// Destroy persists the pipeline cache and destroys every owned object.
// The pipeline does not keep the device alive, so destroying a
// pipeline after its device is a lifecycle bug and panics.
func (p *VulkanPipeline) Destroy() {
	if !p.device.alive() {
		panic("pipeline destroyed after its logical device")
	}
	p.persistCache()
	p.destroyObjects()
}
