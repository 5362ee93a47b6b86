package core

import (
	"errors"
	"unsafe"

	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"
)

const (
	engineName = "kolibri"
)

var engineVersion = Version{0, 1, 0}

// NewVulkanContext loads the Vulkan driver and creates the instance.
// procAddr is the loader entry point supplied by the windowing layer;
// when nil the default system loader is used. There is no degraded
// mode: if the driver or the instance cannot be created the returned
// error is terminal and nothing was left allocated.
func NewVulkanContext(cfg InstanceConfiguration, procAddr unsafe.Pointer, logger log.FieldLogger) (*VulkanContext, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	logger = logger.WithField("component", "vulkan/context")

	if cfg.DebugMode {
		cfg.Layers = append(cfg.Layers, "VK_LAYER_KHRONOS_validation")
		cfg.Extensions = append(cfg.Extensions, "VK_EXT_debug_report")
	}

	logger.Debug("Loading Vulkan driver")
	if procAddr == nil {
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			return nil, errors.New("vk.SetDefaultGetInstanceProcAddr(): " + err.Error())
		}
	} else {
		vk.SetGetInstanceProcAddr(procAddr)
	}

	if err := vk.Init(); err != nil {
		return nil, errors.New("vk.Init(): " + err.Error())
	}

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         vk.MakeVersion(1, 1, 0),
		PApplicationName:   safeString(cfg.AppName),
		ApplicationVersion: cfg.AppVersion.vulkan(),
		PEngineName:        safeString(engineName),
		EngineVersion:      engineVersion.vulkan(),
	}

	instanceInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        appInfo,
		EnabledExtensionCount:   uint32(len(cfg.Extensions)),
		PpEnabledExtensionNames: safeStrings(cfg.Extensions),
		EnabledLayerCount:       uint32(len(cfg.Layers)),
		PpEnabledLayerNames:     safeStrings(cfg.Layers),
	}

	logger.Debug("Creating Vulkan instance")
	var instance vk.Instance
	if err := vk.Error(vk.CreateInstance(&instanceInfo, nil, &instance)); err != nil {
		return nil, errors.New("vk.CreateInstance(): " + err.Error())
	}
	vk.InitInstance(instance)
	logger.Debug("Created instance")

	return &VulkanContext{
		log:      logger,
		appName:  cfg.AppName,
		instance: instance,
	}, nil
}

// VulkanContext owns the driver entry point and the instance handle.
// One per process lifetime; created first, destroyed last.
type VulkanContext struct {
	log log.FieldLogger

	appName  string
	instance vk.Instance
}

// Instance returns the instance handle.
func (c *VulkanContext) Instance() vk.Instance {
	return c.instance
}

// Destroy destroys the instance. Every object created from it must
// already be gone.
func (c *VulkanContext) Destroy() {
	c.log.Debug("Destroying instance")
	vk.DestroyInstance(c.instance, nil)
	c.instance = nil
}
