package core

import (
	"strconv"

	"github.com/gobuffalo/envy"
	vk "github.com/vulkan-go/vulkan"
)

// Configuration defines a global engine configuration setting
type Configuration struct {
	Instance InstanceConfiguration
	Renderer RendererConfiguration
	Time     TimeConfiguration
}

// InstanceConfiguration is used to configure the Vulkan instance
type InstanceConfiguration struct {
	AppName    string
	AppVersion Version

	// DebugMode enables the validation layer and debug reporting.
	DebugMode bool

	// Extensions and Layers are appended to the defaults. The
	// windowing layer supplies the platform surface extensions here.
	Extensions []string
	Layers     []string
}

// RendererConfiguration is used to configure the renderer
type RendererConfiguration struct {
	ScreenWidth  uint32
	ScreenHeight uint32

	// ShaderDirectory holds compiled shader bytecode, relative to the
	// running executable.
	ShaderDirectory string

	// SwapchainSize is the requested number of swapchain images. It is
	// clamped into the range the surface supports; zero means two.
	SwapchainSize uint32

	// PreferredFormat and PreferredPresentMode override the default
	// swapchain parameter selection when non-nil.
	PreferredFormat      *vk.SurfaceFormat
	PreferredPresentMode *vk.PresentMode
}

// TimeConfiguration is used to configure time services
type TimeConfiguration struct {
	// FramesPerSecond caps frames per second that is put out
	// To unlimit, set to 0
	FramesPerSecond int

	// EventPollDelay is the interval between event queue polls,
	// in milliseconds.
	EventPollDelay int
}

// FromEnv builds a Configuration from the process environment,
// falling back to defaults suitable for a development run. A .env
// file in the working directory is honoured.
func FromEnv() Configuration {
	return Configuration{
		Instance: InstanceConfiguration{
			AppName:    envy.Get("KOLIBRI_APP_NAME", "kolibri"),
			AppVersion: Version{0, 1, 0},
			DebugMode:  envBool("KOLIBRI_DEBUG", false),
		},
		Renderer: RendererConfiguration{
			ScreenWidth:     envUint32("KOLIBRI_WIDTH", 1280),
			ScreenHeight:    envUint32("KOLIBRI_HEIGHT", 720),
			ShaderDirectory: envy.Get("KOLIBRI_SHADER_DIR", "shaders"),
			SwapchainSize:   envUint32("KOLIBRI_SWAPCHAIN_SIZE", 2),
		},
		Time: TimeConfiguration{
			FramesPerSecond: envInt("KOLIBRI_FPS", 60),
			EventPollDelay:  envInt("KOLIBRI_EVENT_POLL_MS", 5),
		},
	}
}

func envBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(envy.Get(key, strconv.FormatBool(fallback)))
	if err != nil {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(envy.Get(key, strconv.Itoa(fallback)))
	if err != nil {
		return fallback
	}
	return v
}

func envUint32(key string, fallback uint32) uint32 {
	v, err := strconv.ParseUint(envy.Get(key, strconv.FormatUint(uint64(fallback), 10)), 10, 32)
	if err != nil {
		return fallback
	}
	return uint32(v)
}
