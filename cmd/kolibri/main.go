package main

import (
	"path/filepath"
	"runtime"
	"unsafe"

	log "github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"
	vk "github.com/vulkan-go/vulkan"

	"github.com/kolibri3d/kolibri/core"
)

func init() {
	runtime.LockOSThread()
}

func newWindow(cfg core.Configuration) *sdl.Window {
	window, err := sdl.CreateWindow(cfg.Instance.AppName,
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		int32(cfg.Renderer.ScreenWidth),
		int32(cfg.Renderer.ScreenHeight),
		sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		log.Fatal(err)
	}
	return window
}

func main() {
	configuration := core.FromEnv()
	if configuration.Instance.DebugMode {
		log.SetLevel(log.DebugLevel)
	}

	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		log.Fatal(err)
	}
	defer sdl.Quit()

	if err := sdl.VulkanLoadLibrary(""); err != nil {
		log.Fatal(err)
	}
	defer sdl.VulkanUnloadLibrary()

	sdlWindow := newWindow(configuration)
	defer sdlWindow.Destroy()

	configuration.Instance.Extensions = sdlWindow.VulkanGetInstanceExtensions()

	windowInfo := core.WindowInfo{
		CreateSurface: func(instance vk.Instance) (unsafe.Pointer, error) {
			return sdlWindow.VulkanCreateSurface(instance)
		},
		Width:  configuration.Renderer.ScreenWidth,
		Height: configuration.Renderer.ScreenHeight,
	}

	renderer, err := core.NewRenderer(configuration, windowInfo,
		sdl.VulkanGetVkGetInstanceProcAddr(), log.StandardLogger())
	if err != nil {
		log.Fatal(err)
	}

	shaderDir := configuration.Renderer.ShaderDirectory
	if err := renderer.LoadShader("basic",
		filepath.Join(shaderDir, "basic.vert.spv"),
		filepath.Join(shaderDir, "basic.frag.spv")); err != nil {
		renderer.Destroy()
		log.Fatal(err)
	}

	time := core.NewTime(configuration.Time)
	exitC := make(chan struct{}, 2)

EventLoop:
	for {
		select {
		case <-exitC:
			log.Info("Event loop exited")
			break EventLoop
		case <-time.FpsTicker().C:
			if err := renderer.Render(); err != nil {
				log.Error("Render failed: " + err.Error())
				exitC <- struct{}{}
				continue EventLoop
			}
		case <-time.EventTicker().C:
			var event sdl.Event
			for event = sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
				switch et := event.(type) {
				case *sdl.KeyboardEvent:
					if et.Keysym.Sym == sdl.K_ESCAPE {
						exitC <- struct{}{}
						continue EventLoop
					}
				case *sdl.WindowEvent:
					if et.Event == sdl.WINDOWEVENT_SIZE_CHANGED {
						if err := renderer.Resize(uint32(et.Data1), uint32(et.Data2)); err != nil {
							log.Error("Resize failed: " + err.Error())
							exitC <- struct{}{}
							continue EventLoop
						}
					}
				case *sdl.QuitEvent:
					exitC <- struct{}{}
					continue EventLoop
				}
			}
		}
	}

	time.Stop()
	renderer.Destroy()
}
