package core

import (
	"math"
	"testing"

	vk "github.com/vulkan-go/vulkan"
)

func TestChooseSurfaceFormat(t *testing.T) {
	bgraUnorm := vk.SurfaceFormat{Format: vk.FormatB8g8r8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear}
	bgraSrgb := vk.SurfaceFormat{Format: vk.FormatB8g8r8a8Srgb, ColorSpace: vk.ColorSpaceSrgbNonlinear}
	rgbaUnorm := vk.SurfaceFormat{Format: vk.FormatR8g8b8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear}

	t.Run("honours the preferred format when offered", func(t *testing.T) {
		got := chooseSurfaceFormat([]vk.SurfaceFormat{bgraUnorm, rgbaUnorm}, &rgbaUnorm)
		if got != rgbaUnorm {
			t.Errorf("got %+v, want the preferred format", got)
		}
	})

	t.Run("ignores a preferred format the surface lacks", func(t *testing.T) {
		preferred := vk.SurfaceFormat{Format: vk.FormatR16g16b16a16Sfloat, ColorSpace: vk.ColorSpaceSrgbNonlinear}
		got := chooseSurfaceFormat([]vk.SurfaceFormat{rgbaUnorm, bgraSrgb}, &preferred)
		if got != bgraSrgb {
			t.Errorf("got %+v, want the BGRA fallback", got)
		}
	})

	t.Run("falls back to 8-bit BGRA in sRGB", func(t *testing.T) {
		got := chooseSurfaceFormat([]vk.SurfaceFormat{rgbaUnorm, bgraUnorm}, nil)
		if got != bgraUnorm {
			t.Errorf("got %+v, want %+v", got, bgraUnorm)
		}
	})

	t.Run("takes the first format as a last resort", func(t *testing.T) {
		got := chooseSurfaceFormat([]vk.SurfaceFormat{rgbaUnorm}, nil)
		if got != rgbaUnorm {
			t.Errorf("got %+v, want the first listed format", got)
		}
	})
}

func TestChoosePresentMode(t *testing.T) {
	t.Run("honours the preferred mode when offered", func(t *testing.T) {
		preferred := vk.PresentModeMailbox
		got := choosePresentMode([]vk.PresentMode{vk.PresentModeFifo, vk.PresentModeMailbox}, &preferred)
		if got != vk.PresentModeMailbox {
			t.Errorf("got %v, want mailbox", got)
		}
	})

	t.Run("ignores a preferred mode the surface lacks", func(t *testing.T) {
		preferred := vk.PresentModeMailbox
		got := choosePresentMode([]vk.PresentMode{vk.PresentModeFifo, vk.PresentModeFifoRelaxed}, &preferred)
		if got != vk.PresentModeFifoRelaxed {
			t.Errorf("got %v, want relaxed FIFO", got)
		}
	})

	t.Run("prefers relaxed FIFO over FIFO", func(t *testing.T) {
		got := choosePresentMode([]vk.PresentMode{vk.PresentModeFifo, vk.PresentModeFifoRelaxed}, nil)
		if got != vk.PresentModeFifoRelaxed {
			t.Errorf("got %v, want relaxed FIFO", got)
		}
	})

	t.Run("falls back to FIFO", func(t *testing.T) {
		got := choosePresentMode([]vk.PresentMode{vk.PresentModeImmediate, vk.PresentModeFifo}, nil)
		if got != vk.PresentModeFifo {
			t.Errorf("got %v, want FIFO", got)
		}
	})
}

func TestChooseExtent(t *testing.T) {
	t.Run("takes the current extent when defined", func(t *testing.T) {
		capabilities := vk.SurfaceCapabilities{
			CurrentExtent: vk.Extent2D{Width: 800, Height: 600},
		}
		got := chooseExtent(capabilities, 1920, 1080)
		if got.Width != 800 || got.Height != 600 {
			t.Errorf("got %+v, want the surface's current extent", got)
		}
	})

	t.Run("clamps the window size when the extent is unset", func(t *testing.T) {
		capabilities := vk.SurfaceCapabilities{
			CurrentExtent:  vk.Extent2D{Width: math.MaxUint32, Height: math.MaxUint32},
			MinImageExtent: vk.Extent2D{Width: 320, Height: 240},
			MaxImageExtent: vk.Extent2D{Width: 1280, Height: 720},
		}
		got := chooseExtent(capabilities, 1920, 100)
		if got.Width != 1280 || got.Height != 240 {
			t.Errorf("got %+v, want the clamped window size", got)
		}
	})
}

func TestSwapImageCount(t *testing.T) {
	tests := []struct {
		name              string
		desired, min, max uint32
		want              uint32
	}{
		{"double buffering by default", 0, 1, 0, 2},
		{"requested count honoured", 3, 1, 0, 3},
		{"surface minimum wins over the request", 2, 3, 0, 3},
		{"surface maximum caps the request", 4, 1, 3, 3},
		{"unbounded maximum leaves the request", 2, 2, 0, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := swapImageCount(tt.desired, tt.min, tt.max); got != tt.want {
				t.Errorf("swapImageCount(%d, %d, %d) = %d, want %d", tt.desired, tt.min, tt.max, got, tt.want)
			}
		})
	}
}

func TestNextFrameIndex(t *testing.T) {
	frame := 0
	var got []int
	for i := 0; i < 5; i++ {
		frame = nextFrameIndex(frame)
		got = append(got, frame)
	}
	want := []int{1, 0, 1, 0, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frame sequence = %v, want %v", got, want)
		}
	}
}
