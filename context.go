// Package arclight is the renderer facade: window and device ownership,
// frame presentation, and access to the picking and atlas services.
package arclight

import (
	"fmt"
	"runtime"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/arclight3d/arclight/core"
)

// Context owns the window, surface, adapter and device. On device loss the
// whole context is discarded and a fresh one built; nothing is patched
// incrementally.
type Context struct {
	window        *glfw.Window
	surface       *wgpu.Surface
	adapter       *wgpu.Adapter
	device        *wgpu.Device
	queue         *wgpu.Queue
	surfaceConfig *wgpu.SurfaceConfiguration
}

// NewContext creates the window and acquires the device. Must run on the
// main OS thread, which it locks.
func NewContext(opts Options) (*Context, error) {
	runtime.LockOSThread()
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("glfw init: %w", err)
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	window, err := glfw.CreateWindow(opts.Width, opts.Height, opts.Title, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create window: %w", err)
	}

	ctx, err := newContextForWindow(window, opts)
	if err != nil {
		window.Destroy()
		return nil, err
	}
	return ctx, nil
}

// newContextForWindow acquires surface, adapter and device for an existing
// window. Rebuilding after device loss reuses the window through this path.
func newContextForWindow(window *glfw.Window, opts Options) (*Context, error) {
	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	surface := instance.CreateSurface(wgpuglfw.GetSurfaceDescriptor(window))
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		surface.Release()
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "arclight device",
	})
	if err != nil {
		adapter.Release()
		surface.Release()
		return nil, fmt.Errorf("request device: %w", err)
	}

	ctx := &Context{
		window:  window,
		surface: surface,
		adapter: adapter,
		device:  device,
		queue:   device.GetQueue(),
	}
	w, h := window.GetFramebufferSize()
	ctx.configureSurface(uint32(w), uint32(h), opts.VSync)
	return ctx, nil
}

func (c *Context) configureSurface(width, height uint32, vsync bool) {
	caps := c.surface.GetCapabilities(c.adapter)
	mode := wgpu.PresentModeImmediate
	if vsync {
		mode = wgpu.PresentModeFifo
	}
	config := wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      caps.Formats[0],
		Width:       width,
		Height:      height,
		PresentMode: mode,
		AlphaMode:   caps.AlphaModes[0],
	}
	c.surface.Configure(c.adapter, c.device, &config)
	c.surfaceConfig = &config
}

// Device returns the live device.
func (c *Context) Device() *wgpu.Device { return c.device }

// Window returns the GLFW window for input and event polling.
func (c *Context) Window() *glfw.Window { return c.window }

// SurfaceFormat is the swapchain texture format the present blit targets.
func (c *Context) SurfaceFormat() wgpu.TextureFormat { return c.surfaceConfig.Format }

// AcquireFrame returns the next swapchain texture view. core.ErrDeviceLost
// is returned when acquisition keeps failing after a reconfigure, which
// callers treat as a signal to rebuild the context.
func (c *Context) AcquireFrame(vsync bool) (*wgpu.Texture, *wgpu.TextureView, error) {
	tex, err := c.surface.GetCurrentTexture()
	if err != nil {
		w, h := c.window.GetFramebufferSize()
		c.configureSurface(uint32(w), uint32(h), vsync)
		tex, err = c.surface.GetCurrentTexture()
		if err != nil {
			return nil, nil, core.ErrDeviceLost
		}
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, nil, core.ErrDeviceLost
	}
	return tex, view, nil
}

// Present flips the swapchain.
func (c *Context) Present() { c.surface.Present() }

// ReleaseKeepWindow drops the GPU side of the context but leaves the window
// alive for a rebuild.
func (c *Context) ReleaseKeepWindow() {
	if c.device != nil {
		c.device.Release()
		c.device = nil
	}
	if c.adapter != nil {
		c.adapter.Release()
		c.adapter = nil
	}
	if c.surface != nil {
		c.surface.Release()
		c.surface = nil
	}
}

// Close releases everything including the window.
func (c *Context) Close() {
	c.ReleaseKeepWindow()
	if c.window != nil {
		c.window.Destroy()
		c.window = nil
	}
	glfw.Terminate()
}
