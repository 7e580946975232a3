package arclight

import (
	"context"
	"errors"
	"image"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/arclight3d/arclight/core"
	"github.com/arclight3d/arclight/gpu"
	"github.com/arclight3d/arclight/pick"
	"github.com/arclight3d/arclight/render"
)

// blitWGSL presents the final image: a fullscreen triangle sampling the
// orchestrator's output into the swapchain.
const blitWGSL = `@group(0) @binding(0) var blit_tex: texture_2d<f32>;
@group(0) @binding(1) var blit_smp: sampler;

struct VertexOut {
    @builtin(position) pos: vec4<f32>,
    @location(0) uv: vec2<f32>,
};

@vertex
fn vs_main(@builtin(vertex_index) vi: u32) -> VertexOut {
    var out: VertexOut;
    let uv = vec2<f32>(f32((vi << 1u) & 2u), f32(vi & 2u));
    out.pos = vec4<f32>(uv * 2.0 - 1.0, 0.0, 1.0);
    out.uv = vec2<f32>(uv.x, 1.0 - uv.y);
    return out;
}

@fragment
fn fs_main(in: VertexOut) -> @location(0) vec4<f32> {
    return textureSample(blit_tex, blit_smp, in.uv);
}
`

// Renderer ties the context, resource pool, pipeline cache, orchestrator,
// atlas and picker together behind one facade.
type Renderer struct {
	opts Options
	log  core.Logger

	ctx    *Context
	pool   *gpu.ResourcePool
	cache  *gpu.PipelineCache
	atlas  *gpu.Atlas
	orch   *render.Orchestrator
	picker *pick.Picker

	blitPipeline *wgpu.RenderPipeline
	blitSampler  *wgpu.Sampler
	blitGroup    *wgpu.BindGroup
	blitView     *wgpu.TextureView

	frameCount int
	fpsTime    float64
	lastTime   float64
	fps        float64
}

// New opens the window, acquires the device and builds the frame machinery.
func New(opts Options) (*Renderer, error) {
	opts = opts.withDefaults()
	ctx, err := NewContext(opts)
	if err != nil {
		return nil, err
	}
	r := &Renderer{opts: opts, log: opts.Logger, ctx: ctx}
	if err := r.initGPU(); err != nil {
		ctx.Close()
		return nil, err
	}
	return r, nil
}

func (r *Renderer) initGPU() error {
	device := r.ctx.Device()
	r.pool = gpu.NewResourcePool(device, r.log)
	r.cache = gpu.NewPipelineCache(gpu.DeviceBuilder(device), r.log)

	atlas, err := gpu.NewAtlas(device, r.opts.AtlasExtent, r.opts.AtlasSlot, r.opts.AtlasPadding, r.opts.AtlasLayers, r.log)
	if err != nil {
		return err
	}
	r.atlas = atlas

	w, h := r.ctx.Window().GetFramebufferSize()
	r.orch = render.NewOrchestrator(device, r.pool, r.cache, r.atlas, uint32(w), uint32(h), r.log)
	r.picker = pick.NewPicker(device, r.pool, r.cache, r.log)
	return r.initBlit()
}

func (r *Renderer) initBlit() error {
	device := r.ctx.Device()
	module, err := device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "present blit",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: blitWGSL},
	})
	if err != nil {
		return err
	}
	defer module.Release()

	r.blitPipeline, err = device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label: "present blit",
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format:    r.ctx.SurfaceFormat(),
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count:                  1,
			Mask:                   0xFFFFFFFF,
			AlphaToCoverageEnabled: false,
		},
	})
	if err != nil {
		return err
	}

	r.blitSampler, err = device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         "present blit",
		AddressModeU:  wgpu.AddressModeClampToEdge,
		AddressModeV:  wgpu.AddressModeClampToEdge,
		AddressModeW:  wgpu.AddressModeClampToEdge,
		MagFilter:     wgpu.FilterModeLinear,
		MinFilter:     wgpu.FilterModeLinear,
		MipmapFilter:  wgpu.MipmapFilterModeNearest,
		LodMinClamp:   0,
		LodMaxClamp:   1,
		Compare:       wgpu.CompareFunctionUndefined,
		MaxAnisotropy: 1,
	})
	return err
}

// RenderFrame renders the scene and presents the result. A device loss
// triggers a full GPU-side rebuild; the error is still returned so the
// caller can drop frame-coupled state such as atlas entries.
func (r *Renderer) RenderFrame(scene *render.Scene) error {
	w, h := r.ctx.Window().GetFramebufferSize()
	r.orch.Resize(uint32(w), uint32(h))

	if err := r.orch.RenderFrame(scene); err != nil {
		return err
	}
	output := r.orch.Output()
	if output == nil {
		return nil
	}

	if err := r.present(output); err != nil {
		if errors.Is(err, core.ErrDeviceLost) {
			if rerr := r.Recover(); rerr != nil {
				return rerr
			}
		}
		return err
	}
	r.updateStats()
	return nil
}

func (r *Renderer) present(output *gpu.Target) error {
	tex, view, err := r.ctx.AcquireFrame(r.opts.VSync)
	if err != nil {
		return err
	}
	defer tex.Release()
	defer view.Release()

	if r.blitGroup == nil || r.blitView != output.View {
		if r.blitGroup != nil {
			r.blitGroup.Release()
		}
		r.blitGroup, err = r.ctx.Device().CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:  "present blit",
			Layout: r.blitPipeline.GetBindGroupLayout(0),
			Entries: []wgpu.BindGroupEntry{
				{Binding: 0, TextureView: output.View},
				{Binding: 1, Sampler: r.blitSampler},
			},
		})
		if err != nil {
			return err
		}
		r.blitView = output.View
	}

	enc, err := r.ctx.Device().CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "present"})
	if err != nil {
		return err
	}
	rp := enc.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: "present",
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{A: 1},
		}},
	})
	rp.SetPipeline(r.blitPipeline)
	rp.SetBindGroup(0, r.blitGroup, nil)
	rp.Draw(3, 1, 0, 0)
	rp.End()

	cmd, err := enc.Finish(nil)
	if err != nil {
		return err
	}
	r.ctx.queue.Submit(cmd)
	r.ctx.Present()
	return nil
}

func (r *Renderer) updateStats() {
	now := glfw.GetTime()
	if r.lastTime > 0 {
		r.frameCount++
		r.fpsTime += now - r.lastTime
		if r.fpsTime >= 1.0 {
			r.fps = float64(r.frameCount) / r.fpsTime
			r.frameCount = 0
			r.fpsTime = 0
		}
	}
	r.lastTime = now
}

// FPS is the frame rate averaged over the last completed second.
func (r *Renderer) FPS() float64 { return r.fps }

// Window exposes the GLFW window for event polling and input.
func (r *Renderer) Window() *glfw.Window { return r.ctx.Window() }

// Pick resolves the object under a pixel of the last rendered frame.
// features must carry the same geometry flags the frame rendered with.
func (r *Renderer) Pick(ctx context.Context, features core.FeatureDescriptor, x, y uint32) <-chan pick.Result {
	return r.picker.Pick(ctx, features, x, y)
}

// AddTexture registers an image in the atlas and returns its entry.
func (r *Renderer) AddTexture(img image.Image, srgbEncoded bool) (gpu.AtlasEntry, error) {
	return r.atlas.Add(img, srgbEncoded)
}

// RemoveTexture recycles an atlas entry's slot.
func (r *Renderer) RemoveTexture(id string) { r.atlas.Remove(id) }

// Recover rebuilds every GPU-side object from a fresh device after a device
// loss. Atlas contents are gone afterwards; callers re-add their textures.
func (r *Renderer) Recover() error {
	r.log.Warnf("device lost, rebuilding")
	r.releaseGPU()
	r.ctx.ReleaseKeepWindow()

	ctx, err := newContextForWindow(r.ctx.Window(), r.opts)
	if err != nil {
		return err
	}
	r.ctx = ctx
	return r.initGPU()
}

func (r *Renderer) releaseGPU() {
	if r.blitGroup != nil {
		r.blitGroup.Release()
		r.blitGroup = nil
		r.blitView = nil
	}
	if r.blitSampler != nil {
		r.blitSampler.Release()
		r.blitSampler = nil
	}
	if r.blitPipeline != nil {
		r.blitPipeline.Release()
		r.blitPipeline = nil
	}
	if r.picker != nil {
		r.picker.Release()
	}
	if r.orch != nil {
		r.orch.Release()
	}
	if r.atlas != nil {
		r.atlas.Release()
	}
	if r.cache != nil {
		r.cache.Reset()
	}
	if r.pool != nil {
		r.pool.ReleaseAll()
	}
}

// Close tears down the renderer and the window.
func (r *Renderer) Close() {
	r.releaseGPU()
	r.ctx.Close()
}
