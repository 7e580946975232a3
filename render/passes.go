package render

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/arclight3d/arclight/gpu"
	"github.com/arclight3d/arclight/shadergen"
)

// binder resolves plan binding names to live resources. Pool buffers and
// the atlas resolve by their canonical names; per-stage texture views
// (effect_in, effect_out, visibility) are supplied through the views map.
type binder struct {
	pool  *gpu.ResourcePool
	atlas *gpu.Atlas
	views map[string]*wgpu.TextureView
}

func (bn *binder) entry(bd shadergen.Binding) (wgpu.BindGroupEntry, error) {
	e := wgpu.BindGroupEntry{Binding: bd.Index}
	switch bd.Kind {
	case shadergen.UniformBuffer, shadergen.StorageBuffer, shadergen.StorageBufferRW:
		pb := bn.pool.Buffer(bd.Name)
		if pb == nil || pb.Buf == nil {
			return e, fmt.Errorf("binding %q: buffer never uploaded", bd.Name)
		}
		e.Buffer = pb.Buf
		e.Size = wgpu.WholeSize
	case shadergen.SamplerBinding:
		s, err := bn.pool.LinearSampler()
		if err != nil {
			return e, err
		}
		e.Sampler = s
	case shadergen.TextureArray, shadergen.StorageTextureArray:
		if v := bn.views[bd.Name]; v != nil {
			e.TextureView = v
		} else if bn.atlas != nil {
			e.TextureView = bn.atlas.View
		} else {
			return e, fmt.Errorf("binding %q: no atlas", bd.Name)
		}
	default:
		v := bn.views[bd.Name]
		if v == nil {
			if t := bn.pool.Target(bd.Name); t != nil {
				v = t.View
			}
		}
		if v == nil {
			return e, fmt.Errorf("binding %q: no texture view", bd.Name)
		}
		e.TextureView = v
	}
	return e, nil
}

// buildBindGroups creates one bind group per pipeline-layout slot, padding
// skipped group numbers with empty groups so slot indices match the WGSL
// group numbers.
func buildBindGroups(device *wgpu.Device, p *gpu.Pipeline, bn *binder) ([]*wgpu.BindGroup, error) {
	byGroup := make(map[uint32]shadergen.GroupLayout, len(p.Layout))
	var maxGroup uint32
	for _, g := range p.Layout {
		byGroup[g.Group] = g
		if g.Group > maxGroup {
			maxGroup = g.Group
		}
	}

	label := p.Key.String()
	groups := make([]*wgpu.BindGroup, 0, maxGroup+1)
	for slot := uint32(0); slot <= maxGroup; slot++ {
		var layout *wgpu.BindGroupLayout
		if p.Compute != nil {
			layout = p.Compute.GetBindGroupLayout(slot)
		} else {
			layout = p.Render.GetBindGroupLayout(slot)
		}

		var entries []wgpu.BindGroupEntry
		if g, ok := byGroup[slot]; ok {
			entries = make([]wgpu.BindGroupEntry, 0, len(g.Bindings))
			for _, bd := range g.Bindings {
				e, err := bn.entry(bd)
				if err != nil {
					releaseBindGroups(groups)
					return nil, fmt.Errorf("%s group %d: %w", label, slot, err)
				}
				entries = append(entries, e)
			}
		}
		bg, err := device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:   fmt.Sprintf("%s/group%d", label, slot),
			Layout:  layout,
			Entries: entries,
		})
		if err != nil {
			releaseBindGroups(groups)
			return nil, fmt.Errorf("%s group %d: %w", label, slot, err)
		}
		groups = append(groups, bg)
	}
	return groups, nil
}

// BuildBindGroups is the exported entry for packages that record their own
// dispatches against the shared pool, such as picking.
func BuildBindGroups(device *wgpu.Device, p *gpu.Pipeline, pool *gpu.ResourcePool, atlas *gpu.Atlas, views map[string]*wgpu.TextureView) ([]*wgpu.BindGroup, error) {
	return buildBindGroups(device, p, &binder{pool: pool, atlas: atlas, views: views})
}

func releaseBindGroups(groups []*wgpu.BindGroup) {
	for _, bg := range groups {
		if bg != nil {
			bg.Release()
		}
	}
}

// dispatchGrid covers a w×h image with the 8×8 workgroups the screen-space
// variants declare.
func dispatchGrid(w, h uint32) (x, y uint32) {
	return (w + 7) / 8, (h + 7) / 8
}

// runScreenPass records one full-screen compute dispatch.
func runScreenPass(enc *wgpu.CommandEncoder, p *gpu.Pipeline, groups []*wgpu.BindGroup, w, h uint32) {
	cp := enc.BeginComputePass(&wgpu.ComputePassDescriptor{Label: p.Key.String()})
	cp.SetPipeline(p.Compute)
	for i, bg := range groups {
		cp.SetBindGroup(uint32(i), bg, nil)
	}
	gx, gy := dispatchGrid(w, h)
	cp.DispatchWorkgroups(gx, gy, 1)
	cp.End()
}
