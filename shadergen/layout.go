package shadergen

import (
	"github.com/arclight3d/arclight/core"
)

// BindingKind classifies a binding for bind-group layout creation. The kind
// is a pure function of the descriptor: it mirrors the @group/@binding
// declarations Compile emits, so the pipeline cache can derive the layout
// without parsing generated source.
type BindingKind uint8

const (
	UniformBuffer BindingKind = iota
	StorageBuffer
	StorageBufferRW
	SampledTexture
	UintTexture
	MultisampledUintTexture
	TextureArray
	StorageTexture
	StorageTextureArray
	SamplerBinding
)

// Binding is one @group/@binding slot of a variant.
type Binding struct {
	Group uint32
	Index uint32
	Name  string
	Kind  BindingKind

	wgslType string
}

// GroupLayout lists the bindings of one bind group, in binding-index order.
type GroupLayout struct {
	Group    uint32
	Bindings []Binding
}

type planner struct {
	groups map[uint32]*GroupLayout
	order  []uint32
}

func newPlanner() *planner {
	return &planner{groups: make(map[uint32]*GroupLayout)}
}

func (p *planner) add(group uint32, name string, kind BindingKind, wgslType string) {
	g, ok := p.groups[group]
	if !ok {
		g = &GroupLayout{Group: group}
		p.groups[group] = g
		p.order = append(p.order, group)
	}
	g.Bindings = append(g.Bindings, Binding{
		Group:    group,
		Index:    uint32(len(g.Bindings)),
		Name:     name,
		Kind:     kind,
		wgslType: wgslType,
	})
}

func (p *planner) layouts() []GroupLayout {
	out := make([]GroupLayout, 0, len(p.order))
	for _, g := range p.order {
		out = append(out, *p.groups[g])
	}
	return out
}

// Binding group convention, shared by every variant:
//
//	group 0: per-draw camera/transform/material storage
//	group 1: pass-specific scene data (lights, texture pool, mesh metadata)
//	group 2: pass input/output targets and small pass parameter records
//
// Reorganizing groups breaks layout compatibility between generated shaders
// and the bind groups the cache derives; slots within a group shift
// deterministically with the descriptor flags that add or remove bindings.
const (
	GroupPerDraw = 0
	GroupScene   = 1
	GroupTargets = 2
)

// BindingPlan derives the complete bind-group layout for a descriptor. The
// returned layout and the source Compile generates for the same descriptor
// always agree: both are produced from this single plan.
func BindingPlan(d core.FeatureDescriptor) ([]GroupLayout, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	n := d.Normalize()
	return plan(n).layouts(), nil
}

func plan(n core.FeatureDescriptor) *planner {
	p := newPlanner()
	switch n.Pass {
	case core.PassGeometry:
		planDrawGroups(p, n, false)
	case core.PassMaterialOpaque:
		planDrawGroups(p, n, true)
		p.add(GroupScene, "attr_data", StorageBuffer, "array<u32>")
		p.add(GroupScene, "lights", StorageBuffer, "array<Light>")
		if n.BaseColorTexture || n.NormalTexture {
			p.add(GroupScene, "atlas_tex", TextureArray, "texture_2d_array<f32>")
			p.add(GroupScene, "atlas_smp", SamplerBinding, "sampler")
		}
		p.add(GroupTargets, "visibility", visibilityKind(n), visibilityType(n))
		p.add(GroupTargets, "opaque_out", StorageTexture, "texture_storage_2d<rgba16float, write>")
	case core.PassMaterialTransparent:
		planDrawGroups(p, n, true)
		p.add(GroupScene, "lights", StorageBuffer, "array<Light>")
		if n.BaseColorTexture || n.NormalTexture {
			p.add(GroupScene, "atlas_tex", TextureArray, "texture_2d_array<f32>")
			p.add(GroupScene, "atlas_smp", SamplerBinding, "sampler")
		}
		planMeshBuffers(p, n)
	case core.PassComposite:
		p.add(GroupPerDraw, "camera", UniformBuffer, "CameraUniform")
		p.add(GroupTargets, "opaque_in", SampledTexture, "texture_2d<f32>")
		p.add(GroupTargets, "oit_accum", SampledTexture, "texture_2d<f32>")
		p.add(GroupTargets, "oit_coverage", SampledTexture, "texture_2d<f32>")
		p.add(GroupTargets, "composite_out", StorageTexture, "texture_storage_2d<rgba16float, write>")
	case core.PassEffects:
		p.add(GroupPerDraw, "camera", UniformBuffer, "CameraUniform")
		p.add(GroupTargets, "effect_in", SampledTexture, "texture_2d<f32>")
		// History slots exist only for stages that read their own previous
		// output; their presence shifts the output slot deterministically.
		switch n.Effect {
		case core.EffectTemporal, core.EffectBloom:
			p.add(GroupTargets, "effect_history", SampledTexture, "texture_2d<f32>")
		}
		p.add(GroupTargets, "effect_out", StorageTexture, "texture_storage_2d<rgba16float, write>")
	case core.PassPicking:
		p.add(GroupPerDraw, "camera", UniformBuffer, "CameraUniform")
		p.add(GroupScene, "mesh_meta", StorageBuffer, "array<MeshMeta>")
		p.add(GroupTargets, "visibility", visibilityKind(n), visibilityType(n))
		p.add(GroupTargets, "pick_params", UniformBuffer, "PickParams")
		p.add(GroupTargets, "pick_result", StorageBufferRW, "PickResult")
	case core.PassAtlasBlit:
		p.add(GroupPerDraw, "blit_params", UniformBuffer, "AtlasBlitParams")
		p.add(GroupTargets, "atlas_src", SampledTexture, "texture_2d<f32>")
		p.add(GroupTargets, "atlas_dst", StorageTextureArray, "texture_storage_2d_array<rgba8unorm, write>")
	}
	return p
}

func planDrawGroups(p *planner, n core.FeatureDescriptor, withMeta bool) {
	p.add(GroupPerDraw, "camera", UniformBuffer, "CameraUniform")
	p.add(GroupPerDraw, "transforms", StorageBuffer, "array<mat4x4<f32>>")
	p.add(GroupPerDraw, "materials", StorageBuffer, "array<MaterialRecord>")
	if withMeta || n.Pass == core.PassGeometry {
		p.add(GroupScene, "mesh_meta", StorageBuffer, "array<MeshMeta>")
	}
	if n.Pass == core.PassGeometry {
		planMeshBuffers(p, n)
	}
}

// planMeshBuffers adds the per-mesh storage buffers the vertex stage pulls
// from. Slots depend on the attribute set, so the same flags always produce
// the same numbering.
func planMeshBuffers(p *planner, n core.FeatureDescriptor) {
	p.add(GroupScene, "attr_data", StorageBuffer, "array<u32>")
	if n.MorphTargets > 0 {
		p.add(GroupScene, "morph_weights", StorageBuffer, "array<f32>")
		p.add(GroupScene, "morph_values", StorageBuffer, "array<f32>")
	}
	if n.JointSets > 0 {
		p.add(GroupScene, "joint_matrices", StorageBuffer, "array<mat4x4<f32>>")
	}
}

func visibilityKind(n core.FeatureDescriptor) BindingKind {
	if n.MultisampledGeometry {
		return MultisampledUintTexture
	}
	return UintTexture
}

func visibilityType(n core.FeatureDescriptor) string {
	if n.MultisampledGeometry {
		return "texture_multisampled_2d<u32>"
	}
	return "texture_2d<u32>"
}
