package shadergen

import (
	"fmt"
	"strings"

	"github.com/arclight3d/arclight/core"
)

// WGSL struct sources. Field layouts mirror the fixed byte layouts in the
// core package; changing either side is a wire-format break.

const cameraStructWGSL = `struct CameraUniform {
    view: mat4x4<f32>,
    proj: mat4x4<f32>,
    view_proj: mat4x4<f32>,
    inv_view: mat4x4<f32>,
    inv_proj: mat4x4<f32>,
    cam_pos: vec4<f32>,
    frustum_rays: array<vec4<f32>, 4>,
    viewport: vec2<f32>,
    frame: u32,
    _pad: u32,
};
`

const meshMetaStructWGSL = `struct MeshMeta {
    key_hi: u32,
    key_lo: u32,
    morph_weights: u32,
    morph_values: u32,
    joints: u32,
    material: u32,
    transform: u32,
    normal_mat: u32,
    attributes: u32,
    attr_stride: u32,
    uv_sets: u32,
    color_sets: u32,
    visibility: u32,
    flags: u32,
    _pad0: u32,
    _pad1: u32,
};
`

const materialStructWGSL = `struct MaterialRecord {
    base_color: vec4<f32>,
    emissive: vec4<f32>,
    params: vec4<f32>,
    tex: vec4<f32>,
};
`

const lightStructWGSL = `struct Light {
    position: vec4<f32>,
    direction: vec4<f32>,
    color: vec4<f32>,
    params: vec4<f32>,
};
`

const pickStructsWGSL = `struct PickParams {
    coord: vec2<u32>,
    _pad0: u32,
    _pad1: u32,
};

struct PickResult {
    valid: u32,
    id_hi: u32,
    id_lo: u32,
    _pad: u32,
};
`

const atlasParamsWGSL = `struct AtlasBlitParams {
    dst_offset: vec2<u32>,
    dst_layer: u32,
    padding: u32,
    src_size: vec2<u32>,
    flags: u32,
    _pad: u32,
};
`

// Shared math helpers included by every shading variant.
const mathBlockWGSL = `const PI: f32 = 3.14159265358979;

fn saturate3(v: vec3<f32>) -> vec3<f32> {
    return clamp(v, vec3<f32>(0.0), vec3<f32>(1.0));
}

fn luminance(c: vec3<f32>) -> f32 {
    return dot(c, vec3<f32>(0.2126, 0.7152, 0.0722));
}
`

// Colorspace conversions, included where a variant samples sRGB-encoded
// sources or encodes the final output.
const colorspaceBlockWGSL = `fn srgb_to_linear(c: vec3<f32>) -> vec3<f32> {
    let lo = c / 12.92;
    let hi = pow((c + 0.055) / 1.055, vec3<f32>(2.4));
    return select(hi, lo, c <= vec3<f32>(0.04045));
}

fn linear_to_srgb(c: vec3<f32>) -> vec3<f32> {
    let lo = c * 12.92;
    let hi = 1.055 * pow(c, vec3<f32>(1.0 / 2.4)) - 0.055;
    return select(hi, lo, c <= vec3<f32>(0.0031308));
}
`

// Camera reconstruction helpers, dependent on the frustum ray corners.
const cameraHelpersWGSL = `fn view_ray(uv: vec2<f32>) -> vec3<f32> {
    let top = mix(camera.frustum_rays[2].xyz, camera.frustum_rays[3].xyz, uv.x);
    let bottom = mix(camera.frustum_rays[0].xyz, camera.frustum_rays[1].xyz, uv.x);
    return normalize(mix(bottom, top, 1.0 - uv.y));
}
`

// GGX/Smith PBR block, used by the material resolve and forward
// transparency variants of MaterialPbr.
const brdfBlockWGSL = `fn distribution_ggx(n_dot_h: f32, roughness: f32) -> f32 {
    let a = roughness * roughness;
    let a2 = a * a;
    let d = n_dot_h * n_dot_h * (a2 - 1.0) + 1.0;
    return a2 / max(PI * d * d, 1e-6);
}

fn geometry_smith(n_dot_v: f32, n_dot_l: f32, roughness: f32) -> f32 {
    let r = roughness + 1.0;
    let k = (r * r) / 8.0;
    let gv = n_dot_v / (n_dot_v * (1.0 - k) + k);
    let gl = n_dot_l / (n_dot_l * (1.0 - k) + k);
    return gv * gl;
}

fn fresnel_schlick(cos_theta: f32, f0: vec3<f32>) -> vec3<f32> {
    return f0 + (1.0 - f0) * pow(clamp(1.0 - cos_theta, 0.0, 1.0), 5.0);
}

fn shade_pbr(n: vec3<f32>, v: vec3<f32>, l: vec3<f32>, radiance: vec3<f32>, albedo: vec3<f32>, roughness: f32, metalness: f32) -> vec3<f32> {
    let h = normalize(v + l);
    let n_dot_v = max(dot(n, v), 1e-4);
    let n_dot_l = max(dot(n, l), 0.0);
    let n_dot_h = max(dot(n, h), 0.0);
    let f0 = mix(vec3<f32>(0.04), albedo, metalness);
    let ndf = distribution_ggx(n_dot_h, roughness);
    let g = geometry_smith(n_dot_v, n_dot_l, roughness);
    let f = fresnel_schlick(max(dot(h, v), 0.0), f0);
    let spec = (ndf * g * f) / max(4.0 * n_dot_v * n_dot_l, 1e-4);
    let kd = (vec3<f32>(1.0) - f) * (1.0 - metalness);
    return (kd * albedo / PI + spec) * radiance * n_dot_l;
}
`

// Tonemap operator bodies, selected by descriptor flag.
const tonemapReinhardWGSL = `fn tonemap(c: vec3<f32>) -> vec3<f32> {
    return c / (c + vec3<f32>(1.0));
}
`

const tonemapAcesWGSL = `fn tonemap(c: vec3<f32>) -> vec3<f32> {
    let a = 2.51;
    let b = 0.03;
    let cc = 2.43;
    let d = 0.59;
    let e = 0.14;
    return saturate3((c * (a * c + b)) / (c * (cc * c + d) + e));
}
`

const tonemapNoneWGSL = `fn tonemap(c: vec3<f32>) -> vec3<f32> {
    return c;
}
`

func tonemapBlock(op core.TonemapOp) string {
	switch op {
	case core.TonemapReinhard:
		return tonemapReinhardWGSL
	case core.TonemapAces:
		return tonemapAcesWGSL
	}
	return tonemapNoneWGSL
}

// writeConstants emits the per-variant loop bounds and sentinels. These are
// textual substitutions of descriptor constants: the generated source for
// one descriptor never depends on any other compile.
func writeConstants(b *strings.Builder, n core.FeatureDescriptor) {
	fmt.Fprintf(b, "const SENTINEL: u32 = 0x%08Xu;\n", core.NoTriangle)
	fmt.Fprintf(b, "const META_STRIDE_WORDS: u32 = %du;\n", core.MeshMetaStride/4)
	if n.MorphTargets > 0 {
		fmt.Fprintf(b, "const MORPH_TARGETS: u32 = %du;\n", n.MorphTargets)
	}
	if n.JointSets > 0 {
		fmt.Fprintf(b, "const JOINT_SETS: u32 = %du;\n", n.JointSets)
	}
	if n.UVSets > 0 {
		fmt.Fprintf(b, "const UV_SETS: u32 = %du;\n", n.UVSets)
	}
	if n.ColorSets > 0 {
		fmt.Fprintf(b, "const COLOR_SETS: u32 = %du;\n", n.ColorSets)
	}
	b.WriteString("\n")
}

// writeBindings renders the plan as @group/@binding declarations, one per
// slot, in plan order.
func writeBindings(b *strings.Builder, layouts []GroupLayout) {
	for _, g := range layouts {
		for _, bd := range g.Bindings {
			switch bd.Kind {
			case UniformBuffer:
				fmt.Fprintf(b, "@group(%d) @binding(%d) var<uniform> %s: %s;\n", bd.Group, bd.Index, bd.Name, bd.wgslType)
			case StorageBuffer:
				fmt.Fprintf(b, "@group(%d) @binding(%d) var<storage, read> %s: %s;\n", bd.Group, bd.Index, bd.Name, bd.wgslType)
			case StorageBufferRW:
				fmt.Fprintf(b, "@group(%d) @binding(%d) var<storage, read_write> %s: %s;\n", bd.Group, bd.Index, bd.Name, bd.wgslType)
			default:
				fmt.Fprintf(b, "@group(%d) @binding(%d) var %s: %s;\n", bd.Group, bd.Index, bd.Name, bd.wgslType)
			}
		}
	}
	b.WriteString("\n")
}

// structsFor returns the struct sources a pass depends on, in a fixed order.
func structsFor(n core.FeatureDescriptor) []string {
	switch n.Pass {
	case core.PassGeometry:
		return []string{cameraStructWGSL, meshMetaStructWGSL, materialStructWGSL}
	case core.PassMaterialOpaque:
		return []string{cameraStructWGSL, meshMetaStructWGSL, materialStructWGSL, lightStructWGSL}
	case core.PassMaterialTransparent:
		return []string{cameraStructWGSL, meshMetaStructWGSL, materialStructWGSL, lightStructWGSL}
	case core.PassComposite, core.PassEffects:
		return []string{cameraStructWGSL}
	case core.PassPicking:
		return []string{cameraStructWGSL, meshMetaStructWGSL, pickStructsWGSL}
	case core.PassAtlasBlit:
		return []string{atlasParamsWGSL}
	}
	return nil
}
