package shadergen

import (
	"fmt"
	"strings"

	"github.com/arclight3d/arclight/core"
)

// Per-pass entry point generators. Each receives the normalized descriptor
// and appends the pass body after the shared fragments and binding
// declarations.

// attrFetchWGSL reads interleaved f32 attribute words out of the shared
// attribute storage buffer. Vertex layout within a mesh is described by the
// MeshMeta record (base offset + stride, both in words).
const attrFetchWGSL = `fn attr_f32(base: u32, index: u32) -> f32 {
    return bitcast<f32>(attr_data[base + index]);
}

fn attr_vec3(base: u32) -> vec3<f32> {
    return vec3<f32>(attr_f32(base, 0u), attr_f32(base, 1u), attr_f32(base, 2u));
}

fn attr_vec2(base: u32) -> vec2<f32> {
    return vec2<f32>(attr_f32(base, 0u), attr_f32(base, 1u));
}
`

func writeGeometryPass(b *strings.Builder, n core.FeatureDescriptor) {
	b.WriteString(attrFetchWGSL)
	b.WriteString("\n")
	b.WriteString(vertexStageWGSL(n))

	// The fragment stage writes the visibility encoding: triangle id,
	// material byte offset, mesh-meta index, packed barycentrics.
	b.WriteString(`@fragment
fn fs_main(in: VertexOut) -> @location(0) vec4<u32> {
    let meta = mesh_meta[in.meta_index];
`)
	if n.Alpha == core.AlphaMask {
		b.WriteString(`    let mat = materials[meta.material / 64u];
    if (mat.base_color.a < mat.params.w) {
        discard;
    }
`)
	}
	b.WriteString(`    return vec4<u32>(in.triangle_id, meta.material, in.meta_index, pack2x16unorm(in.bary));
}
`)
}

// vertexStageWGSL builds the vertex pulling stage shared by the geometry and
// forward transparency variants. The VertexOut field list, morph loop bound
// and joint loop bound are all substituted from the descriptor.
func vertexStageWGSL(n core.FeatureDescriptor) string {
	var b strings.Builder

	b.WriteString("struct VertexOut {\n    @builtin(position) clip_pos: vec4<f32>,\n")
	loc := 0
	emit := func(field string) {
		fmt.Fprintf(&b, "    @location(%d) %s,\n", loc, field)
		loc++
	}
	emit("@interpolate(flat) triangle_id: u32")
	emit("@interpolate(flat) meta_index: u32")
	emit("bary: vec2<f32>")
	emit("world_pos: vec3<f32>")
	if n.HasNormals {
		emit("normal: vec3<f32>")
	}
	if n.HasTangents {
		emit("tangent: vec4<f32>")
	}
	for i := 0; i < int(n.UVSets); i++ {
		emit(fmt.Sprintf("uv%d: vec2<f32>", i))
	}
	for i := 0; i < int(n.ColorSets); i++ {
		emit(fmt.Sprintf("color%d: vec4<f32>", i))
	}
	b.WriteString("};\n\n")

	b.WriteString(`@vertex
fn vs_main(@builtin(vertex_index) vi: u32, @builtin(instance_index) ii: u32) -> VertexOut {
    let meta = mesh_meta[ii];
    var base = meta.attributes + vi * meta.attr_stride;
    var position = attr_vec3(base);
    var cursor = 3u;
`)
	if n.HasNormals {
		b.WriteString("    var normal = attr_vec3(base + cursor);\n    cursor += 3u;\n")
	}
	if n.HasTangents {
		b.WriteString("    let tangent = vec4<f32>(attr_vec3(base + cursor), attr_f32(base + cursor, 3u));\n    cursor += 4u;\n")
	}
	for i := 0; i < int(n.UVSets); i++ {
		fmt.Fprintf(&b, "    let uv%d = attr_vec2(base + cursor);\n    cursor += 2u;\n", i)
	}
	for i := 0; i < int(n.ColorSets); i++ {
		fmt.Fprintf(&b, "    let color%d = vec4<f32>(attr_f32(base + cursor, 0u), attr_f32(base + cursor, 1u), attr_f32(base + cursor, 2u), attr_f32(base + cursor, 3u));\n    cursor += 4u;\n", i)
	}
	if n.MorphTargets > 0 {
		// Morph deltas are packed per vertex: MORPH_TARGETS consecutive
		// vec3 position deltas, so no (target, vertex) pair aliases another.
		b.WriteString(`    for (var m = 0u; m < MORPH_TARGETS; m = m + 1u) {
        let w = morph_weights[meta.morph_weights + m];
        let voff = meta.morph_values + (vi * MORPH_TARGETS + m) * 3u;
        position += w * vec3<f32>(morph_values[voff], morph_values[voff + 1u], morph_values[voff + 2u]);
    }
`)
	}
	if n.JointSets > 0 {
		b.WriteString(`    var skinned = vec4<f32>(0.0);
    for (var s = 0u; s < JOINT_SETS; s = s + 1u) {
        let jbase = base + cursor + s * 8u;
        for (var j = 0u; j < 4u; j = j + 1u) {
            let joint = attr_data[jbase + j];
            let weight = attr_f32(jbase + 4u, j);
            skinned += weight * (joint_matrices[meta.joints + joint] * vec4<f32>(position, 1.0));
        }
    }
    position = skinned.xyz;
    cursor += JOINT_SETS * 8u;
`)
	}

	b.WriteString(`    let model = transforms[meta.transform / 64u];
    let world = model * vec4<f32>(position, 1.0);

    var out: VertexOut;
    out.clip_pos = camera.view_proj * world;
    out.triangle_id = vi / 3u;
    out.meta_index = ii;
    out.world_pos = world.xyz;
`)
	b.WriteString(`    switch (vi % 3u) {
        case 0u: { out.bary = vec2<f32>(1.0, 0.0); }
        case 1u: { out.bary = vec2<f32>(0.0, 1.0); }
        default: { out.bary = vec2<f32>(0.0, 0.0); }
    }
`)
	if n.HasNormals {
		b.WriteString("    let nmat = transforms[meta.normal_mat / 64u];\n    out.normal = normalize((nmat * vec4<f32>(normal, 0.0)).xyz);\n")
	}
	if n.HasTangents {
		b.WriteString("    out.tangent = vec4<f32>((model * vec4<f32>(tangent.xyz, 0.0)).xyz, tangent.w);\n")
	}
	for i := 0; i < int(n.UVSets); i++ {
		fmt.Fprintf(&b, "    out.uv%d = uv%d;\n", i, i)
	}
	for i := 0; i < int(n.ColorSets); i++ {
		fmt.Fprintf(&b, "    out.color%d = color%d;\n", i, i)
	}
	b.WriteString("    return out;\n}\n\n")
	return b.String()
}

func writeMaterialResolvePass(b *strings.Builder, n core.FeatureDescriptor) {
	b.WriteString(attrFetchWGSL)
	b.WriteString("\n")
	b.WriteString(`fn fetch_corner(meta: MeshMeta, tri: u32, corner: u32) -> vec3<f32> {
    let base = meta.attributes + (tri * 3u + corner) * meta.attr_stride;
    return attr_vec3(base);
}

fn fetch_uv(meta: MeshMeta, tri: u32, corner: u32) -> vec2<f32> {
    var off = 3u;
    if ((meta.flags & 8u) != 0u) {
        off += 3u;
    }
    if ((meta.flags & 16u) != 0u) {
        off += 4u;
    }
    let base = meta.attributes + (tri * 3u + corner) * meta.attr_stride + off;
    return attr_vec2(base);
}

`)
	sampleLine := visibilitySample(n)
	b.WriteString(`@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let dims = textureDimensions(visibility);
    if (gid.x >= dims.x || gid.y >= dims.y) {
        return;
    }
    let coord = vec2<i32>(gid.xy);
` + sampleLine + `
    let tri = texel.x;
    let mat_off = texel.y;
    if (tri == SENTINEL || mat_off == SENTINEL) {
        textureStore(opaque_out, coord, vec4<f32>(0.0));
        return;
    }
    let meta = mesh_meta[texel.z];
    let bary2 = unpack2x16unorm(texel.w);
    let bary = vec3<f32>(bary2, 1.0 - bary2.x - bary2.y);
    let mat = materials[mat_off / 64u];

    let p0 = fetch_corner(meta, tri, 0u);
    let p1 = fetch_corner(meta, tri, 1u);
    let p2 = fetch_corner(meta, tri, 2u);
    let model = transforms[meta.transform / 64u];
    let local = p0 * bary.x + p1 * bary.y + p2 * bary.z;
    let world = (model * vec4<f32>(local, 1.0)).xyz;
    let face_n = normalize(cross(p1 - p0, p2 - p0));
    let nmat = transforms[meta.normal_mat / 64u];
    let n = normalize((nmat * vec4<f32>(face_n, 0.0)).xyz);
    let v = normalize(camera.cam_pos.xyz - world);

`)
	if n.BaseColorTexture {
		b.WriteString(`    var albedo = mat.base_color.rgb;
    if (mat.tex.x >= 0.0 && meta.uv_sets > 0u) {
        let uv = fetch_uv(meta, tri, 0u) * bary.x + fetch_uv(meta, tri, 1u) * bary.y + fetch_uv(meta, tri, 2u) * bary.z;
        albedo *= textureSampleLevel(atlas_tex, atlas_smp, uv, i32(mat.tex.x), 0.0).rgb;
    }
`)
	} else {
		b.WriteString("    let albedo = mat.base_color.rgb;\n")
	}

	// Only MaterialPbr carries the BRDF block; everything else resolves
	// unlit so generated source never calls undefined helpers.
	switch n.Material {
	case core.MaterialPbr:
		b.WriteString(`    var shaded = mat.emissive.rgb;
    let count = arrayLength(&lights);
    for (var i = 0u; i < count; i = i + 1u) {
        let light = lights[i];
        var l = light.direction.xyz * -1.0;
        var radiance = light.color.rgb * light.color.a;
        if (light.params.z > 0.5) {
            let to_light = light.position.xyz - world;
            let dist = length(to_light);
            l = to_light / max(dist, 1e-4);
            radiance = radiance / max(dist * dist, 1e-4);
        }
        shaded += shade_pbr(n, v, l, radiance, albedo, mat.params.x, mat.params.y);
    }
`)
	default:
		b.WriteString(`    let shaded = albedo + mat.emissive.rgb;
`)
	}
	b.WriteString(`    textureStore(opaque_out, coord, vec4<f32>(shaded, 1.0));
}
`)
}

func visibilitySample(n core.FeatureDescriptor) string {
	if n.MultisampledGeometry {
		return "    let texel = textureLoad(visibility, coord, 0i);\n"
	}
	return "    let texel = textureLoad(visibility, coord, 0);\n"
}

func writeTransparencyPass(b *strings.Builder, n core.FeatureDescriptor) {
	b.WriteString(attrFetchWGSL)
	b.WriteString("\n")
	b.WriteString(vertexStageWGSL(n))

	// Weighted blended OIT: the accumulation targets make the result
	// independent of draw submission order.
	b.WriteString(`struct OitOut {
    @location(0) accum: vec4<f32>,
    @location(1) coverage: f32,
};

fn oit_weight(z: f32, a: f32) -> f32 {
    return a * clamp(0.03 / (1e-5 + pow(abs(z) / 200.0, 4.0)), 0.01, 3000.0);
}

@fragment
fn fs_main(in: VertexOut) -> OitOut {
    let meta = mesh_meta[in.meta_index];
    let mat = materials[meta.material / 64u];
    var color = mat.base_color.rgb + mat.emissive.rgb;
    let alpha = mat.base_color.a;
`)
	if n.Material == core.MaterialPbr {
		b.WriteString(`    let v = normalize(camera.cam_pos.xyz - in.world_pos);
`)
		if n.HasNormals {
			b.WriteString(`    let count = arrayLength(&lights);
    var lit = mat.emissive.rgb;
    for (var i = 0u; i < count; i = i + 1u) {
        let light = lights[i];
        let l = normalize(light.position.xyz - in.world_pos);
        lit += shade_pbr(in.normal, v, l, light.color.rgb * light.color.a, mat.base_color.rgb, mat.params.x, mat.params.y);
    }
    color = lit;
`)
		}
	}
	b.WriteString(`    let w = oit_weight(in.clip_pos.z / in.clip_pos.w, alpha);
    var out: OitOut;
    out.accum = vec4<f32>(color * alpha, alpha) * w;
    out.coverage = alpha;
    return out;
}
`)
}

func writeCompositePass(b *strings.Builder, n core.FeatureDescriptor) {
	// Bounds are checked against the opaque buffer, not the OIT targets:
	// multisampled variants can differ in texture kind while sharing the
	// logical size. Coverage holds revealage, the blended product of
	// per-fragment (1 - alpha), so it weights the opaque side.
	b.WriteString(`@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let dims = textureDimensions(opaque_in);
    if (gid.x >= dims.x || gid.y >= dims.y) {
        return;
    }
    let coord = vec2<i32>(gid.xy);
    let opaque = textureLoad(opaque_in, coord, 0);
    let accum = textureLoad(oit_accum, coord, 0);
    let reveal = clamp(textureLoad(oit_coverage, coord, 0).r, 0.0, 1.0);
    let transparent = accum.rgb / max(accum.a, 1e-4);
    let merged = mix(transparent, opaque.rgb, reveal);
    textureStore(composite_out, coord, vec4<f32>(merged, 1.0));
}
`)
}

func writeEffectsPass(b *strings.Builder, n core.FeatureDescriptor) {
	if n.Effect == core.EffectTonemapGamma {
		b.WriteString(tonemapBlock(n.Tonemap))
		b.WriteString("\n")
	}
	b.WriteString(`@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let dims = textureDimensions(effect_in);
    if (gid.x >= dims.x || gid.y >= dims.y) {
        return;
    }
    let coord = vec2<i32>(gid.xy);
    let current = textureLoad(effect_in, coord, 0);
`)
	switch n.Effect {
	case core.EffectTemporal:
		b.WriteString(`    let history = textureLoad(effect_history, coord, 0);
    let blended = mix(history.rgb, current.rgb, 0.1);
    textureStore(effect_out, coord, vec4<f32>(blended, current.a));
`)
	case core.EffectBloom:
		b.WriteString(`    var bright = vec3<f32>(0.0);
    for (var dy = -2; dy <= 2; dy = dy + 1) {
        for (var dx = -2; dx <= 2; dx = dx + 1) {
            let tap = textureLoad(effect_history, coord + vec2<i32>(dx, dy), 0).rgb;
            bright += max(tap - vec3<f32>(1.0), vec3<f32>(0.0));
        }
    }
    bright = bright / 25.0;
    textureStore(effect_out, coord, vec4<f32>(current.rgb + bright, current.a));
`)
	case core.EffectDepthOfField:
		b.WriteString(`    let center = vec2<f32>(dims) * 0.5;
    let coc = clamp(length(vec2<f32>(coord) - center) / length(center), 0.0, 1.0);
    var blurred = vec3<f32>(0.0);
    for (var dy = -1; dy <= 1; dy = dy + 1) {
        for (var dx = -1; dx <= 1; dx = dx + 1) {
            blurred += textureLoad(effect_in, coord + vec2<i32>(dx, dy), 0).rgb;
        }
    }
    blurred = blurred / 9.0;
    textureStore(effect_out, coord, vec4<f32>(mix(current.rgb, blurred, coc), current.a));
`)
	case core.EffectTonemapGamma:
		b.WriteString(`    let mapped = linear_to_srgb(tonemap(current.rgb));
    textureStore(effect_out, coord, vec4<f32>(mapped, current.a));
`)
	}
	b.WriteString("}\n")
}

func writePickingPass(b *strings.Builder, n core.FeatureDescriptor) {
	sampleLine := visibilitySample(n)
	b.WriteString(`@compute @workgroup_size(1, 1, 1)
fn main() {
    let coord = vec2<i32>(pick_params.coord);
` + sampleLine + `
    if (texel.x == SENTINEL) {
        pick_result.valid = 0u;
        pick_result.id_hi = 0u;
        pick_result.id_lo = 0u;
        return;
    }
    let meta = mesh_meta[texel.z];
    pick_result.valid = 1u;
    pick_result.id_hi = meta.key_hi;
    pick_result.id_lo = meta.key_lo;
}
`)
}

func writeAtlasBlitPass(b *strings.Builder, n core.FeatureDescriptor) {
	// Source sampling is clamped into the source rectangle so the padding
	// border replicates the nearest edge texel instead of reading garbage.
	b.WriteString(`@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let extent = blit_params.src_size + vec2<u32>(2u * blit_params.padding);
    if (gid.x >= extent.x || gid.y >= extent.y) {
        return;
    }
    let src_max = vec2<i32>(blit_params.src_size) - vec2<i32>(1);
    let src = clamp(vec2<i32>(gid.xy) - vec2<i32>(i32(blit_params.padding)), vec2<i32>(0), src_max);
    var texel = textureLoad(atlas_src, src, 0);
    if ((blit_params.flags & 1u) != 0u) {
        texel = vec4<f32>(srgb_to_linear(texel.rgb), texel.a);
    }
    let dst = vec2<i32>(gid.xy + blit_params.dst_offset);
    textureStore(atlas_dst, dst, i32(blit_params.dst_layer), texel);
}
`)
}
