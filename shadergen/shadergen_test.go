package shadergen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arclight3d/arclight/core"
)

func geoDesc() core.FeatureDescriptor {
	return core.FeatureDescriptor{
		Pass:       core.PassGeometry,
		HasNormals: true,
		UVSets:     1,
		Material:   core.MaterialPbr,
	}
}

func TestCompileDeterministic(t *testing.T) {
	a, err := Compile(geoDesc())
	require.NoError(t, err)
	b, err := Compile(geoDesc())
	require.NoError(t, err)
	assert.Equal(t, a.Source, b.Source, "equal descriptors must compile to byte-identical source")
	assert.Equal(t, a.Key, b.Key)
}

func TestCompileIndependentOfHistory(t *testing.T) {
	// Compiling other variants in between must not change the output.
	first, err := Compile(geoDesc())
	require.NoError(t, err)
	for _, p := range []core.PassKind{core.PassComposite, core.PassPicking, core.PassMaterialOpaque} {
		_, err := Compile(core.FeatureDescriptor{Pass: p})
		require.NoError(t, err)
	}
	again, err := Compile(geoDesc())
	require.NoError(t, err)
	assert.Equal(t, first.Source, again.Source)
}

func TestCompileDistinctDescriptors(t *testing.T) {
	a, err := Compile(geoDesc())
	require.NoError(t, err)

	d := geoDesc()
	d.MorphTargets = 2
	b, err := Compile(d)
	require.NoError(t, err)

	assert.NotEqual(t, a.Source, b.Source)
	assert.Contains(t, b.Source, "MORPH_TARGETS: u32 = 2u")
	assert.NotContains(t, a.Source, "MORPH_TARGETS")
}

func TestCompileRejectsInvalid(t *testing.T) {
	d := geoDesc()
	d.JointSets = core.MaxJointSets + 1
	_, err := Compile(d)
	require.Error(t, err)
}

func TestCompileLayoutMatchesBindingPlan(t *testing.T) {
	for _, d := range []core.FeatureDescriptor{
		geoDesc(),
		{Pass: core.PassMaterialOpaque, Material: core.MaterialPbr, BaseColorTexture: true},
		{Pass: core.PassComposite},
		{Pass: core.PassEffects, Effect: core.EffectTemporal, Antialiasing: true},
		{Pass: core.PassPicking},
		{Pass: core.PassAtlasBlit},
	} {
		src, err := Compile(d)
		require.NoError(t, err, d.Key().String())
		plan, err := BindingPlan(d)
		require.NoError(t, err)
		assert.Equal(t, plan, src.Layout, "Compile and BindingPlan must agree for %s", d.Key().String())
	}
}

func TestBindingDeclarationsMatchLayout(t *testing.T) {
	src, err := Compile(core.FeatureDescriptor{Pass: core.PassMaterialOpaque, Material: core.MaterialPbr, BaseColorTexture: true})
	require.NoError(t, err)
	for _, g := range src.Layout {
		for _, bd := range g.Bindings {
			decl := strings.Contains(src.Source, bd.Name)
			assert.True(t, decl, "planned binding %q missing from source", bd.Name)
		}
	}
}

func TestHistorySlotShiftsOutputBinding(t *testing.T) {
	withHistory, err := BindingPlan(core.FeatureDescriptor{Pass: core.PassEffects, Effect: core.EffectTemporal})
	require.NoError(t, err)
	without, err := BindingPlan(core.FeatureDescriptor{Pass: core.PassEffects, Effect: core.EffectDepthOfField})
	require.NoError(t, err)

	outIndex := func(layouts []GroupLayout) uint32 {
		for _, g := range layouts {
			for _, bd := range g.Bindings {
				if bd.Name == "effect_out" {
					return bd.Index
				}
			}
		}
		t.Fatal("effect_out not planned")
		return 0
	}
	assert.Equal(t, uint32(2), outIndex(withHistory), "history slot shifts the output")
	assert.Equal(t, uint32(1), outIndex(without))
}

func TestMultisampledVisibilityBindingKind(t *testing.T) {
	plan, err := BindingPlan(core.FeatureDescriptor{Pass: core.PassPicking, MultisampledGeometry: true})
	require.NoError(t, err)
	found := false
	for _, g := range plan {
		for _, bd := range g.Bindings {
			if bd.Name == "visibility" {
				found = true
				assert.Equal(t, MultisampledUintTexture, bd.Kind)
			}
		}
	}
	require.True(t, found)

	src, err := Compile(core.FeatureDescriptor{Pass: core.PassPicking, MultisampledGeometry: true})
	require.NoError(t, err)
	assert.Contains(t, src.Source, "texture_multisampled_2d<u32>")
}

func TestGeometrySourceShape(t *testing.T) {
	src, err := Compile(geoDesc())
	require.NoError(t, err)
	assert.Contains(t, src.Source, "fn vs_main")
	assert.Contains(t, src.Source, "fn fs_main")
	assert.Contains(t, src.Source, "pack2x16unorm")
	assert.NotContains(t, src.Source, "@compute")
}

func TestMaterialResolveSentinelShortCircuit(t *testing.T) {
	src, err := Compile(core.FeatureDescriptor{Pass: core.PassMaterialOpaque, Material: core.MaterialPbr})
	require.NoError(t, err)
	assert.Contains(t, src.Source, "SENTINEL: u32 = 0xFFFFFFFFu")
	assert.Contains(t, src.Source, "tri == SENTINEL")
}

func TestResolveNonPbrMaterialsShadeUnlit(t *testing.T) {
	for _, m := range []core.MaterialKind{core.MaterialUnlit, core.MaterialPostProcess} {
		src, err := Compile(core.FeatureDescriptor{Pass: core.PassMaterialOpaque, Material: m})
		require.NoError(t, err)
		assert.NotContains(t, src.Source, "shade_pbr", m.String())
	}

	pbr, err := Compile(core.FeatureDescriptor{Pass: core.PassMaterialOpaque, Material: core.MaterialPbr})
	require.NoError(t, err)
	assert.Contains(t, pbr.Source, "fn shade_pbr")
	assert.Contains(t, pbr.Source, "shade_pbr(")
}

func TestEverySourceDefinesWhatItCalls(t *testing.T) {
	// A variant that calls a helper must also carry its definition.
	for _, d := range []core.FeatureDescriptor{
		{Pass: core.PassMaterialOpaque, Material: core.MaterialPbr},
		{Pass: core.PassMaterialOpaque, Material: core.MaterialUnlit},
		{Pass: core.PassMaterialOpaque, Material: core.MaterialPostProcess},
		{Pass: core.PassMaterialTransparent, Material: core.MaterialPostProcess, HasNormals: true},
	} {
		src, err := Compile(d)
		require.NoError(t, err)
		if strings.Contains(src.Source, "shade_pbr(") {
			assert.Contains(t, src.Source, "fn shade_pbr", d.Key().String())
		}
	}
}

func TestMorphValuesAddressedPerTarget(t *testing.T) {
	d := geoDesc()
	d.MorphTargets = 2
	src, err := Compile(d)
	require.NoError(t, err)
	// Each (vertex, target) pair owns its own vec3 slot; addressing through
	// the interleaved vertex stride would alias target 1 of vertex 0 with
	// target 0 of vertex 1.
	assert.Contains(t, src.Source, "(vi * MORPH_TARGETS + m) * 3u")
	assert.NotContains(t, src.Source, "m * meta.attr_stride")
}

func TestAlphaMaskDiscardsInGeometry(t *testing.T) {
	d := geoDesc()
	d.Alpha = core.AlphaMask
	src, err := Compile(d)
	require.NoError(t, err)
	assert.Contains(t, src.Source, "discard;")

	plain, err := Compile(geoDesc())
	require.NoError(t, err)
	assert.NotContains(t, plain.Source, "discard;")
}

func TestTonemapSelection(t *testing.T) {
	aces, err := Compile(core.FeatureDescriptor{Pass: core.PassEffects, Effect: core.EffectTonemapGamma, Tonemap: core.TonemapAces})
	require.NoError(t, err)
	reinhard, err := Compile(core.FeatureDescriptor{Pass: core.PassEffects, Effect: core.EffectTonemapGamma, Tonemap: core.TonemapReinhard})
	require.NoError(t, err)
	assert.NotEqual(t, aces.Source, reinhard.Source)
	assert.Contains(t, aces.Source, "linear_to_srgb")
}

func TestIsCompute(t *testing.T) {
	assert.False(t, IsCompute(core.PassGeometry))
	assert.False(t, IsCompute(core.PassMaterialTransparent))
	for _, p := range []core.PassKind{core.PassMaterialOpaque, core.PassComposite, core.PassEffects, core.PassPicking, core.PassAtlasBlit} {
		assert.True(t, IsCompute(p), p.String())
	}
}

func TestBindingIndicesDenseWithinGroup(t *testing.T) {
	for _, d := range []core.FeatureDescriptor{
		geoDesc(),
		{Pass: core.PassMaterialOpaque, BaseColorTexture: true},
		{Pass: core.PassPicking},
	} {
		plan, err := BindingPlan(d)
		require.NoError(t, err)
		for _, g := range plan {
			for i, bd := range g.Bindings {
				assert.Equal(t, uint32(i), bd.Index, "group %d of %s", g.Group, d.Key().String())
			}
		}
	}
}
