package core

import (
	"fmt"
	"strings"
)

// PassKind selects which render-pass entry point a variant is compiled for.
type PassKind uint8

const (
	PassGeometry PassKind = iota
	PassMaterialOpaque
	PassMaterialTransparent
	PassComposite
	PassEffects
	PassPicking
	PassAtlasBlit
)

func (p PassKind) String() string {
	switch p {
	case PassGeometry:
		return "geometry"
	case PassMaterialOpaque:
		return "material_opaque"
	case PassMaterialTransparent:
		return "material_transparent"
	case PassComposite:
		return "composite"
	case PassEffects:
		return "effects"
	case PassPicking:
		return "picking"
	case PassAtlasBlit:
		return "atlas_blit"
	}
	return fmt.Sprintf("pass(%d)", uint8(p))
}

type MaterialKind uint8

const (
	MaterialPbr MaterialKind = iota
	MaterialUnlit
	MaterialPostProcess
)

func (m MaterialKind) String() string {
	switch m {
	case MaterialPbr:
		return "pbr"
	case MaterialUnlit:
		return "unlit"
	case MaterialPostProcess:
		return "postprocess"
	}
	return fmt.Sprintf("material(%d)", uint8(m))
}

type AlphaMode uint8

const (
	AlphaOpaque AlphaMode = iota
	AlphaMask
	AlphaBlend
)

type TonemapOp uint8

const (
	TonemapNone TonemapOp = iota
	TonemapReinhard
	TonemapAces
)

// EffectKind discriminates the post-process stage an effects variant
// implements. Only meaningful when Pass == PassEffects.
type EffectKind uint8

const (
	EffectNone EffectKind = iota
	EffectTemporal
	EffectBloom
	EffectDepthOfField
	EffectTonemapGamma
)

func (e EffectKind) String() string {
	switch e {
	case EffectNone:
		return "none"
	case EffectTemporal:
		return "temporal"
	case EffectBloom:
		return "bloom"
	case EffectDepthOfField:
		return "dof"
	case EffectTonemapGamma:
		return "tonemap_gamma"
	}
	return fmt.Sprintf("effect(%d)", uint8(e))
}

// Hard variant limits. A descriptor exceeding one of these is rejected with
// VariantUnsupportedError, never clamped: a clamped variant would compile to
// a layout that no longer matches what the caller asked for.
const (
	MaxUVSets       = 4
	MaxColorSets    = 2
	MaxJointSets    = 4
	MaxMorphTargets = 8
)

// FeatureDescriptor describes everything that can change generated shader
// source or bind-group layout for one draw: the mesh attribute set, the
// material kind and its sub-flags, and the pass kind. Structurally equal
// descriptors always compile to byte-identical source and identical layouts.
type FeatureDescriptor struct {
	Pass PassKind

	// Mesh attribute set.
	HasNormals   bool
	HasTangents  bool
	UVSets       uint8
	ColorSets    uint8
	JointSets    uint8
	MorphTargets uint8
	Instanced    bool

	// Material kind and sub-flags.
	Material         MaterialKind
	BaseColorTexture bool
	NormalTexture    bool
	Alpha            AlphaMode

	// Orthogonal pass variants.
	MultisampledGeometry bool

	// Post-process feature set. Effect selects the concrete stage for
	// PassEffects variants; the booleans describe which optional stages
	// exist in the chain (they shift binding slots deterministically).
	Effect       EffectKind
	Antialiasing bool
	Bloom        bool
	DepthOfField bool
	Tonemap      TonemapOp
}

// Validate rejects descriptors that exceed fixed variant limits, naming the
// offending field.
func (d FeatureDescriptor) Validate() error {
	switch {
	case d.UVSets > MaxUVSets:
		return &VariantUnsupportedError{Field: "UVSets", Value: int(d.UVSets), Max: MaxUVSets}
	case d.ColorSets > MaxColorSets:
		return &VariantUnsupportedError{Field: "ColorSets", Value: int(d.ColorSets), Max: MaxColorSets}
	case d.JointSets > MaxJointSets:
		return &VariantUnsupportedError{Field: "JointSets", Value: int(d.JointSets), Max: MaxJointSets}
	case d.MorphTargets > MaxMorphTargets:
		return &VariantUnsupportedError{Field: "MorphTargets", Value: int(d.MorphTargets), Max: MaxMorphTargets}
	}
	if d.Pass == PassEffects && d.Effect == EffectNone {
		return &VariantUnsupportedError{Field: "Effect", Value: int(EffectNone), Max: int(EffectTonemapGamma)}
	}
	return nil
}

// Normalize zeroes every field the pass kind ignores, so that two
// descriptors differing only in irrelevant flags map to the same variant.
// Picking and composite variants ignore material sub-flags entirely; only
// effects variants keep the post-process feature set.
func (d FeatureDescriptor) Normalize() FeatureDescriptor {
	n := d
	switch d.Pass {
	case PassGeometry:
		// Geometry keeps the attribute set and alpha mode (masked geometry
		// rasterizes differently) but no shading flags.
		n.Material = MaterialPbr
		n.BaseColorTexture = false
		n.NormalTexture = false
		n.clearEffects()
	case PassMaterialOpaque:
		// Opaque resolve is a screen-space compute pass; the mesh attribute
		// set only matters to the geometry variant that produced the
		// visibility buffer.
		n.clearMeshAttributes()
		n.clearEffects()
	case PassMaterialTransparent:
		// Forward transparency rasterizes geometry directly and keeps the
		// attribute set.
		n.clearEffects()
	case PassComposite:
		n.clearMeshAttributes()
		n.clearMaterial()
		n.clearEffects()
		// Composite reads the resolved 1-sample targets regardless of the
		// geometry sample count.
		n.MultisampledGeometry = false
	case PassEffects:
		n.clearMeshAttributes()
		n.clearMaterial()
		n.MultisampledGeometry = false
	case PassPicking, PassAtlasBlit:
		n.clearMeshAttributes()
		n.clearMaterial()
		n.clearEffects()
		n.MultisampledGeometry = d.Pass == PassPicking && d.MultisampledGeometry
	}
	if n.Pass != PassEffects {
		n.Effect = EffectNone
	}
	return n
}

func (d *FeatureDescriptor) clearMeshAttributes() {
	d.HasNormals = false
	d.HasTangents = false
	d.UVSets = 0
	d.ColorSets = 0
	d.JointSets = 0
	d.MorphTargets = 0
	d.Instanced = false
}

func (d *FeatureDescriptor) clearMaterial() {
	d.Material = MaterialPbr
	d.BaseColorTexture = false
	d.NormalTexture = false
	d.Alpha = AlphaOpaque
}

func (d *FeatureDescriptor) clearEffects() {
	d.Effect = EffectNone
	d.Antialiasing = false
	d.Bloom = false
	d.DepthOfField = false
	d.Tonemap = TonemapNone
}

// WithPass returns a copy of the descriptor retargeted at another pass.
func (d FeatureDescriptor) WithPass(p PassKind) FeatureDescriptor {
	d.Pass = p
	return d
}

// WithEffect returns a PassEffects copy selecting the given stage.
func (d FeatureDescriptor) WithEffect(e EffectKind) FeatureDescriptor {
	d.Pass = PassEffects
	d.Effect = e
	return d
}

// VariantKey is the canonical cache key for a descriptor: the normalized
// descriptor itself. It is a comparable value, so equality and map lookup
// need no hashing and cannot depend on call order.
type VariantKey struct {
	d FeatureDescriptor
}

// Key derives the variant key. Descriptors that are structurally equal after
// normalization produce the identical key.
func (d FeatureDescriptor) Key() VariantKey {
	return VariantKey{d: d.Normalize()}
}

// Descriptor returns the normalized descriptor the key was derived from.
func (k VariantKey) Descriptor() FeatureDescriptor { return k.d }

func (k VariantKey) String() string {
	d := k.d
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s/%s", d.Pass, d.Material)
	if d.HasNormals {
		sb.WriteString("+n")
	}
	if d.HasTangents {
		sb.WriteString("+t")
	}
	if d.UVSets > 0 {
		fmt.Fprintf(&sb, "+uv%d", d.UVSets)
	}
	if d.ColorSets > 0 {
		fmt.Fprintf(&sb, "+col%d", d.ColorSets)
	}
	if d.JointSets > 0 {
		fmt.Fprintf(&sb, "+skin%d", d.JointSets)
	}
	if d.MorphTargets > 0 {
		fmt.Fprintf(&sb, "+morph%d", d.MorphTargets)
	}
	if d.Instanced {
		sb.WriteString("+inst")
	}
	if d.BaseColorTexture {
		sb.WriteString("+bctex")
	}
	if d.NormalTexture {
		sb.WriteString("+ntex")
	}
	if d.Alpha != AlphaOpaque {
		fmt.Fprintf(&sb, "+alpha%d", d.Alpha)
	}
	if d.MultisampledGeometry {
		sb.WriteString("+msaa")
	}
	if d.Pass == PassEffects {
		fmt.Fprintf(&sb, "/%s", d.Effect)
	}
	if d.Antialiasing {
		sb.WriteString("+taa")
	}
	if d.Bloom {
		sb.WriteString("+bloom")
	}
	if d.DepthOfField {
		sb.WriteString("+dof")
	}
	if d.Tonemap != TonemapNone {
		fmt.Fprintf(&sb, "+tm%d", d.Tonemap)
	}
	return sb.String()
}
