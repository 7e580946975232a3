// Package shadergen renders complete WGSL programs from feature
// descriptors. Compilation is a pure function: the same descriptor always
// yields byte-identical source, independent of call history, and the
// bind-group layout the pipeline cache needs is derived from the same
// single plan the source declarations come from.
package shadergen

import (
	"strings"

	"github.com/arclight3d/arclight/core"
)

// CompiledSource is the output of one variant compilation.
type CompiledSource struct {
	Key    core.VariantKey
	Source string
	Layout []GroupLayout
}

// Compile validates and normalizes the descriptor, then composes the
// variant program from ordered fragments: constants, struct declarations,
// binding declarations from the plan, shared helper blocks, and the pass
// entry point.
func Compile(d core.FeatureDescriptor) (CompiledSource, error) {
	if err := d.Validate(); err != nil {
		return CompiledSource{}, err
	}
	n := d.Normalize()
	p := plan(n)
	layouts := p.layouts()

	var b strings.Builder
	b.WriteString("// variant: " + n.Key().String() + "\n\n")
	writeConstants(&b, n)
	for _, s := range structsFor(n) {
		b.WriteString(s)
		b.WriteString("\n")
	}
	writeBindings(&b, layouts)

	b.WriteString(mathBlockWGSL)
	b.WriteString("\n")
	if needsColorspace(n) {
		b.WriteString(colorspaceBlockWGSL)
		b.WriteString("\n")
	}
	if needsCameraHelpers(n) {
		b.WriteString(cameraHelpersWGSL)
		b.WriteString("\n")
	}
	if needsBrdf(n) {
		b.WriteString(brdfBlockWGSL)
		b.WriteString("\n")
	}

	switch n.Pass {
	case core.PassGeometry:
		writeGeometryPass(&b, n)
	case core.PassMaterialOpaque:
		writeMaterialResolvePass(&b, n)
	case core.PassMaterialTransparent:
		writeTransparencyPass(&b, n)
	case core.PassComposite:
		writeCompositePass(&b, n)
	case core.PassEffects:
		writeEffectsPass(&b, n)
	case core.PassPicking:
		writePickingPass(&b, n)
	case core.PassAtlasBlit:
		writeAtlasBlitPass(&b, n)
	}

	return CompiledSource{Key: n.Key(), Source: b.String(), Layout: layouts}, nil
}

func needsColorspace(n core.FeatureDescriptor) bool {
	switch n.Pass {
	case core.PassAtlasBlit:
		return true
	case core.PassEffects:
		return n.Effect == core.EffectTonemapGamma
	}
	return false
}

func needsCameraHelpers(n core.FeatureDescriptor) bool {
	switch n.Pass {
	case core.PassMaterialOpaque, core.PassComposite:
		return true
	}
	return false
}

func needsBrdf(n core.FeatureDescriptor) bool {
	switch n.Pass {
	case core.PassMaterialOpaque, core.PassMaterialTransparent:
		return n.Material == core.MaterialPbr
	}
	return false
}

// IsCompute reports whether a pass compiles to a compute pipeline rather
// than a render pipeline.
func IsCompute(p core.PassKind) bool {
	switch p {
	case core.PassGeometry, core.PassMaterialTransparent:
		return false
	}
	return true
}
