package render

import "github.com/arclight3d/arclight/core"

// EffectChain derives the post-process stage list from the frame's feature
// flags. Order is fixed: temporal resolve first so later stages see a
// stabilized image, then bloom, then depth of field, then the mandatory
// tonemap and gamma encode. Disabled stages are absent rather than
// pass-through, so the ping-pong slot assignment shifts deterministically
// with the flags.
func EffectChain(d core.FeatureDescriptor) []core.EffectKind {
	chain := make([]core.EffectKind, 0, 4)
	if d.Antialiasing {
		chain = append(chain, core.EffectTemporal)
	}
	if d.Bloom {
		chain = append(chain, core.EffectBloom)
	}
	if d.DepthOfField {
		chain = append(chain, core.EffectDepthOfField)
	}
	chain = append(chain, core.EffectTonemapGamma)
	return chain
}

// usesHistory reports whether a stage reads its own previous output, which
// requires the history side of the ping-pong pair to be bound.
func usesHistory(e core.EffectKind) bool {
	switch e {
	case core.EffectTemporal, core.EffectBloom:
		return true
	}
	return false
}
