package render

import (
	"testing"

	"github.com/arclight3d/arclight/core"
)

func TestEffectChainAlwaysEndsWithTonemap(t *testing.T) {
	flags := []core.FeatureDescriptor{
		{},
		{Antialiasing: true},
		{Bloom: true, DepthOfField: true},
		{Antialiasing: true, Bloom: true, DepthOfField: true},
	}
	for _, d := range flags {
		chain := EffectChain(d)
		if len(chain) == 0 || chain[len(chain)-1] != core.EffectTonemapGamma {
			t.Errorf("chain for %+v must end with tonemap: %v", d, chain)
		}
	}
}

func TestEffectChainComposition(t *testing.T) {
	d := core.FeatureDescriptor{Antialiasing: true, DepthOfField: true}
	got := EffectChain(d)
	want := []core.EffectKind{core.EffectTemporal, core.EffectDepthOfField, core.EffectTonemapGamma}
	if len(got) != len(want) {
		t.Fatalf("chain %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("chain %v, want %v", got, want)
		}
	}
}

func TestEffectChainDisabledStagesAbsent(t *testing.T) {
	chain := EffectChain(core.FeatureDescriptor{})
	if len(chain) != 1 {
		t.Fatalf("no flags means tonemap only, got %v", chain)
	}
	for _, e := range chain {
		if e == core.EffectBloom || e == core.EffectTemporal || e == core.EffectDepthOfField {
			t.Fatalf("disabled stage present: %v", chain)
		}
	}
}

func TestUsesHistory(t *testing.T) {
	if !usesHistory(core.EffectTemporal) || !usesHistory(core.EffectBloom) {
		t.Error("temporal and bloom read their previous output")
	}
	if usesHistory(core.EffectDepthOfField) || usesHistory(core.EffectTonemapGamma) {
		t.Error("dof and tonemap are history-free")
	}
}

func TestPassOrderValidatesForAllFlagSets(t *testing.T) {
	for mask := 0; mask < 8; mask++ {
		d := core.FeatureDescriptor{
			Antialiasing: mask&1 != 0,
			Bloom:        mask&2 != 0,
			DepthOfField: mask&4 != 0,
		}
		if err := ValidateOrder(PassOrder(d), nil); err != nil {
			t.Errorf("flags %+v: %v", d, err)
		}
	}
}

func TestPassOrderChainsEffectInputs(t *testing.T) {
	d := core.FeatureDescriptor{Antialiasing: true, Bloom: true}
	specs := PassOrder(d)

	// Find the first effects pass; it must read the composite output, and
	// each later stage must read its predecessor's target.
	var effects []PassSpec
	for _, s := range specs {
		if len(s.Name) > 8 && s.Name[:8] == "effects/" {
			effects = append(effects, s)
		}
	}
	if len(effects) != 3 {
		t.Fatalf("expected 3 effect passes, got %d", len(effects))
	}
	if effects[0].Reads[0] != "composite" {
		t.Errorf("first effect reads %q, want composite", effects[0].Reads[0])
	}
	for i := 1; i < len(effects); i++ {
		if effects[i].Reads[0] != effects[i-1].Writes[0] {
			t.Errorf("effect %d reads %q, want predecessor's %q", i, effects[i].Reads[0], effects[i-1].Writes[0])
		}
	}
}

func TestPassOrderHistoryOnlyForHistoryStages(t *testing.T) {
	d := core.FeatureDescriptor{Antialiasing: true, Bloom: true, DepthOfField: true}
	for _, s := range PassOrder(d) {
		switch s.Name {
		case "effects/temporal", "effects/bloom":
			if len(s.HistoryReads) != 1 || s.HistoryReads[0] != s.Writes[0] {
				t.Errorf("%s must history-read its own target: %+v", s.Name, s)
			}
		default:
			if len(s.HistoryReads) != 0 {
				t.Errorf("%s must not read history: %+v", s.Name, s)
			}
		}
	}
}
