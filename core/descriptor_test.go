package core

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateRejectsOverLimits(t *testing.T) {
	cases := []struct {
		name string
		d    FeatureDescriptor
	}{
		{"joints", FeatureDescriptor{Pass: PassGeometry, JointSets: MaxJointSets + 1}},
		{"morphs", FeatureDescriptor{Pass: PassGeometry, MorphTargets: MaxMorphTargets + 1}},
		{"uvs", FeatureDescriptor{Pass: PassGeometry, UVSets: MaxUVSets + 1}},
		{"colors", FeatureDescriptor{Pass: PassGeometry, ColorSets: MaxColorSets + 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.d.Validate()
			if err == nil {
				t.Fatalf("expected error for %+v", tc.d)
			}
			var vu *VariantUnsupportedError
			if !errors.As(err, &vu) {
				t.Fatalf("expected VariantUnsupportedError, got %T", err)
			}
		})
	}
}

func TestValidateEffectsRequireStage(t *testing.T) {
	d := FeatureDescriptor{Pass: PassEffects}
	if d.Validate() == nil {
		t.Fatal("effects pass without a stage must not validate")
	}
	d.Effect = EffectTonemapGamma
	if err := d.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNormalizeDropsPassIrrelevantFields(t *testing.T) {
	base := FeatureDescriptor{
		Pass:        PassComposite,
		HasNormals:  true,
		HasTangents: true,
		UVSets:      2,
		JointSets:   1,
		Material:    MaterialPbr,
		Tonemap:     TonemapAces,
	}
	n := base.Normalize()
	if n.HasNormals || n.HasTangents || n.UVSets != 0 || n.JointSets != 0 {
		t.Errorf("composite kept mesh attributes: %+v", n)
	}
}

func TestNormalizeKeepsAttributesForTransparency(t *testing.T) {
	d := FeatureDescriptor{
		Pass:       PassMaterialTransparent,
		HasNormals: true,
		UVSets:     1,
		Material:   MaterialPbr,
		Alpha:      AlphaBlend,
	}
	n := d.Normalize()
	if !n.HasNormals || n.UVSets != 1 {
		t.Errorf("forward transparency needs its vertex attributes: %+v", n)
	}

	o := d
	o.Pass = PassMaterialOpaque
	no := o.Normalize()
	if no.HasNormals {
		t.Errorf("screen-space resolve must not key on vertex attributes: %+v", no)
	}
}

func TestKeyEqualityFollowsNormalization(t *testing.T) {
	a := FeatureDescriptor{Pass: PassComposite, HasNormals: true}
	b := FeatureDescriptor{Pass: PassComposite}
	if a.Normalize().Key() != b.Normalize().Key() {
		t.Error("normalized-equal descriptors must share a key")
	}

	c := FeatureDescriptor{Pass: PassGeometry, HasNormals: true}
	d := FeatureDescriptor{Pass: PassGeometry}
	if c.Normalize().Key() == d.Normalize().Key() {
		t.Error("attribute flags must distinguish geometry keys")
	}
}

func TestNormalizeMultisampledScope(t *testing.T) {
	// Composite reads resolved 1-sample targets, so the flag must not split
	// its key; geometry and transparency rasterize at the sample count and
	// keep it; the screen-space resolve keys on the visibility binding kind.
	msaa := FeatureDescriptor{MultisampledGeometry: true}
	for _, p := range []PassKind{PassComposite, PassAtlasBlit} {
		if msaa.WithPass(p).Normalize().MultisampledGeometry {
			t.Errorf("%s must drop the multisample flag", p)
		}
	}
	for _, p := range []PassKind{PassGeometry, PassMaterialTransparent, PassMaterialOpaque, PassPicking} {
		if !msaa.WithPass(p).Normalize().MultisampledGeometry {
			t.Errorf("%s must keep the multisample flag", p)
		}
	}
}

func TestKeyStringNamesPassAndFlags(t *testing.T) {
	d := FeatureDescriptor{Pass: PassGeometry, Material: MaterialPbr, HasNormals: true, UVSets: 1}
	s := d.Normalize().Key().String()
	if !strings.Contains(s, "geometry") {
		t.Errorf("key string %q should name the pass", s)
	}
}

func TestWithPassAndEffect(t *testing.T) {
	d := FeatureDescriptor{Pass: PassGeometry, HasNormals: true}
	e := d.WithPass(PassEffects).WithEffect(EffectBloom)
	if e.Pass != PassEffects || e.Effect != EffectBloom {
		t.Fatalf("unexpected: %+v", e)
	}
	if d.Pass != PassGeometry {
		t.Fatal("WithPass must not mutate the receiver")
	}
}
