package gpu

import (
	"testing"

	"github.com/arclight3d/arclight/core"
)

func TestRenderSampleCountFollowsDepthSharing(t *testing.T) {
	cases := []struct {
		name string
		d    core.FeatureDescriptor
		want uint32
	}{
		{"geometry plain", core.FeatureDescriptor{Pass: core.PassGeometry}, 1},
		{"geometry msaa", core.FeatureDescriptor{Pass: core.PassGeometry, MultisampledGeometry: true}, GeometrySampleCount},
		{"transparency plain", core.FeatureDescriptor{Pass: core.PassMaterialTransparent}, 1},
		// Transparency attaches the geometry depth buffer, so its pipeline
		// must render at the same sample count.
		{"transparency msaa", core.FeatureDescriptor{Pass: core.PassMaterialTransparent, MultisampledGeometry: true}, GeometrySampleCount},
		{"resolve msaa", core.FeatureDescriptor{Pass: core.PassMaterialOpaque, MultisampledGeometry: true}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := RenderSampleCount(tc.d); got != tc.want {
				t.Fatalf("got %d, want %d", got, tc.want)
			}
		})
	}
}
