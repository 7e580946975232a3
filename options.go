package arclight

import "github.com/arclight3d/arclight/core"

// Options configures a Renderer. Zero values fall back to the defaults
// below.
type Options struct {
	Title  string
	Width  int
	Height int

	// VSync selects FIFO presentation; immediate otherwise.
	VSync bool
	Debug bool

	// Texture atlas geometry. Slot includes the bleed border on both sides.
	AtlasExtent  uint32
	AtlasSlot    uint32
	AtlasPadding uint32
	AtlasLayers  uint32

	Logger core.Logger
}

func (o Options) withDefaults() Options {
	if o.Title == "" {
		o.Title = "arclight"
	}
	if o.Width <= 0 {
		o.Width = 1280
	}
	if o.Height <= 0 {
		o.Height = 720
	}
	if o.AtlasExtent == 0 {
		o.AtlasExtent = 2048
	}
	if o.AtlasSlot == 0 {
		o.AtlasSlot = 256
	}
	if o.AtlasPadding == 0 {
		o.AtlasPadding = 4
	}
	if o.AtlasLayers == 0 {
		o.AtlasLayers = 4
	}
	if o.Logger == nil {
		o.Logger = core.NewDefaultLogger("arclight", o.Debug)
	}
	return o
}
