package gpu

import (
	"encoding/binary"
	"image"
	stddraw "image/draw"
	"math"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/google/uuid"
	xdraw "golang.org/x/image/draw"

	"github.com/arclight3d/arclight/core"
)

// AtlasEntry is one registered texture. X/Y locate the image origin inside
// its slot, past the bleed border; shaders sample within [X, X+Width).
type AtlasEntry struct {
	ID     string
	Layer  uint32
	X      uint32
	Y      uint32
	Width  uint32
	Height uint32
}

// Atlas is a layered RGBA texture pool with fixed-size slots. Every entry
// gets one slot; the image is surrounded by a replicated-edge bleed border
// so linear filtering at the image rim never pulls in a neighbor slot.
type Atlas struct {
	device *wgpu.Device
	queue  *wgpu.Queue
	log    core.Logger

	Texture *wgpu.Texture
	View    *wgpu.TextureView

	slot    uint32
	padding uint32
	cols    uint32
	rows    uint32
	layers  uint32

	entries map[string]AtlasEntry
	free    []uint32
	next    uint32
}

// NewAtlas allocates the backing array texture. extent is the edge length of
// each square layer, slot the edge length of one slot including its bleed
// border on both sides.
func NewAtlas(device *wgpu.Device, extent, slot, padding, layers uint32, log core.Logger) (*Atlas, error) {
	if slot > extent || slot <= 2*padding {
		return nil, &core.ResourceExhaustedError{Resource: "atlas", Needed: uint64(slot)}
	}
	tex, err := device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "texture atlas",
		Size:          wgpu.Extent3D{Width: extent, Height: extent, DepthOrArrayLayers: layers},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        FormatAtlas,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageStorageBinding | wgpu.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, &core.ResourceExhaustedError{Resource: "atlas", Needed: uint64(extent) * uint64(extent) * uint64(layers) * 4, Err: err}
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, &core.ResourceExhaustedError{Resource: "atlas view", Err: err}
	}
	return &Atlas{
		device:  device,
		queue:   device.GetQueue(),
		log:     core.OrNop(log),
		Texture: tex,
		View:    view,
		slot:    slot,
		padding: padding,
		cols:    extent / slot,
		rows:    extent / slot,
		layers:  layers,
		entries: make(map[string]AtlasEntry),
	}, nil
}

// MaxImageEdge is the largest source edge an entry can hold without
// downscaling.
func (a *Atlas) MaxImageEdge() uint32 { return a.slot - 2*a.padding }

// Add registers an image under a fresh id and uploads it, bleed border
// included. Sources larger than the slot interior are downscaled first;
// srgbEncoded sources are linearized during staging.
func (a *Atlas) Add(src image.Image, srgbEncoded bool) (AtlasEntry, error) {
	slotIdx, ok := a.takeSlot()
	if !ok {
		return AtlasEntry{}, &core.ResourceExhaustedError{Resource: "atlas slots", Needed: uint64(len(a.entries) + 1)}
	}

	rgba := toRGBA(src, int(a.MaxImageEdge()))
	staged := StageWithBleed(rgba, int(a.padding), srgbEncoded)

	perLayer := a.cols * a.rows
	layer := slotIdx / perLayer
	cell := slotIdx % perLayer
	x0 := (cell % a.cols) * a.slot
	y0 := (cell / a.cols) * a.slot

	sw := uint32(staged.Rect.Dx())
	sh := uint32(staged.Rect.Dy())
	err := a.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  a.Texture,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{X: x0, Y: y0, Z: layer},
			Aspect:   wgpu.TextureAspectAll,
		},
		staged.Pix,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  4 * sw,
			RowsPerImage: sh,
		},
		&wgpu.Extent3D{Width: sw, Height: sh, DepthOrArrayLayers: 1},
	)
	if err != nil {
		a.free = append(a.free, slotIdx)
		return AtlasEntry{}, &core.ResourceExhaustedError{Resource: "atlas upload", Err: err}
	}

	e := AtlasEntry{
		ID:     uuid.NewString(),
		Layer:  layer,
		X:      x0 + a.padding,
		Y:      y0 + a.padding,
		Width:  uint32(rgba.Rect.Dx()),
		Height: uint32(rgba.Rect.Dy()),
	}
	a.entries[e.ID] = e
	a.log.Debugf("atlas add: id=%s layer=%d at=(%d,%d) %dx%d", e.ID, e.Layer, e.X, e.Y, e.Width, e.Height)
	return e, nil
}

// Entry looks up a registered entry by id.
func (a *Atlas) Entry(id string) (AtlasEntry, bool) {
	e, ok := a.entries[id]
	return e, ok
}

// Remove forgets an entry and recycles its slot. Texels stay in place until
// a later Add overwrites them.
func (a *Atlas) Remove(id string) {
	e, ok := a.entries[id]
	if !ok {
		return
	}
	delete(a.entries, id)
	cell := (e.Y-a.padding)/a.slot*a.cols + (e.X-a.padding)/a.slot
	a.free = append(a.free, e.Layer*a.cols*a.rows+cell)
}

// Len reports the number of live entries.
func (a *Atlas) Len() int { return len(a.entries) }

// Release drops the backing texture.
func (a *Atlas) Release() {
	if a.View != nil {
		a.View.Release()
		a.View = nil
	}
	if a.Texture != nil {
		a.Texture.Release()
		a.Texture = nil
	}
}

func (a *Atlas) takeSlot() (uint32, bool) {
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		return idx, true
	}
	if a.next >= a.cols*a.rows*a.layers {
		return 0, false
	}
	idx := a.next
	a.next++
	return idx, true
}

// DispatchExtent is the compute grid that covers one staged entry, bleed
// border included.
func DispatchExtent(w, h, padding uint32) (x, y, z uint32) {
	return w + 2*padding, h + 2*padding, 1
}

// EncodeBlitParams packs the uniform record the atlas blit variant reads.
// dstX/dstY address the slot origin, not the image origin.
func EncodeBlitParams(dstX, dstY, dstLayer, padding, srcW, srcH uint32, srgbEncoded bool) []byte {
	out := make([]byte, 32)
	le := binary.LittleEndian
	le.PutUint32(out[0:], dstX)
	le.PutUint32(out[4:], dstY)
	le.PutUint32(out[8:], dstLayer)
	le.PutUint32(out[12:], padding)
	le.PutUint32(out[16:], srcW)
	le.PutUint32(out[20:], srcH)
	if srgbEncoded {
		le.PutUint32(out[24:], 1)
	}
	return out
}

// StageWithBleed expands src by padding on every side, replicating edge
// texels outward. Sampling is clamped into the source rect, matching the
// GPU blit's coordinate clamp texel for texel.
func StageWithBleed(src *image.RGBA, padding int, linearize bool) *image.RGBA {
	w := src.Rect.Dx()
	h := src.Rect.Dy()
	out := image.NewRGBA(image.Rect(0, 0, w+2*padding, h+2*padding))
	for oy := 0; oy < h+2*padding; oy++ {
		sy := clampInt(oy-padding, 0, h-1)
		for ox := 0; ox < w+2*padding; ox++ {
			sx := clampInt(ox-padding, 0, w-1)
			si := src.PixOffset(src.Rect.Min.X+sx, src.Rect.Min.Y+sy)
			oi := out.PixOffset(ox, oy)
			if linearize {
				out.Pix[oi+0] = srgbToLinear8(src.Pix[si+0])
				out.Pix[oi+1] = srgbToLinear8(src.Pix[si+1])
				out.Pix[oi+2] = srgbToLinear8(src.Pix[si+2])
			} else {
				out.Pix[oi+0] = src.Pix[si+0]
				out.Pix[oi+1] = src.Pix[si+1]
				out.Pix[oi+2] = src.Pix[si+2]
			}
			out.Pix[oi+3] = src.Pix[si+3]
		}
	}
	return out
}

// toRGBA converts src to RGBA, downscaling to fit maxEdge while keeping the
// aspect ratio.
func toRGBA(src image.Image, maxEdge int) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxEdge && h <= maxEdge {
		out := image.NewRGBA(image.Rect(0, 0, w, h))
		stddraw.Draw(out, out.Rect, src, b.Min, stddraw.Src)
		return out
	}
	scale := float64(maxEdge) / float64(w)
	if h > w {
		scale = float64(maxEdge) / float64(h)
	}
	nw := clampInt(int(float64(w)*scale), 1, maxEdge)
	nh := clampInt(int(float64(h)*scale), 1, maxEdge)
	out := image.NewRGBA(image.Rect(0, 0, nw, nh))
	xdraw.ApproxBiLinear.Scale(out, out.Rect, src, b, xdraw.Src, nil)
	return out
}

func srgbToLinear8(v uint8) uint8 {
	c := float64(v) / 255.0
	var lin float64
	if c <= 0.04045 {
		lin = c / 12.92
	} else {
		lin = math.Pow((c+0.055)/1.055, 2.4)
	}
	return uint8(math.Round(lin * 255.0))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
