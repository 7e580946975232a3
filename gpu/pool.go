package gpu

import (
	"github.com/cogentcore/webgpu/wgpu"

	"github.com/arclight3d/arclight/core"
)

// Headroom presets for grow-on-demand buffers. Attribute data churns the
// most, so it gets the largest slack.
const (
	HeadroomAttributes = 4 * 1024 * 1024
	HeadroomTables     = 64 * 1024
)

// Pool buffer names. Bind groups are keyed on these, so a rename is a
// rewire of every pass that touches the buffer.
const (
	BufCamera       = "camera"
	BufTransforms   = "transforms"
	BufMaterials    = "materials"
	BufMeshMeta     = "mesh_meta"
	BufAttributes   = "attr_data"
	BufMorphWeights = "morph_weights"
	BufMorphValues  = "morph_values"
	BufJoints       = "joint_matrices"
	BufLights       = "lights"
	BufPickParams   = "pick_params"
	BufPickResult   = "pick_result"
	BufPickReadback = "pick_readback"
)

// Pool target names. The _ms pair holds the multisampled OIT attachments
// that resolve into the 1-sample targets composite reads.
const (
	TargetVisibility    = "visibility"
	TargetDepth         = "depth"
	TargetOpaque        = "opaque"
	TargetOITAccum      = "oit_accum"
	TargetOITCoverage   = "oit_coverage"
	TargetOITAccumMS    = "oit_accum_ms"
	TargetOITCoverageMS = "oit_coverage_ms"
	TargetComposite     = "composite"
	PairEffects         = "effects"
)

// PooledBuffer is a named GPU buffer that grows but never shrinks.
type PooledBuffer struct {
	Name string
	Buf  *wgpu.Buffer
}

// Target is a named render target with a write-version counter. The frame
// graph compares versions to catch a pass reading a target no pass has
// written this frame.
type Target struct {
	Name    string
	Texture *wgpu.Texture
	View    *wgpu.TextureView
	Format  wgpu.TextureFormat
	Width   uint32
	Height  uint32
	Samples uint32

	version uint64
}

// MarkWritten records the frame that last wrote the target.
func (t *Target) MarkWritten(frame uint64) { t.version = frame }

// Version returns the frame number of the last recorded write. Version
// survives target recreation on resize; staleness is decided against the
// current frame number, not against zero.
func (t *Target) Version() uint64 { return t.version }

// PingPong is a pair of same-format targets with explicit parity. Parity
// flips only when a pass actually wrote the current side; it is never
// derived from the frame counter, so skipped frames cannot swap the roles.
type PingPong struct {
	a, b   *Target
	parity uint8
}

// Current is the side the next write goes to.
func (p *PingPong) Current() *Target {
	if p.parity == 0 {
		return p.a
	}
	return p.b
}

// History is the side holding the previous accepted output.
func (p *PingPong) History() *Target {
	if p.parity == 0 {
		return p.b
	}
	return p.a
}

// Flip swaps roles. Call only after a write to Current was submitted.
func (p *PingPong) Flip() { p.parity ^= 1 }

// Parity exposes the raw parity bit for frame-state snapshots.
func (p *PingPong) Parity() uint8 { return p.parity }

// ResourcePool owns the frame's GPU buffers, render targets and samplers.
// Every recreation bumps a generation counter; bind groups record the
// generation they were built against and are rebuilt when it moves.
type ResourcePool struct {
	device *wgpu.Device
	log    core.Logger

	generation uint64
	buffers    map[string]*PooledBuffer
	targets    map[string]*Target
	pairs      map[string]*PingPong
	sampler    *wgpu.Sampler
}

func NewResourcePool(device *wgpu.Device, log core.Logger) *ResourcePool {
	return &ResourcePool{
		device:  device,
		log:     core.OrNop(log),
		buffers: make(map[string]*PooledBuffer),
		targets: make(map[string]*Target),
		pairs:   make(map[string]*PingPong),
	}
}

// Generation changes whenever any pooled resource is (re)created.
func (p *ResourcePool) Generation() uint64 { return p.generation }

// EnsureBuffer uploads data into the named buffer, creating or growing it
// first when the current allocation is too small. Growth keeps headroom so
// steady per-frame churn does not reallocate every frame.
func (p *ResourcePool) EnsureBuffer(name string, data []byte, usage wgpu.BufferUsage, headroom int) (*PooledBuffer, error) {
	needed := uint64(len(data) + headroom)
	if needed%4 != 0 {
		needed += 4 - needed%4
	}
	if needed == 0 {
		needed = 4
	}

	pb := p.buffers[name]
	if pb == nil {
		pb = &PooledBuffer{Name: name}
		p.buffers[name] = pb
	}
	if pb.Buf == nil || pb.Buf.GetSize() < needed {
		if pb.Buf != nil {
			pb.Buf.Release()
			pb.Buf = nil
		}
		buf, err := p.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: name,
			Size:  needed,
			Usage: usage | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return nil, &core.ResourceExhaustedError{Resource: name, Needed: needed, Err: err}
		}
		pb.Buf = buf
		p.generation++
		p.log.Debugf("buffer (re)created: name=%s size=%d gen=%d", name, needed, p.generation)
	}
	if len(data) > 0 {
		p.device.GetQueue().WriteBuffer(pb.Buf, 0, data)
	}
	return pb, nil
}

// Buffer returns the named buffer or nil when it was never ensured.
func (p *ResourcePool) Buffer(name string) *PooledBuffer { return p.buffers[name] }

// EnsureTarget returns the named target, recreating it when size, format or
// sample count changed. The write-version counter carries over.
func (p *ResourcePool) EnsureTarget(name string, w, h uint32, format wgpu.TextureFormat, usage wgpu.TextureUsage, samples uint32) (*Target, error) {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	if samples < 1 {
		samples = 1
	}

	t := p.targets[name]
	if t != nil && t.Width == w && t.Height == h && t.Format == format && t.Samples == samples {
		return t, nil
	}

	tex, err := p.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         name,
		Size:          wgpu.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   samples,
		Dimension:     wgpu.TextureDimension2D,
		Format:        format,
		Usage:         usage,
	})
	if err != nil {
		return nil, &core.ResourceExhaustedError{Resource: name, Needed: uint64(w) * uint64(h), Err: err}
	}

	var version uint64
	if t != nil {
		version = t.version
		t.release()
	} else {
		t = &Target{Name: name}
		p.targets[name] = t
	}
	t.Texture = tex
	t.View, err = tex.CreateView(nil)
	if err != nil {
		tex.Release()
		t.Texture = nil
		return nil, &core.ResourceExhaustedError{Resource: name, Needed: uint64(w) * uint64(h), Err: err}
	}
	t.Format = format
	t.Width = w
	t.Height = h
	t.Samples = samples
	t.version = version
	p.generation++
	p.log.Debugf("target (re)created: name=%s %dx%d gen=%d", name, w, h, p.generation)
	return t, nil
}

// Target returns the named target or nil when it was never ensured.
func (p *ResourcePool) Target(name string) *Target { return p.targets[name] }

// EnsurePingPong keeps a same-format target pair sized to the frame. Parity
// is preserved across resizes.
func (p *ResourcePool) EnsurePingPong(name string, w, h uint32, format wgpu.TextureFormat, usage wgpu.TextureUsage) (*PingPong, error) {
	pair := p.pairs[name]
	if pair == nil {
		pair = &PingPong{}
		p.pairs[name] = pair
	}
	a, err := p.EnsureTarget(name+"/a", w, h, format, usage, 1)
	if err != nil {
		return nil, err
	}
	b, err := p.EnsureTarget(name+"/b", w, h, format, usage, 1)
	if err != nil {
		return nil, err
	}
	pair.a, pair.b = a, b
	return pair, nil
}

// PingPongPair returns the named pair or nil when it was never ensured.
func (p *ResourcePool) PingPongPair(name string) *PingPong { return p.pairs[name] }

// LinearSampler returns the shared clamp-to-edge linear sampler, creating
// it on first use.
func (p *ResourcePool) LinearSampler() (*wgpu.Sampler, error) {
	if p.sampler != nil {
		return p.sampler, nil
	}
	s, err := p.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         "pool linear",
		AddressModeU:  wgpu.AddressModeClampToEdge,
		AddressModeV:  wgpu.AddressModeClampToEdge,
		AddressModeW:  wgpu.AddressModeClampToEdge,
		MagFilter:     wgpu.FilterModeLinear,
		MinFilter:     wgpu.FilterModeLinear,
		MipmapFilter:  wgpu.MipmapFilterModeLinear,
		LodMinClamp:   0,
		LodMaxClamp:   32,
		Compare:       wgpu.CompareFunctionUndefined,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return nil, &core.ResourceExhaustedError{Resource: "sampler", Err: err}
	}
	p.sampler = s
	return s, nil
}

// ReleaseAll drops every owned GPU object. Used on device loss and shutdown;
// the pool itself stays usable for a rebuilt device only through a fresh
// NewResourcePool.
func (p *ResourcePool) ReleaseAll() {
	for _, pb := range p.buffers {
		if pb.Buf != nil {
			pb.Buf.Release()
			pb.Buf = nil
		}
	}
	for _, t := range p.targets {
		t.release()
	}
	if p.sampler != nil {
		p.sampler.Release()
		p.sampler = nil
	}
}

func (t *Target) release() {
	if t.View != nil {
		t.View.Release()
		t.View = nil
	}
	if t.Texture != nil {
		t.Texture.Release()
		t.Texture = nil
	}
}
