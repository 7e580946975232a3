package render

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/arclight3d/arclight/core"
	"github.com/arclight3d/arclight/gpu"
)

// Orchestrator runs the fixed frame pipeline against a resource pool and
// pipeline cache. Pass order never changes; a pass whose pipeline cannot be
// acquired is skipped, its downstream consumers fail the read check and are
// skipped too, and the last successfully produced output stays current.
type Orchestrator struct {
	device *wgpu.Device
	queue  *wgpu.Queue
	pool   *gpu.ResourcePool
	cache  *gpu.PipelineCache
	atlas  *gpu.Atlas
	log    core.Logger

	width  uint32
	height uint32
	frame  uint64
	output *gpu.Target

	bindGroups map[string]*bgCacheEntry
}

type bgCacheEntry struct {
	gen    uint64
	groups []*wgpu.BindGroup
}

func NewOrchestrator(device *wgpu.Device, pool *gpu.ResourcePool, cache *gpu.PipelineCache, atlas *gpu.Atlas, width, height uint32, log core.Logger) *Orchestrator {
	return &Orchestrator{
		device:     device,
		queue:      device.GetQueue(),
		pool:       pool,
		cache:      cache,
		atlas:      atlas,
		log:        core.OrNop(log),
		width:      width,
		height:     height,
		bindGroups: make(map[string]*bgCacheEntry),
	}
}

// Resize changes the frame extent; targets are recreated lazily on the next
// frame.
func (o *Orchestrator) Resize(width, height uint32) {
	o.width = width
	o.height = height
}

// Frame is the number of the last started frame.
func (o *Orchestrator) Frame() uint64 { return o.frame }

// Output is the most recent successfully produced final image, which may be
// from an earlier frame when a pass chain failed.
func (o *Orchestrator) Output() *gpu.Target { return o.output }

// PassOrder returns the frame's pass specs in submission order, for the
// static graph check and for introspection.
func PassOrder(d core.FeatureDescriptor) []PassSpec {
	specs := []PassSpec{
		{
			Name:   "geometry",
			Writes: []string{gpu.TargetVisibility, gpu.TargetDepth},
		},
		{
			Name:   "material-resolve",
			Reads:  []string{gpu.TargetVisibility},
			Writes: []string{gpu.TargetOpaque},
		},
		{
			Name:   "transparency",
			Reads:  []string{gpu.TargetDepth},
			Writes: []string{gpu.TargetOITAccum, gpu.TargetOITCoverage},
		},
		{
			Name:   "composite",
			Reads:  []string{gpu.TargetOpaque, gpu.TargetOITAccum, gpu.TargetOITCoverage},
			Writes: []string{gpu.TargetComposite},
		},
	}
	input := gpu.TargetComposite
	for _, ek := range EffectChain(d) {
		spec := PassSpec{
			Name:   "effects/" + ek.String(),
			Reads:  []string{input},
			Writes: []string{effectTargetName(ek)},
		}
		if usesHistory(ek) {
			spec.HistoryReads = []string{effectTargetName(ek)}
		}
		specs = append(specs, spec)
		input = effectTargetName(ek)
	}
	return specs
}

func effectTargetName(e core.EffectKind) string {
	return "effects/" + e.String()
}

// RenderFrame uploads the scene, records every pass and submits the frame.
// Scene upload failure aborts the frame; pass failures are isolated.
func (o *Orchestrator) RenderFrame(scene *Scene) error {
	o.frame++
	frame := o.frame

	if err := o.upload(scene); err != nil {
		return err
	}

	samples := uint32(1)
	if scene.Features.MultisampledGeometry {
		samples = gpu.GeometrySampleCount
	}
	vis, err := o.pool.EnsureTarget(gpu.TargetVisibility, o.width, o.height, gpu.FormatVisibility,
		wgpu.TextureUsageRenderAttachment|wgpu.TextureUsageTextureBinding, samples)
	if err != nil {
		return err
	}
	depth, err := o.pool.EnsureTarget(gpu.TargetDepth, o.width, o.height, gpu.FormatDepth,
		wgpu.TextureUsageRenderAttachment, samples)
	if err != nil {
		return err
	}
	opaque, err := o.pool.EnsureTarget(gpu.TargetOpaque, o.width, o.height, gpu.FormatHDR,
		wgpu.TextureUsageStorageBinding|wgpu.TextureUsageTextureBinding, 1)
	if err != nil {
		return err
	}
	accum, err := o.pool.EnsureTarget(gpu.TargetOITAccum, o.width, o.height, gpu.FormatHDR,
		wgpu.TextureUsageRenderAttachment|wgpu.TextureUsageTextureBinding, 1)
	if err != nil {
		return err
	}
	coverage, err := o.pool.EnsureTarget(gpu.TargetOITCoverage, o.width, o.height, gpu.FormatOITCoverage,
		wgpu.TextureUsageRenderAttachment|wgpu.TextureUsageTextureBinding, 1)
	if err != nil {
		return err
	}
	composite, err := o.pool.EnsureTarget(gpu.TargetComposite, o.width, o.height, gpu.FormatHDR,
		wgpu.TextureUsageStorageBinding|wgpu.TextureUsageTextureBinding, 1)
	if err != nil {
		return err
	}

	enc, err := o.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "frame"})
	if err != nil {
		return err
	}

	o.runGeometry(enc, scene, vis, depth, frame)
	o.runMaterialResolve(enc, scene, vis, opaque, frame)
	o.runTransparency(enc, scene, accum, coverage, depth, frame)
	o.runComposite(enc, scene, opaque, accum, coverage, composite, frame)
	final := o.runEffects(enc, scene, composite, frame)

	cmd, err := enc.Finish(nil)
	if err != nil {
		return err
	}
	o.queue.Submit(cmd)

	if final != nil {
		o.output = final
	}
	return nil
}

func (o *Orchestrator) upload(scene *Scene) error {
	type up struct {
		name     string
		data     []byte
		usage    wgpu.BufferUsage
		headroom int
	}
	uploads := []up{
		{gpu.BufCamera, scene.Camera.Encode(), wgpu.BufferUsageUniform, 0},
		{gpu.BufTransforms, orDummy(scene.Transforms), wgpu.BufferUsageStorage, gpu.HeadroomTables},
		{gpu.BufMaterials, EncodeMaterials(scene.Materials), wgpu.BufferUsageStorage, gpu.HeadroomTables},
		{gpu.BufMeshMeta, EncodeMeta(scene.Meta), wgpu.BufferUsageStorage, gpu.HeadroomTables},
		{gpu.BufAttributes, orDummy(scene.Attributes), wgpu.BufferUsageStorage, gpu.HeadroomAttributes},
		{gpu.BufMorphWeights, orDummy(scene.MorphWeights), wgpu.BufferUsageStorage, 0},
		{gpu.BufMorphValues, orDummy(scene.MorphValues), wgpu.BufferUsageStorage, 0},
		{gpu.BufJoints, orDummy(scene.Joints), wgpu.BufferUsageStorage, 0},
		{gpu.BufLights, EncodeLights(scene.Lights), wgpu.BufferUsageStorage, 0},
	}
	for _, u := range uploads {
		if _, err := o.pool.EnsureBuffer(u.name, u.data, u.usage, u.headroom); err != nil {
			return err
		}
	}
	return nil
}

// orDummy substitutes a minimal allocation for absent scene data so every
// storage binding stays valid.
func orDummy(data []byte) []byte {
	if len(data) == 0 {
		return make([]byte, 16)
	}
	return data
}

func (o *Orchestrator) runGeometry(enc *wgpu.CommandEncoder, scene *Scene, vis, depth *gpu.Target, frame uint64) {
	sentinel := float64(core.NoTriangle)
	rp := enc.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: "geometry",
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       vis.View,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: sentinel, G: sentinel, B: sentinel, A: sentinel},
		}},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            depth.View,
			DepthLoadOp:     wgpu.LoadOpClear,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: 1.0,
		},
	})
	for _, draw := range scene.Draws {
		if draw.Transparent {
			continue
		}
		d := draw.Features.WithPass(core.PassGeometry)
		d.MultisampledGeometry = scene.Features.MultisampledGeometry
		o.recordDraw(rp, d, "geometry", draw)
	}
	rp.End()
	// The sentinel clear counts as this frame's write even with zero draws.
	vis.MarkWritten(frame)
	depth.MarkWritten(frame)
}

func (o *Orchestrator) runTransparency(enc *wgpu.CommandEncoder, scene *Scene, accum, coverage, depth *gpu.Target, frame uint64) {
	// Transparents share the geometry depth attachment, so they rasterize at
	// its sample count. Multisampled frames draw into dedicated MSAA color
	// attachments and resolve into the 1-sample targets composite reads.
	accumView, coverageView := accum.View, coverage.View
	var accumResolve, coverageResolve *wgpu.TextureView
	if depth.Samples > 1 {
		accumMS, err := o.pool.EnsureTarget(gpu.TargetOITAccumMS, o.width, o.height, gpu.FormatHDR,
			wgpu.TextureUsageRenderAttachment, depth.Samples)
		if err != nil {
			o.log.Warnf("transparency skipped: %v", err)
			return
		}
		coverageMS, err := o.pool.EnsureTarget(gpu.TargetOITCoverageMS, o.width, o.height, gpu.FormatOITCoverage,
			wgpu.TextureUsageRenderAttachment, depth.Samples)
		if err != nil {
			o.log.Warnf("transparency skipped: %v", err)
			return
		}
		accumView, accumResolve = accumMS.View, accum.View
		coverageView, coverageResolve = coverageMS.View, coverage.View
	}

	rp := enc.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: "transparency",
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:          accumView,
				ResolveTarget: accumResolve,
				LoadOp:        wgpu.LoadOpClear,
				StoreOp:       wgpu.StoreOpStore,
				ClearValue:    wgpu.Color{},
			},
			{
				// Revealage starts at 1: nothing drawn means fully opaque
				// background.
				View:          coverageView,
				ResolveTarget: coverageResolve,
				LoadOp:        wgpu.LoadOpClear,
				StoreOp:       wgpu.StoreOpStore,
				ClearValue:    wgpu.Color{R: 1, G: 1, B: 1, A: 1},
			},
		},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            depth.View,
			DepthLoadOp:     wgpu.LoadOpLoad,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: 1.0,
		},
	})
	for _, draw := range scene.Draws {
		if !draw.Transparent {
			continue
		}
		d := draw.Features.WithPass(core.PassMaterialTransparent)
		d.MultisampledGeometry = scene.Features.MultisampledGeometry
		o.recordDraw(rp, d, "transparency", draw)
	}
	rp.End()
	accum.MarkWritten(frame)
	coverage.MarkWritten(frame)
}

func (o *Orchestrator) recordDraw(rp *wgpu.RenderPassEncoder, d core.FeatureDescriptor, stage string, draw DrawCall) {
	pl, err := o.cache.GetOrBuild(d)
	if err != nil {
		o.log.Warnf("%s: draw meta=%d skipped: %v", stage, draw.MetaIndex, err)
		return
	}
	groups, err := o.bindGroupsFor(pl, stage, nil)
	if err != nil {
		o.log.Warnf("%s: draw meta=%d bind failed: %v", stage, draw.MetaIndex, err)
		return
	}
	rp.SetPipeline(pl.Render)
	for i, bg := range groups {
		rp.SetBindGroup(uint32(i), bg, nil)
	}
	instances := draw.InstanceCount
	if instances == 0 {
		instances = 1
	}
	// The vertex stage reads its MeshMeta record through instance_index, so
	// the meta index rides in firstInstance. Instanced draws use consecutive
	// records starting there.
	rp.Draw(draw.VertexCount, instances, 0, draw.MetaIndex)
}

func (o *Orchestrator) runMaterialResolve(enc *wgpu.CommandEncoder, scene *Scene, vis, opaque *gpu.Target, frame uint64) {
	spec := PassSpec{Name: "material-resolve", Reads: []string{gpu.TargetVisibility}}
	if err := o.checkReads(spec, frame); err != nil {
		o.log.Warnf("%v", err)
		return
	}
	d := scene.Features.WithPass(core.PassMaterialOpaque)
	pl, err := o.cache.GetOrBuild(d)
	if err != nil {
		o.log.Warnf("material-resolve skipped: %v", err)
		return
	}
	views := map[string]*wgpu.TextureView{
		"visibility": vis.View,
		"opaque_out": opaque.View,
	}
	groups, err := o.bindGroupsFor(pl, "material-resolve", views)
	if err != nil {
		o.log.Warnf("material-resolve bind failed: %v", err)
		return
	}
	runScreenPass(enc, pl, groups, o.width, o.height)
	opaque.MarkWritten(frame)
}

func (o *Orchestrator) runComposite(enc *wgpu.CommandEncoder, scene *Scene, opaque, accum, coverage, composite *gpu.Target, frame uint64) {
	spec := PassSpec{Name: "composite", Reads: []string{gpu.TargetOpaque, gpu.TargetOITAccum, gpu.TargetOITCoverage}}
	if err := o.checkReads(spec, frame); err != nil {
		o.log.Warnf("%v", err)
		return
	}
	d := scene.Features.WithPass(core.PassComposite)
	pl, err := o.cache.GetOrBuild(d)
	if err != nil {
		o.log.Warnf("composite skipped: %v", err)
		return
	}
	views := map[string]*wgpu.TextureView{
		"opaque_in":     opaque.View,
		"oit_accum":     accum.View,
		"oit_coverage":  coverage.View,
		"composite_out": composite.View,
	}
	groups, err := o.bindGroupsFor(pl, "composite", views)
	if err != nil {
		o.log.Warnf("composite bind failed: %v", err)
		return
	}
	runScreenPass(enc, pl, groups, o.width, o.height)
	composite.MarkWritten(frame)
}

// runEffects records the post-process chain and returns the final target,
// or nil when the chain could not complete this frame.
func (o *Orchestrator) runEffects(enc *wgpu.CommandEncoder, scene *Scene, composite *gpu.Target, frame uint64) *gpu.Target {
	input := composite
	usage := wgpu.TextureUsageStorageBinding | wgpu.TextureUsageTextureBinding
	for _, ek := range EffectChain(scene.Features) {
		name := effectTargetName(ek)
		if input.Version() < frame {
			o.log.Warnf("%s skipped: input %q stale", name, input.Name)
			return nil
		}
		d := scene.Features.WithPass(core.PassEffects).WithEffect(ek)
		pl, err := o.cache.GetOrBuild(d)
		if err != nil {
			o.log.Warnf("%s skipped: %v", name, err)
			return nil
		}

		var out *gpu.Target
		var pair *gpu.PingPong
		views := map[string]*wgpu.TextureView{"effect_in": input.View}
		if usesHistory(ek) {
			pair, err = o.pool.EnsurePingPong(name, o.width, o.height, gpu.FormatHDR, usage)
			if err != nil {
				o.log.Warnf("%s skipped: %v", name, err)
				return nil
			}
			out = pair.Current()
			views["effect_history"] = pair.History().View
		} else {
			out, err = o.pool.EnsureTarget(name, o.width, o.height, gpu.FormatHDR, usage, 1)
			if err != nil {
				o.log.Warnf("%s skipped: %v", name, err)
				return nil
			}
		}
		views["effect_out"] = out.View

		var parity uint8
		if pair != nil {
			parity = pair.Parity()
		}
		stage := fmt.Sprintf("%s/in=%s/p%d", name, input.Name, parity)
		groups, err := o.bindGroupsFor(pl, stage, views)
		if err != nil {
			o.log.Warnf("%s bind failed: %v", name, err)
			return nil
		}
		runScreenPass(enc, pl, groups, o.width, o.height)
		out.MarkWritten(frame)
		if pair != nil {
			// Flip only after a recorded write; a skipped frame leaves
			// parity where it was.
			pair.Flip()
		}
		input = out
	}
	return input
}

func (o *Orchestrator) checkReads(spec PassSpec, frame uint64) error {
	return CheckReads(spec, frame, func(name string) (uint64, bool) {
		t := o.pool.Target(name)
		if t == nil {
			return 0, false
		}
		return t.Version(), true
	})
}

// bindGroupsFor builds (or reuses) the bind groups of one pipeline for one
// stage. Entries are invalidated by pool generation moves, which cover both
// buffer growth and target recreation. Ping-pong stages encode the input
// side in the stage string, so both parities get their own entry.
func (o *Orchestrator) bindGroupsFor(pl *gpu.Pipeline, stage string, views map[string]*wgpu.TextureView) ([]*wgpu.BindGroup, error) {
	key := pl.Key.String() + "|" + stage
	gen := o.pool.Generation()
	if e, ok := o.bindGroups[key]; ok && e.gen == gen {
		return e.groups, nil
	}
	bn := &binder{pool: o.pool, atlas: o.atlas, views: views}
	groups, err := buildBindGroups(o.device, pl, bn)
	if err != nil {
		return nil, err
	}
	if e, ok := o.bindGroups[key]; ok {
		releaseBindGroups(e.groups)
	}
	o.bindGroups[key] = &bgCacheEntry{gen: gen, groups: groups}
	return groups, nil
}

// Release drops cached bind groups. Pool and cache are released by their
// owners.
func (o *Orchestrator) Release() {
	for _, e := range o.bindGroups {
		releaseBindGroups(e.groups)
	}
	o.bindGroups = make(map[string]*bgCacheEntry)
}
