// Package pick resolves screen coordinates to object ids by reading the
// frame's visibility buffer on the GPU. One workgroup inspects the
// requested texel and writes a tiny result record that is copied back and
// mapped asynchronously.
package pick

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/arclight3d/arclight/core"
	"github.com/arclight3d/arclight/gpu"
	"github.com/arclight3d/arclight/render"
)

// Result of one pick. OK is false when the texel held the sentinel, which
// is distinct from hitting an object whose id happens to be zero.
type Result struct {
	Object core.ObjectId
	OK     bool
}

// ResultSize is the byte size of the GPU result record:
// valid, id high word, id low word, padding.
const ResultSize = 16

// DecodeResult parses the GPU record. A zero valid word yields OK=false
// with no error.
func DecodeResult(rec []byte) (Result, error) {
	if len(rec) < ResultSize {
		return Result{}, fmt.Errorf("pick result record too short: %d bytes", len(rec))
	}
	le := binary.LittleEndian
	if le.Uint32(rec[0:]) == 0 {
		return Result{}, nil
	}
	return Result{
		Object: core.JoinObjectId(le.Uint32(rec[4:]), le.Uint32(rec[8:])),
		OK:     true,
	}, nil
}

// EncodeParams packs the pick coordinate uniform.
func EncodeParams(x, y uint32) []byte {
	out := make([]byte, 16)
	binary.LittleEndian.PutUint32(out[0:], x)
	binary.LittleEndian.PutUint32(out[4:], y)
	return out
}

// Picker issues GPU picks against the pool's visibility target. Picks are
// serialized internally; the shared readback buffer can hold only one
// mapping at a time.
type Picker struct {
	device *wgpu.Device
	queue  *wgpu.Queue
	pool   *gpu.ResourcePool
	cache  *gpu.PipelineCache
	log    core.Logger

	mu       sync.Mutex
	readback *wgpu.Buffer
}

func NewPicker(device *wgpu.Device, pool *gpu.ResourcePool, cache *gpu.PipelineCache, log core.Logger) *Picker {
	return &Picker{
		device: device,
		queue:  device.GetQueue(),
		pool:   pool,
		cache:  cache,
		log:    core.OrNop(log),
	}
}

// Pick resolves the object under pixel (x, y) of the last rendered frame.
// The result arrives on the returned channel; the channel is buffered, so
// a caller that walks away never wedges the delivery goroutine. features
// must match the frame's geometry flags so the visibility binding kind
// agrees with the rendered target.
func (p *Picker) Pick(ctx context.Context, features core.FeatureDescriptor, x, y uint32) <-chan Result {
	out := make(chan Result, 1)

	vis := p.pool.Target(gpu.TargetVisibility)
	if vis == nil {
		out <- Result{}
		return out
	}
	if x >= vis.Width {
		x = vis.Width - 1
	}
	if y >= vis.Height {
		y = vis.Height - 1
	}

	d := features.WithPass(core.PassPicking)
	pl, err := p.cache.GetOrBuild(d)
	if err != nil {
		p.log.Warnf("pick: pipeline unavailable: %v", err)
		out <- Result{}
		return out
	}

	p.mu.Lock()
	if err := p.submit(pl, vis, x, y); err != nil {
		p.mu.Unlock()
		p.log.Warnf("pick: %v", err)
		out <- Result{}
		return out
	}

	go func() {
		defer p.mu.Unlock()
		res, err := p.readbackResult(ctx)
		if err != nil {
			p.log.Warnf("pick: readback failed: %v", err)
		}
		out <- res
	}()
	return out
}

func (p *Picker) submit(pl *gpu.Pipeline, vis *gpu.Target, x, y uint32) error {
	if _, err := p.pool.EnsureBuffer(gpu.BufPickParams, EncodeParams(x, y), wgpu.BufferUsageUniform, 0); err != nil {
		return err
	}
	result, err := p.pool.EnsureBuffer(gpu.BufPickResult, make([]byte, ResultSize), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc, 0)
	if err != nil {
		return err
	}
	if p.readback == nil {
		p.readback, err = p.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: gpu.BufPickReadback,
			Size:  ResultSize,
			Usage: wgpu.BufferUsageCopyDst | wgpu.BufferUsageMapRead,
		})
		if err != nil {
			return &core.ResourceExhaustedError{Resource: gpu.BufPickReadback, Needed: ResultSize, Err: err}
		}
	}

	bn := newPickBinder(p.pool, vis)
	groups, err := bn.bindGroups(p.device, pl)
	if err != nil {
		return err
	}
	defer releaseGroups(groups)

	enc, err := p.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "pick"})
	if err != nil {
		return err
	}
	cp := enc.BeginComputePass(&wgpu.ComputePassDescriptor{Label: "pick"})
	cp.SetPipeline(pl.Compute)
	for i, bg := range groups {
		cp.SetBindGroup(uint32(i), bg, nil)
	}
	cp.DispatchWorkgroups(1, 1, 1)
	cp.End()
	if err := enc.CopyBufferToBuffer(result.Buf, 0, p.readback, 0, ResultSize); err != nil {
		return err
	}
	cmd, err := enc.Finish(nil)
	if err != nil {
		return err
	}
	p.queue.Submit(cmd)
	return nil
}

func (p *Picker) readbackResult(ctx context.Context) (Result, error) {
	done := make(chan wgpu.BufferMapAsyncStatus, 1)
	err := p.readback.MapAsync(wgpu.MapModeRead, 0, ResultSize, func(status wgpu.BufferMapAsyncStatus) {
		done <- status
	})
	if err != nil {
		return Result{}, err
	}

	var status wgpu.BufferMapAsyncStatus
	for {
		p.device.Poll(true, nil)
		select {
		case status = <-done:
		case <-ctx.Done():
			// Keep polling until the map settles; unmapping a buffer with a
			// pending map is invalid.
			continue
		}
		break
	}
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return Result{}, fmt.Errorf("map status %v", status)
	}
	defer p.readback.Unmap()

	data := p.readback.GetMappedRange(0, ResultSize)
	rec := make([]byte, ResultSize)
	copy(rec, data)
	return DecodeResult(rec)
}

// Release drops the readback buffer after any in-flight pick settles.
func (p *Picker) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readback != nil {
		p.readback.Release()
		p.readback = nil
	}
}

// pickBinder resolves the picking variant's bindings: pool buffers plus
// the visibility view.
type pickBinder struct {
	pool *gpu.ResourcePool
	vis  *gpu.Target
}

func newPickBinder(pool *gpu.ResourcePool, vis *gpu.Target) *pickBinder {
	return &pickBinder{pool: pool, vis: vis}
}

func (bn *pickBinder) bindGroups(device *wgpu.Device, pl *gpu.Pipeline) ([]*wgpu.BindGroup, error) {
	return render.BuildBindGroups(device, pl, bn.pool, nil, map[string]*wgpu.TextureView{
		"visibility": bn.vis.View,
	})
}

func releaseGroups(groups []*wgpu.BindGroup) {
	for _, bg := range groups {
		if bg != nil {
			bg.Release()
		}
	}
}
