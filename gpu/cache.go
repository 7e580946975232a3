package gpu

import (
	"errors"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/arclight3d/arclight/core"
	"github.com/arclight3d/arclight/shadergen"
)

// Pipeline is one compiled variant: generated source, its bind-group
// layout, and the backend pipeline object. Exactly one of Compute or
// Render is set, per shadergen.IsCompute.
type Pipeline struct {
	Key     core.VariantKey
	Source  string
	Layout  []shadergen.GroupLayout
	Compute *wgpu.ComputePipeline
	Render  *wgpu.RenderPipeline
}

// BuildFunc turns a compiled variant into a backend pipeline. Injected so
// the cache's concurrency behavior is testable without a device.
type BuildFunc func(src shadergen.CompiledSource) (*Pipeline, error)

type cacheEntry struct {
	done     chan struct{}
	pipeline *Pipeline
	err      error
}

// PipelineCache holds at most one live pipeline per variant key. Concurrent
// requests for the same key share a single in-flight build; a failed build
// is evicted so the key can be retried after the cause is fixed.
type PipelineCache struct {
	mu      sync.Mutex
	entries map[core.VariantKey]*cacheEntry
	build   BuildFunc
	log     core.Logger
}

func NewPipelineCache(build BuildFunc, log core.Logger) *PipelineCache {
	return &PipelineCache{
		entries: make(map[core.VariantKey]*cacheEntry),
		build:   build,
		log:     core.OrNop(log),
	}
}

// GetOrBuild returns the pipeline for the descriptor, compiling and building
// it on first use. Callers arriving while a build is in flight block until it
// settles and share its outcome.
func (c *PipelineCache) GetOrBuild(d core.FeatureDescriptor) (*Pipeline, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	key := d.Normalize().Key()

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.mu.Unlock()
		<-e.done
		return e.pipeline, e.err
	}
	e := &cacheEntry{done: make(chan struct{})}
	c.entries[key] = e
	c.mu.Unlock()

	src, err := shadergen.Compile(d)
	if err == nil {
		e.pipeline, err = c.build(src)
	}
	if err != nil {
		var unsupported *core.VariantUnsupportedError
		var creation *core.PipelineCreationFailedError
		if !errors.As(err, &unsupported) && !errors.As(err, &creation) {
			err = &core.PipelineCreationFailedError{
				Key:  key,
				Diag: "backend rejected variant",
				Err:  err,
			}
		}
		e.err = err
		c.log.Errorf("pipeline build failed: variant=%s err=%v", key.String(), err)
	}
	close(e.done)

	if e.err != nil {
		c.mu.Lock()
		if c.entries[key] == e {
			delete(c.entries, key)
		}
		c.mu.Unlock()
	}
	return e.pipeline, e.err
}

// Len reports the number of settled-or-building entries.
func (c *PipelineCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Reset drops every cached pipeline. Used on device loss; pipelines created
// against a dead device must not be reused.
func (c *PipelineCache) Reset() {
	c.mu.Lock()
	old := c.entries
	c.entries = make(map[core.VariantKey]*cacheEntry)
	c.mu.Unlock()

	for _, e := range old {
		select {
		case <-e.done:
			if e.pipeline != nil {
				e.pipeline.release()
			}
		default:
			// Still building against the lost device; the build's own error
			// path evicts it from the old map, which is already detached.
		}
	}
}

func (p *Pipeline) release() {
	if p.Compute != nil {
		p.Compute.Release()
	}
	if p.Render != nil {
		p.Render.Release()
	}
}
