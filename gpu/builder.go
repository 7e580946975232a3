package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/arclight3d/arclight/core"
	"github.com/arclight3d/arclight/shadergen"
)

// Texture formats fixed by the frame layout. Storage-texture bindings in
// generated source name these formats textually, so they cannot vary per
// frame without a shader recompile.
const (
	FormatVisibility  = wgpu.TextureFormatRGBA32Uint
	FormatHDR         = wgpu.TextureFormatRGBA16Float
	FormatOITCoverage = wgpu.TextureFormatR16Float
	FormatDepth       = wgpu.TextureFormatDepth32Float
	FormatAtlas       = wgpu.TextureFormatRGBA8Unorm
)

// GeometrySampleCount is the MSAA sample count used when a variant requests
// multisampled geometry.
const GeometrySampleCount = 4

// RenderSampleCount is the multisample count a raster variant renders at.
// Transparency shares the geometry depth attachment, so it inherits the
// geometry sample count; every attachment and the pipeline of one render
// pass must agree on the count.
func RenderSampleCount(d core.FeatureDescriptor) uint32 {
	if d.MultisampledGeometry {
		switch d.Pass {
		case core.PassGeometry, core.PassMaterialTransparent:
			return GeometrySampleCount
		}
	}
	return 1
}

// DeviceBuilder returns the BuildFunc that realizes compiled variants on a
// live device: shader module, explicit bind-group layouts from the plan,
// then a compute or render pipeline per the pass kind.
func DeviceBuilder(device *wgpu.Device) BuildFunc {
	return func(src shadergen.CompiledSource) (*Pipeline, error) {
		d := src.Key.Descriptor()
		label := src.Key.String()

		module, err := device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
			Label:          label,
			WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: src.Source},
		})
		if err != nil {
			return nil, &core.PipelineCreationFailedError{Key: src.Key, Diag: "shader module rejected", Err: err}
		}
		defer module.Release()

		layout, err := createPipelineLayout(device, src.Key, d, src.Layout)
		if err != nil {
			return nil, err
		}
		defer layout.Release()

		p := &Pipeline{Key: src.Key, Source: src.Source, Layout: src.Layout}
		if shadergen.IsCompute(d.Pass) {
			p.Compute, err = device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
				Label:  label,
				Layout: layout,
				Compute: wgpu.ProgrammableStageDescriptor{
					Module:     module,
					EntryPoint: "main",
				},
			})
		} else {
			p.Render, err = createRenderPipeline(device, label, d, module, layout)
		}
		if err != nil {
			return nil, &core.PipelineCreationFailedError{Key: src.Key, Diag: "pipeline creation rejected", Err: err}
		}
		return p, nil
	}
}

func createPipelineLayout(device *wgpu.Device, key core.VariantKey, d core.FeatureDescriptor, groups []shadergen.GroupLayout) (*wgpu.PipelineLayout, error) {
	label := key.String()
	visibility := wgpu.ShaderStageCompute
	if !shadergen.IsCompute(d.Pass) {
		visibility = wgpu.ShaderStageVertex | wgpu.ShaderStageFragment
	}

	// Pipeline-layout slots are positional. A plan that uses groups 0 and 2
	// still needs an empty layout at slot 1 so the WGSL group numbers line
	// up with the slots.
	byGroup := make(map[uint32]shadergen.GroupLayout, len(groups))
	var maxGroup uint32
	for _, g := range groups {
		byGroup[g.Group] = g
		if g.Group > maxGroup {
			maxGroup = g.Group
		}
	}

	bgls := make([]*wgpu.BindGroupLayout, 0, maxGroup+1)
	release := func() {
		for _, bgl := range bgls {
			bgl.Release()
		}
	}
	for slot := uint32(0); slot <= maxGroup; slot++ {
		var entries []wgpu.BindGroupLayoutEntry
		if g, ok := byGroup[slot]; ok {
			entries = make([]wgpu.BindGroupLayoutEntry, 0, len(g.Bindings))
			for _, bd := range g.Bindings {
				entries = append(entries, layoutEntry(bd, visibility))
			}
		}
		bgl, err := device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
			Label:   fmt.Sprintf("%s/group%d", label, slot),
			Entries: entries,
		})
		if err != nil {
			release()
			return nil, &core.PipelineCreationFailedError{Key: key, Diag: "bind group layout rejected", Err: err}
		}
		bgls = append(bgls, bgl)
	}
	defer release()

	layout, err := device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            label,
		BindGroupLayouts: bgls,
	})
	if err != nil {
		return nil, &core.PipelineCreationFailedError{Key: key, Diag: "pipeline layout rejected", Err: err}
	}
	return layout, nil
}

func layoutEntry(bd shadergen.Binding, visibility wgpu.ShaderStage) wgpu.BindGroupLayoutEntry {
	e := wgpu.BindGroupLayoutEntry{Binding: bd.Index, Visibility: visibility}
	switch bd.Kind {
	case shadergen.UniformBuffer:
		e.Buffer = wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform}
	case shadergen.StorageBuffer:
		e.Buffer = wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage}
	case shadergen.StorageBufferRW:
		e.Buffer = wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeStorage}
	case shadergen.SampledTexture:
		e.Texture = wgpu.TextureBindingLayout{
			SampleType:    wgpu.TextureSampleTypeUnfilterableFloat,
			ViewDimension: wgpu.TextureViewDimension2D,
		}
	case shadergen.UintTexture:
		e.Texture = wgpu.TextureBindingLayout{
			SampleType:    wgpu.TextureSampleTypeUint,
			ViewDimension: wgpu.TextureViewDimension2D,
		}
	case shadergen.MultisampledUintTexture:
		e.Texture = wgpu.TextureBindingLayout{
			SampleType:    wgpu.TextureSampleTypeUint,
			ViewDimension: wgpu.TextureViewDimension2D,
			Multisampled:  true,
		}
	case shadergen.TextureArray:
		e.Texture = wgpu.TextureBindingLayout{
			SampleType:    wgpu.TextureSampleTypeFloat,
			ViewDimension: wgpu.TextureViewDimension2DArray,
		}
	case shadergen.StorageTexture:
		e.StorageTexture = wgpu.StorageTextureBindingLayout{
			Access:        wgpu.StorageTextureAccessWriteOnly,
			Format:        FormatHDR,
			ViewDimension: wgpu.TextureViewDimension2D,
		}
	case shadergen.StorageTextureArray:
		e.StorageTexture = wgpu.StorageTextureBindingLayout{
			Access:        wgpu.StorageTextureAccessWriteOnly,
			Format:        FormatAtlas,
			ViewDimension: wgpu.TextureViewDimension2DArray,
		}
	case shadergen.SamplerBinding:
		e.Sampler = wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeFiltering}
	}
	return e
}

func createRenderPipeline(device *wgpu.Device, label string, d core.FeatureDescriptor, module *wgpu.ShaderModule, layout *wgpu.PipelineLayout) (*wgpu.RenderPipeline, error) {
	desc := &wgpu.RenderPipelineDescriptor{
		Label:  label,
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
			// Vertex pulling: attributes come from storage buffers, never
			// from vertex buffer slots.
			Buffers: nil,
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count:                  RenderSampleCount(d),
			Mask:                   0xFFFFFFFF,
			AlphaToCoverageEnabled: false,
		},
	}

	switch d.Pass {
	case core.PassGeometry:
		desc.Fragment = &wgpu.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{
				{Format: FormatVisibility, WriteMask: wgpu.ColorWriteMaskAll},
			},
		}
		desc.DepthStencil = &wgpu.DepthStencilState{
			Format:            FormatDepth,
			DepthWriteEnabled: true,
			DepthCompare:      wgpu.CompareFunctionLess,
			StencilFront:      wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
			StencilBack:       wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
		}
	case core.PassMaterialTransparent:
		desc.Fragment = &wgpu.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{
				{
					Format: FormatHDR,
					Blend: &wgpu.BlendState{
						Color: wgpu.BlendComponent{SrcFactor: wgpu.BlendFactorOne, DstFactor: wgpu.BlendFactorOne, Operation: wgpu.BlendOperationAdd},
						Alpha: wgpu.BlendComponent{SrcFactor: wgpu.BlendFactorOne, DstFactor: wgpu.BlendFactorOne, Operation: wgpu.BlendOperationAdd},
					},
					WriteMask: wgpu.ColorWriteMaskAll,
				},
				{
					Format: FormatOITCoverage,
					Blend: &wgpu.BlendState{
						Color: wgpu.BlendComponent{SrcFactor: wgpu.BlendFactorZero, DstFactor: wgpu.BlendFactorOneMinusSrc, Operation: wgpu.BlendOperationAdd},
						Alpha: wgpu.BlendComponent{SrcFactor: wgpu.BlendFactorZero, DstFactor: wgpu.BlendFactorOneMinusSrcAlpha, Operation: wgpu.BlendOperationAdd},
					},
					WriteMask: wgpu.ColorWriteMaskAll,
				},
			},
		}
		// Transparents test against opaque depth but never write it.
		desc.DepthStencil = &wgpu.DepthStencilState{
			Format:            FormatDepth,
			DepthWriteEnabled: false,
			DepthCompare:      wgpu.CompareFunctionLess,
			StencilFront:      wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
			StencilBack:       wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
		}
	}

	return device.CreateRenderPipeline(desc)
}
