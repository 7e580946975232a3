package core

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// CameraUniformSize is the byte size of the encoded camera uniform,
// including trailing padding. Layout:
//
//	view:          mat4x4<f32>  @ 0
//	proj:          mat4x4<f32>  @ 64
//	view_proj:     mat4x4<f32>  @ 128
//	inv_view:      mat4x4<f32>  @ 192
//	inv_proj:      mat4x4<f32>  @ 256
//	cam_pos:       vec4<f32>    @ 320
//	frustum_rays:  4x vec4<f32> @ 336
//	viewport:      vec2<f32>    @ 400
//	frame:         u32          @ 408
//	pad:           u32          @ 412
//
// Total 416 bytes. Fixed wire format.
const CameraUniformSize = 416

// CameraUniform holds the per-frame camera state shared read-only by every
// pass. Recomputed once per frame; the frustum corner rays allow screen-space
// position reconstruction without a second matrix multiply per pixel.
type CameraUniform struct {
	View     mgl32.Mat4
	Proj     mgl32.Mat4
	ViewProj mgl32.Mat4
	InvView  mgl32.Mat4
	InvProj  mgl32.Mat4
	Position mgl32.Vec3

	// FrustumRays are the world-space view rays through the four NDC
	// corners, in order (-1,-1), (1,-1), (-1,1), (1,1).
	FrustumRays [4]mgl32.Vec3

	Width  uint32
	Height uint32
	Frame  uint32
}

// NewCameraUniform derives the full uniform from view/projection matrices.
func NewCameraUniform(view, proj mgl32.Mat4, pos mgl32.Vec3, width, height, frame uint32) CameraUniform {
	c := CameraUniform{
		View:     view,
		Proj:     proj,
		ViewProj: proj.Mul4(view),
		InvView:  view.Inv(),
		InvProj:  proj.Inv(),
		Position: pos,
		Width:    width,
		Height:   height,
		Frame:    frame,
	}
	invVP := c.ViewProj.Inv()
	corners := [4][2]float32{{-1, -1}, {1, -1}, {-1, 1}, {1, 1}}
	for i, ndc := range corners {
		far := invVP.Mul4x1(mgl32.Vec4{ndc[0], ndc[1], 1, 1})
		if far.W() != 0 {
			far = far.Mul(1.0 / far.W())
		}
		c.FrustumRays[i] = far.Vec3().Sub(pos).Normalize()
	}
	return c
}

// Encode serializes the uniform into its fixed GPU layout.
func (c CameraUniform) Encode() []byte {
	buf := make([]byte, CameraUniformSize)
	writeMat4(buf[0:], c.View)
	writeMat4(buf[64:], c.Proj)
	writeMat4(buf[128:], c.ViewProj)
	writeMat4(buf[192:], c.InvView)
	writeMat4(buf[256:], c.InvProj)
	writeVec4(buf[320:], c.Position.Vec4(1))
	for i, r := range c.FrustumRays {
		writeVec4(buf[336+i*16:], r.Vec4(0))
	}
	binary.LittleEndian.PutUint32(buf[400:], math.Float32bits(float32(c.Width)))
	binary.LittleEndian.PutUint32(buf[404:], math.Float32bits(float32(c.Height)))
	binary.LittleEndian.PutUint32(buf[408:], c.Frame)
	return buf
}

func writeMat4(dst []byte, m mgl32.Mat4) {
	for i := 0; i < 16; i++ {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(m[i]))
	}
}

func writeVec4(dst []byte, v mgl32.Vec4) {
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v[i]))
	}
}
