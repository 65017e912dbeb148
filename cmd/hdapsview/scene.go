package main

import (
	"image/color"
	"math"
	"sort"
)

// ============================================================================
// Laptop scene
// ============================================================================
//
// The laptop is a fixed set of flat-colored quads in model space:
//   - body: top at y=0, x in [-1,1], z in [0,1.6], 0.1 thick
//   - lid: standing at z in [-0.1,0], y in [-0.1,1.6]
//   - screen: blue panel on the lid front
//   - trackpoint: small red square on the body top
//
// A frame rotates the model by AngleX/2 degrees about -Z and then by
// AngleY/2 degrees about X, moves it in front of the camera and projects it
// with a 45 degree perspective. Faces are returned back to front so a
// painter's fill gives usable occlusion for this model.
// ============================================================================

// Vec3 is a point in model or eye space.
type Vec3 struct{ X, Y, Z float64 }

// Point2 is a projected point in viewport pixels, origin top-left.
type Point2 struct{ X, Y float64 }

// Quad is one flat-colored face of the model.
type Quad struct {
	V     [4]Vec3
	Color color.RGBA

	// OnTopOf is the index of the face this decal lies on, or -1.
	// Decals are always painted right after their face.
	OnTopOf int
}

// ProjectedQuad is a quad after transform and projection.
type ProjectedQuad struct {
	P     [4]Point2
	Color color.RGBA
	Depth float64 // mean eye-space z; more negative is farther
}

var (
	colorBackground = color.RGBA{R: 128, G: 128, B: 128, A: 255}
	colorBody       = color.RGBA{A: 255}
	colorTrackpoint = color.RGBA{R: 255, A: 255}
	colorScreen     = color.RGBA{B: 255, A: 255}
)

const (
	fovYDegrees = 45.0
	nearPlane   = 0.1
	farPlane    = 100.0
)

// cameraOffset places the model in front of the viewer.
var cameraOffset = Vec3{X: 0, Y: -0.5, Z: -4}

var laptopQuads = []Quad{
	// top of body
	{V: [4]Vec3{{1, 0, 1.6}, {-1, 0, 1.6}, {-1, 0, 0}, {1, 0, 0}}, Color: colorBody, OnTopOf: -1},
	// trackpoint
	{V: [4]Vec3{{0.01, 0.01, 0.78}, {0.01, 0.01, 0.82}, {-0.01, 0.01, 0.82}, {-0.01, 0.01, 0.78}}, Color: colorTrackpoint, OnTopOf: 0},
	// bottom of body
	{V: [4]Vec3{{1, -0.1, -0.1}, {-1, -0.1, -0.1}, {-1, -0.1, 1.6}, {1, -0.1, 1.6}}, Color: colorBody, OnTopOf: -1},
	// front of body
	{V: [4]Vec3{{1, 0, 1.6}, {-1, 0, 1.6}, {-1, -0.1, 1.6}, {1, -0.1, 1.6}}, Color: colorBody, OnTopOf: -1},
	// left of body
	{V: [4]Vec3{{-1, 0, 1.6}, {-1, 0, 0}, {-1, -0.1, 0}, {-1, -0.1, 1.6}}, Color: colorBody, OnTopOf: -1},
	// right of body
	{V: [4]Vec3{{1, 0, 0}, {1, 0, 1.6}, {1, -0.1, 1.6}, {1, -0.1, 0}}, Color: colorBody, OnTopOf: -1},
	// top of lid
	{V: [4]Vec3{{1, 1.6, -0.1}, {-1, 1.6, -0.1}, {-1, 1.6, 0}, {1, 1.6, 0}}, Color: colorBody, OnTopOf: -1},
	// front of lid
	{V: [4]Vec3{{1, 1.6, 0}, {-1, 1.6, 0}, {-1, 0, 0}, {1, 0, 0}}, Color: colorBody, OnTopOf: -1},
	// screen
	{V: [4]Vec3{{0.9, 1.5, 0.01}, {-0.9, 1.5, 0.01}, {-0.9, 0.1, 0.01}, {0.9, 0.1, 0.01}}, Color: colorScreen, OnTopOf: 7},
	// back of lid
	{V: [4]Vec3{{1, -0.1, -0.1}, {-1, -0.1, -0.1}, {-1, 1.6, -0.1}, {1, 1.6, -0.1}}, Color: colorBody, OnTopOf: -1},
	// left of lid
	{V: [4]Vec3{{-1, 1.6, 0}, {-1, 1.6, -0.1}, {-1, -0.1, -0.1}, {-1, -0.1, 0}}, Color: colorBody, OnTopOf: -1},
	// right of lid
	{V: [4]Vec3{{1, 1.6, -0.1}, {1, 1.6, 0}, {1, -0.1, 0}, {1, -0.1, -0.1}}, Color: colorBody, OnTopOf: -1},
}

// modelTransform maps model space to eye space for the given frame angles.
func modelTransform(angleX, angleY int) func(Vec3) Vec3 {
	// Rotation about -Z by a is rotation about +Z by -a.
	az := -float64(angleX) / 2 * math.Pi / 180
	ax := float64(angleY) / 2 * math.Pi / 180
	sinZ, cosZ := math.Sincos(az)
	sinX, cosX := math.Sincos(ax)

	return func(v Vec3) Vec3 {
		// X axis first (innermost), then Z, then the camera translation.
		y := v.Y*cosX - v.Z*sinX
		z := v.Y*sinX + v.Z*cosX
		x := v.X

		x, y = x*cosZ-y*sinZ, x*sinZ+y*cosZ

		return Vec3{X: x + cameraOffset.X, Y: y + cameraOffset.Y, Z: z + cameraOffset.Z}
	}
}

// project maps an eye-space point to viewport pixels. ok is false when the
// point is outside the near/far range.
func project(v Vec3, width, height int) (Point2, bool) {
	if v.Z > -nearPlane || v.Z < -farPlane {
		return Point2{}, false
	}
	if height <= 0 {
		height = 1
	}
	aspect := float64(width) / float64(height)
	f := 1 / math.Tan(fovYDegrees/2*math.Pi/180)

	ndcX := f / aspect * v.X / -v.Z
	ndcY := f * v.Y / -v.Z

	return Point2{
		X: (ndcX + 1) / 2 * float64(width),
		Y: (1 - ndcY) / 2 * float64(height),
	}, true
}

// ProjectScene returns the laptop as viewport quads, back to front.
func ProjectScene(angleX, angleY, width, height int) []ProjectedQuad {
	xf := modelTransform(angleX, angleY)

	projected := make([]ProjectedQuad, len(laptopQuads))
	visible := make([]bool, len(laptopQuads))
	for qi, q := range laptopQuads {
		pq := ProjectedQuad{Color: q.Color}
		visible[qi] = true
		for i, v := range q.V {
			e := xf(v)
			p, ok := project(e, width, height)
			if !ok {
				visible[qi] = false
				break
			}
			pq.P[i] = p
			pq.Depth += e.Z / 4
		}
		projected[qi] = pq
	}

	var faces []int
	decals := make(map[int][]int)
	for qi, q := range laptopQuads {
		if !visible[qi] {
			continue
		}
		if q.OnTopOf >= 0 {
			decals[q.OnTopOf] = append(decals[q.OnTopOf], qi)
			continue
		}
		faces = append(faces, qi)
	}
	sort.SliceStable(faces, func(i, j int) bool {
		return projected[faces[i]].Depth < projected[faces[j]].Depth
	})

	out := make([]ProjectedQuad, 0, len(laptopQuads))
	for _, qi := range faces {
		out = append(out, projected[qi])
		for _, di := range decals[qi] {
			out = append(out, projected[di])
		}
	}
	return out
}

// Contains reports whether p lies inside the quad (either winding).
func (q ProjectedQuad) Contains(p Point2) bool {
	var pos, neg bool
	for i := 0; i < 4; i++ {
		a := q.P[i]
		b := q.P[(i+1)%4]
		cross := (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
		if cross > 0 {
			pos = true
		} else if cross < 0 {
			neg = true
		}
		if pos && neg {
			return false
		}
	}
	return true
}
