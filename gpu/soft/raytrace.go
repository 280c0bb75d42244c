package soft

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/StarsX/SparseVolumeDXR/gpu"
)

// What an any-hit program decides about a candidate intersection.
type hitDecision uint8

const (
	acceptHit hitDecision = iota
	ignoreHit
	acceptHitAndEndSearch
)

type rayDesc struct {
	Origin    mgl32.Vec3
	Direction mgl32.Vec3
	TMin      float32
	TMax      float32
}

// Attributes of a candidate or committed intersection.
type hitAttributes struct {
	T            float32
	Barycentrics [2]float32
	Primitive    uint32
	InstanceID   uint32
}

type rayGenProgram func(ctx *rayContext, x, y int)
type closestHitProgram func(ctx *rayContext, payload any, hit hitAttributes)
type anyHitProgram func(ctx *rayContext, payload any, hit hitAttributes) hitDecision
type missProgram func(ctx *rayContext, payload any)

// Per-band invocation state for a ray dispatch.
type rayContext struct {
	ex     *executor
	global *bindings
	local  []byte

	width, height int

	tlas       *accelStructure
	closestHit closestHitProgram
	anyHit     anyHitProgram
	miss       missProgram

	maxRecursion uint32
	depth        uint32
	err          error
}

// Bindings of the global root signature.
func (ctx *rayContext) bindings() *bindings {
	return ctx.global
}

// The ray generation record payload.
func (ctx *rayContext) localConstants() []byte {
	return ctx.local
}

// Trace a ray through the bound top level structure invoking the hit group
// and miss programs with payload.
func (ctx *rayContext) traceRay(ray rayDesc, payload any) {
	if ctx.depth >= ctx.maxRecursion {
		if ctx.err == nil {
			ctx.err = fmt.Errorf("trace recursion exceeds the pipeline limit of %d", ctx.maxRecursion)
		}
		return
	}
	ctx.depth++
	defer func() { ctx.depth-- }()
	ctx.ex.rays.Add(1)

	committed, hit := ctx.traverse(ray, payload)
	switch {
	case hit && ctx.closestHit != nil:
		ctx.closestHit(ctx, payload, committed)
	case !hit && ctx.miss != nil:
		ctx.miss(ctx, payload)
	}
}

func (ctx *rayContext) traverse(ray rayDesc, payload any) (hitAttributes, bool) {
	var (
		committed hitAttributes
		hit       bool
	)
	if ctx.tlas == nil {
		return committed, false
	}

	tMax := ray.TMax
	for _, inst := range ctx.tlas.instances {
		// The object space direction is left unnormalized so t is shared
		// with world space.
		origin := inst.worldToObject.Mul4x1(ray.Origin.Vec4(1)).Vec3()
		dir := inst.worldToObject.Mul4x1(ray.Direction.Vec4(0)).Vec3()
		invDir := mgl32.Vec3{1 / dir[0], 1 / dir[1], 1 / dir[2]}

		blas := inst.blas
		if len(blas.nodes) == 0 {
			continue
		}

		stack := make([]int32, 0, 64)
		stack = append(stack, 0)
		for len(stack) > 0 {
			node := &blas.nodes[stack[len(stack)-1]]
			stack = stack[:len(stack)-1]
			if !node.IntersectRay(origin, invDir, ray.TMin, tMax) {
				continue
			}
			if !node.IsLeaf() {
				stack = append(stack, node.Left, node.Right)
				continue
			}

			for i := node.First; i < node.First+node.Count; i++ {
				tri := &blas.tris[i]
				t, u, v, ok := intersectTriangle(origin, dir, tri)
				if !ok || t <= ray.TMin || t >= tMax {
					continue
				}
				candidate := hitAttributes{T: t, Barycentrics: [2]float32{u, v}, Primitive: tri.primitive, InstanceID: inst.desc.InstanceID}

				decision := acceptHit
				if !ctx.opaque(inst.desc.Flags, tri.flags) && ctx.anyHit != nil {
					decision = ctx.anyHit(ctx, payload, candidate)
				}
				if decision == ignoreHit {
					continue
				}
				committed, hit, tMax = candidate, true, t
				if decision == acceptHitAndEndSearch {
					return committed, hit
				}
			}
		}
	}
	return committed, hit
}

func (ctx *rayContext) opaque(instFlags gpu.InstanceFlags, geomFlags gpu.GeometryFlags) bool {
	switch {
	case instFlags&gpu.InstanceForceOpaque != 0:
		return true
	case instFlags&gpu.InstanceForceNonOpaque != 0:
		return false
	}
	return geomFlags&gpu.GeometryOpaque != 0
}

// Möller-Trumbore ray/triangle intersection without culling.
func intersectTriangle(origin, dir mgl32.Vec3, tri *accelTriangle) (t, u, v float32, ok bool) {
	const epsilon = 1e-9

	e1 := tri.v[1].Sub(tri.v[0])
	e2 := tri.v[2].Sub(tri.v[0])
	p := dir.Cross(e2)
	det := e1.Dot(p)
	if math32.Abs(det) < epsilon {
		return 0, 0, 0, false
	}
	invDet := 1 / det

	s := origin.Sub(tri.v[0])
	u = s.Dot(p) * invDet
	if u < 0 || u > 1 {
		return 0, 0, 0, false
	}
	q := s.Cross(e1)
	v = dir.Dot(q) * invDet
	if v < 0 || u+v > 1 {
		return 0, 0, 0, false
	}
	return e2.Dot(q) * invDet, u, v, true
}

// Resolve the export referenced by the first record of a shader table range.
func (ex *executor) tableExport(p *pipeline, table *buffer, r gpu.TableRange, what string) (string, []byte, error) {
	if table == nil {
		return "", nil, fmt.Errorf("%s table is not set", what)
	}
	if table.heap != gpu.HeapUpload {
		if err := expectState(table.label, table.actual, gpu.StateShaderResource); err != nil {
			return "", nil, err
		}
	}
	idSize := uint64(shaderIdentifierSize)
	if r.Size < idSize || r.Offset+r.Size > table.Size() {
		return "", nil, fmt.Errorf("%s table range [%d, %d) is invalid for %s", what, r.Offset, r.Offset+r.Size, table.label)
	}
	if r.Offset%gpu.ShaderTableAlignment != 0 {
		return "", nil, fmt.Errorf("%s table offset %d is not aligned to %d", what, r.Offset, gpu.ShaderTableAlignment)
	}

	record := table.data[r.Offset : r.Offset+r.Size]
	if r.Stride != 0 && r.Stride < uint64(len(record)) {
		record = record[:r.Stride]
	}
	export, exists := p.exports[string(record[:idSize])]
	if !exists {
		return "", nil, fmt.Errorf("%s record holds an identifier unknown to pipeline %s", what, p.label)
	}

	var local []byte
	if l, exists := p.localLayouts[export]; exists {
		size := uint64(0)
		for _, param := range l.params {
			size += uint64(param.Count)
		}
		if idSize+size > uint64(len(record)) {
			return "", nil, fmt.Errorf("%s record for %s holds %d payload bytes; layout %s needs %d", what, export, uint64(len(record))-idSize, l.label, size)
		}
		local = record[idSize : idSize+size]
	}
	return export, local, nil
}

func (ex *executor) dispatchRays(desc gpu.DispatchRaysDescriptor, tables [3]*buffer) error {
	p := ex.pipeline
	if p == nil || p.kind != rayTracingPipeline {
		return fmt.Errorf("no ray tracing pipeline set")
	}
	if p.layout != ex.layout {
		return fmt.Errorf("pipeline %s expects global layout %s", p.label, p.layout.label)
	}
	if err := ex.validateBindings(); err != nil {
		return err
	}

	rayGenName, local, err := ex.tableExport(p, tables[0], desc.RayGen, "ray generation")
	if err != nil {
		return err
	}
	rayGen, exists := p.lib.rayGen[rayGenName]
	if !exists {
		return fmt.Errorf("%s is not a ray generation export", rayGenName)
	}

	missName, _, err := ex.tableExport(p, tables[1], desc.Miss, "miss")
	if err != nil {
		return err
	}
	miss, exists := p.lib.miss[missName]
	if !exists {
		return fmt.Errorf("%s is not a miss export", missName)
	}

	groupName, _, err := ex.tableExport(p, tables[2], desc.HitGroup, "hit group")
	if err != nil {
		return err
	}
	group, exists := p.hitGroups[groupName]
	if !exists {
		return fmt.Errorf("%s is not a hit group", groupName)
	}

	var tlas *accelStructure
	for _, b := range ex.params {
		if b.kind == gpu.BindingAccelerationStructure {
			tlas = b.buf.as
		}
	}

	global := &bindings{params: ex.params}
	width, height := int(desc.Width), int(desc.Height)
	err = ex.forEachBand(height, func(y0, y1 int) error {
		ctx := &rayContext{
			ex:           ex,
			global:       global,
			local:        local,
			width:        width,
			height:       height,
			tlas:         tlas,
			closestHit:   p.lib.closestHit[group.ClosestHit],
			anyHit:       p.lib.anyHit[group.AnyHit],
			miss:         miss,
			maxRecursion: p.maxRecursion,
		}
		for y := y0; y < y1; y++ {
			for x := 0; x < width; x++ {
				rayGen(ctx, x, y)
				if ctx.err != nil {
					return ctx.err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	ex.dispatches++
	return nil
}
