package mesh

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/StarsX/SparseVolumeDXR/asset"
	"github.com/StarsX/SparseVolumeDXR/log"
	"github.com/StarsX/SparseVolumeDXR/types"
)

// The Importer interface is implemented by mesh file readers.
type Importer interface {
	Import(path string) (*Mesh, error)
}

// Reads Wavefront OBJ files from local paths or http(s) URLs.
type WavefrontImporter struct{}

func (WavefrontImporter) Import(path string) (*Mesh, error) {
	res, err := asset.NewResource(path, nil)
	if err != nil {
		return nil, &ImportError{Path: path, Err: err}
	}
	defer res.Close()

	return Read(res)
}

// Import a Wavefront OBJ mesh.
func Import(path string) (*Mesh, error) {
	return WavefrontImporter{}.Import(path)
}

// Parse a Wavefront OBJ stream into a single mesh. Faces with more than
// three vertices are fan triangulated and vertices lacking a normal get an
// area-weighted normal generated from the faces that share their position.
func Read(res *asset.Resource) (*Mesh, error) {
	r := newWavefrontReader()
	r.logger.Noticef(`parsing mesh from "%s"`, res.Path())
	start := time.Now()

	if err := r.parse(res); err != nil {
		return nil, err
	}

	m := r.assemble(res.Name())
	r.logger.Noticef(
		"parsed %d triangles (%d unique vertices) in %d ms",
		m.TriangleCount(), len(m.Vertices), time.Since(start).Nanoseconds()/1e6,
	)
	return m, nil
}

// A face corner referencing a position and an optional normal (-1 if missing).
type corner struct {
	pos    int
	normal int
}

type wavefrontReader struct {
	logger log.Logger

	vertexList []types.Vec3
	normalList []types.Vec3

	// Triangulated face corners; every 3 entries form a triangle.
	corners []corner

	skipped map[string]int
}

func newWavefrontReader() *wavefrontReader {
	return &wavefrontReader{
		logger:     log.New("wavefront reader"),
		vertexList: make([]types.Vec3, 0),
		normalList: make([]types.Vec3, 0),
		corners:    make([]corner, 0),
		skipped:    make(map[string]int),
	}
}

func (r *wavefrontReader) emitError(res *asset.Resource, line int, msgFormat string, args ...interface{}) error {
	return &ImportError{
		Path: res.Path(),
		Line: line,
		Err:  fmt.Errorf(msgFormat, args...),
	}
}

func (r *wavefrontReader) parse(res *asset.Resource) error {
	var lineNum int = 0

	// Included files use 1-based indices relative to their own coordinates.
	relVertexOffset := len(r.vertexList)
	relNormalOffset := len(r.normalList)

	scanner := bufio.NewScanner(res)
	for scanner.Scan() {
		lineNum++
		lineTokens := strings.Fields(scanner.Text())
		if len(lineTokens) == 0 || strings.HasPrefix(lineTokens[0], "#") {
			continue
		}

		switch lineTokens[0] {
		case "call":
			if len(lineTokens) != 2 {
				return r.emitError(res, lineNum, `unsupported syntax for "call"; expected 1 argument; got %d`, len(lineTokens)-1)
			}

			incRes, err := asset.NewResource(lineTokens[1], res)
			if err != nil {
				return r.emitError(res, lineNum, "%s", err.Error())
			}
			err = r.parse(incRes)
			incRes.Close()
			if err != nil {
				return &ImportError{Path: res.Path(), Line: lineNum, Err: err}
			}
		case "v":
			v, err := parseVec3(lineTokens)
			if err != nil {
				return r.emitError(res, lineNum, "%s", err.Error())
			}
			r.vertexList = append(r.vertexList, v)
		case "vn":
			v, err := parseVec3(lineTokens)
			if err != nil {
				return r.emitError(res, lineNum, "%s", err.Error())
			}
			r.normalList = append(r.normalList, v)
		case "f":
			if err := r.parseFace(lineTokens, relVertexOffset, relNormalOffset); err != nil {
				return r.emitError(res, lineNum, "%s", err.Error())
			}
		default:
			// Texture coords, groups, materials and smoothing groups do
			// not affect the volume.
			r.skipped[lineTokens[0]]++
		}
	}
	if err := scanner.Err(); err != nil {
		return &ImportError{Path: res.Path(), Err: err}
	}

	for keyword, count := range r.skipped {
		r.logger.Debugf(`ignored %d "%s" statements`, count, keyword)
	}
	return nil
}

func (r *wavefrontReader) parseFace(lineTokens []string, relVertexOffset, relNormalOffset int) error {
	if len(lineTokens) < 4 {
		return fmt.Errorf(`unsupported syntax for "f"; expected at least 3 arguments; got %d`, len(lineTokens)-1)
	}

	faceCorners := make([]corner, len(lineTokens)-1)
	expIndices := 0
	for arg := 0; arg < len(faceCorners); arg++ {
		vTokens := strings.Split(lineTokens[arg+1], "/")

		// The first arg defines the format for the following args
		if arg == 0 {
			expIndices = len(vTokens)
		} else if len(vTokens) != expIndices {
			return fmt.Errorf("expected each face argument to contain %d indices; arg %d contains %d indices", expIndices, arg, len(vTokens))
		}

		if vTokens[0] == "" {
			return fmt.Errorf("face argument %d does not include a vertex index", arg)
		}

		vOffset, err := selectFaceCoordIndex(vTokens[0], len(r.vertexList), relVertexOffset)
		if err != nil {
			return fmt.Errorf("could not parse vertex coord for face argument %d: %s", arg, err.Error())
		}
		faceCorners[arg] = corner{pos: vOffset, normal: -1}

		if expIndices > 2 && vTokens[2] != "" {
			nOffset, err := selectFaceCoordIndex(vTokens[2], len(r.normalList), relNormalOffset)
			if err != nil {
				return fmt.Errorf("could not parse normal coord for face argument %d: %s", arg, err.Error())
			}
			faceCorners[arg].normal = nOffset
		}
	}

	// Fan triangulation around the first corner
	for i := 1; i+1 < len(faceCorners); i++ {
		r.corners = append(r.corners, faceCorners[0], faceCorners[i], faceCorners[i+1])
	}
	return nil
}

// Build the indexed mesh, generating missing normals and merging corners
// that share the same position and normal.
func (r *wavefrontReader) assemble(name string) *Mesh {
	var generated []types.Vec3
	for tri := 0; tri+2 < len(r.corners); tri += 3 {
		c := r.corners[tri : tri+3]
		if c[0].normal >= 0 && c[1].normal >= 0 && c[2].normal >= 0 {
			continue
		}
		if generated == nil {
			generated = make([]types.Vec3, len(r.vertexList))
		}

		// The unnormalized cross product weighs each face by its area
		p0 := r.vertexList[c[0].pos]
		faceNormal := r.vertexList[c[1].pos].Sub(p0).Cross(r.vertexList[c[2].pos].Sub(p0))
		for _, fc := range c {
			if fc.normal < 0 {
				generated[fc.pos] = generated[fc.pos].Add(faceNormal)
			}
		}
	}

	vertices := make([]Vertex, 0, len(r.vertexList))
	indices := make([]uint32, 0, len(r.corners))
	seen := make(map[corner]uint32, len(r.vertexList))
	for _, c := range r.corners {
		if index, exists := seen[c]; exists {
			indices = append(indices, index)
			continue
		}

		v := Vertex{Position: r.vertexList[c.pos]}
		if c.normal >= 0 {
			v.Normal = types.SafeNormalize(r.normalList[c.normal])
		} else {
			v.Normal = types.SafeNormalize(generated[c.pos])
		}

		index := uint32(len(vertices))
		vertices = append(vertices, v)
		seen[c] = index
		indices = append(indices, index)
	}

	return New(name, vertices, indices)
}

// Map a (possibly negative) 1-based OBJ index to an offset in a coordinate list.
func selectFaceCoordIndex(indexToken string, coordListLen int, relOffset int) (int, error) {
	index, err := strconv.ParseInt(indexToken, 10, 32)
	if err != nil {
		return -1, err
	}

	var vOffset int = 0
	if index < 0 {
		vOffset = coordListLen + int(index)
	} else {
		vOffset = relOffset + int(index-1)
	}
	if vOffset < 0 || vOffset >= coordListLen {
		return -1, fmt.Errorf("index out of bounds")
	}
	return vOffset, nil
}

// Parse a Vec3 row.
func parseVec3(lineTokens []string) (types.Vec3, error) {
	if len(lineTokens) < 4 {
		return types.Vec3{}, fmt.Errorf(`unsupported syntax for "%s"; expected 3 arguments; got %d`, lineTokens[0], len(lineTokens)-1)
	}

	v := types.Vec3{}
	for tokIdx := 1; tokIdx <= 3; tokIdx++ {
		coord, err := strconv.ParseFloat(lineTokens[tokIdx], 32)
		if err != nil {
			return v, err
		}
		v[tokIdx-1] = float32(coord)
	}
	return v, nil
}
