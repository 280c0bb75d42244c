package soft

import (
	"fmt"
	"sort"
	"strings"

	"github.com/StarsX/SparseVolumeDXR/asset/shader"
)

// Program blobs understood by this device carry this prefix followed by the
// name of a built-in program.
const programPrefix = "soft:"

// A ray tracing library: named exports grouped by shader stage.
type library struct {
	rayGen     map[string]rayGenProgram
	closestHit map[string]closestHitProgram
	anyHit     map[string]anyHitProgram
	miss       map[string]missProgram
}

var (
	vertexPrograms = map[string]vertexProgram{
		"VSBasePass":   vsBasePass,
		"VSScreenQuad": vsScreenQuad,
	}

	pixelPrograms = map[string]pixelProgram{
		"PSDepthPeel":     psDepthPeel,
		"PSSparseRayCast": psSparseRayCast,
	}

	libraries = map[string]*library{
		"SparseRayCast": {
			rayGen:     map[string]rayGenProgram{"raygenMain": raygenMain},
			closestHit: map[string]closestHitProgram{"closestHitMain": closestHitMain},
			anyHit:     map[string]anyHitProgram{"anyHitMain": anyHitMain},
			miss:       map[string]missProgram{"missMain": missMain},
		},
	}
)

func programName(blob []byte) (string, error) {
	name, found := strings.CutPrefix(string(blob), programPrefix)
	if !found || name == "" {
		return "", fmt.Errorf("blob is not a soft device program")
	}
	return name, nil
}

// Programs returns a loader serving the built-in programs of the device.
func Programs() shader.Map {
	programs := make(shader.Map)
	for name := range vertexPrograms {
		programs[name] = []byte(programPrefix + name)
	}
	for name := range pixelPrograms {
		programs[name] = []byte(programPrefix + name)
	}
	for name := range libraries {
		programs[name] = []byte(programPrefix + name)
	}
	return programs
}

// Sorted names of the built-in programs.
func ProgramNames() []string {
	programs := Programs()
	names := make([]string, 0, len(programs))
	for name := range programs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
