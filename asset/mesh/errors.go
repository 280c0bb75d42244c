package mesh

import "fmt"

// ImportError is returned when a mesh file cannot be read or parsed.
type ImportError struct {
	Path string

	// Line is 0 when the error is not tied to a particular line.
	Line int
	Err  error
}

func (e *ImportError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("mesh: [%s: %d] %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("mesh: [%s] %v", e.Path, e.Err)
}

func (e *ImportError) Unwrap() error {
	return e.Err
}
