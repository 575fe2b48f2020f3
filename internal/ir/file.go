package ir

import "sort"

// File is the source file an IR tree was built from. Only the line table
// is kept; it maps start offsets to line numbers for stack traces.
type File struct {
	Name       string
	lineStarts []int
}

func NewFile(name, source string) *File {
	starts := []int{0}
	for i := 0; i < len(source); i++ {
		if source[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &File{Name: name, lineStarts: starts}
}

// Line returns the 1-based line of offset. Negative offsets map to line 0.
func (f *File) Line(offset int) int {
	if offset < 0 {
		return 0
	}
	return sort.Search(len(f.lineStarts), func(i int) bool { return f.lineStarts[i] > offset })
}

// Offset returns the offset of the given 1-based line and column.
func (f *File) Offset(line, column int) int {
	if line < 1 || line > len(f.lineStarts) {
		return -1
	}
	return f.lineStarts[line-1] + column - 1
}

// FacadeName is the JVM-style name of the file's top-level class: Points.kt -> PointsKt.
func (f *File) FacadeName() string {
	name := f.Name
	if n := len(name); n > 3 && name[n-3:] == ".kt" {
		name = name[:n-3] + "Kt"
	}
	if name == "" {
		return name
	}
	if c := name[0]; c >= 'a' && c <= 'z' {
		name = string(c-'a'+'A') + name[1:]
	}
	return name
}
