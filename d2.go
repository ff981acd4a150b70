package e2e

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ToD2 writes the execution order of the selected scenarios as a D2 diagram,
// one edge per consecutive pair.
func (s *Suite) ToD2(w io.Writer) error {
	var builder strings.Builder
	selected := s.Selected()

	switch len(selected) {
	case 0:
	case 1:
		builder.WriteString(fmt.Sprintf("%s\n", strconv.Quote(selected[0].Name)))
	default:
		for i := 1; i < len(selected); i++ {
			builder.WriteString(fmt.Sprintf("%s -> %s\n", strconv.Quote(selected[i-1].Name), strconv.Quote(selected[i].Name)))
		}
	}

	_, err := io.WriteString(w, builder.String())
	return err
}

// WriteD2 writes the D2 diagram to path, replacing any existing file.
func (s *Suite) WriteD2(path string) error {
	// Write D2 output to file
	f, err := os.OpenFile(path, os.O_TRUNC|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	return s.ToD2(f)
}
