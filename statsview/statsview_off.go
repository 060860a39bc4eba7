//go:build !statsview

package statsview

import (
	"fmt"
	"io"
)

const Address = ""

// Launch does nothing unless the binary was built with the statsview tag.
func Launch(output io.Writer) {
	fmt.Fprintln(output, "stats server not compiled in (build with -tags statsview)")
}

// Available returns true if a statsview is available to launch.
func Available() bool {
	return false
}
