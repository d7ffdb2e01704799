package toolutils

import (
	"fmt"
	"io"
	"strings"
)

// StatusPrinter prints aligned "key=value" lines, used by ldmctl's status
// and indexmap subcommands to dump session-memory and index-map state for
// operator debugging (recent prints its own lines). Writer is an io.Writer rather
// than an *os.File so tests can print to a strings.Builder instead of
// capturing stdout.
type StatusPrinter struct {
	Writer  io.Writer
	Padding int
}

// Print writes a key-value pair, the key left-padded (right-aligned) to
// Padding columns, followed by an equals sign and the value. A key already at or past Padding gets no
// leading pad rather than a negative repeat count.
func (s StatusPrinter) Print(key string, value any) {
	fmt.Fprintf(s.Writer, "%s%s=%v\n", strings.Repeat(" ", max(0, s.Padding-len(key))), key, value)
}
