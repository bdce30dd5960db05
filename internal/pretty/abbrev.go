// Package pretty formats values for log output.
package pretty

import (
	"fmt"
	"unicode/utf8"
)

// Abbrev wraps p so that it prints at most max bytes. Formatting is deferred
// until the value is printed, so loggers that drop the line pay nothing.
func Abbrev(p []byte, max int) Abbreviated {
	return Abbreviated{Data: p, Max: max}
}

// Abbreviated is a byte payload that is cut when formatted. A Max of zero
// or less prints everything.
type Abbreviated struct {
	Data []byte
	Max  int
}

func (a Abbreviated) String() string {
	if a.Max <= 0 || len(a.Data) <= a.Max {
		return string(a.Data)
	}
	cut := a.Max
	// Never split a multi-byte rune.
	for cut > 0 && !utf8.RuneStart(a.Data[cut]) {
		cut--
	}
	return fmt.Sprintf("%s… (%d bytes)", a.Data[:cut], len(a.Data))
}
