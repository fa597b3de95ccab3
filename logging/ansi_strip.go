package logging

import (
	"github.com/acarl005/stripansi"
)

// stripANSIEscapeSequences removes terminal color and formatting codes from
// captured driver output so the log files stay readable in any viewer.
func stripANSIEscapeSequences(s string) string {
	return stripansi.Strip(s)
}
