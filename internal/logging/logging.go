package logging

import (
	"io"
	"log"
	"os"
)

// New returns the process logger. A nil w writes to stdout.
func New(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stdout
	}
	return log.New(w, "monitord ", log.LstdFlags|log.LUTC)
}
