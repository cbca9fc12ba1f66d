//go:build !windows

package helper

import (
	"io"
	"net"

	"github.com/avaropoint/agentcore/internal/capture"
)

// dialPipe opens the client end of a bridge pipe. Off Windows the pipes
// are Unix domain sockets (see the bridge package).
func dialPipe(path string) (io.ReadWriteCloser, error) {
	return net.Dial("unix", path)
}

// hostGrabber returns the platform screen-capture primitive, an external
// collaborator this module does not implement. Nil selects the synthetic
// test pattern.
func hostGrabber() capture.ScreenGrabber {
	return nil
}
