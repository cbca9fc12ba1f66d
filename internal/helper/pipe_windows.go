package helper

import (
	"io"
	"os"

	"golang.org/x/sys/windows"

	"github.com/avaropoint/agentcore/internal/capture"
)

// dialPipe opens the client end of a named pipe created by the service.
func dialPipe(path string) (io.ReadWriteCloser, error) {
	h, err := windows.CreateFile(
		windows.StringToUTF16Ptr(path),
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		0, nil,
		windows.OPEN_EXISTING,
		0, 0)
	if err != nil {
		return nil, err
	}
	return os.NewFile(uintptr(h), path), nil
}

// hostGrabber returns the platform screen-capture primitive, an external
// collaborator this module does not implement. Nil selects the synthetic
// test pattern.
func hostGrabber() capture.ScreenGrabber {
	return nil
}
