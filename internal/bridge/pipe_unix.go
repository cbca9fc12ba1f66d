//go:build !windows

package bridge

import (
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
)

// On non-Windows hosts there is no session 0 and no helper is spawned in
// production; the pipe endpoints are Unix domain sockets so the bridge's
// spawn/connect/dispose machinery runs identically under test on any
// platform.

type unixPipeListener struct {
	ln   net.Listener
	path string
}

// listenHelperPipe creates one pipe server endpoint as a Unix socket in
// the temp directory.
func listenHelperPipe(name string) (pipeListener, error) {
	path := filepath.Join(os.TempDir(), name+".sock")
	os.Remove(path) //nolint:errcheck
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	return &unixPipeListener{ln: ln, path: path}, nil
}

func (l *unixPipeListener) Accept() (io.ReadWriteCloser, error) {
	return l.ln.Accept()
}

func (l *unixPipeListener) Close() error {
	err := l.ln.Close()
	os.Remove(l.path) //nolint:errcheck
	return err
}

func (l *unixPipeListener) Path() string { return l.path }

// resolveTargetSession is trivial off Windows: the helper is a plain
// child process on the caller's own desktop.
func resolveTargetSession() (uint32, error) {
	return 0, nil
}

type unixProcess struct {
	proc *os.Process
}

func (p *unixProcess) Kill() error { return p.proc.Kill() }

// startHelper re-invokes this executable in helper mode.
func startHelper(_ uint32, capturePath, inputPath string) (Process, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	cmd := exec.Command(exe, "--capture-helper", capturePath, inputPath)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	go cmd.Wait() //nolint:errcheck
	return &unixProcess{proc: cmd.Process}, nil
}
