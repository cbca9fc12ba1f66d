package bridge

import (
	"fmt"
	"io"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

const pipePrefix = `\\.\pipe\`

// pipeSDDL grants read/write to authenticated users (so the helper,
// running as the logged-on user, can open the client end) and full
// control to the local system principal.
const pipeSDDL = "D:(A;;GRGW;;;AU)(A;;FA;;;SY)"

type winPipeListener struct {
	mu       sync.Mutex
	handle   windows.Handle
	path     string
	accepted bool
	closed   bool
}

// listenHelperPipe creates one named pipe server endpoint.
func listenHelperPipe(name string) (pipeListener, error) {
	path := pipePrefix + name

	sd, err := windows.SecurityDescriptorFromString(pipeSDDL)
	if err != nil {
		return nil, fmt.Errorf("pipe security descriptor: %w", err)
	}
	sa := &windows.SecurityAttributes{
		Length:             uint32(unsafe.Sizeof(windows.SecurityAttributes{})),
		SecurityDescriptor: sd,
	}

	h, err := windows.CreateNamedPipe(
		windows.StringToUTF16Ptr(path),
		windows.PIPE_ACCESS_DUPLEX,
		windows.PIPE_TYPE_BYTE|windows.PIPE_READMODE_BYTE|windows.PIPE_WAIT,
		1,       // one client: the helper
		64<<10,  // out buffer
		64<<10,  // in buffer
		0,       // default timeout
		sa,
	)
	if err != nil {
		return nil, err
	}
	return &winPipeListener{handle: h, path: path}, nil
}

// Accept blocks until the helper opens the client end, then hands the
// connected pipe over as a file. Closing the listener aborts a pending
// Accept.
func (l *winPipeListener) Accept() (io.ReadWriteCloser, error) {
	err := windows.ConnectNamedPipe(l.handle, nil)
	if err != nil && err != windows.ERROR_PIPE_CONNECTED {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, fmt.Errorf("pipe %s closed", l.path)
	}
	l.accepted = true
	return os.NewFile(uintptr(l.handle), l.path), nil
}

func (l *winPipeListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.accepted {
		// Ownership of the handle moved to the accepted connection.
		l.closed = true
		return nil
	}
	l.closed = true
	return windows.CloseHandle(l.handle)
}

func (l *winPipeListener) Path() string { return l.path }

var (
	kernel32                         = windows.NewLazySystemDLL("kernel32.dll")
	procWTSGetActiveConsoleSessionID = kernel32.NewProc("WTSGetActiveConsoleSessionId")
)

// sessionHasUserToken reports whether a user token is attached to the
// session, i.e. someone is logged on in it.
func sessionHasUserToken(id uint32) bool {
	var token windows.Token
	if err := windows.WTSQueryUserToken(id, &token); err != nil {
		return false
	}
	token.Close() //nolint:errcheck
	return true
}

// resolveTargetSession prefers the physical console session, then the
// first Active session with a user token.
func resolveTargetSession() (uint32, error) {
	const invalidSession = 0xFFFFFFFF

	id, _, _ := procWTSGetActiveConsoleSessionID.Call()
	if uint32(id) != invalidSession && sessionHasUserToken(uint32(id)) {
		return uint32(id), nil
	}

	var sessions *windows.WTS_SESSION_INFO
	var count uint32
	if err := windows.WTSEnumerateSessions(0, 0, 1, &sessions, &count); err != nil {
		return 0, fmt.Errorf("%w: enumerate: %v", ErrNoInteractiveSession, err)
	}
	defer windows.WTSFreeMemory(uintptr(unsafe.Pointer(sessions)))

	entries := unsafe.Slice(sessions, count)
	for i := range entries {
		if entries[i].State == windows.WTSActive && sessionHasUserToken(entries[i].SessionID) {
			return entries[i].SessionID, nil
		}
	}
	return 0, ErrNoInteractiveSession
}

type winProcess struct {
	handle windows.Handle
}

func (p *winProcess) Kill() error {
	err := windows.TerminateProcess(p.handle, 1)
	windows.CloseHandle(p.handle) //nolint:errcheck
	return err
}

// startHelper spawns this executable into the target session on the
// default interactive desktop, running as that session's user. Every
// duplicated token and the environment block are released on every exit
// path.
func startHelper(sessionID uint32, capturePath, inputPath string) (Process, error) {
	var userToken windows.Token
	if err := windows.WTSQueryUserToken(sessionID, &userToken); err != nil {
		return nil, fmt.Errorf("query user token for session %d: %w", sessionID, err)
	}
	defer userToken.Close() //nolint:errcheck

	var primary windows.Token
	err := windows.DuplicateTokenEx(userToken, windows.MAXIMUM_ALLOWED, nil,
		windows.SecurityIdentification, windows.TokenPrimary, &primary)
	if err != nil {
		return nil, fmt.Errorf("duplicate token: %w", err)
	}
	defer primary.Close() //nolint:errcheck

	var env *uint16
	if err := windows.CreateEnvironmentBlock(&env, primary, false); err != nil {
		return nil, fmt.Errorf("environment block: %w", err)
	}
	defer windows.DestroyEnvironmentBlock(env) //nolint:errcheck

	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	cmdLine := fmt.Sprintf(`"%s" --capture-helper %s %s`, exe, capturePath, inputPath)

	si := &windows.StartupInfo{
		Cb:      uint32(unsafe.Sizeof(windows.StartupInfo{})),
		Desktop: windows.StringToUTF16Ptr(`winsta0\default`),
	}
	var pi windows.ProcessInformation

	err = windows.CreateProcessAsUser(primary,
		windows.StringToUTF16Ptr(exe),
		windows.StringToUTF16Ptr(cmdLine),
		nil, nil, false,
		windows.CREATE_UNICODE_ENVIRONMENT|windows.CREATE_NO_WINDOW,
		env, nil, si, &pi)
	if err != nil {
		return nil, fmt.Errorf("create process in session %d: %w", sessionID, err)
	}
	windows.CloseHandle(pi.Thread) //nolint:errcheck

	return &winProcess{handle: pi.Process}, nil
}
