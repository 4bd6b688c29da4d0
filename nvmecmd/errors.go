package nvmecmd

import "fmt"

// Stable error codes for reader failures. Reports and operators key off
// these, so they never change meaning.
const (
	CodeNoDevice       = 51
	CodeBadJSON        = 52
	CodeToolFailure    = 53
	CodePermission     = 54
	CodeDeviceMismatch = 56
)

// The reader's own exit codes.
const (
	exitUsageError    = 16
	exitException     = 17
	exitNoNvmeDrives  = 18
	exitDriveNotFound = 19
)

// Error is a reader failure with a stable code and a remediation-oriented
// message.
type Error struct {
	Code int
	msg  string
	err  error
}

func (e *Error) Error() string { return e.msg }
func (e *Error) Unwrap() error { return e.err }

func errNoDevice(device int) *Error {
	return &Error{
		Code: CodeNoDevice,
		msg:  fmt.Sprintf("NVMe device %d was not found", device),
	}
}

func errBadJSON(path string, err error) *Error {
	return &Error{
		Code: CodeBadJSON,
		msg:  fmt.Sprintf("failed parsing reader JSON file %s: %v", path, err),
		err:  err,
	}
}

func errToolFailure(dir string) *Error {
	return &Error{
		Code: CodeToolFailure,
		msg:  fmt.Sprintf("reader failed, see %s/%s", dir, TraceLogFilename),
	}
}

func errPermission(binary string) *Error {
	return &Error{
		Code: CodePermission,
		msg: fmt.Sprintf("reader does not have permission to access NVMe devices.\n\n"+
			"To give permission run:\n\n"+
			"  sudo chmod 777 %s\n"+
			"  sudo setcap cap_sys_admin,cap_dac_override=ep %s\n", binary, binary),
	}
}

func errDeviceMismatch(device, fileDevice int) *Error {
	return &Error{
		Code: CodeDeviceMismatch,
		msg:  fmt.Sprintf("info file is for NVMe device %d, not the provided device %d", fileDevice, device),
	}
}
