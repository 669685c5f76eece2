// Package liveness answers "is this socket still open according to the
// process filesystem" portably, backing
// tracking.ConnectionTracker.HandleInactivity's "/proc/<pid>/fd/<fd>
// exists" check.
//
// Grounded on the teacher's xdpcollector/utility/getPortsByPID.go, which
// uses the same gopsutil process package to answer a sibling
// per-PID question (which ports a process has open).
package liveness

import (
	"github.com/shirou/gopsutil/v3/process"
)

// FDOpen reports whether pid has fd open, per the process filesystem.
// On platforms where gopsutil cannot enumerate open files (no /proc),
// it defaults to "alive" and leaves flushing stale buffered bytes to
// the caller's inactivity handling.
func FDOpen(pid uint32, fd int32) bool {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		// The process itself is gone: the fd cannot be open.
		return false
	}

	files, err := proc.OpenFiles()
	if err != nil {
		// Enumeration unsupported or failed on this platform: assume
		// alive rather than prematurely killing the tracker.
		return true
	}

	for _, f := range files {
		if int32(f.Fd) == fd {
			return true
		}
	}
	return false
}
