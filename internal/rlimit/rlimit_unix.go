//go:build unix

// Package rlimit probes the process's soft file-descriptor limit for the
// scheduler's jobs = min(jobs, (soft_limit-5)/3) resource cap.
package rlimit

import "golang.org/x/sys/unix"

// SoftNoFile returns the current soft RLIMIT_NOFILE, or fallbackValue if
// the limit cannot be read.
func SoftNoFile(fallbackValue int) int {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rl); err != nil {
		return fallbackValue
	}
	return int(rl.Cur)
}
