//go:build !unix

package rlimit

// SoftNoFile returns fallbackValue: the process's file-descriptor limit
// isn't queryable through golang.org/x/sys/unix on non-unix platforms.
func SoftNoFile(fallbackValue int) int {
	return fallbackValue
}
