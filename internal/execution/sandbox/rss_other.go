//go:build !linux

package sandbox

import "fmt"

// sampleRSSKB is unavailable off linux; the monitor keeps running but never
// records a sample, so memory usage reports as zero and no limit is enforced.
func sampleRSSKB(pid int) (int64, error) {
	return 0, fmt.Errorf("rss sampling not supported on this platform")
}
