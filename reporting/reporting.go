// Package reporting renders finished suite results: a plain-text summary
// file next to the persisted JSON and a console table for the end of a run.
package reporting

import (
	"fmt"
	"time"

	"github.com/nvmetools/nvmetest/types"
)

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Truncate(time.Millisecond).String()
}

func passRate(c types.Counts) string {
	if c.Total == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", 100*float64(c.Pass)/float64(c.Total))
}
