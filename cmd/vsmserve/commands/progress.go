package commands

import (
	"fmt"
	"io"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/xupit3r/vsmserve/internal/model"
)

// newProgressPrinter renders download progress on a single terminal line.
func newProgressPrinter(w io.Writer) model.ProgressFunc {
	var mu sync.Mutex
	return func(downloaded, total int64, speed float64) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprint(w, "\r"+progressLine(downloaded, total, speed))
		if total > 0 && downloaded >= total {
			fmt.Fprintln(w)
		}
	}
}

func progressLine(downloaded, total int64, speed float64) string {
	rate := humanize.IBytes(uint64(speed)) + "/s"
	if total <= 0 {
		return fmt.Sprintf("Downloaded %s (%s)", humanize.IBytes(uint64(downloaded)), rate)
	}
	percent := float64(downloaded) / float64(total) * 100
	return fmt.Sprintf("Progress: %5.1f%% (%s / %s) - %s",
		percent,
		humanize.IBytes(uint64(downloaded)),
		humanize.IBytes(uint64(total)),
		rate)
}
