package benchmark

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/pprof"
	"strings"
	"time"
)

// ProfileName builds a profile file name as rxpool_{date}_ev{events}_w{workers}.prof.
func ProfileName(events, workers int) string {
	return fmt.Sprintf("rxpool_%s_ev%d_w%d.prof",
		strings.ReplaceAll(time.Now().Truncate(time.Second).Format(time.DateTime), " ", "-"),
		events,
		workers)
}

// Profile runs run under the CPU profiler and writes the profile to path. When path is a directory, the file is
// created inside it with ProfileName.
//
// use pprof to read the file (go install github.com/google/pprof@latest).
func Profile(path string, events, workers int, run func() error) (string, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, ProfileName(events, workers))
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating profile file: %w", err)
	}
	defer f.Close()

	if err := pprof.StartCPUProfile(f); err != nil {
		return "", fmt.Errorf("starting cpu profile: %w", err)
	}
	runErr := run()
	pprof.StopCPUProfile()

	// pprof -http=:8080 $file
	return f.Name(), runErr
}
