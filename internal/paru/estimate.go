package paru

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// CleanupEstimate reports how much disk a cache cleanup and an orphan removal
// could reclaim.
type CleanupEstimate struct {
	PacmanCacheBytes uint64 `json:"pacman_cache_bytes"`
	ParuCloneBytes   uint64 `json:"paru_clone_bytes"`
	OrphanCount      int    `json:"orphan_count"`
}

// EstimateCleanup measures the pacman package cache, paru's clone cache and
// the orphan count. Best-effort: anything that cannot be measured reports
// zero.
func EstimateCleanup() CleanupEstimate {
	est := CleanupEstimate{
		PacmanCacheBytes: dirSizeBytes("/var/cache/pacman/pkg"),
		OrphanCount:      orphanCount(),
	}
	if home, err := os.UserHomeDir(); err == nil {
		est.ParuCloneBytes = dirSizeBytes(filepath.Join(home, ".cache", "paru", "clone"))
	}
	return est
}

func dirSizeBytes(path string) uint64 {
	raw, err := exec.Command("du", "-sb", path).Output()
	if err != nil {
		return 0
	}
	fields := strings.Fields(string(raw))
	if len(fields) == 0 {
		return 0
	}
	size, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return 0
	}
	return size
}

func orphanCount() int {
	raw, err := exec.Command("pacman", "-Qtdq").Output()
	if err != nil {
		// pacman exits non-zero when there are no orphans
		return 0
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return 0
	}
	return len(strings.Split(trimmed, "\n"))
}
