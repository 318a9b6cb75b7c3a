package trace

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// NewRunDir creates a timestamped directory for one run's artifacts,
// named <prefix>_<YYYYMMDD_HHMMSS> under root.
func NewRunDir(root, prefix string) (string, error) {
	if prefix == "" {
		prefix = "run"
	}
	name := fmt.Sprintf("%s_%s", prefix, time.Now().Format("20060102_150405"))
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create run directory: %w", err)
	}
	return dir, nil
}
