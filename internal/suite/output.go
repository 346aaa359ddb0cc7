package suite

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tokenflood/internal/config"
)

// FolderTimeLayout prefixes every run folder name.
const FolderTimeLayout = "2006-01-02_15-04-05"

// SpecFile is a spec copied into the run folder.
type SpecFile struct {
	Name string
	Spec any
}

// RunFolder is <base>/<time>_<provider_model>.
func RunFolder(base string, ep config.Endpoint, now time.Time) string {
	return filepath.Join(base, now.Format(FolderTimeLayout)+"_"+ep.FolderName())
}

// PrepareRunFolder creates the run folder and writes the given specs into it
// so the results can be traced back to what produced them.
func PrepareRunFolder(base string, ep config.Endpoint, now time.Time, specs ...SpecFile) (string, error) {
	dir := RunFolder(base, ep, now)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating run folder: %w", err)
	}
	for _, s := range specs {
		if err := config.Save(filepath.Join(dir, s.Name), s.Spec); err != nil {
			return "", err
		}
	}
	return dir, nil
}
