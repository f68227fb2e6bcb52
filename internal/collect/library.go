package collect

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"treequant/internal/tree"
)

// LoadLibrary reads every saved call-chain tree from dir. Each *.json file
// holds one tree; the file name without extension is the call target id. A
// missing directory yields an empty library so strategies without calls work
// with no setup.
func LoadLibrary(dir string) (Library, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return Library{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading library dir %s: %w", dir, err)
	}

	lib := make(Library)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading library tree %s: %w", name, err)
		}
		var root tree.Node
		if err := json.Unmarshal(data, &root); err != nil {
			return nil, fmt.Errorf("parsing library tree %s: %w", name, err)
		}
		lib[strings.TrimSuffix(name, ".json")] = &root
	}
	return lib, nil
}
