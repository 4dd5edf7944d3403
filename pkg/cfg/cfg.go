package cfg

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
)

// LoadConfigByDir decodes every .toml and .json file found directly under
// configDir into configPtr, in lexical order so that later files override
// earlier ones.
func LoadConfigByDir(configDir string, configPtr interface{}) error {
	entries, err := os.ReadDir(configDir)
	if err != nil {
		return fmt.Errorf("failed to read config dir %s: %v", configDir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext == ".toml" || ext == ".json" {
			files = append(files, filepath.Join(configDir, entry.Name()))
		}
	}

	if len(files) == 0 {
		return fmt.Errorf("no .toml or .json config file found in %s", configDir)
	}

	sort.Strings(files)

	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %v", file, err)
		}

		switch filepath.Ext(file) {
		case ".toml":
			if err := toml.Unmarshal(data, configPtr); err != nil {
				return fmt.Errorf("failed to parse %s: %v", file, err)
			}
		case ".json":
			if err := json.Unmarshal(data, configPtr); err != nil {
				return fmt.Errorf("failed to parse %s: %v", file, err)
			}
		}
	}

	return nil
}
