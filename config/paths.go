package config

import (
	"os"
	"path"

	"go.dedis.ch/ceptr/log"
)

// appDirName is the directory segment ceptr claims under the user's
// standard config and cache locations.
const appDirName = "ceptr"

// DataDir returns the directory the host keeps its on-disk state in (the
// package store). Resolution order: the CEPTR_DATA environment variable,
// then the platform cache directory plus "ceptr", then "./ceptr-data" as
// the last resort for environments without a home.
func DataDir() string {
	if dir := os.Getenv("CEPTR_DATA"); dir != "" {
		return dir
	}
	base, err := os.UserCacheDir()
	if err != nil {
		log.Warn("no user cache dir, keeping data in the working directory:", err)
		return "ceptr-data"
	}
	return path.Join(base, appDirName)
}

// DefaultFile returns where ceptrd looks for its TOML file when --config
// is not given: CEPTR_CONFIG, or the platform config directory plus
// "ceptr/ceptrd.toml". The file may well not exist; callers stat it.
func DefaultFile() string {
	if file := os.Getenv("CEPTR_CONFIG"); file != "" {
		return file
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return path.Join("ceptr-data", "ceptrd.toml")
	}
	return path.Join(base, appDirName, "ceptrd.toml")
}
