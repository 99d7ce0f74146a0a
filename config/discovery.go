package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var ErrFileNotFound = errors.New("file not found")

// EnvFileName is the settings file looked for during discovery.
const EnvFileName = ".env"

// executableDepth is how many directories above the binary are checked.
const executableDepth = 2

// Discovery holds the inputs for locating a settings file.
type Discovery struct {
	// Explicit is an operator supplied path, e.g. from ENV_PATH.
	Explicit string
	// ExecutableDir is the directory containing the running binary.
	ExecutableDir string
	// WorkingDir is where the upward walk starts.
	WorkingDir string
}

// DiscoverEnvFile returns the first existing candidate in priority order:
// the explicit path, the executable's directory and its parents, then the
// nearest file walking up from the working directory.
func DiscoverEnvFile(d Discovery, exists func(string) bool) (string, bool) {
	if d.Explicit != "" && exists(d.Explicit) {
		return d.Explicit, true
	}

	if d.ExecutableDir != "" {
		dir := d.ExecutableDir
		for i := 0; i <= executableDepth; i++ {
			cand := filepath.Join(dir, EnvFileName)
			if exists(cand) {
				return cand, true
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	if d.WorkingDir != "" {
		if found, err := searchUpwards(d.WorkingDir, EnvFileName, exists); err == nil {
			return found, true
		}
	}
	return "", false
}

func searchUpwards(dir, filename string, exists func(string) bool) (string, error) {
	for {
		file := filepath.Join(dir, filename)
		if exists(file) {
			return file, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.Wrap(ErrFileNotFound, filename)
		}
		dir = parent
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func SearchUpwardsForFile(filename string) (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return searchUpwards(wd, filename, fileExists)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// LoadDotEnv discovers a settings file and loads it into the process
// environment, overriding variables that are already set. explicit takes
// precedence over ENV_PATH. It returns the loaded path, or "" when nothing
// was found and the ambient environment is used as is.
func LoadDotEnv(explicit string) string {
	if explicit == "" {
		explicit = os.Getenv("ENV_PATH")
	}

	d := Discovery{}
	if explicit != "" {
		if abs, err := filepath.Abs(expandHome(explicit)); err == nil {
			d.Explicit = abs
		} else {
			d.Explicit = explicit
		}
	}
	if exe, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		d.ExecutableDir = filepath.Dir(exe)
	}
	if wd, err := os.Getwd(); err == nil {
		d.WorkingDir = wd
	}

	if d.Explicit != "" && !fileExists(d.Explicit) {
		log.Warn().Str("path", d.Explicit).Msg("ENV_PATH does not exist, falling back to discovery")
	}

	file, ok := DiscoverEnvFile(d, fileExists)
	if !ok {
		log.Info().Msg("no .env file found, using the existing environment and ambient credentials")
		return ""
	}

	if err := godotenv.Overload(file); err != nil {
		log.Warn().Err(err).Str("path", file).Msg("unable to load .env file")
		return ""
	}

	log.Info().Msgf("loaded environment variables from %s", file)
	return file
}
