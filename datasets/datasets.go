// Package datasets describes the known translation datasets and downloads their files.
//
// A Descriptor lists, for one dataset, the languages, where its files live and which file prefixes
// hold the training split, the test splits and the vocabularies. Descriptors are grouped in an
// immutable Registry: DefaultRegistry has the Stanford NMT datasets (iwslt15, wmt14, wmt15), and
// LoadRegistry reads others from a YAML file.
//
// A Store downloads the files of a dataset to a local directory, if they are not there yet. It is
// safe to use the same directory from concurrent programs: downloads are coordinated with lock files.
package datasets

import (
	"os"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// SessionId is unique and always created anew at the start of the program, and used during the life of the program.
var SessionId string

// panicf generates an error message and panics with it, in one function.
func panicf(format string, args ...any) {
	err := errors.Errorf(format, args...)
	panic(err)
}

func init() {
	sessionUUID, err := uuid.NewRandom()
	if err != nil {
		panicf("failed generating UUID for SessionId: %v", err)
	}
	SessionId = strings.ReplaceAll(sessionUUID.String(), "-", "")
}

var (
	// DefaultDirCreationPerm is used when creating new data directories.
	DefaultDirCreationPerm = os.FileMode(0755)

	// DefaultFileCreationPerm is used when creating files inside the data directories.
	DefaultFileCreationPerm = os.FileMode(0644)
)

func getEnvOr(key, defaultValue string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	return v
}

// DefaultCacheDir where datasets are downloaded to.
//
// It is ${NMT_CACHE} if set. Otherwise, its prefix is either `${XDG_CACHE_HOME}` if set, or `~/.cache`,
// followed by `/go-nmt/`.
func DefaultCacheDir() string {
	if dir := os.Getenv("NMT_CACHE"); dir != "" {
		return dir
	}
	cacheDir := getEnvOr("XDG_CACHE_HOME", path.Join(os.Getenv("HOME"), ".cache"))
	return path.Join(cacheDir, "go-nmt")
}
