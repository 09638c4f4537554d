package release

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wolfeidau/humanhash"
)

// HashManifests computes a human-readable hash of every manifest file under the
// given path. Two manifest trees with the same content always produce the same hash,
// so the hash identifies the desired state of a release.
func HashManifests(manifestsPath string) (string, error) {
	var files []string

	err := filepath.Walk(manifestsPath, func(filePath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, filePath)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("could not hash manifests in %s: %w", manifestsPath, err)
	}

	return HashFiles(files)
}

// HashFiles computes a human-readable hash of the given files.
func HashFiles(files []string) (string, error) {
	hash := sha256.New()
	files = append([]string(nil), files...)
	sort.Strings(files)
	for _, file := range files {
		if strings.Contains(file, "\n") {
			return "", errors.New("filenames with newlines are not supported")
		}
		readCloser, err := os.Open(file) //nolint:gosec
		if err != nil {
			return "", err
		}
		hashFile := sha256.New()
		_, err = io.Copy(hashFile, readCloser)
		_ = readCloser.Close()
		if err != nil {
			return "", err
		}
		fmt.Fprintf(hash, "%x  %s\n", hashFile.Sum(nil), file)
	}

	humanReadableHash, err := humanhash.Humanize(hash.Sum(nil), 4)
	if err != nil {
		return "", fmt.Errorf("could not humanize hash: %w", err)
	}
	return humanReadableHash, nil
}
