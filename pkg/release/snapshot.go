package release

import (
	"compress/gzip"
	"context"
	"fmt"
	"os"
	"path"

	"github.com/mholt/archiver/v3"
	"github.com/radiofrance/rollo/internal/logger"
)

// FileUploader is an interface for uploading files to a remote location.
// It basically abstracts storage services such as AWS S3, GCS, etc...
type FileUploader interface {
	UploadFile(ctx context.Context, filePath string, targetPath string) error
}

// Snapshotter archives the manifest tree of a release and uploads it to a remote
// location, keeping a browsable history of everything that was rolled out.
type Snapshotter struct {
	uploader FileUploader
}

// NewSnapshotter creates a new instance of Snapshotter.
func NewSnapshotter(uploader FileUploader) *Snapshotter {
	return &Snapshotter{uploader}
}

// Snapshot archives the manifest tree and uploads it, named after the release.
func (s Snapshotter) Snapshot(ctx context.Context, manifestsPath string, rel Release) error {
	filename := fmt.Sprintf("manifests-%s-%s.tar.gz", rel.Name, rel.ID)
	tarGzPath := path.Join(os.TempDir(), filename)

	if err := createArchive(manifestsPath, tarGzPath); err != nil {
		return err
	}

	defer func() {
		if err := os.Remove(tarGzPath); err != nil {
			logger.Errorf("can't remove file %s: %v", tarGzPath, err)
		}
	}()

	targetPath := fmt.Sprintf("releases/%s/%s", rel.Name, filename)

	logger.Infof("Uploading release snapshot to %s", targetPath)

	if err := s.uploader.UploadFile(ctx, tarGzPath, targetPath); err != nil {
		return fmt.Errorf("can't upload release snapshot: %w", err)
	}

	return nil
}

// createArchive builds an archive containing all the files of the manifest tree.
func createArchive(manifestsPath string, tarGzPath string) error {
	logger.Infof("Creating release snapshot of %s", manifestsPath)

	tarGzArchiver := archiver.TarGz{
		Tar: &archiver.Tar{
			OverwriteExisting:      true,
			MkdirAll:               true,
			ImplicitTopLevelFolder: false,
			ContinueOnError:        false,
		},
		CompressionLevel: gzip.BestCompression,
	}

	var filesToArchive []string

	fileOrDirInfos, err := os.ReadDir(manifestsPath)
	if err != nil {
		return fmt.Errorf("can't access directory %s, err is : %w", manifestsPath, err)
	}

	for _, fileOrDir := range fileOrDirInfos {
		filesToArchive = append(filesToArchive, path.Join(manifestsPath, fileOrDir.Name()))
	}

	if err := tarGzArchiver.Archive(filesToArchive, tarGzPath); err != nil {
		return fmt.Errorf("can't create tar archive %s: %w", tarGzPath, err)
	}

	return nil
}
