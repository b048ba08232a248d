package datasets

import (
	"context"
	"os"
	"path"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/go-nmt/internal/files"
	"github.com/gomlx/gomlx/ml/data/downloader"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Store of downloaded datasets. Create it with New.
//
// Each dataset is stored in its own subdirectory, named after the dataset.
type Store struct {
	// dir is where to store the downloaded files.
	dir string

	// authToken is the authentication token to be used when downloading the files, if any.
	authToken string

	// MaxParallelDownload indicates how many files to download at the same time. Default is 4.
	// If set to <= 0 it will download all files in parallel.
	// Set to 1 to make downloads sequential.
	MaxParallelDownload int

	downloadManager *downloader.Manager

	useProgressBar bool
}

// New creates a Store in the given directory. If dir is empty, DefaultCacheDir is used.
func New(dir string) *Store {
	s := &Store{
		MaxParallelDownload: 4,
	}
	if dir == "" {
		dir = DefaultCacheDir()
	}
	return s.WithDir(dir)
}

// WithDir sets the directory of the Store. A leading "~" is replaced by the user's home directory.
func (s *Store) WithDir(dir string) *Store {
	newDir, err := files.ReplaceTildeInDir(dir)
	if err != nil {
		klog.Errorf("Failed to resolve directory for %q: %+v", dir, err)
		newDir = dir
	}
	s.dir = path.Clean(newDir)
	return s
}

// WithAuth sets the authentication token to use during downloads.
//
// Setting it to empty ("") is the same as resetting and not using authentication.
func (s *Store) WithAuth(authToken string) *Store {
	s.authToken = authToken
	return s
}

// WithDownloadManager sets the downloader.Manager to use for download.
// This is not needed, one will be created automatically if one is not set.
func (s *Store) WithDownloadManager(manager *downloader.Manager) *Store {
	s.downloadManager = manager
	return s
}

// WithProgressBar configures the usage of progress bars during download. Defaults to false.
func (s *Store) WithProgressBar(useProgressBar bool) *Store {
	s.useProgressBar = useProgressBar
	return s
}

// Dir returns the root directory of the Store.
func (s *Store) Dir() string {
	return s.dir
}

// DatasetDir returns the directory holding the files of the dataset.
func (s *Store) DatasetDir(d Descriptor) string {
	return path.Join(s.dir, d.Name)
}

// Missing returns the files of the dataset not yet downloaded.
func (s *Store) Missing(d Descriptor) []string {
	var missing []string
	for _, fileName := range d.Files {
		if !files.Exists(path.Join(s.DatasetDir(d), cleanRelativeFilePath(fileName))) {
			missing = append(missing, fileName)
		}
	}
	return missing
}

// Download the files of the dataset that are not yet in the Store. If forceDownload is true, all files
// are downloaded again.
//
// It returns the dataset directory.
func (s *Store) Download(ctx context.Context, d Descriptor, forceDownload bool) (string, error) {
	if err := d.Validate(); err != nil {
		return "", err
	}
	dir := s.DatasetDir(d)
	if err := os.MkdirAll(dir, DefaultDirCreationPerm); err != nil {
		return "", errors.Wrapf(err, "while creating dataset directory %q", dir)
	}
	g, ctx := errgroup.WithContext(ctx)
	if s.MaxParallelDownload > 0 {
		g.SetLimit(s.MaxParallelDownload)
	}
	for _, fileName := range d.Files {
		filePath := path.Join(dir, cleanRelativeFilePath(fileName))
		if files.Exists(filePath) && !forceDownload {
			klog.V(2).Infof("%s: %q already downloaded", d.Name, fileName)
			continue
		}
		url := d.FileURL(fileName)
		g.Go(func() error {
			err := s.lockedDownload(ctx, url, filePath, forceDownload, s.progressCallback(fileName))
			if err != nil {
				return errors.WithMessagef(err, "dataset %q", d.Name)
			}
			if info, err := os.Stat(filePath); err == nil {
				klog.Infof("Successfully downloaded %s (%s)", fileName, humanize.Bytes(uint64(info.Size())))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	return dir, nil
}
