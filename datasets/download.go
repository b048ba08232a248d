package datasets

import (
	"context"
	"math/rand/v2"
	"os"
	"path"
	"syscall"
	"time"

	"github.com/gomlx/go-nmt/internal/files"
	"github.com/gomlx/gomlx/ml/data/downloader"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// getDownloadManager returns current downloader.Manager, or creates a new one for this Store.
func (s *Store) getDownloadManager() *downloader.Manager {
	if s.downloadManager == nil {
		s.downloadManager = downloader.New().MaxParallel(s.MaxParallelDownload).WithAuthToken(s.authToken)
	}
	return s.downloadManager
}

// progressCallback returns a callback that displays a progress bar for fileName, or nil if progress bars
// are disabled.
func (s *Store) progressCallback(fileName string) downloader.ProgressCallback {
	if !s.useProgressBar {
		return nil
	}
	var bar *progressbar.ProgressBar
	return func(downloadedBytes, totalBytes int64) {
		if bar == nil {
			total := totalBytes
			if total <= 0 {
				total = -1
			}
			bar = progressbar.DefaultBytes(total, "Downloading "+fileName)
		}
		_ = bar.Set64(downloadedBytes)
		if totalBytes > 0 && downloadedBytes >= totalBytes {
			_ = bar.Finish()
		}
	}
}

// lockedDownload url to the given filePath.
//
// If filePath exits and forceDownload is false, it is assumed to already have been correctly downloaded, and it will return immediately.
//
// It downloads the file to a temporary file next to filePath and then atomically move it to filePath.
//
// It uses a temporary filePath+".lock" to coordinate multiple processes/programs trying to download the same file at the same time.
func (s *Store) lockedDownload(ctx context.Context, url, filePath string, forceDownload bool, progressCallback downloader.ProgressCallback) error {
	if files.Exists(filePath) {
		if !forceDownload {
			return nil
		}
		err := os.Remove(filePath)
		if err != nil {
			return errors.Wrapf(err, "failed to remove %q while force-downloading %q", filePath, url)
		}
	}

	// Checks whether context has already been cancelled, and exit immediately.
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(path.Dir(filePath), DefaultDirCreationPerm); err != nil {
		return errors.Wrapf(err, "failed to create directory for file %q", filePath)
	}

	lockPath := filePath + ".lock"
	var mainErr error
	errLock := execOnFileLock(ctx, lockPath, func() {
		if files.Exists(filePath) {
			// Some concurrent other process (or goroutine) already downloaded the file.
			return
		}

		tmpPath := filePath + "." + SessionId + ".downloading"
		mainErr = s.getDownloadManager().Download(ctx, url, tmpPath, progressCallback)
		if mainErr != nil {
			if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
				klog.Warningf("Failed removing temporary file %q: %v", tmpPath, err)
			}
			mainErr = errors.WithMessagef(mainErr, "while downloading %q to %q", url, tmpPath)
			return
		}
		if err := os.Rename(tmpPath, filePath); err != nil {
			mainErr = errors.Wrapf(err, "failed to move downloaded file %q to %q", tmpPath, filePath)
			return
		}

		// File already exists, so we no longer need the lock file.
		if err := os.Remove(lockPath); err != nil {
			klog.Warningf("error removing lock file %q: %+v", lockPath, err)
		}
	})
	if mainErr != nil {
		return mainErr
	}
	if errLock != nil {
		return errors.WithMessagef(errLock, "while locking %q to download %q", lockPath, url)
	}
	return nil
}

// execOnFileLock opens the lockPath file (or creates if it doesn't yet exist), locks it, and executes the function.
// If the lockPath is already locked, it polls with a 1 to 2 seconds period (randomly), until it acquires the lock
// or the context is cancelled.
//
// The lockPath is not removed. It's safe to remove it from the given fn, if one knows that no new calls to
// execOnFileLock with the same lockPath is going to be made.
func execOnFileLock(ctx context.Context, lockPath string, fn func()) (err error) {
	var f *os.File
	f, err = os.OpenFile(lockPath, os.O_APPEND|os.O_WRONLY|os.O_CREATE, DefaultFileCreationPerm)
	if err != nil {
		err = errors.Wrapf(err, "while locking %q", lockPath)
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			klog.Warningf("failed to close lock file %q", lockPath)
		}
	}()

	for {
		err = syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			break
		}
		if !errors.Is(err, syscall.EWOULDBLOCK) {
			return errors.Wrapf(err, "while locking %q", lockPath)
		}
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "waiting for lock %q", lockPath)
		case <-time.After(time.Millisecond * time.Duration(1000+rand.IntN(1000))):
		}
	}

	// Unlock in a deferred function, so it happens even if `fn()` panics.
	defer func() {
		if errUnlock := syscall.Flock(int(f.Fd()), syscall.LOCK_UN); errUnlock != nil && err == nil {
			err = errors.Wrapf(errUnlock, "unlocking file %q", lockPath)
		}
	}()

	fn()
	return
}
