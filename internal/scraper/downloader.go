package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"civitai-scraper/internal/utils"

	"github.com/sirupsen/logrus"
)

// Outcome is the result of EnsureDownloaded.
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeDownloaded
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDownloaded:
		return "downloaded"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// Downloader stores images under the SFW or NSFW directory. It assumes it is
// the only writer of both directories.
type Downloader struct {
	client  *Client
	sfwDir  string
	nsfwDir string
	logger  *logrus.Logger
}

func NewDownloader(client *Client, sfwDir, nsfwDir string, logger *logrus.Logger) *Downloader {
	return &Downloader{
		client:  client,
		sfwDir:  sfwDir,
		nsfwDir: nsfwDir,
		logger:  logger,
	}
}

// Dir returns the directory images of the given classification go to.
func (d *Downloader) Dir(nsfw bool) string {
	if nsfw {
		return d.nsfwDir
	}
	return d.sfwDir
}

// Prepare creates both image directories.
func (d *Downloader) Prepare() error {
	for _, dir := range []string{d.sfwDir, d.nsfwDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// Exists reports whether filename is already stored for the classification.
// An NSFW image still sitting in the SFW directory from an earlier run is
// moved to the NSFW directory first.
func (d *Downloader) Exists(filename string, nsfw bool) (bool, error) {
	if nsfw {
		if err := d.reconcile(filename); err != nil {
			return false, err
		}
	}
	return utils.FileExists(filepath.Join(d.Dir(nsfw), filename))
}

func (d *Downloader) reconcile(filename string) error {
	moved, err := d.relocate(filename, d.sfwDir, d.nsfwDir)
	if err != nil {
		return err
	}
	if moved {
		d.logger.Infof("Moved %s from %s to %s (classification changed)", filename, d.sfwDir, d.nsfwDir)
	}
	return nil
}

// Move puts filename in the directory of the given classification, taking it
// from the other one. A file missing from the source directory is not an error.
func (d *Downloader) Move(filename string, nsfw bool) error {
	from, to := d.Dir(!nsfw), d.Dir(nsfw)
	if err := os.MkdirAll(to, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", to, err)
	}

	moved, err := d.relocate(filename, from, to)
	if err != nil {
		return err
	}
	if moved {
		d.logger.Infof("Moved %s from %s to %s", filename, from, to)
	}
	return nil
}

func (d *Downloader) relocate(filename, fromDir, toDir string) (bool, error) {
	from := filepath.Join(fromDir, filename)
	to := filepath.Join(toDir, filename)

	err := os.Rename(from, to)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to move %s to %s: %w", from, toDir, err)
	}
	return true, nil
}

// EnsureDownloaded makes sure filename exists in the directory of its
// classification. Network failures are logged and reported as OutcomeFailed;
// the returned error is reserved for filesystem failures.
func (d *Downloader) EnsureDownloaded(ctx context.Context, imageURL, filename string, nsfw bool) (Outcome, error) {
	dir := d.Dir(nsfw)

	exists, err := d.Exists(filename, nsfw)
	if err != nil {
		return OutcomeFailed, err
	}
	if exists {
		d.logger.Infof("Skipped %s (already exists in %s)", filename, dir)
		return OutcomeSkipped, nil
	}

	resp, err := d.client.get(ctx, imageURL)
	if err != nil {
		d.logger.Errorf("Error downloading %s: %v", filename, err)
		return OutcomeFailed, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		d.logger.Errorf("Failed to download %s: HTTP %d", filename, resp.StatusCode)
		return OutcomeFailed, nil
	}

	body := &trackingReader{r: resp.Body}
	size, err := utils.WriteFileAtomic(filepath.Join(dir, filename), body)
	if err != nil {
		if body.err != nil {
			d.logger.Errorf("Error downloading %s: %v", filename, body.err)
			return OutcomeFailed, nil
		}
		return OutcomeFailed, err
	}

	d.logger.WithFields(logrus.Fields{"bytes": size}).Infof("Downloaded %s to %s", filename, dir)
	return OutcomeDownloaded, nil
}

// trackingReader remembers the read error of the response body so network
// failures can be told apart from local write failures.
type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF {
		t.err = err
	}
	return n, err
}

// QuarantineDuplicates moves every file present in both image directories out
// of the NSFW directory into quarantineDir and returns the moved filenames.
func (d *Downloader) QuarantineDuplicates(quarantineDir string) ([]string, error) {
	entries, err := os.ReadDir(d.nsfwDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", d.nsfwDir, err)
	}
	if err := os.MkdirAll(quarantineDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", quarantineDir, err)
	}

	var moved []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		inSFW, err := utils.FileExists(filepath.Join(d.sfwDir, name))
		if err != nil {
			return moved, err
		}
		if !inSFW {
			continue
		}

		from := filepath.Join(d.nsfwDir, name)
		to := filepath.Join(quarantineDir, name)
		if err := os.Rename(from, to); err != nil {
			d.logger.Warnf("Failed to move duplicate %s: %v", name, err)
			continue
		}
		d.logger.Infof("Moving duplicate: %s -> %s", from, to)
		moved = append(moved, name)
	}
	return moved, nil
}
