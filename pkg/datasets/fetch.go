package datasets

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/synaptica-ai/riskscore/pkg/common/logger"
)

// Fetcher downloads the dataset archive and unpacks the CSV when it is not
// already on disk.
type Fetcher struct {
	client *resty.Client
	url    string
}

func NewFetcher(url string) *Fetcher {
	if url == "" {
		url = DefaultURL
	}
	client := resty.New().
		SetTimeout(5 * time.Minute).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second)
	return &Fetcher{client: client, url: url}
}

// Ensure makes sure path exists, downloading and extracting the archive
// member with the same base name if needed.
func (f *Fetcher) Ensure(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	archive := filepath.Join(dir, "dataset_download.zip")
	defer os.Remove(archive)

	log := logger.Get().WithField("url", f.url)
	log.Info("Downloading external dataset")
	resp, err := f.client.R().
		SetContext(ctx).
		SetOutput(archive).
		Get(f.url)
	if err != nil {
		return fmt.Errorf("download dataset: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("download dataset: unexpected status %d", resp.StatusCode())
	}
	if err := extractMember(archive, filepath.Base(path), path); err != nil {
		return err
	}
	log.WithField("path", path).Info("External dataset ready")
	return nil
}

func extractMember(archive, name, dest string) error {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()
	for _, file := range zr.File {
		if filepath.Base(file.Name) != name || file.FileInfo().IsDir() {
			continue
		}
		src, err := file.Open()
		if err != nil {
			return err
		}
		defer src.Close()
		tmp := dest + ".part"
		out, err := os.Create(tmp)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, src); err != nil {
			out.Close()
			os.Remove(tmp)
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}
		return os.Rename(tmp, dest)
	}
	return errors.New("archive does not contain " + name)
}
