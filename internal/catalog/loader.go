package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dataset-explorer/backend/internal/dataset"
)

// LoadDirectory parses every supported file of dir concurrently and registers
// each as a preset dataset named after the file. Unparsable files are logged
// and skipped. A missing directory loads nothing.
func LoadDirectory(ctx context.Context, cat Catalog, dir string, concurrency int, logger *logrus.Entry) (int, error) {
	if logger == nil {
		logger = logrus.WithField("component", "catalog")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.WithField("dir", dir).Warn("Dataset directory does not exist, no presets loaded")
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read dataset directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, err := dataset.FormatFromName(entry.Name()); err != nil {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)

	if concurrency <= 0 {
		concurrency = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var (
		mu     sync.Mutex
		loaded []*dataset.Dataset
	)
	for _, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			records, err := dataset.LoadFile(path)
			if err != nil {
				logger.WithError(err).WithField("file", path).Warn("Skipping unparsable dataset file")
				return nil
			}

			ds := dataset.New(DatasetID(path), "", records)
			ds.Source = path

			mu.Lock()
			loaded = append(loaded, ds)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	sort.Slice(loaded, func(i, j int) bool { return loaded[i].ID < loaded[j].ID })
	for _, ds := range loaded {
		if err := cat.Put(ds); err != nil {
			return 0, err
		}
		logger.WithFields(logrus.Fields{"dataset": ds.ID, "records": len(ds.Records)}).Info("Loaded preset dataset")
	}
	return len(loaded), nil
}

// DatasetID derives a dataset ID from a file path: the base name without its
// format and compression extensions.
func DatasetID(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	if strings.EqualFold(filepath.Ext(path), ".gz") {
		name = strings.TrimSuffix(name, filepath.Ext(name))
	}
	return name
}
