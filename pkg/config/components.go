package config

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/japaniel/contractsort/pkg/classify"
	"github.com/japaniel/contractsort/pkg/dates"
	"github.com/japaniel/contractsort/pkg/db"
	"github.com/japaniel/contractsort/pkg/extract"
	"github.com/japaniel/contractsort/pkg/ingest"
	"github.com/japaniel/contractsort/pkg/metadata"
	"github.com/japaniel/contractsort/pkg/registry"
	"github.com/japaniel/contractsort/pkg/signature"
	"github.com/japaniel/contractsort/pkg/vendor"
)

type stageSet struct {
	locator    *signature.Locator
	signatures *signature.Classifier
	dates      *dates.Extractor
	types      *classify.Classifier
}

func (c *Config) stages(logger *zap.Logger) (stageSet, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		s   stageSet
		err error
	)
	if s.locator, err = signature.NewLocator(c.Locator); err != nil {
		return s, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if s.signatures, err = signature.NewClassifier(c.Signature.Rules, signature.WithLogger(logger)); err != nil {
		return s, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if s.dates, err = dates.NewExtractor(c.Dates, dates.WithLogger(logger)); err != nil {
		return s, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if s.types, err = classify.NewClassifier(c.Classify, classify.WithLogger(logger)); err != nil {
		return s, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err = vendor.NewResolver(nil, c.Vendor.Threshold); err != nil {
		return s, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return s, nil
}

// MasterList loads vendor.master_list, or returns nil when none is set.
// A URL is downloaded through the cache in vendor.cache_dir.
func (c *Config) MasterList(ctx context.Context) (*vendor.MasterList, error) {
	if c.Vendor.MasterList == "" {
		return nil, nil
	}
	if vendor.IsRemote(c.Vendor.MasterList) {
		ml, err := vendor.NewFetcher(c.Vendor.CacheDir, c.Vendor.CacheTTL).Load(ctx, c.Vendor.MasterList)
		if err != nil {
			return nil, fmt.Errorf("fetch master list: %w", err)
		}
		return ml, nil
	}
	ml, err := vendor.LoadMasterList(c.Vendor.MasterList)
	if err != nil {
		return nil, fmt.Errorf("load master list: %w", err)
	}
	return ml, nil
}

// Namer returns the canonical filename deriver for ingest.naming.
func (c *Config) Namer(seq *metadata.Sequencer) (*metadata.Namer, error) {
	format, err := metadata.ParseNamingFormat(c.Ingest.Naming)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return metadata.NewNamer(format, seq)
}

// Processor assembles the per-document pipeline. namer may be nil; extra
// builder options are applied after it.
func (c *Config) Processor(ctx context.Context, logger *zap.Logger, namer *metadata.Namer, extra ...metadata.BuilderOption) (*ingest.Processor, error) {
	s, err := c.stages(logger)
	if err != nil {
		return nil, err
	}
	ml, err := c.MasterList(ctx)
	if err != nil {
		return nil, err
	}
	resolver, err := vendor.NewResolver(ml, c.Vendor.Threshold, vendor.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	var opts []metadata.BuilderOption
	if namer != nil {
		opts = append(opts, metadata.WithNamer(namer))
	}
	opts = append(opts, extra...)
	return ingest.NewProcessor(ingest.Components{
		Locator:    s.locator,
		Signatures: s.signatures,
		Dates:      s.dates,
		Vendors:    resolver,
		Types:      s.types,
		Builder:    metadata.NewBuilder(opts...),
	}, logger)
}

// TypeClassifier returns only the document type stage.
func (c *Config) TypeClassifier(logger *zap.Logger) (*classify.Classifier, error) {
	s, err := c.stages(logger)
	if err != nil {
		return nil, err
	}
	return s.types, nil
}

// ExtractOptions returns the segmentation settings for file loading.
func (c *Config) ExtractOptions(ocr bool) extract.Options {
	return extract.Options{SegmentLines: c.Ingest.SegmentLines, OCR: ocr}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenStore opens the configured registry backend. The returned closer
// releases it.
func (c *Config) OpenStore() (registry.Store, io.Closer, error) {
	switch c.Registry.Backend {
	case BackendSQLite:
		s, err := db.OpenStore(c.Registry.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case BackendJSON:
		return registry.NewJSONStore(c.Registry.Path), nopCloser{}, nil
	}
	return nil, nil, fmt.Errorf("%w: registry.backend %q", ErrInvalid, c.Registry.Backend)
}
