package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/japaniel/contractsort/pkg/classify"
	"github.com/japaniel/contractsort/pkg/dates"
	"github.com/japaniel/contractsort/pkg/document"
	"github.com/japaniel/contractsort/pkg/extract"
	"github.com/japaniel/contractsort/pkg/metadata"
	"github.com/japaniel/contractsort/pkg/signature"
	"github.com/japaniel/contractsort/pkg/vendor"
)

// ErrIncomplete is returned by NewProcessor when a component is missing.
var ErrIncomplete = errors.New("ingest: processor component missing")

// Document is one input to the per-document pipeline.
type Document struct {
	// Name is the source file name. It becomes the record's source name and
	// is scanned as a document type hint.
	Name string
	Text document.Text
	// VendorHint is the raw vendor name, typically derived from the folder
	// the file was found in. Empty means no candidate.
	VendorHint string
}

// Components are the validated stages a Processor runs.
type Components struct {
	Locator    *signature.Locator
	Signatures *signature.Classifier
	Dates      *dates.Extractor
	Vendors    *vendor.Resolver
	Types      *classify.Classifier
	Builder    *metadata.Builder
}

// Processor turns one document into a metadata record. It is safe for
// concurrent use when its components are.
type Processor struct {
	c      Components
	logger *zap.Logger
}

// NewProcessor checks that every component is present.
func NewProcessor(c Components, logger *zap.Logger) (*Processor, error) {
	switch {
	case c.Locator == nil:
		return nil, fmt.Errorf("%w: section locator", ErrIncomplete)
	case c.Signatures == nil:
		return nil, fmt.Errorf("%w: signature classifier", ErrIncomplete)
	case c.Dates == nil:
		return nil, fmt.Errorf("%w: date extractor", ErrIncomplete)
	case c.Vendors == nil:
		return nil, fmt.Errorf("%w: vendor resolver", ErrIncomplete)
	case c.Types == nil:
		return nil, fmt.Errorf("%w: document classifier", ErrIncomplete)
	case c.Builder == nil:
		return nil, fmt.Errorf("%w: metadata builder", ErrIncomplete)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{c: c, logger: logger}, nil
}

// Process runs the signature, date, vendor and type stages concurrently and
// assembles their outputs into a record. The stages only read doc.
func (p *Processor) Process(ctx context.Context, doc Document) (metadata.Record, error) {
	if err := ctx.Err(); err != nil {
		return metadata.Record{}, err
	}

	var (
		verdict signature.Verdict
		found   dates.Result
		match   vendor.Match
		cls     classify.Classification
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		verdict = p.c.Signatures.Classify(doc.Text, p.c.Locator.Locate(doc.Text))
		return nil
	})
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		found = p.c.Dates.Extract(doc.Text)
		return nil
	})
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		match = p.c.Vendors.Resolve(doc.VendorHint)
		return nil
	})
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		cls = p.c.Types.Classify(doc.Text, filepath.Base(doc.Name))
		return nil
	})
	if err := g.Wait(); err != nil {
		return metadata.Record{}, err
	}

	rec, err := p.c.Builder.Build(metadata.Inputs{
		SourceName:     doc.Name,
		Verdict:        &verdict,
		Dates:          &found,
		Vendor:         &match,
		Classification: &cls,
	})
	if err != nil {
		return metadata.Record{}, err
	}
	p.logger.Debug("document processed",
		zap.String("document", doc.Name),
		zap.String("tracking_id", rec.TrackingID),
		zap.String("status", string(rec.Status)),
		zap.String("reason", string(rec.Signature.Reason)),
		zap.String("doc_type", string(rec.DocumentType)),
		zap.String("vendor", rec.Vendor.Name()),
	)
	return rec, nil
}

// Input is a document waiting to be loaded and processed.
type Input struct {
	Name       string
	VendorHint string
	Load       func(ctx context.Context) (document.Text, error)
}

// FileInput reads path with the extract package. The vendor hint comes from
// the name of the folder holding the file.
func FileInput(path string, opts extract.Options) Input {
	return Input{
		Name:       path,
		VendorHint: vendor.FromFolder(filepath.Base(filepath.Dir(path))),
		Load: func(ctx context.Context) (document.Text, error) {
			return extract.File(ctx, path, opts)
		},
	}
}

// URLInput fetches an online agreement. vendorHint may be empty.
func URLInput(rawURL, vendorHint string, client *http.Client, opts extract.Options) Input {
	return Input{
		Name:       rawURL,
		VendorHint: vendorHint,
		Load: func(ctx context.Context) (document.Text, error) {
			return extract.URL(ctx, client, rawURL, opts)
		},
	}
}

// TextInput wraps text that is already in memory.
func TextInput(name string, text document.Text, vendorHint string) Input {
	return Input{
		Name:       name,
		VendorHint: vendorHint,
		Load: func(context.Context) (document.Text, error) {
			return text, nil
		},
	}
}
