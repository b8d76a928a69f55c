package ingest

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/japaniel/contractsort/pkg/classify"
	"github.com/japaniel/contractsort/pkg/metadata"
	"github.com/japaniel/contractsort/pkg/registry"
)

// WorkerPoolInterface abstracts the worker pool so tests can inject failing implementations.
type WorkerPoolInterface interface {
	Start(ctx context.Context)
	Submit(Job) error
	// SubmitCtx attempts to enqueue a job but returns promptly if ctx is canceled.
	SubmitCtx(ctx context.Context, job Job) error
	Close()
}

// Outcome is the result for one input of a run.
type Outcome struct {
	Source        string           `json:"source"`
	TrackingID    string           `json:"tracking_id,omitempty"`
	Status        metadata.Status  `json:"status,omitempty"`
	DocumentType  classify.DocType `json:"document_type,omitempty"`
	CanonicalName string           `json:"canonical_name,omitempty"`
	Committed     bool             `json:"committed"`
	Error         string           `json:"error,omitempty"`

	Record *metadata.Record `json:"-"`
	Err    error            `json:"-"`
}

// Report summarizes a run. Outcomes follow input order.
type Report struct {
	Processed  int           `json:"processed"`
	Final      int           `json:"final"`
	Supporting int           `json:"supporting"`
	Failed     int           `json:"failed"`
	Committed  int           `json:"committed"`
	Elapsed    time.Duration `json:"elapsed"`
	Outcomes   []Outcome     `json:"outcomes"`
}

// Ingester runs inputs through a Processor on a worker pool and commits the
// records to the registry in batches.
type Ingester struct {
	Processor *Processor
	Registry  *registry.Registry
	BatchSize int
	// FlushInterval bounds how long a record waits in a partial batch.
	FlushInterval time.Duration
	// Logger is used for run-level messages. nil means no logging.
	Logger  *zap.Logger
	Metrics *Metrics
	// OnProgress is called after each input with the number finished so far and the total.
	OnProgress func(current, total int)

	// Concurrency settings
	Workers int

	// PoolFactory allows tests to inject custom worker pool implementations.
	PoolFactory func(workers, queue int) WorkerPoolInterface
}

// NewIngester creates a new Ingester.
func NewIngester(p *Processor, reg *registry.Registry) *Ingester {
	return &Ingester{
		Processor:     p,
		Registry:      reg,
		BatchSize:     50,
		FlushInterval: 100 * time.Millisecond,
		Workers:       4, // Default worker count
	}
}

// Run processes every input. A failure on one document is recorded in its
// outcome and the run continues. A registry durability failure stops the
// run: it is returned and no further documents are processed. Records
// committed before a cancellation or failure remain in the registry.
func (ig *Ingester) Run(ctx context.Context, inputs []Input) (Report, error) {
	start := time.Now()
	logger := ig.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	report := Report{Outcomes: make([]Outcome, len(inputs))}
	for i, in := range inputs {
		report.Outcomes[i].Source = in.Name
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wp WorkerPoolInterface
	if ig.PoolFactory != nil {
		wp = ig.PoolFactory(ig.Workers, ig.Workers*2)
	} else {
		wp = NewWorkerPool(ig.Workers, ig.Workers*2)
	}

	bw := NewBatchWriter(ig.Registry, ig.BatchSize, ig.FlushInterval)
	bw.OnError = func(err error) {
		logger.Error("registry commit failed, stopping run", zap.Error(err))
		cancel()
	}

	logger.Info("run started", zap.Int("documents", len(inputs)), zap.Int("workers", ig.Workers))

	var finished int64
	total := len(inputs)
	progress := func() {
		n := atomic.AddInt64(&finished, 1)
		if ig.OnProgress != nil {
			ig.OnProgress(int(n), total)
		}
	}

	wp.Start(ctx)

	var submitErr error
Loop:
	for i := range inputs {
		select {
		case <-ctx.Done():
			break Loop
		default:
		}

		idx := i
		job := func(ctx context.Context) error {
			defer progress()
			out := &report.Outcomes[idx]
			rec, err := ig.processOne(ctx, inputs[idx])
			if err == nil {
				err = bw.Submit(rec)
			}
			if err != nil {
				out.Err = err
				ig.Metrics.observeFailure()
				logger.Warn("document failed", zap.String("document", inputs[idx].Name), zap.Error(err))
				return err
			}
			out.Record = &rec
			out.TrackingID = rec.TrackingID
			out.Status = rec.Status
			out.DocumentType = rec.DocumentType
			out.CanonicalName = rec.CanonicalName
			ig.Metrics.observeRecord(rec)
			return nil
		}

		if err := wp.SubmitCtx(ctx, job); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || err == ErrPoolClosed {
				break Loop
			}
			submitErr = err
			break Loop
		}
	}

	// Drain queued jobs, then commit whatever is still buffered.
	wp.Close()
	commitErr := bw.Close()

	for i := range report.Outcomes {
		out := &report.Outcomes[i]
		switch {
		case out.Record != nil:
			if _, ok := ig.Registry.Get(out.TrackingID); ok {
				out.Committed = true
				report.Committed++
			} else if out.Err == nil {
				out.Err = errNotCommitted
			}
		case out.Err == nil:
			out.Err = errNotProcessed
		}
		if out.Record != nil {
			report.Processed++
			switch out.Status {
			case metadata.StatusFinal:
				report.Final++
			case metadata.StatusSupporting:
				report.Supporting++
			}
		}
		if out.Err != nil {
			out.Error = out.Err.Error()
			if out.Record == nil {
				report.Failed++
			}
		}
	}
	report.Elapsed = time.Since(start)

	logger.Info("run finished",
		zap.Int("processed", report.Processed),
		zap.Int("final", report.Final),
		zap.Int("supporting", report.Supporting),
		zap.Int("failed", report.Failed),
		zap.Int("committed", report.Committed),
		zap.Duration("elapsed", report.Elapsed),
	)

	switch {
	case commitErr != nil && !errors.Is(commitErr, ErrBatchWriterClosed):
		return report, commitErr
	case submitErr != nil:
		return report, submitErr
	}
	return report, ctx.Err()
}

var (
	errNotProcessed = errors.New("ingest: document not processed")
	errNotCommitted = errors.New("ingest: record not committed")
)

func (ig *Ingester) processOne(ctx context.Context, in Input) (metadata.Record, error) {
	text, err := in.Load(ctx)
	if err != nil {
		return metadata.Record{}, err
	}
	return ig.Processor.Process(ctx, Document{Name: in.Name, Text: text, VendorHint: in.VendorHint})
}
