package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/bahsim/catalog-import-service/internal/domain"
	"github.com/bahsim/catalog-import-service/internal/objectstore"
	"github.com/bahsim/catalog-import-service/pkg/logger"
)

// RowSink accepts one serialized row for durable delivery.
type RowSink interface {
	Send(ctx context.Context, body string) error
}

// CSVIngestPipeline reacts to object-created events: it streams the
// object, parses it as CSV row by row, fans each row out to the sink and
// finally relocates the object to the parsed folder.
//
// The pipeline is deliberately not idempotent: re-invoking it on a
// still-present object submits every row again. Redelivery safety is the
// downstream consumer's concern.
type CSVIngestPipeline struct {
	store        objectstore.Store
	sink         RowSink
	logger       *logger.Logger
	uploadFolder string
	parsedFolder string
}

func NewCSVIngestPipeline(
	store objectstore.Store,
	sink RowSink,
	log *logger.Logger,
	uploadFolder, parsedFolder string,
) *CSVIngestPipeline {
	return &CSVIngestPipeline{
		store:        store,
		sink:         sink,
		logger:       log,
		uploadFolder: uploadFolder,
		parsedFolder: parsedFolder,
	}
}

// Handle processes a batch of object-created notifications. Objects
// outside the upload folder are skipped; any processing error fails the
// whole invocation so the trigger's retry applies.
func (p *CSVIngestPipeline) Handle(ctx context.Context, event events.S3Event) error {
	for _, record := range event.Records {
		bucket := record.S3.Bucket.Name
		key := record.S3.Object.Key

		if bucket == "" || key == "" {
			return fmt.Errorf("%w: missing bucket or key", domain.ErrInvalidRecord)
		}

		if !strings.HasPrefix(key, p.uploadFolder+"/") {
			p.logger.Debug(ctx, "Skipping object outside upload folder",
				"bucket", bucket,
				"key", key,
			)
			continue
		}

		if err := p.processObject(ctx, bucket, key); err != nil {
			p.logger.Error(ctx, "Object processing failed",
				"bucket", bucket,
				"key", key,
				"error_kind", classifyError(err),
				"error", err,
			)
			return err
		}
	}

	return nil
}

func (p *CSVIngestPipeline) processObject(ctx context.Context, bucket, key string) error {
	ctx = logger.WithObjectKey(ctx, key)

	p.logger.Info(ctx, "Starting CSV ingest", "bucket", bucket)

	body, size, err := p.store.Get(ctx, bucket, key)
	if err != nil {
		return fmt.Errorf("fetch object: %w", err)
	}
	if body == nil {
		return domain.ErrEmptyBody
	}
	defer body.Close()

	submitted, failed, rows, err := p.fanOutRows(ctx, body)
	if err != nil {
		// A parse error aborts the file; the object stays in the upload
		// folder for the trigger's retry.
		return err
	}

	// The archive step runs after the parse loop regardless of individual
	// submit failures, so a file can be marked parsed while some of its
	// rows were lost. Known gap, kept as-is pending a product decision.
	targetKey := p.parsedFolder + strings.TrimPrefix(key, p.uploadFolder)
	if err := p.store.Copy(ctx, bucket, key, targetKey); err != nil {
		return fmt.Errorf("archive copy: %w", err)
	}
	if err := p.store.Delete(ctx, bucket, key); err != nil {
		return fmt.Errorf("archive delete: %w", err)
	}

	p.logger.Info(ctx, "CSV ingest completed",
		"size_bytes", size,
		"rows", rows,
		"submitted", submitted,
		"failed", failed,
		"archived_key", targetKey,
	)

	return nil
}

func (p *CSVIngestPipeline) fanOutRows(ctx context.Context, body io.Reader) (submitted, failed, rows int, err error) {
	reader := csv.NewReader(body)

	header, err := reader.Read()
	if err == io.EOF {
		// Empty object: zero rows is a normal completion.
		return 0, 0, 0, nil
	}
	if err != nil {
		return 0, 0, 0, fmt.Errorf("parse csv header: %w", err)
	}

	// A leading byte-order-mark belongs to the encoding, not the first
	// column name.
	header[0] = strings.TrimPrefix(header[0], "\uFEFF")

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Strict column-count parsing: a ragged row aborts the file.
			return submitted, failed, rows, fmt.Errorf("parse csv row: %w", err)
		}

		rows++

		row := make(domain.CsvRow, len(header))
		for i, name := range header {
			row[name] = coerceValue(record[i])
		}

		payload, err := json.Marshal(row)
		if err != nil {
			p.logger.Error(ctx, "Failed to serialize row",
				"row", rows,
				"error", err,
			)
			failed++
			continue
		}

		if err := p.sink.Send(ctx, string(payload)); err != nil {
			// Best-effort fan-out: one row's submit failure must not stop
			// the rest of the file.
			p.logger.Error(ctx, "Failed to submit row",
				"row", rows,
				"error", err,
			)
			failed++
			continue
		}

		submitted++
	}

	return submitted, failed, rows, nil
}

// coerceValue turns a cell into a float64 when its trimmed text is a
// valid, non-empty numeric literal; anything else stays the original
// string.
func coerceValue(raw string) interface{} {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return raw
	}
	if n, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return n
	}
	return raw
}

func classifyError(err error) string {
	var parseErr *csv.ParseError
	switch {
	case errors.Is(err, domain.ErrObjectNotFound),
		errors.Is(err, domain.ErrEmptyBody):
		return "store"
	case errors.As(err, &parseErr):
		return "parse"
	case errors.Is(err, domain.ErrInvalidRecord):
		return "record"
	default:
		return "generic"
	}
}
