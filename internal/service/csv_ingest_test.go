package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bahsim/catalog-import-service/internal/domain"
	"github.com/bahsim/catalog-import-service/internal/objectstore"
	"github.com/bahsim/catalog-import-service/pkg/logger"
)

const testBucket = "catalog-bucket"

type fakeSink struct {
	mu     sync.Mutex
	bodies []string
	failOn map[int]bool
	calls  int
}

func (f *fakeSink) Send(ctx context.Context, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.failOn[f.calls] {
		return errors.New("send failed")
	}

	f.bodies = append(f.bodies, body)
	return nil
}

func (f *fakeSink) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.bodies...)
}

func newTestPipeline(t *testing.T, sink *fakeSink) (*CSVIngestPipeline, *objectstore.FSStore) {
	t.Helper()

	log := logger.NewNop()
	store, err := objectstore.NewFSStore(t.TempDir(), log)
	require.NoError(t, err)

	pipeline := NewCSVIngestPipeline(store, sink, log, "uploaded", "parsed")
	return pipeline, store
}

func putObject(t *testing.T, store *objectstore.FSStore, key, content string) {
	t.Helper()
	_, err := store.Put(context.Background(), testBucket, key, strings.NewReader(content))
	require.NoError(t, err)
}

func objectCreatedEvent(key string) events.S3Event {
	return events.S3Event{
		Records: []events.S3EventRecord{
			{
				EventName: "ObjectCreated:Put",
				S3: events.S3Entity{
					Bucket: events.S3Bucket{Name: testBucket},
					Object: events.S3Object{Key: key},
				},
			},
		},
	}
}

func objectExists(store *objectstore.FSStore, key string) bool {
	body, _, err := store.Get(context.Background(), testBucket, key)
	if err != nil {
		return false
	}
	body.Close()
	return true
}

func TestIngest_SubmitsOneMessagePerRow(t *testing.T) {
	sink := &fakeSink{}
	pipeline, store := newTestPipeline(t, sink)

	putObject(t, store, "uploaded/my-file_name.csv",
		"title,description,price,count\nMouse,Wireless,20,5\nKeyboard,Mechanical,40,3\n")

	err := pipeline.Handle(context.Background(), objectCreatedEvent("uploaded/my-file_name.csv"))
	require.NoError(t, err)

	bodies := sink.sent()
	require.Len(t, bodies, 2)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(bodies[0]), &first))
	assert.Equal(t, "Mouse", first["title"])
	assert.Equal(t, "Wireless", first["description"])
	assert.Equal(t, float64(20), first["price"])
	assert.Equal(t, float64(5), first["count"])

	var second map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(bodies[1]), &second))
	assert.Equal(t, "Keyboard", second["title"])
	assert.Equal(t, float64(40), second["price"])

	// Exactly one copy+delete: source gone, archive present.
	assert.False(t, objectExists(store, "uploaded/my-file_name.csv"))
	assert.True(t, objectExists(store, "parsed/my-file_name.csv"))
}

func TestIngest_StripsHeaderBOM(t *testing.T) {
	sink := &fakeSink{}
	pipeline, store := newTestPipeline(t, sink)

	putObject(t, store, "uploaded/bom.csv", "\uFEFFtitle,price\nMouse,20\n")

	err := pipeline.Handle(context.Background(), objectCreatedEvent("uploaded/bom.csv"))
	require.NoError(t, err)

	bodies := sink.sent()
	require.Len(t, bodies, 1)

	var row map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(bodies[0]), &row))
	_, hasClean := row["title"]
	assert.True(t, hasClean, "BOM should be stripped from the first header")
}

func TestIngest_NonNumericValuesStayStrings(t *testing.T) {
	sink := &fakeSink{}
	pipeline, store := newTestPipeline(t, sink)

	putObject(t, store, "uploaded/mixed.csv", "title,price,note\nMouse,19.99,great value\n")

	err := pipeline.Handle(context.Background(), objectCreatedEvent("uploaded/mixed.csv"))
	require.NoError(t, err)

	var row map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(sink.sent()[0]), &row))
	assert.Equal(t, float64(19.99), row["price"])
	assert.Equal(t, "great value", row["note"])
}

func TestIngest_RaggedRowAbortsFileWithoutArchive(t *testing.T) {
	sink := &fakeSink{}
	pipeline, store := newTestPipeline(t, sink)

	putObject(t, store, "uploaded/ragged.csv", "title,price\nMouse,20\nKeyboard,40,extra\n")

	err := pipeline.Handle(context.Background(), objectCreatedEvent("uploaded/ragged.csv"))
	require.Error(t, err)

	// The file stays in the upload folder for the trigger's retry.
	assert.True(t, objectExists(store, "uploaded/ragged.csv"))
	assert.False(t, objectExists(store, "parsed/ragged.csv"))
}

func TestIngest_EmptyObjectArchivesNormally(t *testing.T) {
	sink := &fakeSink{}
	pipeline, store := newTestPipeline(t, sink)

	putObject(t, store, "uploaded/empty.csv", "")

	err := pipeline.Handle(context.Background(), objectCreatedEvent("uploaded/empty.csv"))
	require.NoError(t, err)

	assert.Empty(t, sink.sent())
	assert.True(t, objectExists(store, "parsed/empty.csv"))
	assert.False(t, objectExists(store, "uploaded/empty.csv"))
}

func TestIngest_SkipsObjectsOutsideUploadFolder(t *testing.T) {
	sink := &fakeSink{}
	pipeline, store := newTestPipeline(t, sink)

	putObject(t, store, "parsed/already-done.csv", "title\nMouse\n")

	err := pipeline.Handle(context.Background(), objectCreatedEvent("parsed/already-done.csv"))
	require.NoError(t, err)

	assert.Empty(t, sink.sent())
	assert.True(t, objectExists(store, "parsed/already-done.csv"))
}

func TestIngest_MissingBucketOrKeyIsFatal(t *testing.T) {
	sink := &fakeSink{}
	pipeline, _ := newTestPipeline(t, sink)

	event := events.S3Event{
		Records: []events.S3EventRecord{
			{S3: events.S3Entity{Bucket: events.S3Bucket{Name: ""}, Object: events.S3Object{Key: "uploaded/x.csv"}}},
		},
	}

	err := pipeline.Handle(context.Background(), event)
	assert.ErrorIs(t, err, domain.ErrInvalidRecord)
}

func TestIngest_EmptyEventIsNoOp(t *testing.T) {
	sink := &fakeSink{}
	pipeline, _ := newTestPipeline(t, sink)

	err := pipeline.Handle(context.Background(), events.S3Event{})
	require.NoError(t, err)
	assert.Empty(t, sink.sent())
}

func TestIngest_SubmitFailureDoesNotAbortFile(t *testing.T) {
	sink := &fakeSink{failOn: map[int]bool{2: true}}
	pipeline, store := newTestPipeline(t, sink)

	putObject(t, store, "uploaded/partial.csv",
		"title,price\nMouse,20\nKeyboard,40\nMonitor,150\n")

	err := pipeline.Handle(context.Background(), objectCreatedEvent("uploaded/partial.csv"))
	require.NoError(t, err)

	// Row two is lost, rows one and three still go out, and the file is
	// archived anyway.
	assert.Len(t, sink.sent(), 2)
	assert.True(t, objectExists(store, "parsed/partial.csv"))
	assert.False(t, objectExists(store, "uploaded/partial.csv"))
}

func TestIngest_RedeliveryDuplicatesRows(t *testing.T) {
	sink := &fakeSink{}
	pipeline, store := newTestPipeline(t, sink)

	content := "title,price\nMouse,20\nKeyboard,40\n"
	putObject(t, store, "uploaded/dup.csv", content)

	err := pipeline.Handle(context.Background(), objectCreatedEvent("uploaded/dup.csv"))
	require.NoError(t, err)
	require.Len(t, sink.sent(), 2)

	// The trigger redelivers while the object is present again: every row
	// is submitted a second time. Dedup is the consumer's job.
	putObject(t, store, "uploaded/dup.csv", content)
	err = pipeline.Handle(context.Background(), objectCreatedEvent("uploaded/dup.csv"))
	require.NoError(t, err)

	assert.Len(t, sink.sent(), 4)
}

func TestIngest_MissingObjectFails(t *testing.T) {
	sink := &fakeSink{}
	pipeline, _ := newTestPipeline(t, sink)

	err := pipeline.Handle(context.Background(), objectCreatedEvent("uploaded/nope.csv"))
	assert.ErrorIs(t, err, domain.ErrObjectNotFound)
}
