package runlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"
	"github.com/ignite/audience-hasher/internal/audience"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func sampleEntry() Entry {
	e := NewEntry("hash", "customers.xlsx")
	e.Output = "digests.csv"
	e.ApplyStats(audience.Stats{
		InputRows:           10,
		FilteredRows:        8,
		OutputRows:          6,
		DuplicateRows:       2,
		UnresolvedCountries: 1,
		MatchKinds:          map[string]int{"exact": 5, "none": 1},
	})
	e.Finish(nil)
	return e
}

func TestEntryFinish(t *testing.T) {
	e := NewEntry("hash", "in.csv")
	assert.NotEqual(t, uuid.Nil, e.ID)
	assert.False(t, e.StartedAt.IsZero())
	assert.Zero(t, e.Duration())

	e.Finish(nil)
	assert.Equal(t, StatusSucceeded, e.Status)
	assert.Empty(t, e.Error)
	assert.GreaterOrEqual(t, e.Duration(), time.Duration(0))

	e = NewEntry("hash", "in.csv")
	e.Finish(fmt.Errorf("run: %w", audience.ErrEmptyResult))
	assert.Equal(t, StatusEmpty, e.Status)
	assert.Empty(t, e.Error)

	e = NewEntry("upload", "in.csv")
	e.Finish(errors.New("token expired"))
	assert.Equal(t, StatusFailed, e.Status)
	assert.Equal(t, "token expired", e.Error)
}

func TestApplyStatsCopiesMatchKinds(t *testing.T) {
	kinds := map[string]int{"exact": 1}
	var e Entry
	e.ApplyStats(audience.Stats{InputRows: 3, OutputRows: 1, MalformedValues: 2, MatchKinds: kinds})
	kinds["exact"] = 99

	assert.Equal(t, 3, e.RowsIn)
	assert.Equal(t, 1, e.RowsOut)
	assert.Equal(t, 2, e.Malformed)
	assert.Equal(t, map[string]int{"exact": 1}, e.MatchKinds)
}

type stubRecorder struct {
	got []Entry
	err error
}

func (s *stubRecorder) Record(_ context.Context, e Entry) error {
	s.got = append(s.got, e)
	return s.err
}

func TestMulti(t *testing.T) {
	ok := &stubRecorder{}
	bad := &stubRecorder{err: errors.New("broker down")}
	later := &stubRecorder{}

	err := Multi{ok, bad, later}.Record(context.Background(), sampleEntry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Len(t, ok.got, 1)
	assert.Len(t, later.got, 1, "later recorders still run after a failure")

	assert.NoError(t, Multi{}.Record(context.Background(), sampleEntry()))
	assert.NoError(t, Nop{}.Record(context.Background(), sampleEntry()))
}

func TestPostgresRecorder(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer db.Close()

	r := NewPostgresRecorder(db)
	e := sampleEntry()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audience_hash_runs").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO audience_hash_runs").
		WithArgs(e.ID, "hash", "customers.xlsx", "digests.csv", 10, 8, 6, 2, 1, 0,
			[]byte(`{"exact":5,"none":1}`), StatusSucceeded, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, r.EnsureSchema(context.Background()))
	require.NoError(t, r.Record(context.Background(), e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecorderError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO audience_hash_runs").WillReturnError(errors.New("relation does not exist"))

	err = NewPostgresRecorder(db).Record(context.Background(), sampleEntry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relation does not exist")
}

func TestPostgresRecorderRecent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id := uuid.New()
	started := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	cols := []string{"id", "command", "source", "output", "rows_in", "rows_filtered", "rows_out",
		"duplicates", "unresolved_countries", "malformed", "match_kinds",
		"status", "error", "started_at", "finished_at"}
	mock.ExpectQuery("SELECT (.+) FROM audience_hash_runs").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(id.String(), "hash", "in.csv", "out.csv", 4, 0, 3, 1, 1, 0, []byte(`{"exact":3}`),
				StatusSucceeded, "", started, started.Add(2*time.Second)).
			AddRow(uuid.New().String(), "upload", "out.csv", "", 3, 0, 0, 0, 0, 0, nil,
				StatusFailed, "token expired", started.Add(-time.Hour), started.Add(-time.Hour)))

	runs, err := NewPostgresRecorder(db).Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, id, runs[0].ID)
	assert.Equal(t, map[string]int{"exact": 3}, runs[0].MatchKinds)
	assert.Equal(t, 2*time.Second, runs[0].Duration())
	assert.Nil(t, runs[1].MatchKinds)
	assert.Equal(t, "token expired", runs[1].Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type fakeDynamo struct {
	input *dynamodb.PutItemInput
	err   error
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.input = in
	return &dynamodb.PutItemOutput{}, f.err
}

func TestDynamoRecorder(t *testing.T) {
	fake := &fakeDynamo{}
	e := sampleEntry()
	require.NoError(t, NewDynamoRecorder(fake, "hash-runs").Record(context.Background(), e))

	require.NotNil(t, fake.input)
	assert.Equal(t, "hash-runs", *fake.input.TableName)

	var item dynamoItem
	require.NoError(t, attributevalue.UnmarshalMap(fake.input.Item, &item))
	assert.Equal(t, "RUN#hash", item.PK)
	assert.Contains(t, item.SK, e.ID.String())
	assert.Equal(t, StatusSucceeded, item.Status)
	assert.Equal(t, e.StartedAt.Add(90*24*time.Hour).Unix(), item.TTL)

	var decoded Entry
	require.NoError(t, json.Unmarshal([]byte(item.Data), &decoded))
	assert.Equal(t, e.ID, decoded.ID)
	assert.Equal(t, 6, decoded.RowsOut)

	fake.err = errors.New("throttled")
	assert.Error(t, NewDynamoRecorder(fake, "hash-runs").Record(context.Background(), e))
}

type fakeCollection struct {
	doc interface{}
	err error
}

func (f *fakeCollection) InsertOne(_ context.Context, doc interface{}, _ ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	f.doc = doc
	if f.err != nil {
		return nil, f.err
	}
	return &mongo.InsertOneResult{}, nil
}

func TestMongoRecorder(t *testing.T) {
	coll := &fakeCollection{}
	e := sampleEntry()
	require.NoError(t, NewMongoRecorder(coll).Record(context.Background(), e))

	raw, err := bson.Marshal(coll.doc)
	require.NoError(t, err)
	var m bson.M
	require.NoError(t, bson.Unmarshal(raw, &m))

	assert.Equal(t, e.ID.String(), m["_id"])
	assert.Equal(t, "customers.xlsx", m["source"])
	assert.EqualValues(t, 6, m["rows_out"])
	assert.Equal(t, StatusSucceeded, m["status"])
	assert.NotContains(t, m, "error")

	coll.err = errors.New("duplicate key")
	assert.Error(t, NewMongoRecorder(coll).Record(context.Background(), e))
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func TestKafkaRecorder(t *testing.T) {
	w := &fakeWriter{}
	e := sampleEntry()
	require.NoError(t, NewKafkaRecorder(w).Record(context.Background(), e))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, e.ID.String(), string(msg.Key))

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, EventType, headers[HeaderEventType])
	assert.Equal(t, e.ID.String(), headers[HeaderEventID])
	assert.Equal(t, "audience-hasher", headers[HeaderSource])

	var decoded Entry
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, e.MatchKinds, decoded.MatchKinds)

	w.err = errors.New("leader not available")
	assert.Error(t, NewKafkaRecorder(w).Record(context.Background(), e))
}

func TestNewKafkaWriter(t *testing.T) {
	_, err := NewKafkaWriter(nil, "runs")
	assert.Error(t, err)
	_, err = NewKafkaWriter([]string{"localhost:9092"}, "")
	assert.Error(t, err)

	w, err := NewKafkaWriter([]string{"localhost:9092"}, "runs")
	require.NoError(t, err)
	assert.Equal(t, "runs", w.Topic)
	assert.NoError(t, w.Close())
}
