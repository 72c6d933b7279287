package lifecycle

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audioscribe/backend/internal/assembler"
	"github.com/audioscribe/backend/internal/models"
	"github.com/audioscribe/backend/internal/transcription"
	"github.com/audioscribe/backend/pkg/metrics"
	"github.com/audioscribe/backend/pkg/storage"
)

// memStore is an in-memory Store with upsert semantics on (recording, index).
type memStore struct {
	mu         sync.Mutex
	recordings map[uuid.UUID]*models.Recording
	chunks     map[uuid.UUID][]models.RecordingChunk
	writes     int
}

func newMemStore() *memStore {
	return &memStore{recordings: map[uuid.UUID]*models.Recording{}, chunks: map[uuid.UUID][]models.RecordingChunk{}}
}

func (m *memStore) CreateRecording(_ context.Context, userID uuid.UUID) (*models.Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	rec := &models.Recording{ID: uuid.New(), UserID: userID, Status: models.RecordingStatusActive, CreatedAt: now, UpdatedAt: now}
	m.recordings[rec.ID] = rec
	cp := *rec
	return &cp, nil
}

func (m *memStore) GetRecording(_ context.Context, id uuid.UUID) (*models.Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recordings[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *memStore) ListRecordings(_ context.Context, userID uuid.UUID) ([]models.Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Recording
	for _, r := range m.recordings {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memStore) UpdateStatus(_ context.Context, id uuid.UUID, status models.RecordingStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.recordings[id].Status = status
	return nil
}

func (m *memStore) UpdateFinalResult(_ context.Context, id uuid.UUID, key, text, provider string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	r := m.recordings[id]
	r.AudioFilePath, r.TranscriptionText, r.LLMProvider = key, text, provider
	r.Status = models.RecordingStatusEnded
	return nil
}

func (m *memStore) AddChunk(_ context.Context, recordingID uuid.UUID, index int, key string, d *float64) (*models.RecordingChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := models.RecordingChunk{ID: uuid.New(), RecordingID: recordingID, ChunkIndex: index, AudioBlobPath: key, DurationSeconds: d, UploadedAt: time.Now()}
	list := m.chunks[recordingID]
	for i := range list {
		if list[i].ChunkIndex == index {
			list[i] = ch
			return &ch, nil
		}
	}
	m.chunks[recordingID] = append(list, ch)
	return &ch, nil
}

func (m *memStore) GetChunks(_ context.Context, recordingID uuid.UUID) ([]models.RecordingChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.RecordingChunk(nil), m.chunks[recordingID]...), nil
}

func (m *memStore) status(id uuid.UUID) models.RecordingStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recordings[id].Status
}

// echoGateway returns the artifact contents as the transcript.
type echoGateway struct {
	blobs transcription.Opener
	err   error
	calls int
}

func (g *echoGateway) Name() string { return "echo" }

func (g *echoGateway) Transcribe(ctx context.Context, key string) (string, error) {
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	rc, err := g.blobs.Open(ctx, key)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	return string(b), err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []EventType
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	ctrl  *Controller
	store *memStore
	blobs *storage.Local
	gw    *echoGateway
	pub   *recordingPublisher
	m     *metrics.Metrics
}

func newFixture(t *testing.T, strict bool) *fixture {
	t.Helper()
	blobs, err := storage.NewLocal(t.TempDir(), nil)
	require.NoError(t, err)
	store := newMemStore()
	gw := &echoGateway{blobs: blobs}
	ctrl := NewController(store, blobs, assembler.New(blobs, t.TempDir(), nil), gw, Options{StrictTransitions: strict}, nil)
	pub := &recordingPublisher{}
	m := metrics.New(prometheus.NewRegistry())
	ctrl.SetPublisher(pub)
	ctrl.SetMetrics(m)
	return &fixture{ctrl: ctrl, store: store, blobs: blobs, gw: gw, pub: pub, m: m}
}

func (f *fixture) upload(t *testing.T, rec, user uuid.UUID, idx int, body string) {
	t.Helper()
	_, err := f.ctrl.UploadChunk(context.Background(), rec, user, idx, strings.NewReader(body), int64(len(body)), nil)
	require.NoError(t, err)
}

func readArtifact(t *testing.T, blobs *storage.Local, key string) string {
	t.Helper()
	rc, err := blobs.Open(context.Background(), key)
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func TestFinish_AssemblesInIndexOrder(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	user := uuid.New()

	rec, err := f.ctrl.Create(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, models.RecordingStatusActive, rec.Status)

	f.upload(t, rec.ID, user, 2, "C")
	f.upload(t, rec.ID, user, 0, "A")
	f.upload(t, rec.ID, user, 1, "B")

	res, err := f.ctrl.Finish(ctx, rec.ID, user)
	require.NoError(t, err)

	assert.Equal(t, "ABC", readArtifact(t, f.blobs, res.Artifact.Key))
	assert.Equal(t, int64(3), res.Artifact.Size)
	assert.Equal(t, transcription.OutcomeOK, res.Transcription.Outcome)
	assert.Equal(t, "ABC", res.Transcription.Text)
	assert.Equal(t, models.RecordingStatusEnded, res.Recording.Status)

	stored, err := f.ctrl.Get(ctx, rec.ID, user)
	require.NoError(t, err)
	assert.Equal(t, models.RecordingStatusEnded, stored.Status)
	assert.Equal(t, storage.ArtifactKey(rec.ID), stored.AudioFilePath)
	assert.Equal(t, "ABC", stored.TranscriptionText)
	assert.Equal(t, "echo", stored.LLMProvider)
}

func TestFinish_LengthIsSumOfChunks(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	user := uuid.New()
	rec, err := f.ctrl.Create(ctx, user)
	require.NoError(t, err)

	bodies := map[int]string{5: "fifth", 1: strings.Repeat("1", 4096), 3: "", 0: "zero"}
	want := 0
	for _, idx := range []int{5, 1, 3, 0} {
		f.upload(t, rec.ID, user, idx, bodies[idx])
		want += len(bodies[idx])
	}

	res, err := f.ctrl.Finish(ctx, rec.ID, user)
	require.NoError(t, err)
	assert.Equal(t, int64(want), res.Artifact.Size)
	assert.Equal(t, "zero"+bodies[1]+"fifth", readArtifact(t, f.blobs, res.Artifact.Key))
	assert.Equal(t, []int{2, 4}, res.Artifact.Missing)
}

func TestFinish_NoChunks(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	user := uuid.New()
	rec, err := f.ctrl.Create(ctx, user)
	require.NoError(t, err)

	_, err = f.ctrl.Finish(ctx, rec.ID, user)
	assert.ErrorIs(t, err, ErrNoChunks)
	assert.Equal(t, models.RecordingStatusActive, f.store.status(rec.ID), "status unchanged")
	assert.Zero(t, f.gw.calls)
}

func TestFinish_GatewayFailureStillEnds(t *testing.T) {
	f := newFixture(t, true)
	f.gw.err = errors.New("provider unavailable")
	ctx := context.Background()
	user := uuid.New()
	rec, err := f.ctrl.Create(ctx, user)
	require.NoError(t, err)
	f.upload(t, rec.ID, user, 0, "A")

	res, err := f.ctrl.Finish(ctx, rec.ID, user)
	require.NoError(t, err)
	assert.True(t, res.Transcription.Degraded())
	assert.Equal(t, transcription.FailurePlaceholder, res.Transcription.Text)
	assert.ErrorContains(t, res.Transcription.Cause, "provider unavailable")

	stored, err := f.ctrl.Get(ctx, rec.ID, user)
	require.NoError(t, err)
	assert.Equal(t, models.RecordingStatusEnded, stored.Status)
	assert.NotEmpty(t, stored.TranscriptionText)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.RecordingsFinished.WithLabelValues("degraded")))
}

func TestFinish_MissingBlobFailsWithoutEnding(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	user := uuid.New()
	rec, err := f.ctrl.Create(ctx, user)
	require.NoError(t, err)
	f.upload(t, rec.ID, user, 0, "A")
	f.upload(t, rec.ID, user, 1, "B")
	require.NoError(t, f.blobs.Delete(ctx, storage.ChunkKey(rec.ID, 1)))

	_, err = f.ctrl.Finish(ctx, rec.ID, user)
	assert.ErrorIs(t, err, assembler.ErrBlobUnavailable)
	assert.Equal(t, models.RecordingStatusActive, f.store.status(rec.ID))
	assert.Zero(t, f.gw.calls)

	_, err = f.blobs.Open(ctx, storage.ArtifactKey(rec.ID))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestOwnership_OtherUserSeesNotFound(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	owner, other := uuid.New(), uuid.New()
	rec, err := f.ctrl.Create(ctx, owner)
	require.NoError(t, err)
	f.upload(t, rec.ID, owner, 0, "A")

	ops := map[string]func() error{
		"get":    func() error { _, err := f.ctrl.Get(ctx, rec.ID, other); return err },
		"upload": func() error { _, err := f.ctrl.UploadChunk(ctx, rec.ID, other, 1, strings.NewReader("x"), 1, nil); return err },
		"pause":  func() error { _, err := f.ctrl.Pause(ctx, rec.ID, other); return err },
		"resume": func() error { _, err := f.ctrl.Resume(ctx, rec.ID, other); return err },
		"finish": func() error { _, err := f.ctrl.Finish(ctx, rec.ID, other); return err },
		"chunks": func() error { _, err := f.ctrl.Chunks(ctx, rec.ID, other); return err },
		"audio":  func() error { _, err := f.ctrl.OpenArtifact(ctx, rec.ID, other); return err },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, op(), ErrNotFound)
		})
	}

	list, err := f.ctrl.List(ctx, other)
	require.NoError(t, err)
	assert.Empty(t, list)

	chunks, err := f.ctrl.Chunks(ctx, rec.ID, owner)
	require.NoError(t, err)
	assert.Len(t, chunks, 1, "other user's upload was rejected")
	assert.Equal(t, models.RecordingStatusActive, f.store.status(rec.ID))
}

func TestUnknownRecording(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.ctrl.Get(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPause_Idempotent(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	user := uuid.New()
	rec, err := f.ctrl.Create(ctx, user)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		got, err := f.ctrl.Pause(ctx, rec.ID, user)
		require.NoError(t, err)
		assert.Equal(t, models.RecordingStatusPaused, got.Status)
		assert.Equal(t, models.RecordingStatusPaused, f.store.status(rec.ID))
	}
	assert.Equal(t, 1, f.store.writes, "second pause writes nothing")

	got, err := f.ctrl.Resume(ctx, rec.ID, user)
	require.NoError(t, err)
	assert.Equal(t, models.RecordingStatusActive, got.Status)

	// chunks are accepted while paused
	_, err = f.ctrl.Pause(ctx, rec.ID, user)
	require.NoError(t, err)
	f.upload(t, rec.ID, user, 0, "A")
}

func TestStrictTransitions_RejectEnded(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	user := uuid.New()
	rec, err := f.ctrl.Create(ctx, user)
	require.NoError(t, err)
	f.upload(t, rec.ID, user, 0, "A")
	_, err = f.ctrl.Finish(ctx, rec.ID, user)
	require.NoError(t, err)

	_, err = f.ctrl.Pause(ctx, rec.ID, user)
	assert.ErrorIs(t, err, ErrRecordingEnded)
	_, err = f.ctrl.Resume(ctx, rec.ID, user)
	assert.ErrorIs(t, err, ErrRecordingEnded)
	_, err = f.ctrl.Finish(ctx, rec.ID, user)
	assert.ErrorIs(t, err, ErrRecordingEnded)
	_, err = f.ctrl.UploadChunk(ctx, rec.ID, user, 1, strings.NewReader("B"), 1, nil)
	assert.ErrorIs(t, err, ErrRecordingEnded)

	assert.Equal(t, models.RecordingStatusEnded, f.store.status(rec.ID))
	assert.Equal(t, 1, f.gw.calls)
}

func TestPermissiveTransitions_AllowReopen(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	user := uuid.New()
	rec, err := f.ctrl.Create(ctx, user)
	require.NoError(t, err)
	f.upload(t, rec.ID, user, 0, "A")
	_, err = f.ctrl.Finish(ctx, rec.ID, user)
	require.NoError(t, err)

	got, err := f.ctrl.Pause(ctx, rec.ID, user)
	require.NoError(t, err)
	assert.Equal(t, models.RecordingStatusPaused, got.Status)

	f.upload(t, rec.ID, user, 1, "B")
	res, err := f.ctrl.Finish(ctx, rec.ID, user)
	require.NoError(t, err)
	assert.Equal(t, "AB", readArtifact(t, f.blobs, res.Artifact.Key))
}

func TestUploadChunk_DuplicateIndexLastWriteWins(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	user := uuid.New()
	rec, err := f.ctrl.Create(ctx, user)
	require.NoError(t, err)

	f.upload(t, rec.ID, user, 0, "old")
	f.upload(t, rec.ID, user, 1, "B")
	f.upload(t, rec.ID, user, 0, "new")

	chunks, err := f.ctrl.Chunks(ctx, rec.ID, user)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].ChunkIndex)

	res, err := f.ctrl.Finish(ctx, rec.ID, user)
	require.NoError(t, err)
	assert.Equal(t, "newB", readArtifact(t, f.blobs, res.Artifact.Key))
}

func TestUploadChunk_NegativeIndex(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	user := uuid.New()
	rec, err := f.ctrl.Create(ctx, user)
	require.NoError(t, err)

	_, err = f.ctrl.UploadChunk(ctx, rec.ID, user, -1, strings.NewReader("x"), 1, nil)
	assert.ErrorIs(t, err, ErrInvalidChunk)
}

func TestUploadChunk_KeepsDuration(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	user := uuid.New()
	rec, err := f.ctrl.Create(ctx, user)
	require.NoError(t, err)

	d := 2.5
	ch, err := f.ctrl.UploadChunk(ctx, rec.ID, user, 0, strings.NewReader("abcd"), 4, &d)
	require.NoError(t, err)
	require.NotNil(t, ch.DurationSeconds)
	assert.Equal(t, 2.5, *ch.DurationSeconds)
	assert.Equal(t, storage.ChunkKey(rec.ID, 0), ch.AudioBlobPath)
	assert.Equal(t, 4.0, testutil.ToFloat64(f.m.ChunkBytes))
}

func TestOpenArtifact(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	user := uuid.New()
	rec, err := f.ctrl.Create(ctx, user)
	require.NoError(t, err)

	_, err = f.ctrl.OpenArtifact(ctx, rec.ID, user)
	assert.ErrorIs(t, err, ErrNotFound, "no artifact before finish")

	f.upload(t, rec.ID, user, 0, "A")
	f.upload(t, rec.ID, user, 1, "B")
	_, err = f.ctrl.Finish(ctx, rec.ID, user)
	require.NoError(t, err)

	rc, err := f.ctrl.OpenArtifact(ctx, rec.ID, user)
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "AB", string(b))
}

func TestEventsPublished(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	user := uuid.New()
	rec, err := f.ctrl.Create(ctx, user)
	require.NoError(t, err)
	f.upload(t, rec.ID, user, 0, "A")
	_, err = f.ctrl.Pause(ctx, rec.ID, user)
	require.NoError(t, err)
	_, err = f.ctrl.Resume(ctx, rec.ID, user)
	require.NoError(t, err)
	_, err = f.ctrl.Finish(ctx, rec.ID, user)
	require.NoError(t, err)

	assert.Equal(t, []EventType{
		EventRecordingCreated,
		EventChunkUploaded,
		EventRecordingPaused,
		EventRecordingResumed,
		EventRecordingFinished,
	}, f.pub.types())

	last := f.pub.events[len(f.pub.events)-1]
	assert.Equal(t, rec.ID, last.RecordingID)
	assert.Equal(t, user, last.UserID)
	assert.Equal(t, models.RecordingStatusEnded, last.Status)
	assert.Equal(t, "ok", last.Transcription)
}

func TestFinish_PersistsAfterCancel(t *testing.T) {
	f := newFixture(t, true)
	user := uuid.New()
	rec, err := f.ctrl.Create(context.Background(), user)
	require.NoError(t, err)
	f.upload(t, rec.ID, user, 0, "A")

	ctx, cancel := context.WithCancel(context.Background())
	f.gw.err = nil
	f.ctrl.gateway = cancelingGateway{cancel: cancel}

	res, err := f.ctrl.Finish(ctx, rec.ID, user)
	require.NoError(t, err)
	assert.Equal(t, "done", res.Transcription.Text)
	assert.Equal(t, models.RecordingStatusEnded, f.store.status(rec.ID))
}

// cancelingGateway cancels the request context while transcribing.
type cancelingGateway struct{ cancel context.CancelFunc }

func (cancelingGateway) Name() string { return "cancel" }

func (g cancelingGateway) Transcribe(context.Context, string) (string, error) {
	g.cancel()
	return "done", nil
}
