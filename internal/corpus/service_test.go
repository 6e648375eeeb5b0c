package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/firstpro/mock-feedback-service/internal/config"
	"github.com/firstpro/mock-feedback-service/internal/storage"
	"github.com/firstpro/mock-feedback-service/internal/textgen"
)

var markerPattern = regexp.MustCompile(`#(\d+)/(\d+)`)

// echoGenerator answers every prompt with text naming the progress marker
// it was asked for.
type echoGenerator struct {
	mu      sync.Mutex
	prompts []textgen.Prompt
	failOn  int // 1-based call number that fails, 0 for never
	calls   atomic.Int32
}

func (e *echoGenerator) Generate(ctx context.Context, p textgen.Prompt) (textgen.Response, error) {
	n := int(e.calls.Add(1))
	e.mu.Lock()
	e.prompts = append(e.prompts, p)
	e.mu.Unlock()

	if n == e.failOn {
		return textgen.Response{}, fmt.Errorf("backend exploded")
	}
	marker := markerPattern.FindString(p.User)
	return textgen.Response{Text: "  feedback " + marker + "\n", Model: "echo"}, nil
}

func newTestService(t *testing.T, store storage.ObjectStore, tg textgen.Generator, mutate ...func(*config.Config)) *Service {
	t.Helper()
	cfg := config.Default()
	for _, m := range mutate {
		m(cfg)
	}
	return NewService(cfg, store, tg, zaptest.NewLogger(t))
}

func ids(t *testing.T, svc *Service, count int) []int {
	t.Helper()
	result, err := svc.Generate(context.Background(), count)
	require.NoError(t, err)
	out := make([]int, len(result.Feedbacks))
	for i, f := range result.Feedbacks {
		out[i] = f.ID
	}
	return out
}

func TestService_Generate_FirstBatch(t *testing.T) {
	store := storage.NewMemoryStorage()
	tg := &echoGenerator{}
	svc := newTestService(t, store, tg)
	ctx := context.Background()

	result, err := svc.Generate(ctx, 3)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Generated)
	assert.Equal(t, 3, result.TotalCount)
	require.Len(t, result.Feedbacks, 3)
	for i, f := range result.Feedbacks {
		assert.Equal(t, i+1, f.ID)
		assert.Equal(t, fmt.Sprintf("feedback #%d/1000", i+1), f.Text)
		assert.WithinDuration(t, time.Now().UTC(), f.CreatedAt, 5*time.Second)
	}

	progress, err := svc.Progress(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, progress.Count)
	assert.Equal(t, "0.30%", progress.Percent)
	assert.False(t, progress.Empty)
	require.NotNil(t, progress.LastUpdated)

	listing, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, listing.Count)
	assert.Equal(t, []string{
		"mock_feedback/feedback_0001.json",
		"mock_feedback/feedback_0002.json",
		"mock_feedback/feedback_0003.json",
	}, listing.Files)
}

func TestService_Generate_StoredRecordShape(t *testing.T) {
	store := storage.NewMemoryStorage()
	svc := newTestService(t, store, &echoGenerator{})

	_, err := svc.Generate(context.Background(), 1)
	require.NoError(t, err)

	obj, err := store.Get(context.Background(), "mock_feedback/feedback_0001.json")
	require.NoError(t, err)
	assert.Equal(t, "application/json", obj.ContentType)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(obj.Body, &raw))
	assert.Equal(t, float64(1), raw["id"])
	assert.Equal(t, "feedback #1/1000", raw["feedback"])
	assert.Contains(t, raw, "timestamp")
}

func TestService_Generate_SequentialBatchesDoNotOverlap(t *testing.T) {
	svc := newTestService(t, storage.NewMemoryStorage(), &echoGenerator{})

	first := ids(t, svc, 4)
	second := ids(t, svc, 4)

	assert.Equal(t, []int{1, 2, 3, 4}, first)
	assert.Equal(t, []int{5, 6, 7, 8}, second)

	progress, err := svc.Progress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, progress.Count)
}

func TestService_Generate_ContinuesFromStoredTotal(t *testing.T) {
	store := storage.NewMemoryStorage()
	svc := newTestService(t, store, &echoGenerator{})

	_, err := svc.counter.Advance(context.Background(), 250)
	require.NoError(t, err)

	assert.Equal(t, []int{251, 252}, ids(t, svc, 2))
	progress, err := svc.Progress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "25.20%", progress.Percent)
}

func TestService_Generate_DefaultsCount(t *testing.T) {
	for _, count := range []int{0, -5} {
		t.Run(fmt.Sprint(count), func(t *testing.T) {
			svc := newTestService(t, storage.NewMemoryStorage(), &echoGenerator{})

			result, err := svc.Generate(context.Background(), count)
			require.NoError(t, err)
			assert.Equal(t, 10, result.Generated)
			assert.Equal(t, 10, result.TotalCount)
		})
	}
}

func TestService_Generate_FailureDiscardsBatch(t *testing.T) {
	store := storage.NewMemoryStorage()
	tg := &echoGenerator{failOn: 2}
	svc := newTestService(t, store, tg)
	ctx := context.Background()

	_, err := svc.Generate(ctx, 3)
	require.Error(t, err)

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, 2, genErr.ID)
	assert.Equal(t, int32(2), tg.calls.Load())

	listing, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, listing.Count)
	assert.Empty(t, listing.Files)

	progress, err := svc.Progress(ctx)
	require.NoError(t, err)
	assert.True(t, progress.Empty)
	assert.Equal(t, 0, progress.Count)
}

func TestService_Generate_ConcurrentCallsKeepOrder(t *testing.T) {
	tg := textgen.Func(func(ctx context.Context, p textgen.Prompt) (textgen.Response, error) {
		m := markerPattern.FindStringSubmatch(p.User)
		id, err := strconv.Atoi(m[1])
		if err != nil {
			return textgen.Response{}, err
		}
		// Later ids finish first.
		time.Sleep(time.Duration(20-id) * time.Millisecond)
		return textgen.Response{Text: m[0]}, nil
	})
	svc := newTestService(t, storage.NewMemoryStorage(), tg, func(c *config.Config) {
		c.Generator.Concurrency = 4
	})

	result, err := svc.Generate(context.Background(), 8)
	require.NoError(t, err)
	for i, f := range result.Feedbacks {
		assert.Equal(t, i+1, f.ID)
		assert.Equal(t, fmt.Sprintf("#%d/1000", i+1), f.Text)
	}
	assert.Equal(t, 8, result.TotalCount)
}

func TestService_Generate_PersistenceFailure(t *testing.T) {
	store := &faultyStore{
		MemoryStorage: storage.NewMemoryStorage(),
		failPutKey:    "mock_feedback/feedback_0002.json",
	}
	svc := newTestService(t, store, &echoGenerator{})
	ctx := context.Background()

	_, err := svc.Generate(ctx, 3)

	var persistErr *PersistenceError
	require.ErrorAs(t, err, &persistErr)
	assert.Equal(t, 2, persistErr.ID)

	// The first record stays behind; the counter was never advanced.
	drift, err := svc.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, drift.MetadataCount)
	assert.Equal(t, 1, drift.StoredCount)
	assert.False(t, drift.Consistent())
}

func TestService_Generate_AdvanceFailureLeavesRecords(t *testing.T) {
	store := &faultyStore{MemoryStorage: storage.NewMemoryStorage(), failPutIfMatch: true}
	svc := newTestService(t, store, &echoGenerator{})
	ctx := context.Background()

	_, err := svc.Generate(ctx, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to advance counter")

	drift, err := svc.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, drift.MetadataCount)
	assert.Equal(t, 3, drift.StoredCount)
}

func TestService_Generate_StorageUnavailable(t *testing.T) {
	mockStore := new(MockObjectStore)
	mockStore.On("Get", mock.Anything, metadataKey).Return(nil, assert.AnError)
	tg := &echoGenerator{}

	svc := newTestService(t, mockStore, tg)
	_, err := svc.Generate(context.Background(), 3)

	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.Equal(t, int32(0), tg.calls.Load())
	mockStore.AssertNotCalled(t, "Put")
}

func TestService_Verify_Consistent(t *testing.T) {
	svc := newTestService(t, storage.NewMemoryStorage(), &echoGenerator{})

	_, err := svc.Generate(context.Background(), 5)
	require.NoError(t, err)

	drift, err := svc.Verify(context.Background())
	require.NoError(t, err)
	assert.True(t, drift.Consistent())
	assert.Equal(t, 5, drift.StoredCount)
}

func TestService_List_Capped(t *testing.T) {
	svc := newTestService(t, storage.NewMemoryStorage(), &echoGenerator{}, func(c *config.Config) {
		c.Corpus.ListLimit = 2
	})

	_, err := svc.Generate(context.Background(), 5)
	require.NoError(t, err)

	listing, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, listing.Count)
	assert.Len(t, listing.Files, 2)
}

func TestService_List_OnlyRecordKeys(t *testing.T) {
	svc := newTestService(t, storage.NewMemoryStorage(), &echoGenerator{})

	_, err := svc.Generate(context.Background(), 3)
	require.NoError(t, err)

	listing, err := svc.List(context.Background())
	require.NoError(t, err)
	pattern := regexp.MustCompile(`^mock_feedback/feedback_\d{4}\.json$`)
	for _, key := range listing.Files {
		assert.Regexp(t, pattern, key)
	}
	assert.Equal(t, len(listing.Files), listing.Count)
}

func TestService_Progress_Empty(t *testing.T) {
	svc := newTestService(t, storage.NewMemoryStorage(), &echoGenerator{})

	progress, err := svc.Progress(context.Background())
	require.NoError(t, err)
	assert.True(t, progress.Empty)
	assert.Equal(t, 0, progress.Count)
	assert.Equal(t, "0.00%", progress.Percent)
	assert.Nil(t, progress.LastUpdated)
}

func TestService_TargetSizeFlowsIntoPromptAndProgress(t *testing.T) {
	tg := &echoGenerator{}
	svc := newTestService(t, storage.NewMemoryStorage(), tg, func(c *config.Config) {
		c.Corpus.TargetSize = 200
	})

	_, err := svc.Generate(context.Background(), 2)
	require.NoError(t, err)

	require.Len(t, tg.prompts, 2)
	assert.Contains(t, tg.prompts[0].User, "#1/200")
	assert.Contains(t, tg.prompts[1].User, "#2/200")

	progress, err := svc.Progress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.00%", progress.Percent)
}

func TestFormatPercent(t *testing.T) {
	tests := []struct {
		count, target int
		want          string
	}{
		{0, 1000, "0.00%"},
		{3, 1000, "0.30%"},
		{250, 1000, "25.00%"},
		{1, 3, "33.33%"},
		{1000, 1000, "100.00%"},
		{1010, 1000, "101.00%"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatPercent(tt.count, tt.target), "%d/%d", tt.count, tt.target)
	}
}

func TestPromptBuilder_Build(t *testing.T) {
	cfg := config.Default()
	builder := NewPromptBuilder(cfg.Generator, cfg.Corpus.TargetSize)

	prompt := builder.Build(42)

	assert.Equal(t, systemInstruction, prompt.System)
	assert.Contains(t, prompt.User, "firefighters")
	assert.Contains(t, prompt.User, "First Pro")
	assert.Contains(t, prompt.User, "#42/1000")
	assert.Contains(t, strings.ToLower(prompt.User), "diversify the user type and tone")
	for _, ex := range cfg.Generator.Examples {
		assert.Contains(t, prompt.User, ex)
	}
}

func TestWriter_RecordKey(t *testing.T) {
	cfg := testCorpusConfig()
	w := NewWriter(cfg, storage.NewMemoryStorage(), nil, zap.NewNop())

	assert.Equal(t, "mock_feedback/feedback_0001.json", w.RecordKey(1))
	assert.Equal(t, "mock_feedback/feedback_0999.json", w.RecordKey(999))
	assert.Equal(t, "mock_feedback/feedback_12345.json", w.RecordKey(12345))
}

func TestService_Generate_RejectsBatchAboveMax(t *testing.T) {
	tg := &echoGenerator{}
	svc := newTestService(t, storage.NewMemoryStorage(), tg, func(c *config.Config) {
		c.Corpus.MaxBatch = 20
	})

	_, err := svc.Generate(context.Background(), 21)
	assert.ErrorIs(t, err, ErrBatchTooLarge)
	assert.Equal(t, int32(0), tg.calls.Load())

	result, err := svc.Generate(context.Background(), 20)
	require.NoError(t, err)
	assert.Equal(t, 20, result.Generated)
}

func TestService_Generate_ConfiguredDefaultBatch(t *testing.T) {
	svc := newTestService(t, storage.NewMemoryStorage(), &echoGenerator{}, func(c *config.Config) {
		c.Corpus.DefaultBatch = 5
	})

	result, err := svc.Generate(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Generated)
}
