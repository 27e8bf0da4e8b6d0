package setting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arkova/catalog-core/internal/event"
	"github.com/arkova/catalog-core/internal/setting/entity"
)

type countingReader struct {
	mu    sync.Mutex
	calls int
	rows  []entity.Setting
	err   error
}

func (c *countingReader) ListBySection(ctx context.Context, sectionPath string) ([]entity.Setting, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.rows, nil
}

func (c *countingReader) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fakeWriter struct {
	rows int64
	err  error
}

func (f *fakeWriter) UpdateValue(ctx context.Context, sectionPath, settingName, value string) (int64, error) {
	return f.rows, f.err
}
func (f *fakeWriter) Upsert(ctx context.Context, s *entity.Setting) error { return f.err }

type capturingBus struct {
	mu     sync.Mutex
	params []event.Params
}

func (c *capturingBus) CreateAndPublishEvent(ctx context.Context, p event.Params) (event.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.params = append(c.params, p)
	return event.Event{EventName: p.EventName}, nil
}

func newTestService(t *testing.T, reader SectionReader, writer Writer, bus Publisher, ttl time.Duration) *Service {
	t.Helper()
	svc := NewService(reader, writer, bus, ttl, zap.NewNop().Sugar())
	t.Cleanup(svc.Close)
	return svc
}

func sampleRows() []entity.Setting {
	return []entity.Setting{
		{SectionPath: "Application.General", SettingName: "app.name", Value: "catalog-core"},
		{SectionPath: "Application.General", SettingName: "smtp.password", Value: "hunter2", Confidentiality: true},
		{SectionPath: "Application.General", SettingName: "page.size", DefaultValue: "25"},
	}
}

func TestFetchSettingsCachesWithinTTL(t *testing.T) {
	reader := &countingReader{rows: sampleRows()}
	svc := newTestService(t, reader, nil, nil, time.Minute)

	first, err := svc.FetchSettings(context.Background(), "Application.General", false)
	require.NoError(t, err)
	second, err := svc.FetchSettings(context.Background(), "Application.General", false)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, reader.callCount(), "second read within TTL must not hit the repository")
}

func TestFetchSettingsForceRefreshBypassesCache(t *testing.T) {
	reader := &countingReader{rows: sampleRows()}
	svc := newTestService(t, reader, nil, nil, time.Minute)

	_, err := svc.FetchSettings(context.Background(), "Application.General", false)
	require.NoError(t, err)
	_, err = svc.FetchSettings(context.Background(), "Application.General", true)
	require.NoError(t, err)

	assert.Equal(t, 2, reader.callCount())
}

func TestFetchSettingsRefetchesAfterExpiry(t *testing.T) {
	reader := &countingReader{rows: sampleRows()}
	svc := newTestService(t, reader, nil, nil, 30*time.Millisecond)

	_, err := svc.FetchSettings(context.Background(), "Application.General", false)
	require.NoError(t, err)
	time.Sleep(60 * time.Millisecond)
	_, err = svc.FetchSettings(context.Background(), "Application.General", false)
	require.NoError(t, err)

	assert.Equal(t, 2, reader.callCount())
}

func TestFetchSettingsFiltersConfidential(t *testing.T) {
	reader := &countingReader{rows: sampleRows()}
	svc := newTestService(t, reader, nil, nil, time.Minute)

	rows, err := svc.FetchSettings(context.Background(), "Application.General", false)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.False(t, row.Confidentiality)
		assert.NotEqual(t, "smtp.password", row.SettingName)
	}
}

func TestFetchSettingsErrorReturnsEmptySliceAndSkipsCache(t *testing.T) {
	reader := &countingReader{err: errors.New("db down")}
	svc := newTestService(t, reader, nil, nil, time.Minute)

	rows, err := svc.FetchSettings(context.Background(), "Application.General", false)
	assert.Error(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)

	// the failure must not be cached
	reader.err = nil
	reader.rows = sampleRows()
	rows, err = svc.FetchSettings(context.Background(), "Application.General", false)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestTypedAccessors(t *testing.T) {
	reader := &countingReader{rows: []entity.Setting{
		{SectionPath: "S", SettingName: "enabled", Value: "true"},
		{SectionPath: "S", SettingName: "limit", Value: "120"},
		{SectionPath: "S", SettingName: "fallback", DefaultValue: "7"},
		{SectionPath: "S", SettingName: "broken", Value: "not-a-number"},
	}}
	svc := newTestService(t, reader, nil, nil, time.Minute)
	ctx := context.Background()

	b, err := svc.GetBool(ctx, "S", "enabled")
	require.NoError(t, err)
	assert.True(t, b)

	n, err := svc.GetInt(ctx, "S", "limit")
	require.NoError(t, err)
	assert.Equal(t, 120, n)

	// empty value falls back to default_value
	n, err = svc.GetInt(ctx, "S", "fallback")
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	_, err = svc.GetInt(ctx, "S", "broken")
	assert.Error(t, err)

	_, err = svc.GetString(ctx, "S", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateValueInvalidatesAndPublishes(t *testing.T) {
	reader := &countingReader{rows: sampleRows()}
	bus := &capturingBus{}
	svc := newTestService(t, reader, &fakeWriter{rows: 1}, bus, time.Minute)
	ctx := context.Background()

	_, err := svc.FetchSettings(ctx, "Application.General", false)
	require.NoError(t, err)
	require.Equal(t, 1, reader.callCount())

	require.NoError(t, svc.UpdateValue(ctx, "Application.General", "app.name", "renamed"))

	// section entry dropped, next read refetches
	_, err = svc.FetchSettings(ctx, "Application.General", false)
	require.NoError(t, err)
	assert.Equal(t, 2, reader.callCount())

	require.Len(t, bus.params, 1)
	assert.Equal(t, "settings.updated", bus.params[0].EventName)
	assert.Equal(t, "Application.General", bus.params[0].Payload["section_path"])
}

func TestUpdateValueNotFound(t *testing.T) {
	svc := newTestService(t, &countingReader{}, &fakeWriter{rows: 0}, nil, time.Minute)
	err := svc.UpdateValue(context.Background(), "S", "missing", "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCacheInvalidatorSubscriber(t *testing.T) {
	reader := &countingReader{rows: sampleRows()}
	svc := newTestService(t, reader, nil, nil, time.Minute)
	ctx := context.Background()

	_, err := svc.FetchSettings(ctx, "Application.General", false)
	require.NoError(t, err)

	invalidate := NewCacheInvalidator(svc)
	require.NoError(t, invalidate(ctx, event.Event{
		EventName: "settings.updated",
		Payload:   map[string]any{"section_path": "Application.General"},
	}))

	_, err = svc.FetchSettings(ctx, "Application.General", false)
	require.NoError(t, err)
	assert.Equal(t, 2, reader.callCount())

	assert.Error(t, invalidate(ctx, event.Event{EventName: "settings.updated"}))
}
