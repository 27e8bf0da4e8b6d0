package setting

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"

	"github.com/arkova/catalog-core/internal/event"
	"github.com/arkova/catalog-core/internal/setting/entity"
)

// DefaultTTL is the cache validity window for a section entry.
const DefaultTTL = 5 * time.Minute

var (
	ErrNotFound = errors.New("setting not found")
)

// SectionReader is the minimal repository surface the cached read path needs.
type SectionReader interface {
	ListBySection(ctx context.Context, sectionPath string) ([]entity.Setting, error)
}

// Writer is the repository surface for mutations.
type Writer interface {
	UpdateValue(ctx context.Context, sectionPath, settingName, value string) (int64, error)
	Upsert(ctx context.Context, s *entity.Setting) error
}

// Publisher is the slice of the event bus the service uses for invalidation
// notifications. Nil disables publishing (tests).
type Publisher interface {
	CreateAndPublishEvent(ctx context.Context, p event.Params) (event.Event, error)
}

// Service serves section reads from a TTL cache and falls back to the
// repository on miss, expiry or forced refresh. Confidential settings are
// filtered out before a section enters the cache.
type Service struct {
	reader SectionReader
	writer Writer
	bus    Publisher
	cache  *ttlcache.Cache[string, []entity.Setting]
	logger *zap.SugaredLogger
}

// NewService constructs a Service. ttl <= 0 selects DefaultTTL.
func NewService(reader SectionReader, writer Writer, bus Publisher, ttl time.Duration, logger *zap.SugaredLogger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	cache := ttlcache.New(
		ttlcache.WithTTL[string, []entity.Setting](ttl),
		ttlcache.WithDisableTouchOnHit[string, []entity.Setting](),
	)
	go cache.Start()
	return &Service{reader: reader, writer: writer, bus: bus, cache: cache, logger: logger}
}

// Close stops the cache janitor goroutine.
func (s *Service) Close() {
	s.cache.Stop()
}

// FetchSettings returns the non-confidential settings of a section. Within the
// TTL repeated calls serve from cache without touching the repository; a
// repository failure yields an empty slice plus the error and leaves the cache
// untouched.
func (s *Service) FetchSettings(ctx context.Context, sectionPath string, forceRefresh bool) ([]entity.Setting, error) {
	if !forceRefresh {
		if item := s.cache.Get(sectionPath); item != nil {
			return item.Value(), nil
		}
	}
	rows, err := s.reader.ListBySection(ctx, sectionPath)
	if err != nil {
		s.logger.Warnw("settings fetch failed", "section", sectionPath, "err", err)
		return []entity.Setting{}, err
	}
	public := make([]entity.Setting, 0, len(rows))
	for _, row := range rows {
		if row.Confidentiality {
			continue
		}
		public = append(public, row)
	}
	s.cache.Set(sectionPath, public, ttlcache.DefaultTTL)
	return public, nil
}

// Invalidate drops a section entry so the next read refetches.
func (s *Service) Invalidate(sectionPath string) {
	s.cache.Delete(sectionPath)
}

// UpdateValue changes one setting value, invalidates the section and notifies
// subscribers through the bus.
func (s *Service) UpdateValue(ctx context.Context, sectionPath, settingName, value string) error {
	rows, err := s.writer.UpdateValue(ctx, sectionPath, settingName, value)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	s.Invalidate(sectionPath)
	if s.bus != nil {
		_, pubErr := s.bus.CreateAndPublishEvent(ctx, event.Params{
			EventName: "settings.updated",
			Source:    "setting.service",
			Payload: map[string]any{
				"section_path": sectionPath,
				"setting_name": settingName,
			},
		})
		if pubErr != nil {
			s.logger.Warnw("settings.updated publish failed", "section", sectionPath, "err", pubErr)
		}
	}
	return nil
}

// get returns one setting from the cached section.
func (s *Service) get(ctx context.Context, sectionPath, settingName string) (entity.Setting, error) {
	rows, err := s.FetchSettings(ctx, sectionPath, false)
	if err != nil {
		return entity.Setting{}, err
	}
	for _, row := range rows {
		if row.SettingName == settingName {
			return row, nil
		}
	}
	return entity.Setting{}, ErrNotFound
}

// GetString returns the effective string value of one setting.
func (s *Service) GetString(ctx context.Context, sectionPath, settingName string) (string, error) {
	row, err := s.get(ctx, sectionPath, settingName)
	if err != nil {
		return "", err
	}
	return row.EffectiveValue(), nil
}

// GetBool parses the effective value as a boolean.
func (s *Service) GetBool(ctx context.Context, sectionPath, settingName string) (bool, error) {
	raw, err := s.GetString(ctx, sectionPath, settingName)
	if err != nil {
		return false, err
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.New("setting " + sectionPath + "/" + settingName + " is not a boolean: " + raw)
	}
	return v, nil
}

// GetInt parses the effective value as an integer.
func (s *Service) GetInt(ctx context.Context, sectionPath, settingName string) (int, error) {
	raw, err := s.GetString(ctx, sectionPath, settingName)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("setting " + sectionPath + "/" + settingName + " is not an integer: " + raw)
	}
	return v, nil
}

// NewCacheInvalidator returns the bus subscriber that drops section entries
// when a settings.updated event arrives.
func NewCacheInvalidator(s *Service) event.HandlerFunc {
	return func(ctx context.Context, ev event.Event) error {
		section, _ := ev.Payload["section_path"].(string)
		if section == "" {
			return errors.New("settings.updated event without section_path")
		}
		s.Invalidate(section)
		return nil
	}
}
