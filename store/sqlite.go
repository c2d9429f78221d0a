package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/calaguinjaysonjake-prog/personal-financial-tracker/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

type zerologger struct {
	Logger *zerolog.Logger
}

func (z zerologger) LogMode(logger.LogLevel) logger.Interface            { return z }
func (z zerologger) Info(c context.Context, m string, x ...interface{})  { z.Logger.Info().Msgf(m, x...) }
func (z zerologger) Warn(c context.Context, m string, x ...interface{})  { z.Logger.Warn().Msgf(m, x...) }
func (z zerologger) Error(c context.Context, m string, x ...interface{}) { z.Logger.Error().Msgf(m, x...) }
func (z zerologger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	s, r := fc()
	verb := strings.ToLower(strings.Split(s, " ")[0])
	z.Logger.Trace().Err(err).Int64("rows", r).Dur("duration_ms", time.Since(begin)).Str("verb", verb).Msg(s)
}

// SQLite stores transactions in a single table through gorm.
type SQLite struct {
	db *gorm.DB
}

func NewSQLite(path string, opts Options) (*SQLite, error) {
	db, err := gorm.Open(
		sqlite.Open(path),
		&gorm.Config{
			Logger: zerologger{
				Logger: &log.Logger,
			},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := db.Use(tracing.NewPlugin()); err != nil {
		return nil, fmt.Errorf("register gorm tracing: %w", err)
	}
	if err := db.AutoMigrate(&models.Transaction{}); err != nil {
		return nil, fmt.Errorf("migrate transactions: %w", err)
	}

	if opts.Debug {
		db = db.Debug()
	}
	log.Info().Msgf("Database connected: %s", path)
	return &SQLite{db: db}, nil
}

func (s *SQLite) List(ctx context.Context, filter Filter) ([]models.Transaction, error) {
	query := s.db.WithContext(ctx)
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}

	transactions := []models.Transaction{}
	if err := query.Find(&transactions).Error; err != nil {
		return nil, fmt.Errorf("find transactions: %w", err)
	}
	for i := range transactions {
		utc(&transactions[i])
	}
	return transactions, nil
}

func (s *SQLite) Get(ctx context.Context, id string) (*models.Transaction, error) {
	var t models.Transaction
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find transaction %s: %w", id, err)
	}
	utc(&t)
	return &t, nil
}

func (s *SQLite) Create(ctx context.Context, t *models.Transaction) (*models.Transaction, error) {
	created := *t
	created.ID = uuid.NewString()
	if err := s.db.WithContext(ctx).Create(&created).Error; err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	return &created, nil
}

func (s *SQLite) Update(ctx context.Context, t *models.Transaction) (*models.Transaction, error) {
	updated := *t
	res := s.db.WithContext(ctx).
		Model(&models.Transaction{ID: t.ID}).
		Select("*").
		Omit("id", "created_at").
		Updates(&updated)
	if res.Error != nil {
		return nil, fmt.Errorf("update transaction %s: %w", t.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, models.ErrNotFound
	}
	return &updated, nil
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Transaction{})
	if res.Error != nil {
		return fmt.Errorf("delete transaction %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQLite) Close(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func utc(t *models.Transaction) {
	t.Date = t.Date.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
}

var _ Store = (*SQLite)(nil)
