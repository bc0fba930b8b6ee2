package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/roundtableai/roundtable/config"
	"github.com/roundtableai/roundtable/dialogue"
	"github.com/roundtableai/roundtable/types"
)

// conversationRow is the SQLite row model. Summary fields are first-class
// columns so listings never touch the Document blob; the full record lives
// in Document as JSON.
type conversationRow struct {
	SessionID     string     `gorm:"primaryKey;column:session_id"`
	ConfigID      string     `gorm:"column:config_id;index"`
	ConfigName    string     `gorm:"column:config_name"`
	Title         string     `gorm:"column:title"`
	Status        string     `gorm:"column:status;index"`
	Participants  string     `gorm:"column:participants"`
	TotalRounds   int        `gorm:"column:total_rounds"`
	TotalMessages int        `gorm:"column:total_messages"`
	UserMessages  int        `gorm:"column:user_messages"`
	AgentMessages int        `gorm:"column:agent_messages"`
	Document      []byte     `gorm:"column:document"`
	CreatedAt     time.Time  `gorm:"column:created_at"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;index"`
	EndedAt       *time.Time `gorm:"column:ended_at"`
}

func (conversationRow) TableName() string { return "conversations" }

// SQLiteStore persists conversations in a local SQLite database, for
// single-node deployments without external infrastructure.
type SQLiteStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (creating if needed) the database and migrates the
// schema.
func NewSQLiteStore(cfg config.StoreConfig, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := gorm.Open(sqlite.Open(cfg.SQLitePath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, types.NewError(types.ErrPersistenceFailure, "failed to open sqlite database").WithCause(err)
	}
	if err := db.AutoMigrate(&conversationRow{}); err != nil {
		return nil, types.NewError(types.ErrPersistenceFailure, "failed to migrate schema").WithCause(err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With(zap.String("component", "sqlite_store")),
	}, nil
}

func toRow(record *PersistedConversation) (*conversationRow, error) {
	document, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	return &conversationRow{
		SessionID:     record.SessionID,
		ConfigID:      record.ConfigID,
		ConfigName:    record.ConfigName,
		Title:         record.Title,
		Status:        string(record.Status),
		Participants:  strings.Join(record.Participants, ","),
		TotalRounds:   record.Stats.TotalRounds,
		TotalMessages: record.Stats.TotalMessages,
		UserMessages:  record.Stats.UserMessages,
		AgentMessages: record.Stats.AgentMessages,
		Document:      document,
		CreatedAt:     record.CreatedAt,
		UpdatedAt:     record.UpdatedAt,
		EndedAt:       record.EndedAt,
	}, nil
}

func (r *conversationRow) toSummary() ConversationSummary {
	var participants []string
	if r.Participants != "" {
		participants = strings.Split(r.Participants, ",")
	}
	return ConversationSummary{
		SessionID:    r.SessionID,
		ConfigID:     r.ConfigID,
		ConfigName:   r.ConfigName,
		Title:        r.Title,
		Status:       types.Status(r.Status),
		Participants: participants,
		Stats: ConversationStats{
			TotalRounds:   r.TotalRounds,
			TotalMessages: r.TotalMessages,
			UserMessages:  r.UserMessages,
			AgentMessages: r.AgentMessages,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		EndedAt:   r.EndedAt,
	}
}

// Upsert writes the row for a session.
func (s *SQLiteStore) Upsert(ctx context.Context, state *dialogue.State, meta ConversationMeta) error {
	record := NewPersistedConversation(state, meta)
	row, err := toRow(record)
	if err != nil {
		return types.NewError(types.ErrPersistenceFailure, "failed to encode conversation").WithCause(err)
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		UpdateAll: true,
	}).Create(row).Error
	if err != nil {
		return types.NewError(types.ErrPersistenceFailure, "failed to write conversation").WithCause(err)
	}
	return nil
}

// GetBySessionID returns the full record for a session.
func (s *SQLiteStore) GetBySessionID(ctx context.Context, sessionID string) (*PersistedConversation, error) {
	var row conversationRow
	err := s.db.WithContext(ctx).First(&row, "session_id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewError(types.ErrNotFound, "conversation not found: "+sessionID)
	}
	if err != nil {
		return nil, types.NewError(types.ErrPersistenceFailure, "failed to read conversation").WithCause(err)
	}

	var record PersistedConversation
	if err := json.Unmarshal(row.Document, &record); err != nil {
		return nil, types.NewError(types.ErrPersistenceFailure, "failed to decode conversation").WithCause(err)
	}
	return &record, nil
}

// List queries summary columns with filter, sort, offset, and limit pushed
// down to SQL.
func (s *SQLiteStore) List(ctx context.Context, filter ListFilter) ([]ConversationSummary, error) {
	filter.Normalize()

	query := s.db.WithContext(ctx).Model(&conversationRow{}).Omit("document")
	if filter.ConfigID != "" {
		query = query.Where("config_id = ?", filter.ConfigID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	query = query.Order(filter.SortBy + " " + filter.SortOrder).
		Offset(filter.Offset).
		Limit(filter.Limit)

	var rows []conversationRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, types.NewError(types.ErrPersistenceFailure, "failed to list conversations").WithCause(err)
	}

	summaries := make([]ConversationSummary, 0, len(rows))
	for i := range rows {
		summaries = append(summaries, rows[i].toSummary())
	}
	return summaries, nil
}

// Delete removes a session's row.
func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) error {
	result := s.db.WithContext(ctx).Delete(&conversationRow{}, "session_id = ?", sessionID)
	if result.Error != nil {
		return types.NewError(types.ErrPersistenceFailure, "failed to delete conversation").WithCause(result.Error)
	}
	if result.RowsAffected == 0 {
		return types.NewError(types.ErrNotFound, "conversation not found: "+sessionID)
	}
	return nil
}

// Count returns the number of stored conversations.
func (s *SQLiteStore) Count(ctx context.Context, configID string) (int64, error) {
	query := s.db.WithContext(ctx).Model(&conversationRow{})
	if configID != "" {
		query = query.Where("config_id = ?", configID)
	}
	var n int64
	if err := query.Count(&n).Error; err != nil {
		return 0, types.NewError(types.ErrPersistenceFailure, "failed to count conversations").WithCause(err)
	}
	return n, nil
}

// Ping checks database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return types.NewError(types.ErrPersistenceFailure, "failed to access database handle").WithCause(err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return types.NewError(types.ErrPersistenceFailure, "sqlite ping failed").WithCause(err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ ConversationStore = (*SQLiteStore)(nil)
