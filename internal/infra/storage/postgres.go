package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MRamiBalles/GalacticCiv/internal/world"
)

// eventRow is the engine_events table.
type eventRow struct {
	Seq       int64     `gorm:"primaryKey;autoIncrement"`
	EventID   string    `gorm:"column:event_id;uniqueIndex;size:64"`
	Tick      int64     `gorm:"index;not null"`
	Timestamp time.Time `gorm:"not null"`
	EventType string    `gorm:"index;size:64;not null"`
	ActorID   string    `gorm:"index;size:128"`
	Payload   []byte    `gorm:"type:jsonb"`
}

func (eventRow) TableName() string { return "engine_events" }

// entityRow is the entities table.
type entityRow struct {
	EntityID    string    `gorm:"primaryKey;size:128"`
	Kind        string    `gorm:"size:64"`
	Tick        int64     `gorm:"not null"`
	State       []byte    `gorm:"type:jsonb;not null"`
	LastUpdated time.Time `gorm:"not null"`
}

func (entityRow) TableName() string { return "entities" }

// OpenPostgres connects through gorm and migrates the journal schema.
func OpenPostgres(ctx context.Context, dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&eventRow{}, &entityRow{}); err != nil {
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return db, nil
}

// GormEventRepository implements EventRepository on PostgreSQL.
type GormEventRepository struct {
	db *gorm.DB
}

func NewGormEventRepository(db *gorm.DB) *GormEventRepository {
	return &GormEventRepository{db: db}
}

// Append inserts a new event into the journal.
func (r *GormEventRepository) Append(ctx context.Context, rec EventRecord) error {
	row := eventRow{
		EventID:   rec.ID,
		Tick:      int64(rec.Tick),
		Timestamp: rec.Timestamp,
		EventType: rec.Type,
		ActorID:   rec.ActorID,
		Payload:   rec.Payload,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (r *GormEventRepository) find(ctx context.Context, query string, args ...any) ([]EventRecord, error) {
	var rows []eventRow
	err := r.db.WithContext(ctx).
		Where(query, args...).
		Clauses(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: "seq"}}}}).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	out := make([]EventRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, EventRecord{
			ID:        row.EventID,
			Tick:      uint64(row.Tick),
			Timestamp: row.Timestamp,
			Type:      row.EventType,
			ActorID:   row.ActorID,
			Payload:   json.RawMessage(row.Payload),
		})
	}
	return out, nil
}

func (r *GormEventRepository) Since(ctx context.Context, tick uint64) ([]EventRecord, error) {
	return r.find(ctx, "tick >= ?", int64(tick))
}

func (r *GormEventRepository) ByActor(ctx context.Context, actorID string) ([]EventRecord, error) {
	return r.find(ctx, "actor_id = ?", actorID)
}

func (r *GormEventRepository) ByType(ctx context.Context, eventType string) ([]EventRecord, error) {
	return r.find(ctx, "event_type = ?", eventType)
}

func (r *GormEventRepository) LastTick(ctx context.Context) (uint64, error) {
	var tick int64
	if err := r.db.WithContext(ctx).Model(&eventRow{}).Select("COALESCE(MAX(tick), 0)").Scan(&tick).Error; err != nil {
		return 0, fmt.Errorf("failed to read last tick: %w", err)
	}
	return uint64(tick), nil
}

// GormSnapshotRepository implements SnapshotRepository on PostgreSQL.
type GormSnapshotRepository struct {
	db *gorm.DB
}

func NewGormSnapshotRepository(db *gorm.DB) *GormSnapshotRepository {
	return &GormSnapshotRepository{db: db}
}

func (r *GormSnapshotRepository) Upsert(ctx context.Context, tick uint64, e world.Entity) error {
	state, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal entity %s: %w", e.ID, err)
	}
	row := entityRow{
		EntityID:    e.ID,
		Kind:        e.Kind,
		Tick:        int64(tick),
		State:       state,
		LastUpdated: time.Now().UTC(),
	}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entity_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"kind", "tick", "state", "last_updated"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "excluded.tick >= entities.tick"},
		}},
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert entity %s: %w", e.ID, err)
	}
	return nil
}

func (r *GormSnapshotRepository) Get(ctx context.Context, id string) (world.Entity, error) {
	var row entityRow
	if err := r.db.WithContext(ctx).Where("entity_id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return world.Entity{}, fmt.Errorf("entity %s: %w", id, ErrNotFound)
		}
		return world.Entity{}, err
	}
	var e world.Entity
	if err := json.Unmarshal(row.State, &e); err != nil {
		return world.Entity{}, fmt.Errorf("failed to decode entity %s: %w", id, err)
	}
	return e, nil
}

func (r *GormSnapshotRepository) All(ctx context.Context) ([]world.Entity, error) {
	var rows []entityRow
	if err := r.db.WithContext(ctx).Order("entity_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]world.Entity, 0, len(rows))
	for _, row := range rows {
		var e world.Entity
		if err := json.Unmarshal(row.State, &e); err != nil {
			return nil, fmt.Errorf("failed to decode entity %s: %w", row.EntityID, err)
		}
		out = append(out, e)
	}
	return out, nil
}

var (
	_ EventRepository    = (*GormEventRepository)(nil)
	_ SnapshotRepository = (*GormSnapshotRepository)(nil)
)
