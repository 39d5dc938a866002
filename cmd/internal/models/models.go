// Package models holds the gorm row types and small generic helpers shared
// by every manager.
package models

import (
	"context"
	"reflect"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const name string = "github.com/contestkit/judge-orchestrator/cmd/internal/models"

var tracer = otel.Tracer(name)

// Model is the embedded base of every row. IDs come from the
// uuidv7_sub_ms() database default so they sort by insertion order.
type Model struct {
	CreatedAt time.Time
	UpdatedAt time.Time
	ID        uuid.UUID `gorm:"primaryKey;default:uuidv7_sub_ms()"`
}

type OrchestratorModel interface {
	GetID() uuid.UUID
}

// ByID fetches a single row by primary key.
func ByID[T OrchestratorModel](ctx context.Context, db *gorm.DB, id uuid.UUID) (*T, error) {
	ctx, span := tracer.Start(ctx, "ByID")
	defer span.End()

	var row T
	span.SetAttributes(
		attribute.String("id", id.String()),
		attribute.String("type", reflect.TypeOf(row).String()),
	)

	if err := db.WithContext(ctx).First(&row, id).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get row by id")
		return nil, err
	}

	return &row, nil
}

// NewNull turns a pointer into a [datatypes.Null], nil meaning invalid.
func NewNull[T any](d *T) datatypes.Null[T] {
	if d == nil {
		return datatypes.Null[T]{}
	}
	return datatypes.NewNull(*d)
}

// NewNullFromData wraps a value into a valid [datatypes.Null].
func NewNullFromData[T any](d T) datatypes.Null[T] {
	return datatypes.NewNull(d)
}

// PtrFromNull maps a [datatypes.Null] back to a pointer.
func PtrFromNull[T any](d datatypes.Null[T]) *T {
	if !d.Valid {
		return nil
	}
	return &d.V
}
