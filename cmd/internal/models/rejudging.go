package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Rejudging tracks one full rejudge batch. Non-full rejudges never create
// one of these rows.
type Rejudging struct {
	Reason    string
	StartedBy string
	Model
	StartTime time.Time
	// Set exactly once, when the rejudging is applied or canceled.
	EndedAt    datatypes.Null[time.Time]
	FinishedBy datatypes.Null[string]
	// Null while active. True once applied, false once canceled.
	Applied datatypes.Null[bool]
	// Apply automatically as soon as every judging has finished.
	AutoApply bool
}

func (Rejudging) TableName() string {
	return "rejudging"
}

func (r Rejudging) GetID() uuid.UUID {
	return r.ID
}

// Terminal reports whether the rejudging has already been applied or
// canceled.
func (r Rejudging) Terminal() bool {
	return r.EndedAt.Valid
}
