package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// RestrictionSpec limits which work a judgehost may pick up. Empty axes
// match everything.
type RestrictionSpec struct {
	Contests  []uuid.UUID `json:"contests"`
	Problems  []uuid.UUID `json:"problems"`
	Languages []uuid.UUID `json:"languages"`
	// Only hand out work created by a rejudging.
	RejudgeOnly bool `json:"rejudge_only"`
}

type JudgehostRestriction struct {
	Name string
	Model
	Restrictions RestrictionSpec `gorm:"type:jsonb;serializer:json"`
}

func (JudgehostRestriction) TableName() string {
	return "judgehost_restriction"
}

func (r JudgehostRestriction) GetID() uuid.UUID {
	return r.ID
}

type Judgehost struct {
	Hostname string `gorm:"uniqueIndex"`
	Model
	Active        bool `gorm:"default:true"`
	PollTime      datatypes.Null[time.Time]
	RestrictionID datatypes.Null[uuid.UUID]
}

func (Judgehost) TableName() string {
	return "judgehost"
}

func (j Judgehost) GetID() uuid.UUID {
	return j.ID
}
