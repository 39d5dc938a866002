package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Contest struct {
	Name      string
	ShortName string `gorm:"uniqueIndex"`
	Model
	StartTime datatypes.Null[time.Time]
	EndTime   datatypes.Null[time.Time]
	Enabled   bool `gorm:"default:true"`
}

func (Contest) TableName() string {
	return "contest"
}

func (c Contest) GetID() uuid.UUID {
	return c.ID
}

type Team struct {
	Name        string
	DisplayName string
	Model
	ContestID uuid.UUID `gorm:"index"`
	// Last time a judging for this team left the queue. Drives the
	// fairness ordering of the queue.
	JudgingLastStarted datatypes.Null[time.Time]
	Enabled            bool `gorm:"default:true"`
}

func (Team) TableName() string {
	return "team"
}

func (t Team) GetID() uuid.UUID {
	return t.ID
}

type Problem struct {
	Name  string
	Label string
	Model
	ContestID     uuid.UUID `gorm:"index"`
	TestcaseCount int
	TimeLimit     float64
	// Overrides the global lazy evaluation setting when set.
	LazyEval datatypes.Null[bool]
}

func (Problem) TableName() string {
	return "problem"
}

func (p Problem) GetID() uuid.UUID {
	return p.ID
}

type Language struct {
	Name       string
	ExternalID string `gorm:"uniqueIndex"`
	Model
	TimeFactor float64 `gorm:"default:1"`
	AllowJudge bool    `gorm:"default:true"`
}

func (Language) TableName() string {
	return "language"
}

func (l Language) GetID() uuid.UUID {
	return l.ID
}
