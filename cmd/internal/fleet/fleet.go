// Package fleet tracks judgehosts: registration, liveness, restrictions and
// the claiming of work.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/contestkit/judge-orchestrator/cmd/internal/models"
	"github.com/contestkit/judge-orchestrator/internal/audit"
	"github.com/contestkit/judge-orchestrator/internal/config"
	"github.com/contestkit/judge-orchestrator/internal/types"
)

const name string = "github.com/contestkit/judge-orchestrator/cmd/internal/fleet"

var tracer = otel.Tracer(name)

var ErrUnknownJudgehost = errors.New("judgehost is not registered")

type Manager struct {
	db  *gorm.DB
	cfg *config.JudgehostConfig
}

func NewManager(db *gorm.DB, cfg *config.JudgehostConfig) *Manager {
	return &Manager{db: db, cfg: cfg}
}

// Register upserts a judgehost by hostname and refreshes its poll time. A
// returning host keeps its active flag and restriction.
func (m *Manager) Register(ctx context.Context, hostname string) (*models.Judgehost, error) {
	ctx, span := tracer.Start(ctx, "Register")
	defer span.End()

	span.SetAttributes(attribute.String("hostname", hostname))

	host := models.Judgehost{
		Hostname: hostname,
		Active:   true,
		PollTime: models.NewNullFromData(time.Now().UTC()),
	}

	err := m.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "hostname"}},
			DoUpdates: clause.AssignmentColumns([]string{"poll_time"}),
		}).
		Create(&host).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to register judgehost")
		return nil, fmt.Errorf("failed to register judgehost: %w", err)
	}

	// the upsert does not return the surviving row's fields
	err = m.db.WithContext(ctx).Where("hostname = ?", hostname).First(&host).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load judgehost after register")
		return nil, fmt.Errorf("failed to load judgehost after register: %w", err)
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "registered")
	return &host, nil
}

// Poll refreshes the liveness timestamp of a judgehost.
func (m *Manager) Poll(ctx context.Context, hostname string, polledAt time.Time) error {
	ctx, span := tracer.Start(ctx, "Poll")
	defer span.End()

	result := m.db.WithContext(ctx).Model(&models.Judgehost{}).
		Where("hostname = ?", hostname).
		Update("poll_time", polledAt.UTC())
	if result.Error != nil {
		span.RecordError(result.Error)
		span.SetStatus(codes.Error, "failed to update poll time")
		return fmt.Errorf("failed to update poll time: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		span.RecordError(ErrUnknownJudgehost)
		span.SetStatus(codes.Error, "unknown judgehost")
		return ErrUnknownJudgehost
	}

	return nil
}

// Classify buckets a judgehost by how recently it polled.
func (m *Manager) Classify(host *models.Judgehost, now time.Time) types.JudgehostLiveness {
	if !host.PollTime.Valid {
		return types.LivenessNoConn
	}

	age := now.Sub(host.PollTime.V)
	switch {
	case age <= time.Duration(m.cfg.WarningSeconds)*time.Second:
		return types.LivenessOK
	case age <= time.Duration(m.cfg.CriticalSeconds)*time.Second:
		return types.LivenessWarn
	default:
		return types.LivenessCrit
	}
}

// RestrictionAllows reports whether a queue task passes a restriction. An
// empty axis matches everything; rejudge only work additionally requires the
// judging to belong to a rejudging.
func RestrictionAllows(
	spec models.RestrictionSpec,
	task *models.QueueTask,
	partOfRejudging bool,
) bool {
	if len(spec.Contests) != 0 && !slices.Contains(spec.Contests, task.ContestID) {
		return false
	}
	if len(spec.Problems) != 0 && !slices.Contains(spec.Problems, task.ProblemID) {
		return false
	}
	if len(spec.Languages) != 0 && !slices.Contains(spec.Languages, task.LanguageID) {
		return false
	}
	if spec.RejudgeOnly && !partOfRejudging {
		return false
	}
	return true
}

// SetActive toggles whether a judgehost may receive work. Deactivating also
// releases its unfinished judge tasks so other hosts can pick them up.
func (m *Manager) SetActive(ctx context.Context, hostname string, active bool) error {
	ctx, span := tracer.Start(ctx, "SetActive")
	defer span.End()

	span.SetAttributes(
		attribute.String("hostname", hostname),
		attribute.Bool("active", active),
	)

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var host models.Judgehost
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("hostname = ?", hostname).
			First(&host).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUnknownJudgehost
			}
			return fmt.Errorf("failed to load judgehost: %w", err)
		}

		err = tx.Model(&models.Judgehost{}).
			Where("id = ?", host.ID).
			Update("active", active).Error
		if err != nil {
			return fmt.Errorf("failed to toggle judgehost: %w", err)
		}

		if !active {
			err = tx.Model(&models.JudgeTask{}).
				Where("judgehost_id = ?", host.ID).
				Where("result IS NULL").
				Updates(map[string]any{
					"judgehost_id": nil,
					"start_time":   nil,
				}).Error
			if err != nil {
				return fmt.Errorf("failed to release claimed judge tasks: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to set active")
		return err
	}

	audit.LogJudgehostToggled(audit.Context{}, hostname, active)

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "toggled")
	return nil
}

// restrictionFor loads the restriction attached to a judgehost, if any.
func (m *Manager) restrictionFor(
	ctx context.Context,
	host *models.Judgehost,
) (*models.RestrictionSpec, error) {
	if !host.RestrictionID.Valid {
		return nil, nil
	}

	restriction, err := models.ByID[models.JudgehostRestriction](ctx, m.db, host.RestrictionID.V)
	if err != nil {
		return nil, fmt.Errorf("failed to load judgehost restriction: %w", err)
	}

	return &restriction.Restrictions, nil
}
