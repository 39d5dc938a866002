// Package jury exposes the jury facing API: rejudgings, verification, queue
// control and judgehost management.
package jury

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/contestkit/judge-orchestrator/cmd/internal/fleet"
	"github.com/contestkit/judge-orchestrator/cmd/internal/judging"
	servermiddleware "github.com/contestkit/judge-orchestrator/cmd/internal/middleware"
	"github.com/contestkit/judge-orchestrator/cmd/internal/models"
	"github.com/contestkit/judge-orchestrator/cmd/internal/queue"
	"github.com/contestkit/judge-orchestrator/cmd/internal/rejudging"
	"github.com/contestkit/judge-orchestrator/internal/config"
)

const name = "github.com/contestkit/judge-orchestrator/cmd/internal/routes/jury"

var tracer = otel.Tracer(name)

type Handler struct {
	DB         *gorm.DB
	config     *config.Config
	rejudgings *rejudging.Manager
	judgings   *judging.Manager
	queue      *queue.Manager
	fleet      *fleet.Manager
}

func NewHandler(
	db *gorm.DB,
	cfg *config.Config,
	rejudgings *rejudging.Manager,
	judgings *judging.Manager,
	queueManager *queue.Manager,
	fleetManager *fleet.Manager,
) Handler {
	return Handler{
		DB:         db,
		config:     cfg,
		rejudgings: rejudgings,
		judgings:   judgings,
		queue:      queueManager,
		fleet:      fleetManager,
	}
}

func (h *Handler) AddRoutes(e *echo.Echo, middlewareHandler *servermiddleware.Handler) {
	juryGroup := e.Group(
		"/jury",
		middleware.BasicAuth(middlewareHandler.BasicAuthValidator),
		servermiddleware.HasPermissions("auth", &models.Permissions{Jury: true}),
	)

	rejudgingGroup := juryGroup.Group("/rejudgings")
	rejudgingGroup.POST("/", h.CreateRejudging)
	rejudgingGroup.GET(
		"/:rejudging_id/",
		h.GetRejudging,
		servermiddleware.PopulateFromIDParam[models.Rejudging](
			middlewareHandler,
			"rejudging_id",
			"rejudging",
		),
	)
	rejudgingGroup.POST(
		"/:rejudging_id/apply/",
		h.ApplyRejudging,
		servermiddleware.PopulateFromIDParam[models.Rejudging](
			middlewareHandler,
			"rejudging_id",
			"rejudging",
		),
	)
	rejudgingGroup.POST(
		"/:rejudging_id/cancel/",
		h.CancelRejudging,
		servermiddleware.PopulateFromIDParam[models.Rejudging](
			middlewareHandler,
			"rejudging_id",
			"rejudging",
		),
	)

	juryGroup.POST("/judge-remaining/", h.BatchRequestRemaining)

	judgingGroup := juryGroup.Group(
		"/judgings/:judging_id",
		servermiddleware.PopulateFromIDParam[models.Judging](
			middlewareHandler,
			"judging_id",
			"judging",
		),
		servermiddleware.ContestEnabled(middlewareHandler, "judging"),
	)
	judgingGroup.POST("/verify/", h.VerifyJudging)
	judgingGroup.POST("/judge-remaining/", h.RequestRemaining)
	judgingGroup.POST("/priority/", h.ChangePriority)
	judgingGroup.POST("/reorder/", h.ReorderTestcases)

	judgehostGroup := juryGroup.Group("/judgehosts")
	judgehostGroup.GET("/", h.ListJudgehosts)
	judgehostGroup.POST("/:hostname/toggle/", h.ToggleJudgehost)
}
