package middleware

import (
	"context"
	"errors"
	"os"
	"reflect"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/contestkit/judge-orchestrator/cmd/internal/models"
	"github.com/contestkit/judge-orchestrator/cmd/internal/response"
	"github.com/contestkit/judge-orchestrator/internal/logger"
)

const name string = "github.com/contestkit/judge-orchestrator/cmd/internal/middleware"

var tracer = otel.Tracer(name)

// Handler carries the shared dependencies of the request middleware.
type Handler struct {
	DB *gorm.DB
}

// decoyHash is compared against on the failure paths so a rejected login
// costs the same as a real one.
var decoyHash string

func init() {
	var err error

	decoyHash, err = argon2id.CreateHash(uuid.NewString(), argon2id.DefaultParams)
	if err != nil {
		logger.Logger.Error("error creating decoy hash", "error", err)
		os.Exit(1)
	}
}

func burnHashCompare(ctx context.Context) {
	_, span := tracer.Start(ctx, "burnHashCompare")
	defer span.End()

	if _, err := argon2id.ComparePasswordAndHash("not the password", decoyHash); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decoy compare failed")
	}
}

func burnLookup(ctx context.Context, db *gorm.DB) {
	ctx, span := tracer.Start(ctx, "burnLookup")
	defer span.End()

	_, err := models.ByID[models.Auth](ctx, db.WithContext(ctx), uuid.New())
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decoy lookup failed")
	}
}

// BasicAuthValidator checks an api key id and token against the auth table.
// On success the auth row lands in the context under "auth".
func (h *Handler) BasicAuthValidator(rawID, token string, c echo.Context) (bool, error) {
	ctx, span := tracer.Start(c.Request().Context(), "BasicAuthValidator")
	defer span.End()

	db := h.DB.WithContext(ctx)

	span.SetAttributes(attribute.String("id.raw", rawID))

	id, err := uuid.Parse(rawID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "api key id is not a uuid")
		// Keep the invalid-id path as slow as the happy path.
		burnLookup(ctx, db)
		burnHashCompare(ctx)
		return false, nil
	}

	auth, err := models.ByID[models.Auth](ctx, db, id)
	if err != nil {
		span.RecordError(err)
		burnHashCompare(ctx)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Ok, "api key not found")
			return false, nil
		}
		span.SetStatus(codes.Error, "failed to look up api key")
		return false, response.InternalServerError
	}

	span.SetAttributes(
		attribute.String("note", auth.Note),
		attribute.Bool("active", auth.Active.Valid && auth.Active.V),
	)

	match, storedParams, err := argon2id.CheckHash(token, auth.Token)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to check token")
		return false, response.InternalServerError
	}

	if !auth.Active.Valid || !auth.Active.V {
		span.AddEvent("auth is not active")
		return false, nil
	}

	// Rehash whenever the stored hash predates the current parameters.
	if !reflect.DeepEqual(storedParams, argon2id.DefaultParams) {
		span.AddEvent("rehashing token with current params")
		newHash, err := argon2id.CreateHash(token, argon2id.DefaultParams)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to rehash token")
			return false, response.InternalServerError
		}
		auth.Token = newHash
		if err := db.Save(auth).Error; err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to persist rehashed token")
			return false, response.InternalServerError
		}
	}

	if match {
		span.AddEvent("successful login attempt")
		c.Set("auth", auth)
	} else {
		span.AddEvent("failed login attempt")
	}

	return match, nil
}
