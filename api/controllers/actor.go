package controllers

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/royaltyworks-backend/api/middleware"
	"github.com/angelmondragon/royaltyworks-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/royaltyworks-backend/pkg/errors"
)

// caller is the authenticated identity assembled from the request context.
type caller struct {
	UserID    uuid.UUID
	Role      enums.ActorRole
	CreatorID *uuid.UUID
}

func callerFromContext(ctx context.Context) (caller, error) {
	rawUserID := middleware.UserIDFromContext(ctx)
	if rawUserID == "" {
		return caller{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	userID, err := uuid.Parse(rawUserID)
	if err != nil {
		return caller{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id")
	}

	role, ok := enums.ParseActorRole(middleware.RoleFromContext(ctx))
	if !ok {
		return caller{}, pkgerrors.New(pkgerrors.CodeForbidden, "unknown actor role")
	}

	c := caller{UserID: userID, Role: role}
	if raw := middleware.CreatorIDFromContext(ctx); raw != "" {
		creatorID, err := uuid.Parse(raw)
		if err != nil {
			return caller{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid creator id")
		}
		c.CreatorID = &creatorID
	}
	return c, nil
}
