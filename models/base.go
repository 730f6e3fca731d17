package models

import (
	"context"

	"bitbucket.org/mmdatafocus/assets_backend/utils"
	"github.com/google/uuid"
)

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
