package handlers

import (
	"fmt"
	"net/http"

	"github.com/upb/inventory-authz/middleware"
	"github.com/upb/inventory-authz/utils"
	"go.uber.org/zap"
)

// ResourceHandler answers an authorized request for an inventory resource.
// Entity CRUD is served by the owning service, so the gate only confirms the
// request got through and reports 501.
func ResourceHandler(resource string, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger.Debug("resource request passed the gate",
			zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
			zap.String("resource", resource),
			zap.String("method", r.Method),
			zap.String("user_id", middleware.GetUserIDFromContext(ctx)),
			zap.Bool("internal", middleware.IsInternalFromContext(ctx)))

		_ = utils.WriteNotImplemented(w, fmt.Sprintf("%s endpoints are served by the %s service", resource, resource))
	}
}

// NotFoundHandler answers routes nothing is mounted on
func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteNotFound(w, "endpoint not found")
}
