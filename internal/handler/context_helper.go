package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rinkdesk/ice-booking-api/internal/middleware"
	"github.com/rinkdesk/ice-booking-api/internal/models"
	appErrors "github.com/rinkdesk/ice-booking-api/pkg/errors"
	"github.com/rinkdesk/ice-booking-api/pkg/response"
)

// principalFromContext aborts the request with 401 when no caller is attached.
func principalFromContext(c *gin.Context) (models.Principal, bool) {
	p, ok := middleware.Principal(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return models.Principal{}, false
	}
	return p, true
}

func bindError(err error, what string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid "+what+" payload")
}
