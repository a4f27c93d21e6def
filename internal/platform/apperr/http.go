package apperr

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HTTPError maps an application error to an echo HTTP error. Validation
// failures become 400, business-rule rejections 409, missing resources 404;
// anything unclassified is a 500.
func HTTPError(err error) *echo.HTTPError {
	k, _ := KindOf(err)
	switch k {
	case KindValidation:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case KindBusinessRule:
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case KindNotFound:
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
