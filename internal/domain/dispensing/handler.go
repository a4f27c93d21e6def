package dispensing

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinichq/pharmacy/internal/platform/apperr"
	"github.com/clinichq/pharmacy/internal/platform/middleware"
	"github.com/clinichq/pharmacy/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/prescriptions/:id/validation", h.Validate)

	api.POST("/dispense-records", h.Start)
	api.GET("/dispense-records", h.List)
	api.GET("/dispense-records/:id", h.Get)
	api.POST("/dispense-records/:id/complete", h.Complete)
	api.POST("/dispense-records/:id/review", h.Review)
	api.POST("/dispense-records/:id/quality-check", h.QualityCheck)
	api.POST("/dispense-records/:id/deliver", h.Deliver)
	api.POST("/dispense-records/:id/return", h.Return)
	api.POST("/dispense-records/:id/cancel", h.Cancel)

	api.POST("/dispense-items/:id/dispense", h.DispenseItem)
	api.POST("/dispense-items/:id/substitute", h.Substitute)
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) Validate(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	summary, err := h.svc.ValidatePrescription(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, summary)
}

type startRequest struct {
	PrescriptionID uuid.UUID `json:"prescription_id"`
	PharmacistID   uuid.UUID `json:"pharmacist_id"`
	PharmacistName string    `json:"pharmacist_name"`
}

func (h *Handler) Start(c echo.Context) error {
	var req startRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.PharmacistName == "" {
		req.PharmacistName = c.Request().Header.Get(middleware.UserNameHeader)
	}
	if req.PharmacistID == uuid.Nil {
		if id, err := uuid.Parse(c.Request().Header.Get(middleware.UserIDHeader)); err == nil {
			req.PharmacistID = id
		}
	}
	rec, err := h.svc.StartDispensing(c.Request().Context(), req.PrescriptionID, req.PharmacistID, req.PharmacistName)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	records, total, err := h.svc.ListRecords(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(records, total, pg.Limit, pg.Offset))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	rec, items, err := h.svc.GetRecordWithItems(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"record": rec, "items": items})
}

func (h *Handler) DispenseItem(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req DispenseItemRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Dispenser == "" {
		req.Dispenser = c.Request().Header.Get(middleware.UserNameHeader)
	}
	item, err := h.svc.DispenseItem(c.Request().Context(), id, req)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, item)
}

type substituteRequest struct {
	NewMedicineID uuid.UUID `json:"new_medicine_id"`
	Reason        string    `json:"reason"`
}

func (h *Handler) Substitute(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req substituteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	item, err := h.svc.SubstituteMedicine(c.Request().Context(), id, req.NewMedicineID, req.Reason)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, item)
}

func (h *Handler) Complete(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	rec, err := h.svc.CompleteDispensing(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

type reviewRequest struct {
	Reviewer string `json:"reviewer"`
	Comments string `json:"comments"`
}

func (h *Handler) Review(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req reviewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Reviewer == "" {
		req.Reviewer = c.Request().Header.Get(middleware.UserNameHeader)
	}
	rec, err := h.svc.RecordReview(c.Request().Context(), id, req.Reviewer, req.Comments)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

type qualityCheckRequest struct {
	Result    string `json:"result"`
	CheckedBy string `json:"checked_by"`
}

func (h *Handler) QualityCheck(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req qualityCheckRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.CheckedBy == "" {
		req.CheckedBy = c.Request().Header.Get(middleware.UserNameHeader)
	}
	rec, err := h.svc.RecordQualityCheck(c.Request().Context(), id, req.Result, req.CheckedBy)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

type deliverRequest struct {
	DelivererID   uuid.UUID `json:"deliverer_id"`
	DelivererName string    `json:"deliverer_name"`
	Notes         string    `json:"notes"`
}

func (h *Handler) Deliver(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req deliverRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.DelivererID == uuid.Nil {
		if uid, err := uuid.Parse(c.Request().Header.Get(middleware.UserIDHeader)); err == nil {
			req.DelivererID = uid
		}
	}
	if req.DelivererName == "" {
		req.DelivererName = c.Request().Header.Get(middleware.UserNameHeader)
	}
	rec, err := h.svc.DeliverMedicine(c.Request().Context(), id, req.DelivererID, req.DelivererName, req.Notes)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

type unwindRequest struct {
	Reason   string `json:"reason"`
	Operator string `json:"operator"`
}

func (h *Handler) Return(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req unwindRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Operator == "" {
		req.Operator = c.Request().Header.Get(middleware.UserNameHeader)
	}
	rec, err := h.svc.ReturnPrescription(c.Request().Context(), id, req.Reason, req.Operator)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req unwindRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Operator == "" {
		req.Operator = c.Request().Header.Get(middleware.UserNameHeader)
	}
	rec, err := h.svc.Cancel(c.Request().Context(), id, req.Reason, req.Operator)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, rec)
}
