package inventory

import (
	"net/http"
	"strconv"

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
	api.POST("/inventory/inbound", h.Inbound)
	api.POST("/inventory/outbound", h.Outbound)
	api.POST("/inventory/reservations", h.Reserve)
	api.POST("/inventory/releases", h.Release)
	api.POST("/inventory/adjustments", h.ProposeAdjustment)
	api.POST("/inventory/adjustments/:id/review", h.ReviewAdjustment)

	api.GET("/inventory/batches", h.ListAllBatches)
	api.GET("/inventory/medicines/:medicineId/stock", h.StockSummary)
	api.GET("/inventory/medicines/:medicineId/batches", h.ListBatches)
	api.GET("/inventory/medicines/:medicineId/batches/:batchNumber", h.GetBatch)
	api.PUT("/inventory/medicines/:medicineId/batches/:batchNumber/status", h.UpdateBatchStatus)
	api.GET("/inventory/medicines/:medicineId/batches/:batchNumber/reconciliation", h.Reconcile)
	api.GET("/inventory/medicines/:medicineId/allocation", h.Allocate)

	api.GET("/inventory/transactions", h.ListTransactions)
	api.GET("/inventory/transactions/:number", h.GetTransaction)
	api.GET("/inventory/report", h.ExportReport)
}

func operatorFrom(c echo.Context, body string) string {
	if body != "" {
		return body
	}
	return c.Request().Header.Get(middleware.UserNameHeader)
}

func (h *Handler) Inbound(c echo.Context) error {
	var mv StockMovement
	if err := c.Bind(&mv); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	mv.Operator = operatorFrom(c, mv.Operator)
	entry, err := h.svc.AddStock(c.Request().Context(), mv)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, entry)
}

type outboundRequest struct {
	StockMovement
	Type TransactionType `json:"type"`
}

func (h *Handler) Outbound(c echo.Context) error {
	var req outboundRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Type == "" {
		req.Type = TxOutbound
	}
	req.Operator = operatorFrom(c, req.Operator)
	entry, err := h.svc.ReduceStock(c.Request().Context(), req.StockMovement, req.Type)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, entry)
}

type reservationRequest struct {
	MedicineID  uuid.UUID `json:"medicine_id"`
	BatchNumber string    `json:"batch_number"`
	Quantity    int       `json:"quantity"`
}

func (h *Handler) Reserve(c echo.Context) error {
	var req reservationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Reserve(c.Request().Context(), req.MedicineID, req.BatchNumber, req.Quantity); err != nil {
		return apperr.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Release(c echo.Context) error {
	var req reservationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	released, err := h.svc.Release(c.Request().Context(), req.MedicineID, req.BatchNumber, req.Quantity)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"released": released})
}

type adjustmentRequest struct {
	StockMovement
	Type     TransactionType `json:"type"`
	Quantity int             `json:"quantity"`
}

func (h *Handler) ProposeAdjustment(c echo.Context) error {
	var req adjustmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Operator = operatorFrom(c, req.Operator)
	entry, err := h.svc.ProposeAdjustment(c.Request().Context(), req.StockMovement, req.Type, req.Quantity)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, entry)
}

func (h *Handler) ReviewAdjustment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req struct {
		Approve bool `json:"approve"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	entry, err := h.svc.ReviewAdjustment(c.Request().Context(), id, req.Approve)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *Handler) StockSummary(c echo.Context) error {
	medicineID, err := uuid.Parse(c.Param("medicineId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid medicine id")
	}
	ctx := c.Request().Context()
	total, err := h.svc.TotalStock(ctx, medicineID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	available, err := h.svc.AvailableStock(ctx, medicineID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"total_stock": total, "available_stock": available})
}

func (h *Handler) ListBatches(c echo.Context) error {
	medicineID, err := uuid.Parse(c.Param("medicineId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid medicine id")
	}
	batches, err := h.svc.ListBatches(c.Request().Context(), medicineID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, batches)
}

func (h *Handler) ListAllBatches(c echo.Context) error {
	pg := pagination.FromContext(c)
	batches, total, err := h.svc.ListAllBatches(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(batches, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetBatch(c echo.Context) error {
	medicineID, err := uuid.Parse(c.Param("medicineId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid medicine id")
	}
	b, err := h.svc.FindBatch(c.Request().Context(), medicineID, c.Param("batchNumber"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) UpdateBatchStatus(c echo.Context) error {
	medicineID, err := uuid.Parse(c.Param("medicineId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid medicine id")
	}
	var req struct {
		Status BatchStatus `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.MarkBatchStatus(c.Request().Context(), medicineID, c.Param("batchNumber"), req.Status); err != nil {
		return apperr.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Reconcile(c echo.Context) error {
	medicineID, err := uuid.Parse(c.Param("medicineId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid medicine id")
	}
	result, err := h.svc.ReconcileBatch(c.Request().Context(), medicineID, c.Param("batchNumber"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) Allocate(c echo.Context) error {
	medicineID, err := uuid.Parse(c.Param("medicineId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid medicine id")
	}
	qty, err := strconv.Atoi(c.QueryParam("quantity"))
	if err != nil || qty <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "quantity must be a positive integer")
	}
	batch, err := h.svc.SelectFIFOBatch(c.Request().Context(), medicineID, qty)
	if err != nil {
		return apperr.HTTPError(err)
	}
	if batch == nil {
		return echo.NewHTTPError(http.StatusConflict, "no batch can cover the requested quantity")
	}
	return c.JSON(http.StatusOK, batch)
}

func (h *Handler) ListTransactions(c echo.Context) error {
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()

	if raw := c.QueryParam("medicine_id"); raw != "" {
		medicineID, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid medicine id")
		}
		items, total, err := h.svc.ListTransactionsByMedicine(ctx, medicineID, pg.Limit, pg.Offset)
		if err != nil {
			return apperr.HTTPError(err)
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
	}

	items, total, err := h.svc.ListTransactions(ctx, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetTransaction(c echo.Context) error {
	t, err := h.svc.GetTransactionByNumber(c.Request().Context(), c.Param("number"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) ExportReport(c echo.Context) error {
	buf, err := h.svc.ExportReport(c.Request().Context())
	if err != nil {
		return apperr.HTTPError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="inventory-report.xlsx"`)
	return c.Blob(http.StatusOK,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}
