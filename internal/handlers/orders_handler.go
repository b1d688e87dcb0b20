package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-collection-sync/internal/apperror"
	"github.com/imrishuroy/go-collection-sync/internal/cascade"
	"github.com/imrishuroy/go-collection-sync/internal/ingest"
	"github.com/imrishuroy/go-collection-sync/internal/validation"
)

func (h *handler) mergeOrders(c *gin.Context) {
	var req validation.MergeOrdersRequest
	if err := validation.BindAndValidate(c, &req, h.Validate); err != nil {
		return
	}
	opts, err := cascade.ParseOptions(req.Cascade)
	if err != nil {
		writeError(c, apperror.Validation(apperror.Problem{Field: "cascade", Message: err.Error()}))
		return
	}

	res, err := h.Cascade.Merge(c.Request.Context(), cascade.MergeRequest{
		UserID:        currentUser(c),
		TargetOrderID: req.TargetOrderID,
		RecordIDs:     req.RecordIDs,
		Options:       opts,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) splitOrder(c *gin.Context) {
	var req validation.SplitOrderRequest
	if err := validation.BindAndValidate(c, &req, h.Validate); err != nil {
		return
	}
	opts, err := cascade.ParseOptions(req.Cascade)
	if err != nil {
		writeError(c, apperror.Validation(apperror.Problem{Field: "cascade", Message: err.Error()}))
		return
	}

	res, err := h.Cascade.Split(c.Request.Context(), cascade.SplitRequest{
		UserID:    currentUser(c),
		Header:    orderHeader(req.Header),
		RecordIDs: req.RecordIDs,
		Options:   opts,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func orderHeader(h validation.OrderHeader) cascade.Header {
	return cascade.Header{
		Status:         h.Status,
		Shop:           h.Shop,
		OrderDate:      ingest.NormalizeDate(h.OrderDate),
		PaymentDate:    ingest.NormalizeDate(h.PaymentDate),
		ShippingDate:   ingest.NormalizeDate(h.ShippingDate),
		CollectionDate: ingest.NormalizeDate(h.CollectionDate),
		ShippingMethod: h.ShippingMethod,
	}
}
