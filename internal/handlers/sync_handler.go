package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-collection-sync/internal/apperror"
	"github.com/imrishuroy/go-collection-sync/internal/ingest"
	"github.com/imrishuroy/go-collection-sync/internal/jobs"
	"github.com/imrishuroy/go-collection-sync/internal/logging"
	"github.com/imrishuroy/go-collection-sync/internal/validation"
)

// ReplayedHeader is set on responses answered from an earlier request with the same idempotency key.
const ReplayedHeader = "Idempotent-Replayed"

var errNoCSV = apperror.Validation(apperror.Problem{
	Field:   "file",
	Message: "expected a multipart file field or a text/csv body",
})

func (h *handler) syncCSV(c *gin.Context) {
	data, err := h.readCSV(c)
	if err != nil {
		writeError(c, err)
		return
	}

	payload, err := h.Normalizer.NormalizeCSV(data)
	if err != nil {
		writeError(c, err)
		return
	}
	h.submit(c, payload)
}

func (h *handler) syncOrder(c *gin.Context) {
	var req validation.OrderSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "msg": err.Error()})
		return
	}

	// the normalizer validates so header and identifier problems come back together
	payload, err := h.Normalizer.NormalizeOrder(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	h.submit(c, payload)
}

func (h *handler) syncCollection(c *gin.Context) {
	var req validation.CollectionSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "msg": err.Error()})
		return
	}

	payload, err := h.Normalizer.NormalizeCollection(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	h.submit(c, payload)
}

func (h *handler) submit(c *gin.Context, payload ingest.Payload) {
	receipt, err := h.Jobs.Submit(c.Request.Context(), jobs.Request{
		UserID:         currentUser(c),
		Payload:        payload,
		IdempotencyKey: c.GetHeader(IdempotencyHeader),
		RequestID:      c.Writer.Header().Get(logging.RequestIDHeader),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	if receipt.Replayed {
		c.Header(ReplayedHeader, "true")
	}
	c.Header("Location", fmt.Sprintf("/sync/sessions/%s", receipt.SessionID))
	c.JSON(http.StatusAccepted, receipt)
}

// readCSV accepts a multipart upload in field "file" or a raw text/csv body.
func (h *handler) readCSV(c *gin.Context) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxCSVBytes)

	mediaType, _, _ := mime.ParseMediaType(c.GetHeader("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		fh, err := c.FormFile("file")
		if err != nil {
			if errors.Is(err, http.ErrMissingFile) {
				return nil, errNoCSV
			}
			return nil, tooLargeOr(err, "can't read multipart upload")
		}
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("can't open uploaded file: %w", err)
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("can't read uploaded file: %w", err)
		}
		return data, nil
	case "text/csv":
		data, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return nil, tooLargeOr(err, "can't read request body")
		}
		return data, nil
	default:
		return nil, errNoCSV
	}
}

func tooLargeOr(err error, msg string) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return apperror.Validation(apperror.Problem{
			Field:   "file",
			Message: fmt.Sprintf("csv exceeds %d bytes", mbe.Limit),
		})
	}
	return apperror.Validation(apperror.Problem{Field: "file", Message: msg + ": " + err.Error()})
}

func (h *handler) checkIDs(c *gin.Context) {
	var req validation.CheckIDsRequest
	if err := validation.BindAndValidate(c, &req, h.Validate); err != nil {
		return
	}

	valid, invalid := ingest.ExtractIDs(req.Items)
	if valid == nil {
		valid = []string{}
	}
	if invalid == nil {
		invalid = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"valid": valid, "invalid": invalid})
}
