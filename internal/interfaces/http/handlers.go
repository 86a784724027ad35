package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/application/port"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/application/service"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/application/workflow"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/entity"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/imprest"
	domainwf "github.com/lord-charles/srcc-dashboard-sub000/internal/domain/workflow"
)

const (
	idempotencyHeader = "Idempotency-Key"
	defaultPageSize   = 50
	maxPageSize       = 200
)

// ReceiptFiles serves files previously staged for accounting submissions
type ReceiptFiles interface {
	Open(url string) (*os.File, error)
	URLPrefix() string
}

// Handlers contains all HTTP request handlers
type Handlers struct {
	imprests service.ImprestService
	stats    service.StatsService
	receipts ReceiptFiles
	logger   *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	imprests service.ImprestService,
	stats service.StatsService,
	receipts ReceiptFiles,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		imprests: imprests,
		stats:    stats,
		receipts: receipts,
		logger:   logger,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

type createImprestRequest struct {
	PaymentReason  string             `json:"payment_reason"`
	Currency       string             `json:"currency"`
	Amount         json.RawMessage    `json:"amount"`
	PaymentType    entity.PaymentType `json:"payment_type"`
	Explanation    string             `json:"explanation"`
	AttachmentURLs []string           `json:"attachment_urls"`
}

type commentRequest struct {
	Comments        string `json:"comments"`
	ExpectedVersion int64  `json:"expected_version"`
}

type rejectRequest struct {
	Reason          string `json:"reason"`
	ExpectedVersion int64  `json:"expected_version"`
}

type disburseRequest struct {
	Amount          json.RawMessage `json:"amount"`
	Comments        string          `json:"comments"`
	ExpectedVersion int64           `json:"expected_version"`
}

type acknowledgeRequest struct {
	Received        *bool  `json:"received"`
	Comments        string `json:"comments"`
	ExpectedVersion int64  `json:"expected_version"`
}

type receiptRequest struct {
	Description string          `json:"description"`
	Amount      json.RawMessage `json:"amount"`
	ReceiptURL  string          `json:"receipt_url"`
}

type accountingRequest struct {
	Receipts        []receiptRequest `json:"receipts"`
	Comments        string           `json:"comments"`
	ExpectedVersion int64            `json:"expected_version"`
}

type listQuery struct {
	Status     string `form:"status"`
	Department string `form:"department"`
	Limit      int    `form:"limit"`
	Offset     int    `form:"offset"`
}

// parseAmount decodes a JSON number or numeric string; a missing or null value is rejected
func parseAmount(field string, raw json.RawMessage) (decimal.Decimal, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return decimal.Zero, badRequest(field, field+" is required")
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(raw); err != nil {
		return decimal.Zero, badRequest(field, field+" must be a number")
	}
	return d, nil
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// CreateImprest handles POST /api/v1/imprests
func (h *Handlers) CreateImprest(c *gin.Context) {
	var req createImprestRequest
	if err := bindBody(c, &req, false); err != nil {
		h.fail(c, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		h.fail(c, err)
		return
	}

	rec, err := h.imprests.Create(c.Request.Context(), actorFrom(c), imprest.NewRequest{
		PaymentReason:  req.PaymentReason,
		Currency:       req.Currency,
		Amount:         amount,
		PaymentType:    req.PaymentType,
		Explanation:    req.Explanation,
		AttachmentURLs: req.AttachmentURLs,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: toImprestResponse(rec)})
}

// ApproveHOD handles POST /api/v1/imprests/:id/approve/hod
func (h *Handlers) ApproveHOD(c *gin.Context) {
	var req commentRequest
	if err := bindBody(c, &req, true); err != nil {
		h.fail(c, err)
		return
	}
	res, err := h.imprests.ApproveHOD(c.Request.Context(), h.target(c, req.ExpectedVersion), req.Comments)
	h.respond(c, res, err)
}

// ApproveAccountant handles POST /api/v1/imprests/:id/approve/accountant
func (h *Handlers) ApproveAccountant(c *gin.Context) {
	var req commentRequest
	if err := bindBody(c, &req, true); err != nil {
		h.fail(c, err)
		return
	}
	res, err := h.imprests.ApproveAccountant(c.Request.Context(), h.target(c, req.ExpectedVersion), req.Comments)
	h.respond(c, res, err)
}

// Reject handles POST /api/v1/imprests/:id/reject
func (h *Handlers) Reject(c *gin.Context) {
	var req rejectRequest
	if err := bindBody(c, &req, false); err != nil {
		h.fail(c, err)
		return
	}
	res, err := h.imprests.Reject(c.Request.Context(), h.target(c, req.ExpectedVersion), req.Reason)
	h.respond(c, res, err)
}

// Disburse handles POST /api/v1/imprests/:id/disburse
func (h *Handlers) Disburse(c *gin.Context) {
	var req disburseRequest
	if err := bindBody(c, &req, false); err != nil {
		h.fail(c, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		h.fail(c, err)
		return
	}
	res, err := h.imprests.Disburse(c.Request.Context(), h.target(c, req.ExpectedVersion),
		c.GetHeader(idempotencyHeader), amount, req.Comments)
	h.respond(c, res, err)
}

// Acknowledge handles POST /api/v1/imprests/:id/acknowledge
func (h *Handlers) Acknowledge(c *gin.Context) {
	var req acknowledgeRequest
	if err := bindBody(c, &req, false); err != nil {
		h.fail(c, err)
		return
	}
	if req.Received == nil {
		h.fail(c, badRequest("received", "received must be true or false"))
		return
	}
	res, err := h.imprests.AcknowledgeReceipt(c.Request.Context(), h.target(c, req.ExpectedVersion), *req.Received, req.Comments)
	h.respond(c, res, err)
}

// SubmitAccounting handles POST /api/v1/imprests/:id/accounting.
// The body is JSON, or multipart with a JSON "payload" field and "receipt_files" parts.
func (h *Handlers) SubmitAccounting(c *gin.Context) {
	var (
		req   accountingRequest
		files []port.UploadedFile
	)

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		form, err := c.MultipartForm()
		if err != nil {
			h.fail(c, badRequest("body", "malformed multipart form: "+err.Error()))
			return
		}
		payload := form.Value["payload"]
		if len(payload) != 1 {
			h.fail(c, badRequest("payload", "exactly one payload field is required"))
			return
		}
		if err := json.Unmarshal([]byte(payload[0]), &req); err != nil {
			h.fail(c, badRequest("payload", "malformed JSON: "+err.Error()))
			return
		}
		for _, fh := range form.File["receipt_files"] {
			f, err := fh.Open()
			if err != nil {
				h.fail(c, fmt.Errorf("failed to open upload %s: %w", fh.Filename, err))
				return
			}
			defer f.Close()
			files = append(files, port.UploadedFile{Name: fh.Filename, Content: f})
		}
	} else if err := bindBody(c, &req, false); err != nil {
		h.fail(c, err)
		return
	}

	receipts := make([]imprest.ReceiptInput, 0, len(req.Receipts))
	for i, r := range req.Receipts {
		amount, err := parseAmount(fmt.Sprintf("receipts[%d].amount", i), r.Amount)
		if err != nil {
			h.fail(c, err)
			return
		}
		receipts = append(receipts, imprest.ReceiptInput{
			Description: r.Description,
			Amount:      amount,
			ReceiptURL:  r.ReceiptURL,
		})
	}

	res, err := h.imprests.SubmitAccounting(c.Request.Context(), h.target(c, req.ExpectedVersion),
		c.GetHeader(idempotencyHeader), service.AccountingInput{
			Receipts: receipts,
			Comments: req.Comments,
			Files:    files,
		})
	h.respond(c, res, err)
}

// VerifyAccounting handles POST /api/v1/imprests/:id/accounting/verify
func (h *Handlers) VerifyAccounting(c *gin.Context) {
	var req commentRequest
	if err := bindBody(c, &req, true); err != nil {
		h.fail(c, err)
		return
	}
	res, err := h.imprests.VerifyAccounting(c.Request.Context(), h.target(c, req.ExpectedVersion), req.Comments)
	h.respond(c, res, err)
}

// ResolveDispute handles POST /api/v1/imprests/:id/dispute/resolve
func (h *Handlers) ResolveDispute(c *gin.Context) {
	var req commentRequest
	if err := bindBody(c, &req, false); err != nil {
		h.fail(c, err)
		return
	}
	res, err := h.imprests.ResolveDispute(c.Request.Context(), h.target(c, req.ExpectedVersion), req.Comments)
	h.respond(c, res, err)
}

// ListMyImprests handles GET /api/v1/imprests/mine
func (h *Handlers) ListMyImprests(c *gin.Context) {
	q, err := parseListQuery(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	records, err := h.imprests.GetMine(c.Request.Context(), actorFrom(c), q)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: toImprestList(records)})
}

// ListImprests handles GET /api/v1/imprests
func (h *Handlers) ListImprests(c *gin.Context) {
	q, err := parseListQuery(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	records, err := h.imprests.GetAll(c.Request.Context(), actorFrom(c), q)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: toImprestList(records)})
}

// GetImprest handles GET /api/v1/imprests/:id
func (h *Handlers) GetImprest(c *gin.Context) {
	rec, err := h.imprests.GetByID(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: toImprestResponse(rec)})
}

// GetHistory handles GET /api/v1/imprests/:id/history
func (h *Handlers) GetHistory(c *gin.Context) {
	history, err := h.imprests.History(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: history})
}

// GetStats handles GET /api/v1/imprests/stats
func (h *Handlers) GetStats(c *gin.Context) {
	s, err := h.stats.Stats(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: s})
}

// ExportRegister handles GET /api/v1/imprests/export
func (h *Handlers) ExportRegister(c *gin.Context) {
	exporter := h.stats.Exporter()
	if exporter == nil {
		h.fail(c, errors.New("no register exporter configured"))
		return
	}

	var buf bytes.Buffer
	if err := h.stats.Export(c.Request.Context(), actorFrom(c), &buf); err != nil {
		h.fail(c, err)
		return
	}

	filename := fmt.Sprintf("imprest-register-%s%s", time.Now().UTC().Format("20060102"), exporter.Extension())
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, exporter.ContentType(), buf.Bytes())
}

// GetReceiptFile handles GET /api/v1/receipts/:id/:file for callers who may view the imprest
func (h *Handlers) GetReceiptFile(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.imprests.GetByID(c.Request.Context(), actorFrom(c), id); err != nil {
		h.fail(c, err)
		return
	}

	name := c.Param("file")
	f, err := h.receipts.Open(h.receipts.URLPrefix() + "/" + id + "/" + name)
	if err != nil {
		if os.IsNotExist(err) {
			h.fail(c, fmt.Errorf("%w: receipt %s", imprest.ErrNotFound, name))
			return
		}
		h.fail(c, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		h.fail(c, err)
		return
	}
	http.ServeContent(c.Writer, c.Request, name, info.ModTime(), f)
}

func (h *Handlers) target(c *gin.Context, expectedVersion int64) service.Target {
	return service.Target{
		ImprestID:       c.Param("id"),
		Actor:           actorFrom(c),
		ExpectedVersion: expectedVersion,
	}
}

func (h *Handlers) respond(c *gin.Context, res *workflow.TransitionResult, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: toTransitionResponse(res)})
}

func (h *Handlers) fail(c *gin.Context, err error) {
	kind := imprest.KindOf(err)
	if kind == imprest.KindInternal {
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	} else {
		h.logger.Debug("Request rejected",
			zap.String("path", c.Request.URL.Path),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
	abortWithError(c, err, "")
}

func parseListQuery(c *gin.Context) (service.ListQuery, error) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		return service.ListQuery{}, badRequest("query", "invalid query parameters")
	}

	status := domainwf.State(q.Status)
	if q.Status != "" && !status.IsValid() {
		return service.ListQuery{}, badRequest("status", fmt.Sprintf("unknown status %q", q.Status))
	}
	if q.Limit <= 0 {
		q.Limit = defaultPageSize
	}
	if q.Limit > maxPageSize {
		q.Limit = maxPageSize
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	return service.ListQuery{
		Status:     status,
		Department: q.Department,
		Limit:      q.Limit,
		Offset:     q.Offset,
	}, nil
}
