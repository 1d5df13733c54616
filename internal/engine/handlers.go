package engine

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/booking"
	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/chain"
	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/dispute"
	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/evidence"
	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/pagination"
	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/security"
	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/token"
	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/validation"
)

// SignerResolver resolves a caller address to its signing agent.
type SignerResolver interface {
	SignerFor(addr common.Address) (chain.Signer, bool)
}

// Handler provides HTTP endpoints for the coordination engine.
type Handler struct {
	engine  *Engine
	signers SignerResolver
}

// NewHandler creates an engine handler.
func NewHandler(engine *Engine, signers SignerResolver) *Handler {
	return &Handler{engine: engine, signers: signers}
}

// RegisterRoutes sets up the engine routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/prechecks", h.CheckPrecondition)
	r.POST("/authorizations", h.Authorize)

	r.POST("/bookings", h.Pay)
	r.GET("/bookings/:id", h.GetBooking)
	r.GET("/participants/:address/bookings", h.ListBookings)

	r.POST("/bookings/:id/start", h.StartWork)
	r.POST("/bookings/:id/evidence", h.SubmitEvidence)
	r.GET("/bookings/:id/evidence", h.ListEvidence)
	r.POST("/bookings/:id/release", h.Release)
	r.POST("/bookings/:id/cancel", h.Cancel)
	r.POST("/bookings/:id/dispute", h.RaiseDispute)
	r.GET("/bookings/:id/dispute", h.ActiveDispute)
	r.GET("/bookings/:id/window", h.Window)
	r.POST("/bookings/:id/reconcile", h.Reconcile)

	r.GET("/receipts/:txHash/request-id", h.ResolveRequestID)
	r.GET("/escrows/:requestId", h.ReadEscrowState)
}

// callerSigner resolves the signer for the X-Caller-Address header.
func (h *Handler) callerSigner(c *gin.Context) (chain.Signer, bool) {
	addr := c.GetHeader("X-Caller-Address")
	if !validation.IsValidEthAddress(addr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_caller",
			"message": "X-Caller-Address must be a valid Ethereum address",
		})
		return nil, false
	}
	signer, ok := h.signers.SignerFor(common.HexToAddress(addr))
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "unknown_caller",
			"message": "No signing key registered for this address",
		})
		return nil, false
	}
	return signer, true
}

// CheckPrecondition handles GET /v1/prechecks
func (h *Handler) CheckPrecondition(c *gin.Context) {
	payer := c.Query("payer")
	method := c.Query("method")
	amount := c.Query("amount")

	if errs := validation.Validate(
		validation.Required("payer", payer),
		validation.Required("method", method),
		validation.Required("amount", amount),
		validation.ValidAddress("payer", payer),
		validation.ValidAmount("amount", amount),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	res, err := h.engine.CheckPrecondition(c.Request.Context(), common.HexToAddress(payer), method, amount)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if res.Err != nil {
		// Precheck is never silently payable when the ledger is unreachable.
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "precheck_failed",
			"message": "Could not verify funds against the ledger",
		})
		return
	}

	resp := gin.H{
		"payable":            res.Payable,
		"needsAuthorization": res.NeedsAuthorization,
		"balance":            res.Balance.String(),
		"required":           res.Required.String(),
		// Null for the native method: no spending authorization exists.
		"allowance": nil,
	}
	if res.Allowance != nil {
		resp["allowance"] = res.Allowance.String()
	}
	c.JSON(http.StatusOK, resp)
}

type authorizeRequest struct {
	Method string `json:"method" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

// Authorize handles POST /v1/authorizations
func (h *Handler) Authorize(c *gin.Context) {
	signer, ok := h.callerSigner(c)
	if !ok {
		return
	}

	var req authorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	txHash, err := h.engine.Authorize(c.Request.Context(), signer, req.Method, req.Amount)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"txHash": txHash})
}

// Pay handles POST /v1/bookings
func (h *Handler) Pay(c *gin.Context) {
	signer, ok := h.callerSigner(c)
	if !ok {
		return
	}

	var req PayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if errs := validation.Validate(
		validation.ValidAddress("providerAddr", req.ProviderAddr),
		validation.ValidAmount("amount", req.Amount),
		validation.MaxLength("requirements", req.Requirements, validation.MaxStringLength),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	b, txHash, err := h.engine.Pay(c.Request.Context(), signer, req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"booking": b, "txHash": txHash})
}

// GetBooking handles GET /v1/bookings/:id
func (h *Handler) GetBooking(c *gin.Context) {
	b, err := h.engine.GetBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": b})
}

// ListBookings handles GET /v1/participants/:address/bookings
func (h *Handler) ListBookings(c *gin.Context) {
	address := c.Param("address")
	if !validation.IsValidEthAddress(address) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "address must be a valid Ethereum address",
		})
		return
	}

	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > 200 {
				limit = 200
			}
		}
	}

	cursor, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_cursor",
			"message": "cursor is malformed",
		})
		return
	}

	bookings, next, err := h.engine.ListBookings(c.Request.Context(), common.HexToAddress(address), cursor, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	resp := gin.H{"bookings": bookings, "count": len(bookings)}
	if next != "" {
		resp["nextCursor"] = next
	}
	c.JSON(http.StatusOK, resp)
}

// StartWork handles POST /v1/bookings/:id/start
func (h *Handler) StartWork(c *gin.Context) {
	signer, ok := h.callerSigner(c)
	if !ok {
		return
	}

	b, err := h.engine.StartWork(c.Request.Context(), signer.Address(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": b})
}

type evidenceRequest struct {
	BlobURLs []string `json:"blobUrls" binding:"required"`
	Notes    string   `json:"notes" binding:"required"`
}

// SubmitEvidence handles POST /v1/bookings/:id/evidence
func (h *Handler) SubmitEvidence(c *gin.Context) {
	signer, ok := h.callerSigner(c)
	if !ok {
		return
	}

	var req evidenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	txHash, err := h.engine.SubmitEvidence(c.Request.Context(), signer, c.Param("id"), req.BlobURLs, req.Notes)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"txHash": txHash})
}

// ListEvidence handles GET /v1/bookings/:id/evidence
func (h *Handler) ListEvidence(c *gin.Context) {
	items, err := h.engine.ListEvidence(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"evidence": items, "count": len(items)})
}

// Release handles POST /v1/bookings/:id/release
func (h *Handler) Release(c *gin.Context) {
	signer, ok := h.callerSigner(c)
	if !ok {
		return
	}

	txHash, err := h.engine.Release(c.Request.Context(), signer, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"txHash": txHash})
}

// Cancel handles POST /v1/bookings/:id/cancel
func (h *Handler) Cancel(c *gin.Context) {
	signer, ok := h.callerSigner(c)
	if !ok {
		return
	}

	txHash, err := h.engine.Cancel(c.Request.Context(), signer, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"txHash": txHash})
}

type disputeRequest struct {
	Reason      string `json:"reason" binding:"required"`
	EvidenceURL string `json:"evidenceUrl"`
}

// RaiseDispute handles POST /v1/bookings/:id/dispute
func (h *Handler) RaiseDispute(c *gin.Context) {
	signer, ok := h.callerSigner(c)
	if !ok {
		return
	}

	var req disputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if strings.HasPrefix(req.EvidenceURL, "http") {
		if err := security.ValidateEndpointURL(req.EvidenceURL); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_evidence_url",
				"message": err.Error(),
			})
			return
		}
	}

	txHash, err := h.engine.RaiseDispute(c.Request.Context(), signer, c.Param("id"), req.Reason, req.EvidenceURL)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"txHash": txHash})
}

// ActiveDispute handles GET /v1/bookings/:id/dispute
func (h *Handler) ActiveDispute(c *gin.Context) {
	d, err := h.engine.ActiveDispute(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, dispute.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No active dispute for this booking",
			})
			return
		}
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispute": d})
}

// Window handles GET /v1/bookings/:id/window
func (h *Handler) Window(c *gin.Context) {
	w, err := h.engine.WindowFor(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"remainingSeconds": int64(w.Remaining.Seconds()),
		"display":          w.Display,
		"disputeEligible":  w.DisputeEligible,
	})
}

// Reconcile handles POST /v1/bookings/:id/reconcile
func (h *Handler) Reconcile(c *gin.Context) {
	b, err := h.engine.Reconcile(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": b})
}

// ResolveRequestID handles GET /v1/receipts/:txHash/request-id
func (h *Handler) ResolveRequestID(c *gin.Context) {
	txHash := c.Param("txHash")
	if !validation.IsValidHex(txHash) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_tx_hash",
			"message": "txHash must be a hex string",
		})
		return
	}

	requestID, err := h.engine.ResolveRequestID(c.Request.Context(), txHash)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requestId": requestID})
}

// ReadEscrowState handles GET /v1/escrows/:requestId
func (h *Handler) ReadEscrowState(c *gin.Context) {
	requestID, err := strconv.ParseUint(c.Param("requestId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request_id",
			"message": "requestId must be an unsigned integer",
		})
		return
	}

	rec, err := h.engine.ReadEscrowState(c.Request.Context(), requestID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"requestId":       rec.RequestID,
		"completed":       rec.Completed,
		"paymentReleased": rec.PaymentReleased,
		"disputed":        rec.Disputed,
		"autoReleaseAt":   rec.AutoReleaseAt,
	})
}

// writeError maps domain errors onto HTTP responses.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, booking.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Booking not found"})
	case errors.Is(err, ErrInsufficientFunds):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "insufficient_funds", "message": "Payer balance does not cover the amount"})
	case errors.Is(err, ErrAuthorizationRequired):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "authorization_required", "message": "Token spending authorization required before payment"})
	case errors.Is(err, ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": "not_participant", "message": "Caller is not a participant of this booking"})
	case errors.Is(err, ErrProviderOnly):
		c.JSON(http.StatusForbidden, gin.H{"error": "provider_only", "message": "Only the provider may perform this action"})
	case errors.Is(err, ErrRequesterOnly):
		c.JSON(http.StatusForbidden, gin.H{"error": "requester_only", "message": "Only the requester may perform this action"})
	case errors.Is(err, ErrNoLedgerLink):
		c.JSON(http.StatusConflict, gin.H{"error": "payment_pending", "message": "Payment is not confirmed on the ledger yet"})
	case errors.Is(err, ErrWindowClosed):
		c.JSON(http.StatusConflict, gin.H{"error": "window_closed", "message": "The dispute window has closed"})
	case errors.Is(err, ErrAlreadyCompleted):
		c.JSON(http.StatusConflict, gin.H{"error": "already_completed", "message": "Booking can no longer be cancelled"})
	case errors.Is(err, booking.ErrInvalidAction):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_action", "message": err.Error()})
	case errors.Is(err, booking.ErrReconcileConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "reconcile_conflict", "message": "Ledger record does not match this booking"})
	case errors.Is(err, dispute.ErrActiveExists):
		c.JSON(http.StatusConflict, gin.H{"error": "dispute_exists", "message": "An active dispute already exists for this booking"})
	case errors.Is(err, dispute.ErrEmptyReason):
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty_reason", "message": "A dispute requires a reason"})
	case errors.Is(err, evidence.ErrEmpty):
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty_evidence", "message": "Evidence requires blob references and notes"})
	case errors.Is(err, token.ErrUnknownMethod):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported_method", "message": "Unknown payment method"})
	case errors.Is(err, token.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_amount", "message": "Amount is not a valid decimal"})
	case errors.Is(err, chain.ErrUserRejected):
		c.JSON(http.StatusConflict, gin.H{"error": "user_rejected", "message": "The signer declined the transaction"})
	case errors.Is(err, chain.ErrNotYetConfirmed):
		c.JSON(http.StatusNotFound, gin.H{"error": "tx_pending", "message": "Transaction is not confirmed yet"})
	case errors.Is(err, chain.ErrNoMatchingEvent):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no_matching_event", "message": "Receipt carries no service-request event"})
	case errors.Is(err, chain.ErrDecodeLog):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "decode_failed", "message": "Receipt event could not be decoded"})
	case errors.Is(err, chain.ErrStateRead), errors.Is(err, chain.ErrRPCConnection):
		c.JSON(http.StatusBadGateway, gin.H{"error": "ledger_unreachable", "message": "Could not reach the ledger"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Unexpected error"})
	}
}
