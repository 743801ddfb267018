// Package api is the HTTP edge: it publishes operations to the VM stream
// and reads machines, tickets and receipts back from the redis cache.
package api

import (
	"context"
	"errors"
	"net/http"

	"vmledger/pkg/cache"
	"vmledger/pkg/ingress"
	"vmledger/pkg/ledger"
	"vmledger/pkg/xlog"
	"vmledger/pkg/xnats"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var logger = xlog.GetLogger()

type Submitter interface {
	Send(ctx context.Context, req xnats.OpReq) (uint64, error)
}

type Reader interface {
	Machine(ctx context.Context, id ledger.Address) (ledger.Machine, error)
	Ticket(ctx context.Context, id uuid.UUID) (ledger.Ticket, error)
	TicketsByMachine(ctx context.Context, id ledger.Address) ([]ledger.Ticket, error)
	Receipt(ctx context.Context, id uuid.UUID) (xnats.Receipt, error)
}

type Handler struct {
	submitter Submitter
	reader    Reader
	keys      map[string]ledger.Address
}

func NewHandler(submitter Submitter, reader Reader, keys map[string]ledger.Address) *Handler {
	return &Handler{submitter: submitter, reader: reader, keys: keys}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	router := r.Group("/api/v1")
	{
		router.GET("machines/:id", h.GetMachine)
		router.GET("machines/:id/tickets", h.GetMachineTickets)
		router.GET("tickets/:id", h.GetTicket)
		router.GET("receipts/:id", h.GetReceipt)
	}

	signed := r.Group("/api/v1", Auth(h.keys))
	{
		signed.POST("machines", h.CreateMachine)
		signed.POST("machines/:id/fund", h.FundMachine)
		signed.POST("machines/:id/tickets", h.BuyTicket)
		signed.POST("machines/:id/buy", h.BuySpl)
		signed.POST("tickets/:id/redeem", h.RedeemTicket)
	}
}

// Request bodies. Addresses are hex, ppa and ppt whole credits.

type CreateMachineRequest struct {
	Asset            ledger.Address  `json:"asset" binding:"required"`
	PPA              decimal.Decimal `json:"ppa"`
	PPT              decimal.Decimal `json:"ppt"`
	TicketAllocation uint64          `json:"ticketAllocation"`
	PresaleStart     int64           `json:"presaleStart"`
	PresaleEnd       int64           `json:"presaleEnd"`
	PubsaleStart     int64           `json:"pubsaleStart"`
	PubsaleEnd       int64           `json:"pubsaleEnd"`
}

type FundMachineRequest struct {
	Asset  ledger.Address `json:"asset" binding:"required"`
	Amount uint64         `json:"amount"`
}

// BuyRequest serves ticket purchase, redemption and direct purchase.
type BuyRequest struct {
	Authority ledger.Address `json:"authority" binding:"required"`
	Amount    uint64         `json:"amount"`
}

type SubmitResponse struct {
	ID  uuid.UUID `json:"id"`
	Op  xnats.Op  `json:"op"`
	Seq uint64    `json:"seq"`
}

type machineUri struct {
	ID string `uri:"id" binding:"required"`
}

type MachineView struct {
	ID    ledger.Address `json:"id"`
	State string         `json:"state"`
	ledger.Machine
}

func (h *Handler) CreateMachine(c *gin.Context) {
	var body CreateMachineRequest
	if err := BindJson(c, &body); err != nil {
		return
	}

	req := ingress.NewReq(xnats.OpCreateMachine, signerOf(c))
	req.Asset = body.Asset
	req.Create = &xnats.CreateParams{
		PPA:              body.PPA,
		PPT:              body.PPT,
		TicketAllocation: body.TicketAllocation,
		PresaleStart:     body.PresaleStart,
		PresaleEnd:       body.PresaleEnd,
		PubsaleStart:     body.PubsaleStart,
		PubsaleEnd:       body.PubsaleEnd,
	}
	h.submit(c, req, "CreateMachine")
}

func (h *Handler) FundMachine(c *gin.Context) {
	id, ok := h.machineID(c, "FundMachine")
	if !ok {
		return
	}
	var body FundMachineRequest
	if err := BindJson(c, &body); err != nil {
		return
	}

	req := ingress.NewReq(xnats.OpFundMachine, signerOf(c))
	req.Machine = id
	req.Asset = body.Asset
	req.Amount = body.Amount
	h.submit(c, req, "FundMachine")
}

// BuyTicket answers with the request id, which is also the new ticket's id.
func (h *Handler) BuyTicket(c *gin.Context) {
	h.buy(c, xnats.OpBuyTicket, "BuyTicket")
}

func (h *Handler) BuySpl(c *gin.Context) {
	h.buy(c, xnats.OpBuySpl, "BuySpl")
}

func (h *Handler) buy(c *gin.Context, op xnats.Op, operation string) {
	id, ok := h.machineID(c, operation)
	if !ok {
		return
	}
	var body BuyRequest
	if err := BindJson(c, &body); err != nil {
		return
	}

	req := ingress.NewReq(op, signerOf(c))
	req.Machine = id
	req.Authority = body.Authority
	req.Amount = body.Amount
	h.submit(c, req, operation)
}

func (h *Handler) RedeemTicket(c *gin.Context) {
	id, ok := h.uuidParam(c, "RedeemTicket")
	if !ok {
		return
	}
	var body BuyRequest
	if err := BindJson(c, &body); err != nil {
		return
	}

	req := ingress.NewReq(xnats.OpBuySplWithTicket, signerOf(c))
	req.Ticket = id
	req.Authority = body.Authority
	req.Amount = body.Amount
	h.submit(c, req, "RedeemTicket")
}

func (h *Handler) GetMachine(c *gin.Context) {
	id, ok := h.machineID(c, "GetMachine")
	if !ok {
		return
	}
	m, err := h.reader.Machine(c, id)
	if err != nil {
		h.handleError(c, err, "GetMachine")
		return
	}

	h.handleSuccess(c, MachineView{ID: m.ID(), State: m.State(), Machine: m}, http.StatusOK)
}

func (h *Handler) GetMachineTickets(c *gin.Context) {
	id, ok := h.machineID(c, "GetMachineTickets")
	if !ok {
		return
	}
	ts, err := h.reader.TicketsByMachine(c, id)
	if err != nil {
		h.handleError(c, err, "GetMachineTickets")
		return
	}
	if ts == nil {
		ts = []ledger.Ticket{}
	}

	h.handleSuccess(c, ts, http.StatusOK)
}

func (h *Handler) GetTicket(c *gin.Context) {
	id, ok := h.uuidParam(c, "GetTicket")
	if !ok {
		return
	}
	t, err := h.reader.Ticket(c, id)
	if err != nil {
		h.handleError(c, err, "GetTicket")
		return
	}

	h.handleSuccess(c, t, http.StatusOK)
}

func (h *Handler) GetReceipt(c *gin.Context) {
	id, ok := h.uuidParam(c, "GetReceipt")
	if !ok {
		return
	}
	r, err := h.reader.Receipt(c, id)
	if err != nil {
		h.handleError(c, err, "GetReceipt")
		return
	}

	h.handleSuccess(c, r, http.StatusOK)
}

// Helper functions

func (h *Handler) submit(c *gin.Context, req xnats.OpReq, operation string) {
	seq, err := h.submitter.Send(c, req)
	if err != nil {
		h.handleError(c, err, operation)
		return
	}

	h.handleSuccess(c, SubmitResponse{ID: req.ID, Op: req.Op, Seq: seq}, http.StatusAccepted)
}

func (h *Handler) machineID(c *gin.Context, operation string) (id ledger.Address, ok bool) {
	var uri machineUri
	if err := BindUri(c, &uri); err != nil {
		return
	}
	id, err := ledger.ParseAddress(uri.ID)
	if err != nil {
		h.handleError(c, err, operation)
		return
	}
	return id, true
}

func (h *Handler) uuidParam(c *gin.Context, operation string) (id uuid.UUID, ok bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.handleError(c, errors.Join(xnats.ErrBadRequest, err), operation)
		return
	}
	return id, true
}

func (h *Handler) handleError(c *gin.Context, err error, operation string) {
	switch {
	case errors.Is(err, cache.ErrMiss):
		logger.Debugf("%s not found", operation)
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Not found",
		})
	case errors.Is(err, ledger.ErrInvalidAddress):
		logger.Debugf("%s invalid address: %s", operation, err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid address",
		})
	case errors.Is(err, xnats.ErrBadRequest), errors.Is(err, xnats.ErrBadAmount):
		logger.Debugf("%s bad request: %s", operation, err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warningf("%s timed out: %s", operation, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Service unavailable",
		})
	default:
		logger.Errorf("%s failed with err:%s", operation, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Internal server error",
		})
	}
}

func (h *Handler) handleSuccess(c *gin.Context, data interface{}, statusCode int) {
	if data != nil {
		c.JSON(statusCode, data)
	} else {
		c.Status(statusCode)
	}
}
