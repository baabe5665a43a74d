package server

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/bridgectl/internal/account"
	"github.com/danmuck/bridgectl/internal/auth"
	"github.com/danmuck/bridgectl/internal/bridge"
	"github.com/danmuck/bridgectl/internal/transport"
	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ErrEndpointNotFound = errors.New("server: endpoint not found")
	ErrBadRequest       = errors.New("server: bad request")
)

const bridgeKey = "bridge"

func (s *Server) registerRoutes() {
	r := s.router
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"service": s.name,
			"version": version,
		})
	})
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ready":     len(s.bridges) > 0,
			"endpoints": s.endpointIDs(),
			"service":   s.name,
			"version":   version,
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/endpoints", s.listEndpoints)
	if s.loopback != nil {
		r.GET("/transport/stored", s.listStoredPayloads)
		r.POST("/transport/retry", s.requireToken, s.retryPayload)
	}

	ep := r.Group("/endpoints/:id", s.withBridge)
	ep.GET("/balances/:account", s.getBalance)
	ep.GET("/failed", s.listFailed)
	ep.POST("/estimate", s.estimate)

	admin := ep.Group("", s.requireToken)
	admin.POST("/send", s.send)
	admin.POST("/send-and-call", s.sendAndCall)
	admin.POST("/retry", s.retry)
	admin.POST("/recover", s.recoverEscrow)
}

func (s *Server) withBridge(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 16)
	if err != nil {
		s.fail(c, fmt.Errorf("%w: endpoint id %q", ErrBadRequest, c.Param("id")))
		return
	}
	b, ok := s.bridges[uint16(id)]
	if !ok {
		s.fail(c, fmt.Errorf("%w: %d", ErrEndpointNotFound, id))
		return
	}
	c.Set(bridgeKey, b)
	c.Next()
}

func (s *Server) requireToken(c *gin.Context) {
	if s.validator == nil {
		c.Next()
		return
	}
	if err := auth.CheckHeader(s.validator, c.GetHeader("Authorization")); err != nil {
		s.fail(c, err)
		return
	}
	c.Next()
}

func bridgeFrom(c *gin.Context) *bridge.Bridge {
	return c.MustGet(bridgeKey).(*bridge.Bridge)
}

func (s *Server) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	status := statusFor(err)
	body := gin.H{"error": err.Error()}
	if cat := bridge.Category(err); cat != nil {
		body["category"] = cat.Error()
	}
	c.AbortWithStatusJSON(status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrEndpointNotFound),
		errors.Is(err, bridge.ErrNoFailedMessage),
		errors.Is(err, transport.ErrNoStoredPayload):
		return http.StatusNotFound
	case errors.Is(err, transport.ErrPayloadMismatch),
		errors.Is(err, transport.ErrRedeliveryInFlight):
		return http.StatusConflict
	case errors.Is(err, transport.ErrCorruptFrame):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, bridge.ErrReentrantCall):
		return http.StatusConflict
	}
	switch bridge.Category(err) {
	case bridge.ErrConfiguration:
		return http.StatusBadRequest
	case bridge.ErrCodec:
		return http.StatusUnprocessableEntity
	case bridge.ErrAccounting, bridge.ErrRetry:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

type endpointInfo struct {
	ID      uint16 `json:"id"`
	Address string `json:"address"`
	Escrow  string `json:"escrow"`
	Supply  string `json:"total_supply"`
}

func (s *Server) listEndpoints(c *gin.Context) {
	out := make([]endpointInfo, 0, len(s.bridges))
	for _, id := range s.endpointIDs() {
		b := s.bridges[id]
		out = append(out, endpointInfo{
			ID:      id,
			Address: b.Address().String(),
			Escrow:  b.EscrowBalance().Dec(),
			Supply:  b.Ledger().TotalSupply().Dec(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"endpoints": out})
}

func (s *Server) getBalance(c *gin.Context) {
	b := bridgeFrom(c)
	who, err := account.ParseAddress(c.Param("account"))
	if err != nil {
		s.fail(c, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"endpoint": b.Endpoint(),
		"account":  who.String(),
		"balance":  b.Ledger().BalanceOf(who).Dec(),
	})
}

type failedRecordJSON struct {
	Src        uint16 `json:"src"`
	SrcAddress string `json:"src_address"`
	Nonce      uint64 `json:"nonce"`
	Hash       string `json:"hash"`
}

func (s *Server) listFailed(c *gin.Context) {
	b := bridgeFrom(c)
	recs, err := b.FailedMessages()
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]failedRecordJSON, 0, len(recs))
	for _, r := range recs {
		out = append(out, failedRecordJSON{
			Src:        r.Key.Src,
			SrcAddress: "0x" + hex.EncodeToString(r.Key.SrcAddress),
			Nonce:      r.Key.Nonce,
			Hash:       r.Hash.String(),
		})
	}
	stuck, err := b.StuckEscrow()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"failed": out, "stuck_escrow": stuck.Dec()})
}

func (s *Server) listStoredPayloads(c *gin.Context) {
	stored := s.loopback.StoredPayloads()
	out := make([]gin.H, 0, len(stored))
	for _, sp := range stored {
		out = append(out, gin.H{
			"src":          sp.SrcEndpoint,
			"dst":          sp.DstEndpoint,
			"src_address":  "0x" + hex.EncodeToString(sp.SrcAddress),
			"nonce":        sp.Nonce,
			"packet":       "0x" + hex.EncodeToString(sp.Packet),
			"reason":       sp.Reason,
			"attempts":     sp.Attempts,
			"next_attempt": sp.NextAttempt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"stored": out, "pending": s.loopback.Pending()})
}

type retryPayloadRequest struct {
	Src        uint16 `json:"src"`
	Dst        uint16 `json:"dst"`
	SrcAddress string `json:"src_address"`
	Packet     string `json:"packet"`
}

func (s *Server) retryPayload(c *gin.Context) {
	var req retryPayloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	var p parser
	srcAddress := p.hex("src_address", req.SrcAddress)
	packet := p.hex("packet", req.Packet)
	if p.err != nil {
		s.fail(c, p.err)
		return
	}
	if err := s.loopback.RetryPayload(c.Request.Context(), req.Src, req.Dst, srcAddress, packet); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type sendRequest struct {
	From          string `json:"from"`
	Dst           uint16 `json:"dst"`
	To            string `json:"to"`
	Amount        string `json:"amount"`
	Refund        string `json:"refund"`
	AltFeeToken   string `json:"alt_fee_token"`
	AdapterParams string `json:"adapter_params"`
	NativeFee     string `json:"native_fee"`

	Caller        string `json:"caller"`
	Payload       string `json:"payload"`
	DstGasForCall uint64 `json:"dst_gas_for_call"`
}

func (r sendRequest) params() (bridge.SendParams, error) {
	var p parser
	out := bridge.SendParams{
		From:          p.address("from", r.From, true),
		DstEndpoint:   r.Dst,
		To:            p.hex("to", r.To),
		Amount:        p.amount("amount", r.Amount),
		RefundAddress: p.address("refund", r.Refund, false),
		AltFeeToken:   p.address("alt_fee_token", r.AltFeeToken, false),
		AdapterParams: p.hex("adapter_params", r.AdapterParams),
		NativeFee:     p.amount("native_fee", r.NativeFee),
	}
	return out, p.err
}

func (r sendRequest) callParams() (bridge.SendAndCallParams, error) {
	base, err := r.params()
	if err != nil {
		return bridge.SendAndCallParams{}, err
	}
	var p parser
	out := bridge.SendAndCallParams{
		SendParams:    base,
		Caller:        p.address("caller", r.Caller, false),
		Payload:       p.hex("payload", r.Payload),
		DstGasForCall: r.DstGasForCall,
	}
	return out, p.err
}

func (s *Server) send(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	params, err := req.params()
	if err != nil {
		s.fail(c, err)
		return
	}
	actual, err := bridgeFrom(c).Send(c.Request.Context(), params)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "amount": actual.Dec()})
}

func (s *Server) sendAndCall(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	params, err := req.callParams()
	if err != nil {
		s.fail(c, err)
		return
	}
	actual, err := bridgeFrom(c).SendAndCall(c.Request.Context(), params)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "amount": actual.Dec()})
}

type estimateRequest struct {
	Kind          string `json:"kind"`
	Dst           uint16 `json:"dst"`
	To            string `json:"to"`
	Amount        string `json:"amount"`
	AltToken      bool   `json:"alt_token"`
	AdapterParams string `json:"adapter_params"`
	From          string `json:"from"`
	Payload       string `json:"payload"`
	DstGasForCall uint64 `json:"dst_gas_for_call"`
}

func (s *Server) estimate(c *gin.Context) {
	var req estimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	var p parser
	params := bridge.EstimateParams{
		DstEndpoint:   req.Dst,
		To:            p.hex("to", req.To),
		Amount:        p.amount("amount", req.Amount),
		UseAltToken:   req.AltToken,
		AdapterParams: p.hex("adapter_params", req.AdapterParams),
		From:          p.address("from", req.From, false),
		Payload:       p.hex("payload", req.Payload),
		DstGasForCall: req.DstGasForCall,
	}
	if p.err != nil {
		s.fail(c, p.err)
		return
	}
	b := bridgeFrom(c)
	estimate := b.EstimateSendFee
	switch strings.ToLower(strings.TrimSpace(req.Kind)) {
	case "", "send":
	case "send_and_call", "send-and-call":
		estimate = b.EstimateSendAndCallFee
	default:
		s.fail(c, fmt.Errorf("%w: unknown kind %q", ErrBadRequest, req.Kind))
		return
	}
	fee, err := estimate(c.Request.Context(), params)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"native": fee.Native.Dec(), "alt_token": fee.AltToken.Dec()})
}

type retryRequest struct {
	Src        uint16 `json:"src"`
	SrcAddress string `json:"src_address"`
	Nonce      uint64 `json:"nonce"`
	From       string `json:"from"`
	To         string `json:"to"`
	Amount     string `json:"amount"`
	Payload    string `json:"payload"`
}

func (s *Server) retry(c *gin.Context) {
	var req retryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	var p parser
	params := bridge.RetryParams{
		SrcEndpoint: req.Src,
		SrcAddress:  p.hex("src_address", req.SrcAddress),
		Nonce:       req.Nonce,
		From:        p.hex("from", req.From),
		To:          p.address("to", req.To, true),
		Amount:      p.amount("amount", req.Amount),
		Payload:     p.hex("payload", req.Payload),
	}
	if p.err != nil {
		s.fail(c, p.err)
		return
	}
	if err := bridgeFrom(c).Retry(c.Request.Context(), params); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type recoverRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (s *Server) recoverEscrow(c *gin.Context) {
	var req recoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	var p parser
	to := p.address("to", req.To, true)
	amount := p.amount("amount", req.Amount)
	if p.err != nil {
		s.fail(c, p.err)
		return
	}
	if err := bridgeFrom(c).RecoverEscrow(c.Request.Context(), to, amount); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// parser collects the first field error while decoding a request body.
type parser struct {
	err error
}

func (p *parser) setErr(field string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%w: %s: %v", ErrBadRequest, field, err)
	}
}

func (p *parser) address(field, raw string, required bool) account.Address {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if required {
			p.setErr(field, errors.New("required"))
		}
		return account.Address{}
	}
	addr, err := account.ParseAddress(raw)
	if err != nil {
		p.setErr(field, err)
	}
	return addr
}

func (p *parser) hex(field, raw string) []byte {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if raw == "" {
		return nil
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		p.setErr(field, err)
	}
	return b
}

func (p *parser) amount(field, raw string) *uint256.Int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := uint256.FromDecimal(raw)
	if err != nil {
		p.setErr(field, err)
	}
	return v
}
