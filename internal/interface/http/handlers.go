package httpservice

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/13x54n/multiverse/internal/core/application"
	"github.com/13x54n/multiverse/internal/core/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

type handler struct {
	svc application.Service
}

func (h *handler) getInfo(c *gin.Context) {
	info, err := h.svc.GetInfo(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toInfoResponse(info))
}

func (h *handler) getBalance(c *gin.Context) {
	p := &parser{}
	chainId := p.uint64("chain", c.Param("chain"))
	asset := p.optionalAddress("asset", c.Query("asset"))
	account := p.address("account", c.Query("account"))
	if p.err != nil {
		abortWithError(c, p.err)
		return
	}

	balance, err := h.svc.GetBalance(c.Request.Context(), chainId, asset, account)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, balanceResponse{
		ChainId: chainId,
		Asset:   asset.Hex(),
		Account: account.Hex(),
		Balance: balance.String(),
	})
}

// Orders

func (h *handler) createOrder(c *gin.Context) {
	var req createOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	p := &parser{}
	params := domain.OrderParams{
		Maker:         p.address("maker", req.Maker),
		SrcChainId:    req.SrcChainId,
		DstChainId:    req.DstChainId,
		SrcToken:      p.optionalAddress("srcToken", req.SrcToken),
		DstToken:      p.optionalAddress("dstToken", req.DstToken),
		Amount:        p.amount("amount", req.Amount),
		SafetyDeposit: p.optionalAmount("safetyDeposit", req.SafetyDeposit),
		Deadline:      req.Deadline,
		Hashlock:      p.hash("hashlock", req.Hashlock),
		Timelock:      req.Timelock,
	}
	caller := p.address("caller", req.Caller)
	if p.err != nil {
		abortWithError(c, p.err)
		return
	}

	order, err := h.svc.Orders().CreateOrder(c.Request.Context(), application.CreateOrderRequest{
		OrderParams: params,
		Caller:      caller,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toOrderResponse(order))
}

func (h *handler) listActiveOrders(c *gin.Context) {
	p := &parser{}
	chainId := p.uint64("chain", c.Param("chain"))
	if p.err != nil {
		abortWithError(c, p.err)
		return
	}

	orders, err := h.svc.Orders().ListActiveOrders(c.Request.Context(), chainId)
	if err != nil {
		abortWithError(c, err)
		return
	}
	list := make([]orderResponse, 0, len(orders))
	for i := range orders {
		list = append(list, toOrderResponse(&orders[i]))
	}
	c.JSON(http.StatusOK, gin.H{"orders": list})
}

func (h *handler) getOrder(c *gin.Context) {
	p := &parser{}
	chainId := p.uint64("chain", c.Param("chain"))
	hash := p.hash("hash", c.Param("hash"))
	if p.err != nil {
		abortWithError(c, p.err)
		return
	}

	order, err := h.svc.Orders().GetOrder(c.Request.Context(), chainId, hash)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}

// fillOrder fills the order on its source chain and deploys the matching
// destination escrow funded by the caller. A fill whose destination leg
// failed answers 202 with the committed source fill.
func (h *handler) fillOrder(c *gin.Context) {
	var req fillOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	p := &parser{}
	chainId := p.uint64("chain", c.Param("chain"))
	hash := p.hash("hash", c.Param("hash"))
	caller := p.address("caller", req.Caller)
	taker := p.optionalAddress("taker", req.Taker)
	amount := p.amount("amount", req.Amount)
	secret := p.bytes("secret", req.Secret)
	if p.err != nil {
		abortWithError(c, p.err)
		return
	}
	if taker == (common.Address{}) {
		taker = caller
	}

	result, err := h.svc.Resolver().FillOrder(c.Request.Context(), application.FillOrderRequest{
		SrcChainId: chainId,
		OrderHash:  hash,
		Caller:     caller,
		Taker:      taker,
		Amount:     amount,
		Secret:     secret,
	})
	if err != nil {
		if errors.Is(err, application.ErrDestinationPending) && result != nil {
			// nolint:errcheck
			c.Error(err)
			resp := toFillResponse(result)
			errResp := toErrorResponse(err)
			resp.Error = &errResp
			c.JSON(http.StatusAccepted, resp)
			return
		}
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toFillResponse(result))
}

func (h *handler) cancelOrder(c *gin.Context) {
	var req callerRequest
	if !bindJSON(c, &req) {
		return
	}

	p := &parser{}
	chainId := p.uint64("chain", c.Param("chain"))
	hash := p.hash("hash", c.Param("hash"))
	caller := p.address("caller", req.Caller)
	if p.err != nil {
		abortWithError(c, p.err)
		return
	}

	order, err := h.svc.Orders().CancelOrder(c.Request.Context(), chainId, hash, caller)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}

func (h *handler) ensureDestination(c *gin.Context) {
	var req callerRequest
	if !bindJSON(c, &req) {
		return
	}

	p := &parser{}
	chainId := p.uint64("chain", c.Param("chain"))
	hash := p.hash("hash", c.Param("hash"))
	index := p.uint64("index", c.Param("index"))
	caller := p.address("caller", req.Caller)
	if p.err == nil && index > uint64(^uint32(0)) {
		p.fail("index", c.Param("index"))
	}
	if p.err != nil {
		abortWithError(c, p.err)
		return
	}

	escrow, err := h.svc.Resolver().EnsureDestinationEscrow(
		c.Request.Context(), caller, chainId, hash, uint32(index),
	)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toEscrowResponse(escrow))
}

// Escrows

func (h *handler) createEscrow(c *gin.Context) {
	var req createEscrowRequest
	if !bindJSON(c, &req) {
		return
	}

	role, err := domain.ParseEscrowRole(req.Role)
	if err != nil {
		abortWithError(c, err)
		return
	}
	p := &parser{}
	escrowReq := application.CreateEscrowRequest{
		ChainId:       req.ChainId,
		OrderHash:     p.hash("orderHash", req.OrderHash),
		Hashlock:      p.hash("hashlock", req.Hashlock),
		FillIndex:     req.FillIndex,
		Role:          role,
		Caller:        p.address("caller", req.Caller),
		Beneficiary:   p.address("beneficiary", req.Beneficiary),
		Token:         p.optionalAddress("token", req.Token),
		Amount:        p.amount("amount", req.Amount),
		SafetyDeposit: p.optionalAmount("safetyDeposit", req.SafetyDeposit),
		Timelock:      req.Timelock,
	}
	if p.err != nil {
		abortWithError(c, p.err)
		return
	}

	escrow, err := h.svc.Escrows().CreateEscrow(c.Request.Context(), escrowReq)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toEscrowResponse(escrow))
}

func (h *handler) getEscrow(c *gin.Context) {
	p := &parser{}
	chainId := p.uint64("chain", c.Param("chain"))
	address := p.address("address", c.Param("address"))
	if p.err != nil {
		abortWithError(c, p.err)
		return
	}

	escrow, err := h.svc.Escrows().GetEscrow(c.Request.Context(), chainId, address)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toEscrowResponse(escrow))
}

func (h *handler) listEscrowsByOrder(c *gin.Context) {
	p := &parser{}
	chainId := p.uint64("chain", c.Param("chain"))
	orderHash := p.hash("order", c.Query("order"))
	if p.err != nil {
		abortWithError(c, p.err)
		return
	}

	escrows, err := h.svc.Escrows().ListEscrowsByOrder(c.Request.Context(), chainId, orderHash)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"escrows": toEscrowResponses(escrows)})
}

func (h *handler) predictEscrow(c *gin.Context) {
	p := &parser{}
	chainId := p.uint64("chain", c.Param("chain"))
	orderHash := p.hash("order", c.Query("order"))
	hashlock := p.hash("hashlock", c.Query("hashlock"))
	var fillIndex uint64
	if fill := c.Query("fill"); len(fill) > 0 {
		fillIndex = p.uint64("fill", fill)
		if p.err == nil && fillIndex > uint64(^uint32(0)) {
			p.fail("fill", fill)
		}
	}
	if p.err != nil {
		abortWithError(c, p.err)
		return
	}
	role, err := domain.ParseEscrowRole(c.Query("role"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	address, salt, err := h.svc.Escrows().PredictEscrowAddress(
		chainId, orderHash, hashlock, uint32(fillIndex), role,
	)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, predictResponse{Address: address.Hex(), Salt: salt.Hex()})
}

func (h *handler) withdrawEscrow(c *gin.Context) {
	var req settleEscrowRequest
	if !bindJSON(c, &req) {
		return
	}

	p := &parser{}
	chainId := p.uint64("chain", c.Param("chain"))
	address := p.address("address", c.Param("address"))
	caller := p.address("caller", req.Caller)
	secret := p.bytes("secret", req.Secret)
	recipient := p.optionalAddress("recipient", req.Recipient)
	if p.err != nil {
		abortWithError(c, p.err)
		return
	}

	escrow, err := h.svc.Escrows().Withdraw(
		c.Request.Context(), chainId, address, secret, caller, recipient,
	)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toEscrowResponse(escrow))
}

func (h *handler) publicWithdrawEscrow(c *gin.Context) {
	var req settleEscrowRequest
	if !bindJSON(c, &req) {
		return
	}

	p := &parser{}
	chainId := p.uint64("chain", c.Param("chain"))
	address := p.address("address", c.Param("address"))
	caller := p.address("caller", req.Caller)
	secret := p.bytes("secret", req.Secret)
	if p.err != nil {
		abortWithError(c, p.err)
		return
	}

	escrow, err := h.svc.Escrows().PublicWithdraw(c.Request.Context(), chainId, address, secret, caller)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toEscrowResponse(escrow))
}

func (h *handler) cancelEscrow(c *gin.Context) {
	h.settleByCaller(c, h.svc.Escrows().Cancel)
}

func (h *handler) publicCancelEscrow(c *gin.Context) {
	h.settleByCaller(c, h.svc.Escrows().PublicCancel)
}

type settleFunc func(
	ctx context.Context, chainId uint64, address, caller common.Address,
) (*domain.Escrow, error)

func (h *handler) settleByCaller(c *gin.Context, settle settleFunc) {
	var req callerRequest
	if !bindJSON(c, &req) {
		return
	}

	p := &parser{}
	chainId := p.uint64("chain", c.Param("chain"))
	address := p.address("address", c.Param("address"))
	caller := p.address("caller", req.Caller)
	if p.err != nil {
		abortWithError(c, p.err)
		return
	}

	escrow, err := settle(c.Request.Context(), chainId, address, caller)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toEscrowResponse(escrow))
}

func (h *handler) emergencyWithdraw(c *gin.Context) {
	var req settleEscrowRequest
	if !bindJSON(c, &req) {
		return
	}

	p := &parser{}
	chainId := p.uint64("chain", c.Param("chain"))
	address := p.address("address", c.Param("address"))
	caller := p.address("caller", req.Caller)
	recipient := p.address("recipient", req.Recipient)
	if p.err != nil {
		abortWithError(c, p.err)
		return
	}

	capability, err := h.svc.Admin().RequireAdmin(caller)
	if err != nil {
		abortWithError(c, err)
		return
	}
	escrow, err := h.svc.Admin().EmergencyWithdraw(
		c.Request.Context(), capability, chainId, address, recipient,
	)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toEscrowResponse(escrow))
}

// Swaps

func (h *handler) lockSource(c *gin.Context) {
	var req lockRequest
	if !bindJSON(c, &req) {
		return
	}

	p := &parser{}
	lock := parseLockRequest(p, req)
	if p.err != nil {
		abortWithError(c, p.err)
		return
	}

	escrow, err := h.svc.Resolver().LockSource(c.Request.Context(), lock)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toEscrowResponse(escrow))
}

func (h *handler) lockDestination(c *gin.Context) {
	var req lockDestinationRequest
	if !bindJSON(c, &req) {
		return
	}

	p := &parser{}
	lock := application.LockDestinationRequest{
		LockRequest: parseLockRequest(p, req.lockRequest),
		SrcChainId:  req.SrcChainId,
		SrcAddr:     p.address("srcAddress", req.SrcAddress),
		SrcToken:    p.optionalAddress("srcToken", req.SrcToken),
		SrcAmount:   p.amount("srcAmount", req.SrcAmount),
	}
	if p.err != nil {
		abortWithError(c, p.err)
		return
	}

	escrow, err := h.svc.Resolver().LockDestination(c.Request.Context(), lock)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toEscrowResponse(escrow))
}

func (h *handler) withdrawSwap(c *gin.Context) {
	var req withdrawOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	p := &parser{}
	orderHash := p.hash("orderHash", req.OrderHash)
	secret := p.bytes("secret", req.Secret)
	caller := p.address("caller", req.Caller)
	if p.err != nil {
		abortWithError(c, p.err)
		return
	}

	escrows, err := h.svc.Resolver().WithdrawFromEscrow(c.Request.Context(), orderHash, secret, caller)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"escrows": toEscrowResponses(escrows)})
}

func (h *handler) verifyEscrow(c *gin.Context) {
	var req verifyEscrowRequest
	if !bindJSON(c, &req) {
		return
	}

	p := &parser{}
	chainId := p.uint64("chain", c.Param("chain"))
	address := p.address("address", c.Param("address"))
	expected := application.ExpectedEscrow{
		Depositor:   p.optionalAddress("depositor", req.Depositor),
		Beneficiary: p.optionalAddress("beneficiary", req.Beneficiary),
	}
	if len(req.OrderHash) > 0 {
		expected.OrderHash = p.hash("orderHash", req.OrderHash)
	}
	if len(req.Hashlock) > 0 {
		expected.Hashlock = p.hash("hashlock", req.Hashlock)
	}
	if len(req.Token) > 0 {
		token := p.address("token", req.Token)
		expected.Token = &token
	}
	if len(req.Amount) > 0 {
		expected.Amount = p.amount("amount", req.Amount)
	}
	if p.err != nil {
		abortWithError(c, p.err)
		return
	}
	if len(req.Role) > 0 {
		role, err := domain.ParseEscrowRole(req.Role)
		if err != nil {
			abortWithError(c, err)
			return
		}
		expected.Role = role
	}

	escrow, err := h.svc.Resolver().VerifyEscrow(c.Request.Context(), chainId, address, expected)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toEscrowResponse(escrow))
}

// Admin

func (h *handler) getAccessList(c *gin.Context) {
	c.JSON(http.StatusOK, toAccessListResponse(h.svc.Admin().GetAccessList(c.Request.Context())))
}

func (h *handler) addResolver(c *gin.Context) {
	h.updateResolvers(c, c.Param("address"), h.svc.Admin().AddResolver)
}

func (h *handler) removeResolver(c *gin.Context) {
	h.updateResolvers(c, c.Param("address"), h.svc.Admin().RemoveResolver)
}

func (h *handler) updateResolvers(
	c *gin.Context, resolver string,
	update func(context.Context, *application.AdminCapability, common.Address) error,
) {
	var req resolverRequest
	if !bindJSON(c, &req) {
		return
	}
	if len(resolver) <= 0 {
		resolver = req.Resolver
	}

	p := &parser{}
	caller := p.address("caller", req.Caller)
	addr := p.address("resolver", resolver)
	if p.err != nil {
		abortWithError(c, p.err)
		return
	}

	capability, err := h.svc.Admin().RequireAdmin(caller)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if err := update(c.Request.Context(), capability, addr); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAccessListResponse(h.svc.Admin().GetAccessList(c.Request.Context())))
}

func (h *handler) addChain(c *gin.Context) {
	h.updateChains(c, c.Param("id"), h.svc.Admin().AddSupportedChain)
}

func (h *handler) removeChain(c *gin.Context) {
	h.updateChains(c, c.Param("id"), h.svc.Admin().RemoveSupportedChain)
}

func (h *handler) updateChains(
	c *gin.Context, id string,
	update func(context.Context, *application.AdminCapability, uint64) error,
) {
	var req chainRequest
	if !bindJSON(c, &req) {
		return
	}

	p := &parser{}
	caller := p.address("caller", req.Caller)
	chainId := req.ChainId
	if len(id) > 0 {
		chainId = p.uint64("id", id)
	}
	if p.err != nil {
		abortWithError(c, p.err)
		return
	}

	capability, err := h.svc.Admin().RequireAdmin(caller)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if err := update(c.Request.Context(), capability, chainId); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAccessListResponse(h.svc.Admin().GetAccessList(c.Request.Context())))
}

func parseLockRequest(p *parser, req lockRequest) application.LockRequest {
	return application.LockRequest{
		ChainId:       req.ChainId,
		OrderHash:     p.hash("orderHash", req.OrderHash),
		Hashlock:      p.hash("hashlock", req.Hashlock),
		Caller:        p.address("caller", req.Caller),
		Beneficiary:   p.address("beneficiary", req.Beneficiary),
		Token:         p.optionalAddress("token", req.Token),
		Amount:        p.amount("amount", req.Amount),
		SafetyDeposit: p.optionalAmount("safetyDeposit", req.SafetyDeposit),
		Timelock:      req.Timelock,
	}
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %s", domain.ErrInvalidParams, err))
		return false
	}
	return true
}
