package httpservice

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/13x54n/multiverse/internal/core/application"
	"github.com/13x54n/multiverse/internal/core/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Requests. Amounts are decimal strings in base units, addresses, hashes and
// secrets are 0x-prefixed hex strings.

type createOrderRequest struct {
	Caller        string `json:"caller"`
	Maker         string `json:"maker"`
	SrcChainId    uint64 `json:"srcChainId"`
	DstChainId    uint64 `json:"dstChainId"`
	SrcToken      string `json:"srcToken"`
	DstToken      string `json:"dstToken"`
	Amount        string `json:"amount"`
	SafetyDeposit string `json:"safetyDeposit"`
	Deadline      uint64 `json:"deadline"`
	Hashlock      string `json:"hashlock"`
	Timelock      uint64 `json:"timelock"`
}

type fillOrderRequest struct {
	Caller string `json:"caller"`
	Taker  string `json:"taker"`
	Amount string `json:"amount"`
	Secret string `json:"secret"`
}

// callerRequest holds the fields every signed body carries.
type callerRequest struct {
	Caller    string `json:"caller"`
	Nonce     string `json:"nonce"`
	ExpiresAt int64  `json:"expiresAt"`
}

type withdrawOrderRequest struct {
	Caller    string `json:"caller"`
	OrderHash string `json:"orderHash"`
	Secret    string `json:"secret"`
}

type createEscrowRequest struct {
	Caller        string `json:"caller"`
	ChainId       uint64 `json:"chainId"`
	OrderHash     string `json:"orderHash"`
	Hashlock      string `json:"hashlock"`
	FillIndex     uint32 `json:"fillIndex"`
	Role          string `json:"role"`
	Beneficiary   string `json:"beneficiary"`
	Token         string `json:"token"`
	Amount        string `json:"amount"`
	SafetyDeposit string `json:"safetyDeposit"`
	Timelock      uint64 `json:"timelock"`
}

type settleEscrowRequest struct {
	Caller    string `json:"caller"`
	Secret    string `json:"secret"`
	Recipient string `json:"recipient"`
}

type lockRequest struct {
	Caller        string `json:"caller"`
	ChainId       uint64 `json:"chainId"`
	OrderHash     string `json:"orderHash"`
	Hashlock      string `json:"hashlock"`
	Beneficiary   string `json:"beneficiary"`
	Token         string `json:"token"`
	Amount        string `json:"amount"`
	SafetyDeposit string `json:"safetyDeposit"`
	Timelock      uint64 `json:"timelock"`
}

type lockDestinationRequest struct {
	lockRequest
	SrcChainId uint64 `json:"srcChainId"`
	SrcAddress string `json:"srcAddress"`
	SrcToken   string `json:"srcToken"`
	SrcAmount  string `json:"srcAmount"`
}

// verifyEscrowRequest lists the attributes to check, empty ones are skipped.
type verifyEscrowRequest struct {
	Caller      string `json:"caller"`
	OrderHash   string `json:"orderHash"`
	Hashlock    string `json:"hashlock"`
	Role        string `json:"role"`
	Depositor   string `json:"depositor"`
	Beneficiary string `json:"beneficiary"`
	Token       string `json:"token"`
	Amount      string `json:"amount"`
}

type resolverRequest struct {
	Caller   string `json:"caller"`
	Resolver string `json:"resolver"`
}

type chainRequest struct {
	Caller  string `json:"caller"`
	ChainId uint64 `json:"chainId"`
}

// Responses.

type errorResponse struct {
	Code    string `json:"code"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type fillResponse struct {
	Order     orderResponse   `json:"order"`
	FillIndex uint32          `json:"fillIndex"`
	DstAddr   string          `json:"dstAddress,omitempty"`
	DstEscrow *escrowResponse `json:"dstEscrow,omitempty"`
	Error     *errorResponse  `json:"error,omitempty"`
}

type fillEntry struct {
	Index     uint32 `json:"index"`
	Taker     string `json:"taker"`
	Resolver  string `json:"resolver"`
	Amount    string `json:"amount"`
	DstEscrow string `json:"dstEscrow,omitempty"`
	Timestamp uint64 `json:"timestamp"`
}

type orderResponse struct {
	Hash          string      `json:"hash"`
	Maker         string      `json:"maker"`
	SrcChainId    uint64      `json:"srcChainId"`
	DstChainId    uint64      `json:"dstChainId"`
	SrcToken      string      `json:"srcToken"`
	DstToken      string      `json:"dstToken"`
	Amount        string      `json:"amount"`
	SafetyDeposit string      `json:"safetyDeposit"`
	Filled        string      `json:"filled"`
	Remaining     string      `json:"remaining"`
	Deadline      uint64      `json:"deadline"`
	Hashlock      string      `json:"hashlock"`
	Timelock      uint64      `json:"timelock"`
	Status        string      `json:"status"`
	CreatedAt     uint64      `json:"createdAt"`
	CancelledBy   string      `json:"cancelledBy,omitempty"`
	Fills         []fillEntry `json:"fills"`
}

type escrowResponse struct {
	Address           string `json:"address"`
	ChainId           uint64 `json:"chainId"`
	OrderHash         string `json:"orderHash"`
	Role              string `json:"role"`
	Depositor         string `json:"depositor"`
	Beneficiary       string `json:"beneficiary"`
	Token             string `json:"token"`
	Amount            string `json:"amount"`
	SafetyDeposit     string `json:"safetyDeposit"`
	Hashlock          string `json:"hashlock"`
	Timelock          uint64 `json:"timelock"`
	PublicCancelDelay uint64 `json:"publicCancelDelay"`
	CreatedAt         uint64 `json:"createdAt"`
	Expiry            uint64 `json:"expiry"`
	Status            string `json:"status"`
	Secret            string `json:"secret,omitempty"`
	SettledBy         string `json:"settledBy,omitempty"`
	PaidTo            string `json:"paidTo,omitempty"`
	Emergency         bool   `json:"emergency,omitempty"`
}

type infoResponse struct {
	Owner             string   `json:"owner"`
	Resolver          string   `json:"resolver"`
	Registry          string   `json:"registry"`
	Factory           string   `json:"factory"`
	Chains            []uint64 `json:"chains"`
	MinAmount         string   `json:"minAmount"`
	MaxAmount         string   `json:"maxAmount"`
	PublicCancelDelay uint64   `json:"publicCancelDelay"`
	EmergencyDelay    uint64   `json:"emergencyDelay"`
}

type accessListResponse struct {
	Owner           string   `json:"owner"`
	Resolvers       []string `json:"resolvers"`
	SupportedChains []uint64 `json:"supportedChains"`
}

type predictResponse struct {
	Address string `json:"address"`
	Salt    string `json:"salt"`
}

type balanceResponse struct {
	ChainId uint64 `json:"chainId"`
	Asset   string `json:"asset"`
	Account string `json:"account"`
	Balance string `json:"balance"`
}

func toOrderResponse(o *domain.Order) orderResponse {
	fills := make([]fillEntry, 0, len(o.Fills))
	for _, f := range o.Fills {
		fills = append(fills, fillEntry{
			Index:     f.Index,
			Taker:     f.Taker.Hex(),
			Resolver:  f.Resolver.Hex(),
			Amount:    bigString(f.Amount),
			DstEscrow: optionalAddress(f.DstEscrow),
			Timestamp: f.Timestamp,
		})
	}
	return orderResponse{
		Hash:          o.Hash.Hex(),
		Maker:         o.Maker.Hex(),
		SrcChainId:    o.SrcChainId,
		DstChainId:    o.DstChainId,
		SrcToken:      o.SrcToken.Hex(),
		DstToken:      o.DstToken.Hex(),
		Amount:        bigString(o.Amount),
		SafetyDeposit: bigString(o.SafetyDeposit),
		Filled:        bigString(o.Filled),
		Remaining:     bigString(o.Remaining),
		Deadline:      o.Deadline,
		Hashlock:      o.Hashlock.Hex(),
		Timelock:      o.Timelock,
		Status:        o.Status.String(),
		CreatedAt:     o.CreatedAt,
		CancelledBy:   optionalAddress(o.CancelledBy),
		Fills:         fills,
	}
}

func toEscrowResponse(e *domain.Escrow) escrowResponse {
	var secret string
	if len(e.Secret) > 0 {
		secret = hexutil.Encode(e.Secret)
	}
	return escrowResponse{
		Address:           e.Address.Hex(),
		ChainId:           e.ChainId,
		OrderHash:         e.OrderHash.Hex(),
		Role:              e.Role.String(),
		Depositor:         e.Depositor.Hex(),
		Beneficiary:       e.Beneficiary.Hex(),
		Token:             e.Token.Hex(),
		Amount:            bigString(e.Amount),
		SafetyDeposit:     bigString(e.SafetyDeposit),
		Hashlock:          e.Hashlock.Hex(),
		Timelock:          e.Timelock,
		PublicCancelDelay: e.PublicCancelDelay,
		CreatedAt:         e.CreatedAt,
		Expiry:            e.Expiry(),
		Status:            e.Status.String(),
		Secret:            secret,
		SettledBy:         optionalAddress(e.SettledBy),
		PaidTo:            optionalAddress(e.PaidTo),
		Emergency:         e.Emergency,
	}
}

func toEscrowResponses(escrows []domain.Escrow) []escrowResponse {
	list := make([]escrowResponse, 0, len(escrows))
	for i := range escrows {
		list = append(list, toEscrowResponse(&escrows[i]))
	}
	return list
}

func toFillResponse(result *application.FillResult) fillResponse {
	resp := fillResponse{
		Order:     toOrderResponse(result.Order),
		FillIndex: result.FillIndex,
		DstAddr:   optionalAddress(result.DstAddr),
	}
	if result.DstEscrow != nil {
		escrow := toEscrowResponse(result.DstEscrow)
		resp.DstEscrow = &escrow
	}
	return resp
}

func toInfoResponse(info *application.ServiceInfo) infoResponse {
	return infoResponse{
		Owner:             info.Owner.Hex(),
		Resolver:          info.Resolver.Hex(),
		Registry:          info.Registry.Hex(),
		Factory:           info.Factory.Hex(),
		Chains:            info.Chains,
		MinAmount:         bigString(info.MinAmount),
		MaxAmount:         bigString(info.MaxAmount),
		PublicCancelDelay: info.PublicCancelDelay,
		EmergencyDelay:    info.EmergencyDelay,
	}
}

func toAccessListResponse(list application.AccessList) accessListResponse {
	resolvers := make([]string, 0, len(list.Resolvers))
	for _, r := range list.Resolvers {
		resolvers = append(resolvers, r.Hex())
	}
	return accessListResponse{
		Owner:           list.Owner.Hex(),
		Resolvers:       resolvers,
		SupportedChains: list.SupportedChains,
	}
}

// parser collects the first decoding error of a request so handlers can
// decode every field and check once.
type parser struct {
	err error
}

func (p *parser) fail(field, value string) {
	if p.err == nil {
		p.err = fmt.Errorf("%w: invalid %s %q", domain.ErrInvalidParams, field, value)
	}
}

func (p *parser) address(field, value string) common.Address {
	if !common.IsHexAddress(value) {
		p.fail(field, value)
		return common.Address{}
	}
	return common.HexToAddress(value)
}

// optionalAddress decodes value if set, the zero address otherwise.
func (p *parser) optionalAddress(field, value string) common.Address {
	if len(value) <= 0 {
		return common.Address{}
	}
	return p.address(field, value)
}

func (p *parser) hash(field, value string) common.Hash {
	buf, err := hexutil.Decode(value)
	if err != nil || len(buf) != common.HashLength {
		p.fail(field, value)
		return common.Hash{}
	}
	return common.BytesToHash(buf)
}

func (p *parser) bytes(field, value string) []byte {
	if len(value) <= 0 {
		return nil
	}
	buf, err := hexutil.Decode(value)
	if err != nil {
		p.fail(field, value)
		return nil
	}
	return buf
}

func (p *parser) amount(field, value string) *big.Int {
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok {
		p.fail(field, value)
		return nil
	}
	return amount
}

// optionalAmount decodes value if set, zero otherwise.
func (p *parser) optionalAmount(field, value string) *big.Int {
	if len(value) <= 0 {
		return new(big.Int)
	}
	return p.amount(field, value)
}

func (p *parser) uint64(field, value string) uint64 {
	n, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		p.fail(field, value)
	}
	return n
}

func bigString(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

func optionalAddress(addr common.Address) string {
	if addr == (common.Address{}) {
		return ""
	}
	return addr.Hex()
}
