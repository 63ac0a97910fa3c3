package httpservice

import (
	"net/http"

	"github.com/13x54n/multiverse/internal/core/application"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// NewRouter exposes appSvc over a JSON api. With requireSignatures every
// mutating request must carry an EIP-191 signature made by the caller it
// names over its method, path and body, with a fresh nonce.
func NewRouter(appSvc application.Service, requireSignatures bool) *gin.Engine {
	h := &handler{appSvc}

	router := gin.New()
	router.Use(gin.Recovery(), requestId(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	if requireSignatures {
		v1.Use(callerSignature(newNonceStore()))
	}
	v1.GET("/info", h.getInfo)

	chains := v1.Group("/chains/:chain")
	chains.GET("/balance", h.getBalance)
	chains.GET("/predict", h.predictEscrow)
	chains.GET("/escrows", h.listEscrowsByOrder)

	orders := v1.Group("/orders")
	orders.POST("", h.createOrder)
	orders.GET("/:chain", h.listActiveOrders)
	orders.GET("/:chain/:hash", h.getOrder)
	orders.POST("/:chain/:hash/fill", h.fillOrder)
	orders.POST("/:chain/:hash/cancel", h.cancelOrder)
	orders.POST("/:chain/:hash/fills/:index/ensure", h.ensureDestination)

	escrows := v1.Group("/escrows")
	escrows.POST("", h.createEscrow)
	escrows.GET("/:chain/:address", h.getEscrow)
	escrows.POST("/:chain/:address/withdraw", h.withdrawEscrow)
	escrows.POST("/:chain/:address/public-withdraw", h.publicWithdrawEscrow)
	escrows.POST("/:chain/:address/cancel", h.cancelEscrow)
	escrows.POST("/:chain/:address/public-cancel", h.publicCancelEscrow)
	escrows.POST("/:chain/:address/emergency-withdraw", h.emergencyWithdraw)
	escrows.POST("/:chain/:address/verify", h.verifyEscrow)

	swaps := v1.Group("/swaps")
	swaps.POST("/source", h.lockSource)
	swaps.POST("/destination", h.lockDestination)
	swaps.POST("/withdraw", h.withdrawSwap)

	admin := v1.Group("/admin")
	admin.GET("/acl", h.getAccessList)
	admin.POST("/acl/resolvers", h.addResolver)
	admin.DELETE("/acl/resolvers/:address", h.removeResolver)
	admin.POST("/acl/chains", h.addChain)
	admin.DELETE("/acl/chains/:id", h.removeChain)

	return router
}
