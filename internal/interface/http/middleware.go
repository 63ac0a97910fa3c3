package httpservice

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/13x54n/multiverse/internal/core/domain"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	requestIdHeader = "X-Request-Id"
	signatureHeader = "X-Signature"

	requestIdKey = "requestId"
)

func requestId() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIdHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.New().String()
		}
		c.Set(requestIdKey, id)
		c.Header(requestIdHeader, id)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(log.Fields{
			"request_id": c.GetString(requestIdKey),
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).String(),
		})
		if len(c.Errors) > 0 {
			entry = entry.WithField("error", c.Errors.Last().Error())
		}

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			entry.Error("request failed")
		case status >= http.StatusBadRequest:
			entry.Debug("request rejected")
		default:
			entry.Debug("request served")
		}
	}
}

// callerSignature makes sure the body of a mutating request is signed by the
// caller it names. The signature is an EIP-191 personal signature over the
// payload built by SigningPayload, hex encoded in the X-Signature header.
// The body carries a nonce and an expiry so that a signed request is
// accepted once.
func callerSignature(nonces *nonceStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			abortWithError(c, fmt.Errorf("%w: unreadable body", domain.ErrInvalidParams))
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		var req callerRequest
		if err := json.Unmarshal(body, &req); err != nil || !common.IsHexAddress(req.Caller) {
			abortWithError(c, fmt.Errorf("%w: missing caller", domain.ErrInvalidParams))
			return
		}

		payload := SigningPayload(c.Request.Method, c.Request.URL.Path, body)
		signer, err := recoverSigner(payload, c.GetHeader(signatureHeader))
		if err != nil {
			log.WithField("request_id", c.GetString(requestIdKey)).WithError(err).Debug(
				"invalid request signature",
			)
			abortWithError(c, fmt.Errorf("%w: %s", domain.ErrUnauthorized, err))
			return
		}
		caller := common.HexToAddress(req.Caller)
		if signer != caller {
			abortWithError(c, fmt.Errorf(
				"%w: request signed by %s on behalf of %s", domain.ErrUnauthorized, signer, req.Caller,
			))
			return
		}
		if err := nonces.use(caller, req.Nonce, req.ExpiresAt); err != nil {
			abortWithError(c, fmt.Errorf("%w: %s", domain.ErrUnauthorized, err))
			return
		}
		c.Next()
	}
}

// SigningPayload returns the message a caller signs for a request: the
// method and path on the first line followed by the raw body.
func SigningPayload(method, path string, body []byte) []byte {
	payload := make([]byte, 0, len(method)+len(path)+len(body)+2)
	payload = append(payload, method...)
	payload = append(payload, ' ')
	payload = append(payload, path...)
	payload = append(payload, '\n')
	return append(payload, body...)
}

func recoverSigner(payload []byte, signature string) (common.Address, error) {
	if len(signature) <= 0 {
		return common.Address{}, fmt.Errorf("missing %s header", signatureHeader)
	}
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature encoding: %s", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length %d", len(sig))
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pubkey, err := crypto.SigToPub(accounts.TextHash(payload), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature: %s", err)
	}
	return crypto.PubkeyToAddress(*pubkey), nil
}

func abortWithError(c *gin.Context, err error) {
	// nolint:errcheck
	c.Error(err)
	c.AbortWithStatusJSON(statusOf(err), toErrorResponse(err))
}
