package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/urfave/cli/v2"
)

const signatureTTL = time.Minute

type apiError struct {
	Status  int
	Code    string `json:"code"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Code, e.Kind, e.Message)
}

type client struct {
	baseURL    string
	key        []byte
	httpClient *retryablehttp.Client
}

// newClient connects to the url of the local state. Mutating requests are
// signed if a key was stored with init.
func newClient(ctx *cli.Context) (*client, *state, error) {
	data, err := getState(ctx)
	if err != nil {
		return nil, nil, err
	}
	return &client{
		baseURL:    strings.TrimSuffix(data.URL, "/"),
		httpClient: defaultHttpClient(),
	}, data, nil
}

func (c *client) unlock(ctx *cli.Context, data *state) error {
	key, err := unlockKey(ctx, data)
	if err != nil {
		return err
	}
	c.key = key
	return nil
}

func defaultHttpClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	c.Backoff = retryablehttp.LinearJitterBackoff
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	c.Logger = nil
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 2 * time.Second
	c.RetryMax = 2
	c.CheckRetry = checkRetry
	return c
}

// checkRetry retries connection errors only, any response from the server
// is final.
func checkRetry(ctx context.Context, res *http.Response, err error) (bool, error) {
	doRetry, err := retryablehttp.ErrorPropagatedRetryPolicy(ctx, res, err)
	if doRetry && res != nil {
		return false, nil
	}
	return doRetry, err
}

func (c *client) get(path string, resp interface{}) error {
	return c.do(http.MethodGet, path, nil, resp)
}

func (c *client) do(method, path string, body, resp interface{}) error {
	var buf []byte
	if body != nil {
		var err error
		if buf, err = json.Marshal(body); err != nil {
			return err
		}
	}

	req, err := retryablehttp.NewRequestWithContext(cntx, method, c.baseURL+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if len(buf) > 0 && len(c.key) > 0 {
		urlPath, _, _ := strings.Cut(path, "?")
		signature, err := sign(c.key, signingPayload(method, urlPath, buf))
		if err != nil {
			return err
		}
		req.Header.Set("X-Signature", signature)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	// nolint:errcheck
	defer res.Body.Close()

	payload, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if res.StatusCode >= http.StatusBadRequest {
		apiErr := &apiError{Status: res.StatusCode}
		if err := json.Unmarshal(payload, apiErr); err != nil || len(apiErr.Code) <= 0 {
			return fmt.Errorf("server returned HTTP error %d", res.StatusCode)
		}
		return apiErr
	}
	if resp == nil {
		return nil
	}
	return json.Unmarshal(payload, resp)
}

// signingPayload mirrors the message the daemon verifies: the method and
// path on the first line followed by the raw body.
func signingPayload(method, path string, body []byte) []byte {
	return append([]byte(method+" "+path+"\n"), body...)
}

func sign(key, payload []byte) (string, error) {
	prvkey, err := crypto.ToECDSA(key)
	if err != nil {
		return "", err
	}
	sig, err := crypto.Sign(accounts.TextHash(payload), prvkey)
	if err != nil {
		return "", err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// mutate runs a signed request on behalf of the caller and prints the
// response.
func mutate(ctx *cli.Context, method, path string, body map[string]interface{}) error {
	c, data, err := newClient(ctx)
	if err != nil {
		return err
	}
	if err := c.unlock(ctx, data); err != nil {
		return err
	}
	addr, err := caller(ctx, data)
	if err != nil {
		return err
	}
	body["caller"] = addr
	body["nonce"] = uuid.New().String()
	body["expiresAt"] = time.Now().Add(signatureTTL).Unix()

	var resp json.RawMessage
	if err := c.do(method, path, body, &resp); err != nil {
		return err
	}
	return printRaw(resp)
}

func query(ctx *cli.Context, path string) error {
	c, _, err := newClient(ctx)
	if err != nil {
		return err
	}
	var resp json.RawMessage
	if err := c.get(path, &resp); err != nil {
		return err
	}
	return printRaw(resp)
}

func printRaw(resp json.RawMessage) error {
	var out bytes.Buffer
	if err := json.Indent(&out, resp, "", "\t"); err != nil {
		return err
	}
	fmt.Println(out.String())
	return nil
}
