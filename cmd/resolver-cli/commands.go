package main

import (
	"crypto/ecdsa"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/13x54n/multiverse/internal/core/domain"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/urfave/cli/v2"
)

var (
	privateKeyFlag = &cli.StringFlag{
		Name:  "prvkey",
		Usage: "optional, hex private key to encrypt, a new one is generated if missing",
	}
	urlFlag = &cli.StringFlag{
		Name:  "url",
		Usage: "the url of the resolver daemon",
		Value: defaultURL,
	}
	chainFlag = &cli.Uint64Flag{
		Name:     "chain",
		Usage:    "chain id",
		Required: true,
	}
	orderFlag = &cli.StringFlag{
		Name:     "order",
		Usage:    "order hash",
		Required: true,
	}
	escrowFlag = &cli.StringFlag{
		Name:     "escrow",
		Usage:    "escrow address",
		Required: true,
	}
	secretFlag = &cli.StringFlag{
		Name:  "secret",
		Usage: "hex encoded secret",
	}
	hashlockFlag = &cli.StringFlag{
		Name:  "hashlock",
		Usage: "keccak256 hash of the secret",
	}
	amountFlag = &cli.StringFlag{
		Name:     "amount",
		Usage:    "amount, see --decimals",
		Required: true,
	}
	depositFlag = &cli.StringFlag{
		Name:  "safety-deposit",
		Usage: "safety deposit in native token base units",
	}
	tokenFlag = &cli.StringFlag{
		Name:  "token",
		Usage: "token address, the native token if missing",
	}
	timelockFlag = &cli.Uint64Flag{
		Name:     "timelock",
		Usage:    "private window in seconds",
		Required: true,
	}
	beneficiaryFlag = &cli.StringFlag{
		Name:     "beneficiary",
		Usage:    "address paid on withdrawal",
		Required: true,
	}
	recipientFlag = &cli.StringFlag{
		Name:  "recipient",
		Usage: "address receiving the funds",
	}
)

var initCommand = cli.Command{
	Name:   "init",
	Usage:  "Store the daemon url and a signing key encrypted with password",
	Action: initAction,
	Flags:  []cli.Flag{privateKeyFlag, urlFlag},
}

var configCommand = cli.Command{
	Name:   "config",
	Usage:  "Print local configuration of the resolver CLI",
	Action: configAction,
	Subcommands: []*cli.Command{
		{
			Name:   "connect",
			Usage:  "connect <URL>",
			Action: connectAction,
		},
	},
}

var addressCommand = cli.Command{
	Name:   "address",
	Usage:  "Print the address of the signing key",
	Action: addressAction,
}

var secretCommand = cli.Command{
	Name:   "secret",
	Usage:  "Generate a new secret and its hashlock",
	Action: secretAction,
}

var infoCommand = cli.Command{
	Name:  "info",
	Usage: "Print the configuration of the resolver daemon",
	Action: func(ctx *cli.Context) error {
		return query(ctx, "/v1/info")
	},
}

var balanceCommand = cli.Command{
	Name:   "balance",
	Usage:  "Print the balance of an account on a chain",
	Action: balanceAction,
	Flags:  []cli.Flag{chainFlag, tokenFlag, decimalsFlag, &cli.StringFlag{Name: "account", Usage: "account, the caller if missing"}},
}

func initAction(ctx *cli.Context) error {
	var (
		key *ecdsa.PrivateKey
		err error
	)
	if prvkey := ctx.String(privateKeyFlag.Name); len(prvkey) > 0 {
		key, err = crypto.HexToECDSA(strings.TrimPrefix(prvkey, "0x"))
	} else {
		key, err = crypto.GenerateKey()
	}
	if err != nil {
		return err
	}

	password, err := readPassword(ctx)
	if err != nil {
		return err
	}
	if len(password) <= 0 {
		return cli.Exit("password cannot be empty", 1)
	}
	encrypted, err := encryptKey(crypto.FromECDSA(key), password)
	if err != nil {
		return err
	}

	data := &state{
		URL:          ctx.String(urlFlag.Name),
		Address:      crypto.PubkeyToAddress(key.PublicKey).Hex(),
		EncryptedKey: encrypted,
	}
	if err := setState(ctx, data); err != nil {
		return err
	}
	return printJSON(map[string]string{"address": data.Address, "url": data.URL})
}

func configAction(ctx *cli.Context) error {
	data, err := getState(ctx)
	if err != nil {
		return err
	}
	return printJSON(map[string]interface{}{
		"url":        data.URL,
		"address":    data.Address,
		"has_key":    data.EncryptedKey != nil,
		"state_file": statePath(ctx),
	})
}

func connectAction(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("missing daemon URL")
	}

	rawURL := ctx.Args().Get(0)
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || len(u.Host) <= 0 {
		return fmt.Errorf("invalid daemon URL %s", rawURL)
	}

	data, err := getState(ctx)
	if err != nil {
		return err
	}
	data.URL = rawURL
	if err := setState(ctx, data); err != nil {
		return err
	}

	fmt.Println("Connected to " + rawURL)
	return nil
}

func addressAction(ctx *cli.Context) error {
	data, err := getState(ctx)
	if err != nil {
		return err
	}
	if len(data.Address) <= 0 {
		return fmt.Errorf("missing signing key, run init first")
	}
	fmt.Println(data.Address)
	return nil
}

func secretAction(_ *cli.Context) error {
	secret, err := domain.NewSecret()
	if err != nil {
		return err
	}
	return printJSON(map[string]string{
		"secret":   hexutil.Encode(secret),
		"hashlock": domain.Hashlock(secret).Hex(),
	})
}

func balanceAction(ctx *cli.Context) error {
	c, data, err := newClient(ctx)
	if err != nil {
		return err
	}
	account := ctx.String("account")
	if len(account) <= 0 {
		if account, err = caller(ctx, data); err != nil {
			return err
		}
	}

	params := url.Values{}
	params.Set("account", account)
	if token := ctx.String(tokenFlag.Name); len(token) > 0 {
		params.Set("asset", token)
	}

	var resp map[string]interface{}
	path := fmt.Sprintf("/v1/chains/%d/balance?%s", ctx.Uint64(chainFlag.Name), params.Encode())
	if err := c.get(path, &resp); err != nil {
		return err
	}
	if decimals := ctx.Int(decimalsFlag.Name); decimals > 0 {
		balance, _ := resp["balance"].(string)
		if resp["balance"], err = fromBaseUnits(balance, decimals); err != nil {
			return err
		}
	}
	return printJSON(resp)
}

// Orders

var orderCommand = cli.Command{
	Name:  "order",
	Usage: "Create, fill and cancel swap orders",
	Subcommands: []*cli.Command{
		{
			Name:   "create",
			Usage:  "Create an order locking the maker funds on the source chain",
			Action: createOrderAction,
			Flags: []cli.Flag{
				&cli.Uint64Flag{Name: "src-chain", Required: true},
				&cli.Uint64Flag{Name: "dst-chain", Required: true},
				&cli.StringFlag{Name: "src-token"},
				&cli.StringFlag{Name: "dst-token"},
				amountFlag, depositFlag, decimalsFlag, hashlockFlag, timelockFlag,
				&cli.Uint64Flag{Name: "deadline", Usage: "unix time until the order can be filled", Required: true},
			},
		},
		{
			Name:   "get",
			Usage:  "Print an order",
			Action: getOrderAction,
			Flags:  []cli.Flag{chainFlag, orderFlag},
		},
		{
			Name:  "list",
			Usage: "List the active orders of a chain",
			Action: func(ctx *cli.Context) error {
				return query(ctx, fmt.Sprintf("/v1/orders/%d", ctx.Uint64(chainFlag.Name)))
			},
			Flags: []cli.Flag{chainFlag},
		},
		{
			Name:   "fill",
			Usage:  "Fill an order and deploy the destination escrow from the caller's liquidity",
			Action: fillOrderAction,
			Flags: []cli.Flag{
				chainFlag, orderFlag, amountFlag, decimalsFlag, secretFlag,
				&cli.StringFlag{Name: "taker", Usage: "taker of the fill, the caller if missing"},
			},
		},
		{
			Name:  "cancel",
			Usage: "Cancel an order and refund the unfilled amount to the maker",
			Action: func(ctx *cli.Context) error {
				return mutate(ctx, http.MethodPost, orderPath(ctx)+"/cancel", map[string]interface{}{})
			},
			Flags: []cli.Flag{chainFlag, orderFlag},
		},
		{
			Name:  "ensure",
			Usage: "Deploy the destination escrow of a pending fill",
			Action: func(ctx *cli.Context) error {
				path := fmt.Sprintf("%s/fills/%d/ensure", orderPath(ctx), ctx.Uint("fill"))
				return mutate(ctx, http.MethodPost, path, map[string]interface{}{})
			},
			Flags: []cli.Flag{chainFlag, orderFlag, &cli.UintFlag{Name: "fill", Usage: "fill index"}},
		},
	},
}

func orderPath(ctx *cli.Context) string {
	return fmt.Sprintf("/v1/orders/%d/%s", ctx.Uint64(chainFlag.Name), ctx.String(orderFlag.Name))
}

func createOrderAction(ctx *cli.Context) error {
	values, err := amounts(ctx, amountFlag.Name)
	if err != nil {
		return err
	}
	data, err := getState(ctx)
	if err != nil {
		return err
	}
	maker, err := caller(ctx, data)
	if err != nil {
		return err
	}

	hashlock := ctx.String(hashlockFlag.Name)
	var secret string
	if len(hashlock) <= 0 {
		buf, err := domain.NewSecret()
		if err != nil {
			return err
		}
		secret = hexutil.Encode(buf)
		hashlock = domain.Hashlock(buf).Hex()
	}

	body := map[string]interface{}{
		"maker":         maker,
		"srcChainId":    ctx.Uint64("src-chain"),
		"dstChainId":    ctx.Uint64("dst-chain"),
		"srcToken":      ctx.String("src-token"),
		"dstToken":      ctx.String("dst-token"),
		"amount":        values[amountFlag.Name],
		"safetyDeposit": ctx.String(depositFlag.Name),
		"deadline":      ctx.Uint64("deadline"),
		"hashlock":      hashlock,
		"timelock":      ctx.Uint64(timelockFlag.Name),
	}
	if len(secret) > 0 {
		fmt.Printf("secret: %s\nhashlock: %s\n", secret, hashlock)
	}
	return mutate(ctx, http.MethodPost, "/v1/orders", body)
}

func getOrderAction(ctx *cli.Context) error {
	return query(ctx, orderPath(ctx))
}

func fillOrderAction(ctx *cli.Context) error {
	values, err := amounts(ctx, amountFlag.Name)
	if err != nil {
		return err
	}
	return mutate(ctx, http.MethodPost, orderPath(ctx)+"/fill", map[string]interface{}{
		"taker":  ctx.String("taker"),
		"amount": values[amountFlag.Name],
		"secret": ctx.String(secretFlag.Name),
	})
}

// Escrows

var escrowCommand = cli.Command{
	Name:  "escrow",
	Usage: "Inspect and settle hashed-timelock escrows",
	Subcommands: []*cli.Command{
		{
			Name:  "get",
			Usage: "Print an escrow",
			Action: func(ctx *cli.Context) error {
				return query(ctx, escrowPath(ctx))
			},
			Flags: []cli.Flag{chainFlag, escrowFlag},
		},
		{
			Name:  "list",
			Usage: "List the escrows of an order on a chain",
			Action: func(ctx *cli.Context) error {
				return query(ctx, fmt.Sprintf(
					"/v1/chains/%d/escrows?order=%s", ctx.Uint64(chainFlag.Name), ctx.String(orderFlag.Name),
				))
			},
			Flags: []cli.Flag{chainFlag, orderFlag},
		},
		{
			Name:   "predict",
			Usage:  "Print the deterministic address of an escrow",
			Action: predictEscrowAction,
			Flags: []cli.Flag{
				chainFlag, orderFlag, hashlockFlag,
				&cli.UintFlag{Name: "fill", Usage: "fill index"},
				&cli.StringFlag{Name: "role", Usage: "src or dst", Required: true},
			},
		},
		{
			Name:   "create",
			Usage:  "Fund a new escrow",
			Action: createEscrowAction,
			Flags: []cli.Flag{
				chainFlag, orderFlag, hashlockFlag, beneficiaryFlag, tokenFlag,
				amountFlag, depositFlag, decimalsFlag, timelockFlag,
				&cli.UintFlag{Name: "fill", Usage: "fill index"},
				&cli.StringFlag{Name: "role", Usage: "src or dst", Required: true},
			},
		},
		{
			Name:  "withdraw",
			Usage: "Withdraw an escrow in its private window revealing the secret",
			Action: func(ctx *cli.Context) error {
				return mutate(ctx, http.MethodPost, escrowPath(ctx)+"/withdraw", map[string]interface{}{
					"secret":    ctx.String(secretFlag.Name),
					"recipient": ctx.String(recipientFlag.Name),
				})
			},
			Flags: []cli.Flag{chainFlag, escrowFlag, secretFlag, recipientFlag},
		},
		{
			Name:  "public-withdraw",
			Usage: "Withdraw an escrow on behalf of its beneficiary after the private window",
			Action: func(ctx *cli.Context) error {
				return mutate(ctx, http.MethodPost, escrowPath(ctx)+"/public-withdraw", map[string]interface{}{
					"secret": ctx.String(secretFlag.Name),
				})
			},
			Flags: []cli.Flag{chainFlag, escrowFlag, secretFlag},
		},
		{
			Name:  "cancel",
			Usage: "Refund an expired escrow to its depositor",
			Action: func(ctx *cli.Context) error {
				return mutate(ctx, http.MethodPost, escrowPath(ctx)+"/cancel", map[string]interface{}{})
			},
			Flags: []cli.Flag{chainFlag, escrowFlag},
		},
		{
			Name:  "public-cancel",
			Usage: "Refund an escrow past its public cancellation time",
			Action: func(ctx *cli.Context) error {
				return mutate(ctx, http.MethodPost, escrowPath(ctx)+"/public-cancel", map[string]interface{}{})
			},
			Flags: []cli.Flag{chainFlag, escrowFlag},
		},
	},
}

func escrowPath(ctx *cli.Context) string {
	return fmt.Sprintf("/v1/escrows/%d/%s", ctx.Uint64(chainFlag.Name), ctx.String(escrowFlag.Name))
}

func predictEscrowAction(ctx *cli.Context) error {
	params := url.Values{}
	params.Set("order", ctx.String(orderFlag.Name))
	params.Set("hashlock", ctx.String(hashlockFlag.Name))
	params.Set("fill", fmt.Sprintf("%d", ctx.Uint("fill")))
	params.Set("role", ctx.String("role"))
	return query(ctx, fmt.Sprintf("/v1/chains/%d/predict?%s", ctx.Uint64(chainFlag.Name), params.Encode()))
}

func createEscrowAction(ctx *cli.Context) error {
	values, err := amounts(ctx, amountFlag.Name)
	if err != nil {
		return err
	}
	return mutate(ctx, http.MethodPost, "/v1/escrows", map[string]interface{}{
		"chainId":       ctx.Uint64(chainFlag.Name),
		"orderHash":     ctx.String(orderFlag.Name),
		"hashlock":      ctx.String(hashlockFlag.Name),
		"fillIndex":     ctx.Uint("fill"),
		"role":          ctx.String("role"),
		"beneficiary":   ctx.String(beneficiaryFlag.Name),
		"token":         ctx.String(tokenFlag.Name),
		"amount":        values[amountFlag.Name],
		"safetyDeposit": ctx.String(depositFlag.Name),
		"timelock":      ctx.Uint64(timelockFlag.Name),
	})
}

// Swaps

var swapCommand = cli.Command{
	Name:  "swap",
	Usage: "Lock and claim both legs of a swap",
	Subcommands: []*cli.Command{
		{
			Name:   "lock-source",
			Usage:  "Lock the caller funds in a source escrow",
			Action: lockSourceAction,
			Flags: []cli.Flag{
				chainFlag, orderFlag, hashlockFlag, beneficiaryFlag, tokenFlag,
				amountFlag, depositFlag, decimalsFlag, timelockFlag,
			},
		},
		{
			Name:   "lock-destination",
			Usage:  "Lock the destination leg once the source escrow is verified",
			Action: lockDestinationAction,
			Flags: []cli.Flag{
				chainFlag, orderFlag, hashlockFlag, beneficiaryFlag, tokenFlag,
				amountFlag, depositFlag, decimalsFlag, timelockFlag,
				&cli.Uint64Flag{Name: "src-chain", Required: true},
				&cli.StringFlag{Name: "src-escrow", Required: true},
				&cli.StringFlag{Name: "src-token"},
				&cli.StringFlag{Name: "src-amount", Required: true},
			},
		},
		{
			Name:  "withdraw",
			Usage: "Withdraw the escrows of an order paying the caller",
			Action: func(ctx *cli.Context) error {
				return mutate(ctx, http.MethodPost, "/v1/swaps/withdraw", map[string]interface{}{
					"orderHash": ctx.String(orderFlag.Name),
					"secret":    ctx.String(secretFlag.Name),
				})
			},
			Flags: []cli.Flag{orderFlag, secretFlag},
		},
	},
}

func lockBody(ctx *cli.Context, amount string) map[string]interface{} {
	return map[string]interface{}{
		"chainId":       ctx.Uint64(chainFlag.Name),
		"orderHash":     ctx.String(orderFlag.Name),
		"hashlock":      ctx.String(hashlockFlag.Name),
		"beneficiary":   ctx.String(beneficiaryFlag.Name),
		"token":         ctx.String(tokenFlag.Name),
		"amount":        amount,
		"safetyDeposit": ctx.String(depositFlag.Name),
		"timelock":      ctx.Uint64(timelockFlag.Name),
	}
}

func lockSourceAction(ctx *cli.Context) error {
	values, err := amounts(ctx, amountFlag.Name)
	if err != nil {
		return err
	}
	return mutate(ctx, http.MethodPost, "/v1/swaps/source", lockBody(ctx, values[amountFlag.Name]))
}

func lockDestinationAction(ctx *cli.Context) error {
	values, err := amounts(ctx, amountFlag.Name, "src-amount")
	if err != nil {
		return err
	}
	body := lockBody(ctx, values[amountFlag.Name])
	body["srcChainId"] = ctx.Uint64("src-chain")
	body["srcAddress"] = ctx.String("src-escrow")
	body["srcToken"] = ctx.String("src-token")
	body["srcAmount"] = values["src-amount"]
	return mutate(ctx, http.MethodPost, "/v1/swaps/destination", body)
}

// Admin

var adminCommand = cli.Command{
	Name:  "admin",
	Usage: "Manage the access list, owner only",
	Subcommands: []*cli.Command{
		{
			Name:  "acl",
			Usage: "Print the access list",
			Action: func(ctx *cli.Context) error {
				return query(ctx, "/v1/admin/acl")
			},
		},
		{
			Name:  "add-resolver",
			Usage: "add-resolver <ADDRESS>",
			Action: func(ctx *cli.Context) error {
				if ctx.NArg() != 1 {
					return fmt.Errorf("missing resolver address")
				}
				return mutate(ctx, http.MethodPost, "/v1/admin/acl/resolvers", map[string]interface{}{
					"resolver": ctx.Args().Get(0),
				})
			},
		},
		{
			Name:  "remove-resolver",
			Usage: "remove-resolver <ADDRESS>",
			Action: func(ctx *cli.Context) error {
				if ctx.NArg() != 1 {
					return fmt.Errorf("missing resolver address")
				}
				return mutate(ctx, http.MethodDelete, "/v1/admin/acl/resolvers/"+ctx.Args().Get(0), map[string]interface{}{})
			},
		},
		{
			Name:  "add-chain",
			Usage: "Allow orders and escrows on a chain",
			Action: func(ctx *cli.Context) error {
				return mutate(ctx, http.MethodPost, "/v1/admin/acl/chains", map[string]interface{}{
					"chainId": ctx.Uint64(chainFlag.Name),
				})
			},
			Flags: []cli.Flag{chainFlag},
		},
		{
			Name:  "remove-chain",
			Usage: "Disallow new orders and escrows on a chain",
			Action: func(ctx *cli.Context) error {
				path := fmt.Sprintf("/v1/admin/acl/chains/%d", ctx.Uint64(chainFlag.Name))
				return mutate(ctx, http.MethodDelete, path, map[string]interface{}{})
			},
			Flags: []cli.Flag{chainFlag},
		},
		{
			Name:  "emergency-withdraw",
			Usage: "Rescue the funds of an escrow long past its expiry",
			Action: func(ctx *cli.Context) error {
				return mutate(ctx, http.MethodPost, escrowPath(ctx)+"/emergency-withdraw", map[string]interface{}{
					"recipient": ctx.String(recipientFlag.Name),
				})
			},
			Flags: []cli.Flag{chainFlag, escrowFlag, &cli.StringFlag{Name: recipientFlag.Name, Required: true}},
		},
	},
}
