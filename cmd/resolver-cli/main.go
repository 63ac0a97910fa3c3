package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/urfave/cli/v2"
)

const (
	datadirEnvVar = "RESOLVER_CLI_DATADIR"
	defaultURL    = "http://localhost:7070"
)

var (
	version = "alpha"

	cntx = context.Background()
)

var (
	datadirFlag = &cli.StringFlag{
		Name:     "datadir",
		Usage:    "Specify the data directory",
		Required: false,
		Value:    btcutil.AppDataDir("resolver-cli", false),
		EnvVars:  []string{datadirEnvVar},
	}
	passwordFlag = &cli.StringFlag{
		Name:     "password",
		Usage:    "password to unlock the signing key",
		Required: false,
		Hidden:   true,
	}
	callerFlag = &cli.StringFlag{
		Name:  "caller",
		Usage: "optional, address acting on the request, defaults to the address of the signing key",
	}
)

func main() {
	app := cli.NewApp()

	app.Version = version
	app.Name = "resolver CLI"
	app.Usage = "command line interface for the cross-chain swap resolver"
	app.Commands = append(
		app.Commands,
		&initCommand,
		&configCommand,
		&addressCommand,
		&secretCommand,
		&infoCommand,
		&balanceCommand,
		&orderCommand,
		&escrowCommand,
		&swapCommand,
		&adminCommand,
	)
	app.Flags = []cli.Flag{datadirFlag, passwordFlag, callerFlag}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Println(fmt.Errorf("error: %v", err))
		os.Exit(1)
	}
}

func printJSON(resp interface{}) error {
	jsonBytes, err := json.MarshalIndent(resp, "", "\t")
	if err != nil {
		return err
	}

	fmt.Println(string(jsonBytes))
	return nil
}
