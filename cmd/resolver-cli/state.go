package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"
)

const stateFile = "state.json"

type state struct {
	URL          string               `json:"url"`
	Address      string               `json:"address,omitempty"`
	EncryptedKey *keystore.CryptoJSON `json:"encrypted_private_key,omitempty"`
}

func statePath(ctx *cli.Context) string {
	return filepath.Join(ctx.String(datadirFlag.Name), stateFile)
}

func getState(ctx *cli.Context) (*state, error) {
	file, err := os.ReadFile(statePath(ctx))
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		return &state{URL: defaultURL}, nil
	}

	data := &state{}
	if err := json.Unmarshal(file, data); err != nil {
		return nil, err
	}
	if len(data.URL) <= 0 {
		data.URL = defaultURL
	}
	return data, nil
}

func setState(ctx *cli.Context, data *state) error {
	datadir := ctx.String(datadirFlag.Name)
	if _, err := os.Stat(datadir); os.IsNotExist(err) {
		if err := os.MkdirAll(datadir, os.ModeDir|0755); err != nil {
			return err
		}
	}

	jsonBytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(statePath(ctx), jsonBytes, 0600); err != nil {
		return fmt.Errorf("writing to file: %w", err)
	}
	return nil
}

// caller returns the --caller flag or the address of the stored key.
func caller(ctx *cli.Context, data *state) (string, error) {
	if addr := ctx.String(callerFlag.Name); len(addr) > 0 {
		if !common.IsHexAddress(addr) {
			return "", fmt.Errorf("invalid caller %s", addr)
		}
		return common.HexToAddress(addr).Hex(), nil
	}
	if len(data.Address) <= 0 {
		return "", fmt.Errorf("missing caller, either run init or use --caller")
	}
	return data.Address, nil
}

func encryptKey(key []byte, password []byte) (*keystore.CryptoJSON, error) {
	encrypted, err := keystore.EncryptDataV3(
		key, password, keystore.StandardScryptN, keystore.StandardScryptP,
	)
	if err != nil {
		return nil, err
	}
	return &encrypted, nil
}

func unlockKey(ctx *cli.Context, data *state) ([]byte, error) {
	if data.EncryptedKey == nil {
		return nil, nil
	}
	password, err := readPassword(ctx)
	if err != nil {
		return nil, err
	}
	key, err := keystore.DecryptDataV3(*data.EncryptedKey, string(password))
	if err != nil {
		return nil, fmt.Errorf("invalid password")
	}
	if _, err := crypto.ToECDSA(key); err != nil {
		return nil, err
	}
	return key, nil
}

func readPassword(ctx *cli.Context) ([]byte, error) {
	password := []byte(ctx.String(passwordFlag.Name))

	if len(password) == 0 {
		fmt.Print("unlock your key with password: ")
		var err error
		password, err = term.ReadPassword(int(syscall.Stdin))
		fmt.Println() // new line
		if err != nil {
			return nil, err
		}
	}

	return password, nil
}
