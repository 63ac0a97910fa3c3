package main

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
)

var decimalsFlag = &cli.IntFlag{
	Name:  "decimals",
	Usage: "decimals of the token, amounts are expressed in base units if 0",
	Value: 0,
}

// toBaseUnits converts a human readable amount, e.g. 1.5 with 18 decimals,
// into an integer amount of base units.
func toBaseUnits(amount string, decimals int) (string, error) {
	if len(amount) <= 0 {
		return "", nil
	}
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return "", fmt.Errorf("invalid amount %s", amount)
	}
	units := value.Shift(int32(decimals))
	if !units.IsInteger() {
		return "", fmt.Errorf("amount %s has more than %d decimals", amount, decimals)
	}
	if units.IsNegative() {
		return "", fmt.Errorf("amount %s must not be negative", amount)
	}
	return units.BigInt().String(), nil
}

func fromBaseUnits(amount string, decimals int) (string, error) {
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return "", fmt.Errorf("invalid amount %s", amount)
	}
	return value.Shift(-int32(decimals)).String(), nil
}

// amounts reads the given amount flags, converted to base units.
func amounts(ctx *cli.Context, names ...string) (map[string]string, error) {
	decimals := ctx.Int(decimalsFlag.Name)
	values := make(map[string]string, len(names))
	for _, name := range names {
		value, err := toBaseUnits(ctx.String(name), decimals)
		if err != nil {
			return nil, fmt.Errorf("--%s: %s", name, err)
		}
		values[name] = value
	}
	return values, nil
}
