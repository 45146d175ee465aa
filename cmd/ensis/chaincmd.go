// Copyright 2025 The ensis Authors
// This file is part of ensis.
//
// ensis is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// ensis is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with ensis. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ensis-project/ensis/cmd/utils"
	"github.com/ensis-project/ensis/gateway"
	"github.com/urfave/cli/v2"
)

var (
	returnsFlag = &cli.StringFlag{
		Name:  "returns",
		Usage: "Comma separated ABI types used to decode the result (defaults to the parameter types)",
	}

	callCommand = &cli.Command{
		Action:    callFunction,
		Name:      "call",
		Usage:     "Read a registered contract function",
		ArgsUsage: "<contract-address> <function-name> [json-array]",
		Flags:     []cli.Flag{returnsFlag},
		Description: `
The call command performs the same read as the HTTP read endpoint and prints
the decoded result as JSON. Arguments are given as a JSON array in positional
order, e.g.

    ensis call 0x5FbDB2315678afecb367f032d93F642f64180aa3 balanceOf '["0x71562b71999873DB5b286dF957af199Ec94617F7"]'`,
	}

	execCommand = &cli.Command{
		Action:    execFunction,
		Name:      "exec",
		Usage:     "Send a transaction invoking a registered contract function",
		ArgsUsage: "<contract-address> <function-name> [json-object]",
		Description: `
The exec command performs the same write as the HTTP write endpoint and prints
the transaction receipt as JSON. Arguments are given as a JSON object keyed by
parameter name, e.g.

    ensis exec 0x5FbDB2315678afecb367f032d93F642f64180aa3 transfer '{"to": "0x71562b71999873DB5b286dF957af199Ec94617F7", "amount": "1000"}'`,
	}
)

// parseRequest builds a gateway request from the positional arguments.
func parseRequest(ctx *cli.Context) (*gateway.Request, error) {
	if ctx.NArg() < 2 || ctx.NArg() > 3 {
		return nil, fmt.Errorf("usage: %s %s", ctx.Command.Name, ctx.Command.ArgsUsage)
	}
	req := &gateway.Request{
		Target:   ctx.Args().Get(0),
		Function: ctx.Args().Get(1),
		Body:     []byte(ctx.Args().Get(2)),
	}
	if returns := ctx.String(returnsFlag.Name); returns != "" {
		req.Returns = utils.SplitAndTrim(returns)
	}
	return req, nil
}

func callFunction(ctx *cli.Context) error {
	req, err := parseRequest(ctx)
	if err != nil {
		return err
	}
	cfg := loadBaseConfig(ctx)
	client, reader, _ := makeGateway(ctx, &cfg, false)
	defer client.Close()

	result, err := reader.Call(ctx.Context, req)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func execFunction(ctx *cli.Context) error {
	req, err := parseRequest(ctx)
	if err != nil {
		return err
	}
	cfg := loadBaseConfig(ctx)
	client, _, writer := makeGateway(ctx, &cfg, true)
	defer client.Close()
	if writer == nil {
		utils.Fatalf("%v", utils.ErrNoSigner)
	}
	receipt, err := writer.Execute(ctx.Context, req)
	if err != nil {
		return err
	}
	return printJSON(receipt)
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, strings.TrimSpace(string(out)))
	return nil
}
