// Copyright 2017 The go-ethereum Authors
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
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"
	"unicode"

	"github.com/ensis-project/ensis/cmd/utils"
	"github.com/ensis-project/ensis/gateway"
	"github.com/ensis-project/ensis/internal/flags"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/naoina/toml"
	"github.com/urfave/cli/v2"
)

var (
	configFileFlag = &cli.StringFlag{
		Name:     "config",
		Usage:    "TOML configuration file",
		Category: flags.GatewayCategory,
	}

	dumpConfigCommand = &cli.Command{
		Action:      dumpConfig,
		Name:        "dumpconfig",
		Usage:       "Export configuration values in a TOML format",
		ArgsUsage:   "<dumpfile (optional)>",
		Flags:       flags.Merge(utils.GatewayFlags, utils.HTTPFlags, utils.MetricsFlags, []cli.Flag{configFileFlag}),
		Description: `Export configuration values in TOML format (to stdout by default).`,
	}
)

// These settings ensure that TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		id := fmt.Sprintf("%s.%s", rt.String(), field)
		if deprecatedConfigFields[id] {
			log.Warn(fmt.Sprintf("Config field '%s' is deprecated and won't have any effect.", id))
			return nil
		}
		var link string
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://godoc.org/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// deprecatedConfigFields lists removed fields that are still accepted in
// config files, keyed by "<type>.<field>".
var deprecatedConfigFields = map[string]bool{}

type ensisConfig struct {
	Gateway gateway.Config
	HTTP    gateway.HTTPConfig
	Metrics metrics.Config
}

func loadConfig(file string, cfg *ensisConfig) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	// Add file name to errors that have a line number.
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

func defaultConfig() ensisConfig {
	return ensisConfig{
		Gateway: gateway.DefaultConfig,
		HTTP:    gateway.DefaultHTTPConfig,
		Metrics: metrics.DefaultConfig,
	}
}

// loadBaseConfig loads the configuration file, if any, and applies the command
// line flags on top of it.
func loadBaseConfig(ctx *cli.Context) ensisConfig {
	cfg := defaultConfig()

	// Load config file.
	if file := ctx.String(configFileFlag.Name); file != "" {
		if err := loadConfig(file, &cfg); err != nil {
			utils.Fatalf("%v", err)
		}
	}
	// Apply flags.
	utils.SetGatewayConfig(ctx, &cfg.Gateway)
	utils.SetHTTPConfig(ctx, &cfg.HTTP)
	utils.SetMetricsConfig(ctx, &cfg.Metrics)
	return cfg
}

// dumpConfig is the dumpconfig command.
func dumpConfig(ctx *cli.Context) error {
	cfg := loadBaseConfig(ctx)
	out, err := tomlSettings.Marshal(&cfg)
	if err != nil {
		return err
	}

	dump := os.Stdout
	if ctx.NArg() > 0 {
		dump, err = os.OpenFile(ctx.Args().Get(0), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}
		defer dump.Close()
	}
	dump.WriteString("# Note: this config doesn't contain the private key passed to ensis.\n\n")
	dump.Write(out)

	return nil
}
