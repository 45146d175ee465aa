// Copyright 2022 The go-ethereum Authors
// Copyright 2025 The ensis Authors
// This file is part of the ensis library.
//
// The ensis library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The ensis library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the ensis library. If not, see <http://www.gnu.org/licenses/>.

package flags

import "github.com/urfave/cli/v2"

const (
	GatewayCategory  = "GATEWAY"
	RegistryCategory = "REGISTRY"
	AccountCategory  = "ACCOUNT"
	APICategory      = "HTTP API"
	DeployCategory   = "DEPLOYMENT"
	LoggingCategory  = "LOGGING AND DEBUGGING"
	MetricsCategory  = "METRICS AND STATS"
	MiscCategory     = "MISC"
)

func init() {
	cli.HelpFlag.(*cli.BoolFlag).Category = MiscCategory
	cli.VersionFlag.(*cli.BoolFlag).Category = MiscCategory
}
