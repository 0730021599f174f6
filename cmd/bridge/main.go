// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command bridge runs the spoolease-spoolman sync daemon: it validates
// connectivity to Device A and Server B, then blocks running the poll and
// event loops until it receives SIGINT/SIGTERM.
package main

import (
	"context"

	"github.com/spoolease/bridge/internal/coordinator"
	"github.com/spoolease/bridge/pkg/log"
)

func main() {
	ctx, cancel := coordinator.WaitForSignal(context.Background())
	defer cancel()

	if err := coordinator.Run(ctx); err != nil {
		log.Fatalf("%s", err.Error())
	}
}
