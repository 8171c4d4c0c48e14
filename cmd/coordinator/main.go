/*
Copyright (c) Edgeless Systems GmbH

SPDX-License-Identifier: BUSL-1.1
*/

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/edgelesssys/dextmanager/coordinator/config"
	"github.com/edgelesssys/dextmanager/coordinator/constants"
	"github.com/edgelesssys/dextmanager/util"
	"github.com/spf13/afero"
)

func main() {
	cfg, err := config.Load(afero.NewOsFs(), util.Getenv(constants.ConfigFile, ""))
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	run(ctx, cfg)
}
