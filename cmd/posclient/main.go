package main

import (
	"os"

	"github.com/mmazune/chefcloud/internal/cli"
	"github.com/mmazune/chefcloud/pkg/logging"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		logging.GetLogger().Error(err)
		os.Exit(1)
	}
}
