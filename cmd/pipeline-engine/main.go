package main

import (
	"github.com/LENAX/pipeline-engine/pkg/cli/cmd"
	"github.com/LENAX/pipeline-engine/pkg/logger"
)

func main() {
	defer logger.Sync()
	cmd.Execute()
}
