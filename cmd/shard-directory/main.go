package main

import (
	"os"

	"github.com/clusterkit/shard-directory/directoryservice"
)

func main() {
	if err := directoryservice.Run(); err != nil {
		os.Exit(1)
	}
}
