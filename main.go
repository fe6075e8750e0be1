package main

import (
	"os"

	"github.com/BerniceZTT/crm_engagement/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
