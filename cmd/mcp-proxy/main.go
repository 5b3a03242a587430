package main

import (
	"errors"
	"log"
	"os"

	proxy "github.com/viant/mcp-proxy"
)

func main() {
	if err := proxy.Run(os.Args[1:]); err != nil {
		var exitError *proxy.ExitError
		if errors.As(err, &exitError) {
			os.Exit(exitError.Code)
		}
		log.Fatal(err)
	}
}
