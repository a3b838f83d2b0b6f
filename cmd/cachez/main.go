// Command cachez inspects and cleans the folder used by persisted functions.
package main

import (
	"fmt"
	"os"

	"github.com/goforj/cachez"
)

func main() {
	cfg, err := cachez.ConfigFromEnv()
	if err == nil {
		err = cachez.Configure(cfg)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
