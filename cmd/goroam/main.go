// Command goroam runs the roaming session server and its maintenance tools.
//
// Configuration comes from GOROAM_* environment variables and an optional
// dotenv file (see internal/envconfig). Without GOROAM_REDIS_ADDR an embedded
// miniredis is started, and without GOROAM_DATABASE_URL identities live in
// memory, which is enough to try the roaming flows locally.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
