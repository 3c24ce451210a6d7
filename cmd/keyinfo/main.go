// Command keyinfo prints the public keys for the engine's configured WIF keys
// so they can be checked against the accounts' authorities.
package main

import (
	"flag"
	"fmt"
	"os"

	"steem-patron-bot/internal/steem"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: keyinfo [WIF ...]")
		fmt.Fprintln(os.Stderr, "Without arguments, REGISTRATION_ACTIVE_KEY and CURATION_POSTING_KEY are read from the environment.")
	}
	flag.Parse()

	keys := map[string]string{}
	if flag.NArg() > 0 {
		for i, wif := range flag.Args() {
			keys[fmt.Sprintf("arg%d", i+1)] = wif
		}
	} else {
		for _, name := range []string{"REGISTRATION_ACTIVE_KEY", "CURATION_POSTING_KEY"} {
			if v := os.Getenv(name); v != "" {
				keys[name] = v
			}
		}
	}
	if len(keys) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	failed := false
	for name, wif := range keys {
		key, err := steem.ParseWIF(wif)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
			failed = true
			continue
		}
		fmt.Printf("%s: %s\n", name, key.PublicKey())
	}
	if failed {
		os.Exit(1)
	}
}
