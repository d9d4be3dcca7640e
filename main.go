package main

import (
	"fmt"
	"os"

	"stakevault/cmd"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "reconcile" {
		fix := len(os.Args) > 2 && os.Args[2] == "--fix"
		if err := cmd.Reconcile(fix); err != nil {
			fmt.Printf("reconcile run into an error: %s", err)
			os.Exit(1)
		}
		return
	}

	if err := cmd.Start(); err != nil {
		fmt.Printf("server run into an error: %s", err)
		os.Exit(1)
	}
}
