package main

import (
	"fmt"

	"github.com/fwojciec/sitecrawl"
)

// Run executes the pending command.
func (c *PendingCmd) Run(deps *Dependencies) error {
	reqs, err := deps.State.LoadQueue(deps.Ctx)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", sitecrawl.ErrorMessage(err))
		return err
	}

	if len(reqs) == 0 {
		fmt.Fprintf(deps.Stdout, "No pending requests for %s.\n", deps.Domain)
		return nil
	}

	for _, req := range reqs {
		method := req.Options.Method
		if method == "" {
			method = "GET"
		}
		fmt.Fprintf(deps.Stdout, "%s %s\n", method, req.URL)
	}

	return nil
}
