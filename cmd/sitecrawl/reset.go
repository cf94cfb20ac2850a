package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fwojciec/sitecrawl"
	"github.com/fwojciec/sitecrawl/config"
)

// Run executes the reset command.
func (c *ResetCmd) Run(deps *Dependencies) error {
	if err := deps.State.Reset(deps.Ctx); err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", sitecrawl.ErrorMessage(err))
		return err
	}

	if c.Cookies {
		path := filepath.Join(deps.StateDir, config.CookieFile)
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(deps.Stderr, "error: %s\n", err)
			return err
		}
	}

	fmt.Fprintf(deps.Stdout, "Cleared crawl state for %s\n", deps.Domain)
	return nil
}
