package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/meld-cfg/meld/bin"
)

func (c maincmd) initBin(ctx context.Context, parents, force bool, args []string) error {
	if len(args) != 0 {
		return errors.New("usage: init [-parents] [-force]")
	}
	if c.conf.Bin == "" {
		return errors.New("no bin path (use -bin or MELD_BIN)")
	}

	b, err := bin.Create(ctx, c.conf.Bin, parents, force, c.log)
	if err != nil {
		return errors.Wrapf(err, "creating bin %s", c.conf.Bin)
	}
	defer b.Close()

	fmt.Printf("initialized meld bin at %s\n", b.Path)
	return nil
}
