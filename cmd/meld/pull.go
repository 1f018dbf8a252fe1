package main

import (
	"context"
	"fmt"
	"math"

	"github.com/pkg/errors"

	"github.com/meld-cfg/meld/pull"
)

const pullUsage = `usage: pull [-tag T] [-version N] [-recent] PATH
For a directory tree, -tag and -version select a snapshot of the whole tree;
use -recent to fall back to the current snapshot when they select nothing.`

func (c maincmd) pull(ctx context.Context, tag string, version uint, recent bool, args []string) error {
	if len(args) != 1 {
		return errors.New(pullUsage)
	}
	path := args[0]
	if uint64(version) > math.MaxUint32 {
		return errors.Errorf("version %d out of range", version)
	}

	b, err := c.openBin(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	m, err := c.mapper()
	if err != nil {
		return err
	}
	h, err := c.hasher()
	if err != nil {
		return err
	}

	req := pull.Request{Tag: tag, Version: uint32(version), Recent: recent}
	results, err := pull.Path(ctx, b, m, h, path, req)
	if err != nil {
		return errors.Wrapf(err, "pulling %s", path)
	}

	var restored int
	for _, res := range results {
		if res.Restored {
			restored++
			fmt.Printf("%s: restored version %d\n", res.Path, res.Version.Ver)
		}
	}
	if restored == 0 {
		fmt.Printf("%s: already up to date\n", path)
	}
	return nil
}
