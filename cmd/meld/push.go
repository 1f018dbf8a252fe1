package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/meld-cfg/meld/push"
)

func (c maincmd) push(ctx context.Context, subset, family, tag string, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: push [-subset S] [-family F] [-tag T] PATH")
	}
	path := args[0]

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

	res, err := push.Path(ctx, b, m, h, path, push.Options{Subset: subset, Family: family, Tag: tag})
	if err != nil {
		return errors.Wrapf(err, "pushing %s", path)
	}

	fmt.Printf("%s: version %d (%s)\n", path, res.Ver, res.Type)
	return nil
}
