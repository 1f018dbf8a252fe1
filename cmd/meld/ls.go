package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/pkg/errors"

	"github.com/meld-cfg/meld"
)

func (c maincmd) ls(ctx context.Context, subset, family string, args []string) error {
	if len(args) != 0 {
		return errors.New("usage: ls [-subset S] [-family F]")
	}

	b, err := c.openBin(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	err = b.Meta.ListObjects(ctx, func(obj meld.Object) error {
		if subset != "" && obj.Subset != subset {
			return nil
		}
		if family != "" && obj.Family != family {
			return nil
		}
		cur, err := b.Meta.CurrentVersion(ctx, obj.Blob)
		if err != nil {
			return errors.Wrapf(err, "getting current version of %s", obj.MapPath)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", obj.MapPath, cur.Ver, cur.Tag, obj.Subset, obj.Family)
		return nil
	})
	if err != nil {
		return err
	}
	return w.Flush()
}
