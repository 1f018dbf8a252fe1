package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/pkg/errors"

	"github.com/meld-cfg/meld"
	"github.com/meld-cfg/meld/meta"
)

// history prints the version history of a path, oldest first.
func (c maincmd) history(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: log PATH")
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
	mapPath, err := m.ToCanonical(path)
	if err != nil {
		return errors.Wrapf(err, "canonicalizing %s", path)
	}

	blob, err := b.Meta.ObjectExists(ctx, mapPath)
	if errors.Is(err, meta.ErrNotFound) {
		return errors.Wrap(meld.ErrFileNotFound, mapPath)
	}
	if err != nil {
		return err
	}

	maps, err := b.Meta.ListMaps(ctx, blob)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintf(w, "VERSION\tTAG\tHASH\n")
	err = b.Meta.ListVersions(ctx, blob, func(v meld.Version) error {
		fmt.Fprintf(w, "%d\t%s\t%s\n", v.Ver, v.Tag, short(v.DataHash))
		return nil
	})
	if err != nil {
		return err
	}
	if len(maps) > 0 {
		fmt.Fprintf(w, "\nSNAPSHOT\tTAG\tHASH\n")
		for _, mp := range maps {
			fmt.Fprintf(w, "%d\t%s\t%s\n", mp.Ver, mp.Tag, short(mp.Hash))
		}
	}
	return w.Flush()
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
