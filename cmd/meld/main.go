// Command meld tracks versions of configuration files and directory trees.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/bobg/subcmd"
	"go.uber.org/zap"

	"github.com/meld-cfg/meld"
	"github.com/meld-cfg/meld/bin"
	"github.com/meld-cfg/meld/mapper"
)

type maincmd struct {
	conf *config
	log  *zap.Logger
}

func main() {
	var (
		binPath  = flag.String("bin", "", "path to the meld bin (default: $MELD_BIN, the config file's bin, or ~/.meld)")
		confPath = flag.String("config", "", "path to config file (default: ~/.config/meld/meld.yaml)")
		logLevel = flag.String("log", "", "log level: debug, info, warn, error, or none (default: warn)")
	)
	flag.Parse()

	if err := run(*binPath, *confPath, *logLevel, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "meld: %s\n", err)
		os.Exit(1)
	}
}

func run(binPath, confPath, logLevel string, args []string) error {
	conf, err := loadConfig(confPath)
	if err != nil {
		return err
	}
	conf.override(binPath, os.Getenv("MELD_BIN"), logLevel)

	log, err := getLogger(conf.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	return subcmd.Run(context.Background(), maincmd{conf: conf, log: log}, args)
}

func (c maincmd) Subcmds() subcmd.Map {
	return subcmd.Commands(
		"init", c.initBin, subcmd.Params(
			"parents", subcmd.Bool, false, "create missing parent directories",
			"force", subcmd.Bool, false, "replace an existing bin",
		),
		"log", c.history, nil,
		"ls", c.ls, subcmd.Params(
			"subset", subcmd.String, "", "list only objects in this subset",
			"family", subcmd.String, "", "list only objects in this family",
		),
		"pull", c.pull, subcmd.Params(
			"tag", subcmd.String, "", "pull the earliest version (or tree snapshot) with this tag",
			"version", subcmd.Uint, uint(0), "pull this version (or tree snapshot) number",
			"recent", subcmd.Bool, false, "fall back to the current version if -tag or -version selects nothing",
		),
		"push", c.push, subcmd.Params(
			"subset", subcmd.String, "", "subset to classify the pushed objects in",
			"family", subcmd.String, "", "family to classify the pushed objects in",
			"tag", subcmd.String, "", "tag for the pushed version",
		),
	)
}

func (c maincmd) openBin(ctx context.Context) (*bin.Bin, error) {
	return bin.Open(ctx, c.conf.Bin, c.log)
}

func (c maincmd) mapper() (mapper.Mapper, error) {
	return mapper.New(c.conf.HomeAlias)
}

func (c maincmd) hasher() (*meld.Hasher, error) {
	return meld.NewHasher(c.conf.HashCacheSize)
}
