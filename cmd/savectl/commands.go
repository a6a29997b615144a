package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/lk2023060901/simsave/application"
	"github.com/lk2023060901/simsave/internal/json"
	"github.com/lk2023060901/simsave/internal/savestore"
	"github.com/lk2023060901/simsave/pkg/log"
	"github.com/lk2023060901/simsave/pkg/objgraph"
	"github.com/lk2023060901/simsave/pkg/util/merr"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

type command struct {
	name  string
	usage string
	args  int // 需要的最少位置参数个数
	run   func(c *cli, ctx context.Context, args []string) error
}

var commands = []command{
	{name: "list", usage: "list all saves", run: (*cli).list},
	{name: "inspect", usage: "print manifest and compact records of a save", args: 1, run: (*cli).inspect},
	{name: "validate", usage: "parse saves without instantiating objects", args: 1, run: (*cli).validate},
	{name: "dump", usage: "print the decompressed object stream", args: 1, run: (*cli).dump},
}

type cli struct {
	store  *savestore.Store
	stdout io.Writer
	asJSON bool
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("savectl", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.String("config", "", "path of the yaml/json config file")
	root := fs.String("root", "", "save root directory, overrides savestore.root_dir")
	asJSON := fs.Bool("json", false, "print manifests as json")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: savectl [flags] <command> [args]")
		fmt.Fprintln(stderr, "\ncommands:")
		for _, c := range commands {
			fmt.Fprintf(stderr, "  %-9s %s\n", c.name, c.usage)
		}
		fmt.Fprintln(stderr, "\nflags:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return exitUsage
	}
	cmd, ok := lo.Find(commands, func(c command) bool { return c.name == rest[0] })
	if !ok || len(rest)-1 < cmd.args {
		fs.Usage()
		return exitUsage
	}

	app := application.New(args...)
	if err := app.Run(); err != nil {
		fmt.Fprintln(stderr, "savectl:", err)
		return exitFailure
	}
	defer app.Close()

	sc, err := app.StoreConfig()
	if err != nil {
		fmt.Fprintln(stderr, "savectl:", err)
		return exitFailure
	}
	if *root != "" {
		sc.RootDir = *root
	}
	store, err := savestore.New(sc, objgraph.NewRegistry())
	if err != nil {
		fmt.Fprintln(stderr, "savectl:", err)
		return exitFailure
	}
	defer store.Close()
	store.SetLogger(app.Logger("savectl"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c := &cli{store: store, stdout: stdout, asJSON: *asJSON}
	if err := cmd.run(c, ctx, rest[1:]); err != nil {
		log.Ctx(ctx).Debug("command failed", zap.String("command", cmd.name), zap.Error(err))
		fmt.Fprintf(stderr, "savectl %s: %v (code %s)\n", cmd.name, err, merr.CodeName(err))
		return exitFailure
	}
	return exitOK
}

func (c *cli) printManifest(m *savestore.Manifest) error {
	if c.asJSON {
		data, err := json.MarshalIndent(m, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(c.stdout, string(data))
		return err
	}
	_, err := fmt.Fprintf(c.stdout, "%s\tformat=%s roots=%d objects=%d backrefs=%d bytes=%d compression=%s created=%s\n",
		m.Name, m.Format, m.Roots, m.Objects, m.Backrefs, m.StreamBytes, m.Compression,
		m.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
	return err
}

func (c *cli) list(ctx context.Context, _ []string) error {
	manifests, err := c.store.List(ctx)
	if err != nil {
		return err
	}
	for _, m := range manifests {
		if err := c.printManifest(m); err != nil {
			return err
		}
	}
	return nil
}

func (c *cli) inspect(ctx context.Context, args []string) error {
	m, values, err := c.store.Inspect(ctx, args[0])
	if err != nil {
		return err
	}
	if err := c.printManifest(m); err != nil {
		return err
	}
	for i, v := range values {
		if _, err := fmt.Fprintf(c.stdout, "[%d] %s\n", i, v); err != nil {
			return err
		}
	}
	return nil
}

// validate 逐个解析存档，并核对清单中的根数量与对象数量。
func (c *cli) validate(ctx context.Context, args []string) error {
	var errs []error
	for _, name := range args {
		if err := c.validateOne(ctx, name); err != nil {
			fmt.Fprintf(c.stdout, "%s\tFAIL\t%v\n", name, err)
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(c.stdout, "%s\tOK\n", name)
	}
	return merr.Combine(errs...)
}

func (c *cli) validateOne(ctx context.Context, name string) error {
	m, values, err := c.store.Inspect(ctx, name)
	if err != nil {
		return err
	}
	if len(values) != m.Roots {
		return merr.MarkSaveCorrupted(name, merr.WrapErrArityMismatch(m.Roots, len(values), "records"))
	}
	objects, backrefs := countObjects(values)
	if objects != m.Objects || backrefs != m.Backrefs {
		return merr.MarkSaveCorrupted(name, merr.WrapErrParameterInvalidMsg(
			"manifest records %d objects and %d backrefs, stream has %d and %d",
			m.Objects, m.Backrefs, objects, backrefs))
	}
	return nil
}

func countObjects(values []objgraph.Value) (objects, backrefs int) {
	for _, v := range values {
		v.Walk(func(x objgraph.Value) bool {
			if x.Kind == objgraph.KindObject {
				if x.Object.Backref {
					backrefs++
				} else {
					objects++
				}
			}
			return true
		})
	}
	return objects, backrefs
}

func (c *cli) dump(ctx context.Context, args []string) error {
	_, text, err := c.store.Stream(ctx, args[0])
	if err != nil {
		return err
	}
	_, err = io.WriteString(c.stdout, strings.TrimRight(string(text), "\n")+"\n")
	return err
}
