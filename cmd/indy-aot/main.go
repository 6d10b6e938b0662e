// indy-aot - replays a linker resolution trace into a stored archive
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/mattn/go-isatty"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/indy/manifest"
	"github.com/chazu/indy/vm"
	"github.com/chazu/indy/vm/aot"
)

func main() {
	verbose := flag.Int("v", 0, "Additional log verbosity")
	name := flag.String("o", "", "Archive name (default from indy.toml, else 'default')")
	storeKind := flag.String("store", "", "Archive store: file or sqlite")
	storePath := flag.String("path", "", "Store location (directory or database file)")
	compress := flag.Bool("z", false, "Gzip the archive payload")
	workers := flag.Int("workers", 0, "Parallel replay workers (0 = GOMAXPROCS)")
	report := flag.String("report", "", "Write a YAML report to this file ('-' for stdout)")
	list := flag.Bool("list", false, "List stored archives and exit")
	check := flag.String("check", "", "Install the named archive into a fresh runtime and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: indy-aot [options] [trace-file]\n\n")
		fmt.Fprintf(os.Stderr, "Replays SPECIES_RESOLVE and LF_RESOLVE lines into an archive.\n")
		fmt.Fprintf(os.Stderr, "Reads the trace from stdin when no file is given.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  indy-aot linker.trace              # Emit into .indy/archives/default.indy\n")
		fmt.Fprintf(os.Stderr, "  indy-aot -store sqlite -o app t.txt # Emit into a SQLite store\n")
		fmt.Fprintf(os.Stderr, "  indy-aot -list                     # Show stored archives\n")
		fmt.Fprintf(os.Stderr, "  indy-aot -check app                # Verify an archive installs cleanly\n")
	}
	flag.Parse()

	m, err := manifest.FindAndLoad(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if m == nil {
		m = manifest.Default()
	}
	m.ConfigureLogging(*verbose)

	if *name == "" {
		*name = m.AOT.Archive
	}
	if *storeKind == "" {
		*storeKind = m.AOT.Store
	}
	if *storePath == "" {
		*storePath = m.Resolve(m.AOT.Path)
	}
	if *workers == 0 {
		*workers = m.AOT.Workers
	}
	if *report == "" {
		*report = m.Resolve(m.AOT.Report)
	}
	*compress = *compress || m.AOT.Compress

	if *storeKind == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(*storePath), 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	store, err := aot.OpenStore(*storeKind, *storePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	switch {
	case *list:
		err = runList(store)
	case *check != "":
		err = runCheck(store, *check, m.RuntimeOptions())
	default:
		err = runEmit(store, emitArgs{
			name:     *name,
			trace:    flag.Arg(0),
			compress: *compress,
			workers:  *workers,
			report:   *report,
			opts:     m.RuntimeOptions(),
		})
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		store.Close()
		os.Exit(1)
	}
}

type emitArgs struct {
	name     string
	trace    string
	compress bool
	workers  int
	report   string
	opts     vm.Options
}

func runEmit(store aot.Store, args emitArgs) error {
	var in io.Reader = os.Stdin
	if args.trace != "" && args.trace != "-" {
		f, err := os.Open(args.trace)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	events, err := vm.ReadTrace(bufio.NewReader(in))
	if err != nil {
		return fmt.Errorf("reading trace: %w", err)
	}

	em := &aot.Emitter{Workers: args.workers, Options: args.opts}
	a, err := em.Emit(context.Background(), events)
	if err != nil {
		return err
	}
	data, err := aot.Encode(a, args.compress)
	if err != nil {
		return err
	}
	if err := store.Put(args.name, data); err != nil {
		return err
	}

	if args.report != "" {
		if err := writeReport(a, args.report); err != nil {
			return err
		}
	}

	if isatty.IsTerminal(os.Stdout.Fd()) {
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "archive\t%s\n", args.name)
		fmt.Fprintf(tw, "build\t%s\n", a.BuildID)
		fmt.Fprintf(tw, "events\t%d\n", len(events))
		fmt.Fprintf(tw, "species\t%d\n", len(a.Species))
		fmt.Fprintf(tw, "forms\t%d\n", len(a.Forms))
		fmt.Fprintf(tw, "bytes\t%d\n", len(data))
		return tw.Flush()
	}
	fmt.Printf("%s %s species=%d forms=%d bytes=%d\n", args.name, a.BuildID, len(a.Species), len(a.Forms), len(data))
	return nil
}

func writeReport(a *aot.Archive, path string) error {
	r, err := aot.NewReport(a)
	if err != nil {
		return err
	}
	if path == "-" {
		return r.WriteYAML(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report: %w", err)
	}
	if err := r.WriteYAML(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func runList(store aot.Store) error {
	names, err := store.List()
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}

func runCheck(store aot.Store, name string, opts vm.Options) error {
	data, err := store.Get(name)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	a, err := aot.Decode(data)
	if err != nil {
		return err
	}
	st, err := aot.Install(vm.NewRuntime(opts), a)
	if err != nil {
		return err
	}
	fmt.Printf("%s: ok (%d carriers, %d species, %d forms)\n", name, st.Carriers, st.Species, st.Forms)
	return nil
}
