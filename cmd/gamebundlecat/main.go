// Command gamebundlecat inspects and extracts entries from BIG and BND2
// game-asset archives.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/distr1/gamebundle"
	"golang.org/x/xerrors"
)

var (
	debug = flag.Bool("debug", false, "format error messages with additional detail")
	block = flag.Int("block", 0, "BND2 block index (0-2) to extract with the 'cat' verb")
)

// compressionLevel resolves the zlib compression level ReplaceEntry uses to
// recompress BND2 blocks: the GAMEBUNDLE_COMPRESSION_LEVEL environment variable if
// set and parseable, best-compression otherwise.
func compressionLevel() int {
	const bestCompression = 9
	v := os.Getenv("GAMEBUNDLE_COMPRESSION_LEVEL")
	if v == "" {
		return bestCompression
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("ignoring invalid GAMEBUNDLE_COMPRESSION_LEVEL %q: %v", v, err)
		return bestCompression
	}
	return n
}

func list(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return xerrors.New("syntax: gamebundlecat list <archive>")
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return xerrors.Errorf("list: %w", err)
	}
	b, err := gamebundle.Open(data)
	if err != nil {
		return xerrors.Errorf("list: %w", err)
	}
	for _, e := range b.ListEntries() {
		fmt.Println(e)
	}
	return nil
}

func cat(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("cat", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 2 {
		return xerrors.New("syntax: gamebundlecat cat <archive> <path-or-hex-fileid>")
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return xerrors.Errorf("cat: %w", err)
	}
	b, err := gamebundle.Open(data)
	if err != nil {
		return xerrors.Errorf("cat: %w", err)
	}

	key := fs.Arg(1)
	switch b.Kind() {
	case gamebundle.KindBig:
		out, ok := b.Big().GetBinary(key)
		if !ok {
			return xerrors.Errorf("cat: %q not found", key)
		}
		os.Stdout.Write(out)
		return nil
	case gamebundle.KindBnd2:
		id, err := strconv.ParseUint(key, 16, 32)
		if err != nil {
			return xerrors.Errorf("cat: %q is not a hex file ID: %w", key, err)
		}
		if *block < 0 || *block > 2 {
			return xerrors.New("cat: -block must be 0, 1, or 2")
		}
		out, ok, err := b.Bnd2().GetBlock(uint32(id), *block)
		if err != nil {
			return xerrors.Errorf("cat: %w", err)
		}
		if !ok {
			return xerrors.Errorf("cat: fileID %08x block %d not found", id, *block)
		}
		os.Stdout.Write(out)
		return nil
	default:
		return xerrors.New("cat: unsupported archive kind")
	}
}

func replace(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("replace", flag.ExitOnError)
	blockArg := fs.Int("block", 0, "block index (0-2) to replace")
	fs.Parse(args)
	if fs.NArg() != 3 {
		return xerrors.New("syntax: gamebundlecat replace <archive> <hex-fileid> <payload-file>")
	}
	if *blockArg < 0 || *blockArg > 2 {
		return xerrors.New("replace: -block must be 0, 1, or 2")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return xerrors.Errorf("replace: %w", err)
	}
	b, err := gamebundle.Open(data)
	if err != nil {
		return xerrors.Errorf("replace: %w", err)
	}
	a := b.Bnd2()
	if a == nil {
		return xerrors.New("replace: only BND2 archives support ReplaceEntry")
	}
	a.SetCompressionLevel(compressionLevel())

	id, err := strconv.ParseUint(fs.Arg(1), 16, 32)
	if err != nil {
		return xerrors.Errorf("replace: %q is not a hex file ID: %w", fs.Arg(1), err)
	}
	payload, err := os.ReadFile(fs.Arg(2))
	if err != nil {
		return xerrors.Errorf("replace: %w", err)
	}

	existing, ok, err := a.GetBinary(uint32(id))
	if err != nil {
		return xerrors.Errorf("replace: %w", err)
	}
	if !ok {
		return xerrors.Errorf("replace: fileID %08x not found", id)
	}
	existing.Blocks[*blockArg] = payload
	if ok, err := a.ReplaceEntry(ctx, uint32(id), existing); err != nil {
		return xerrors.Errorf("replace: %w", err)
	} else if !ok {
		return xerrors.Errorf("replace: fileID %08x not found", id)
	}

	out, err := a.Save(ctx)
	if err != nil {
		return xerrors.Errorf("replace: %w", err)
	}

	tmpPath := fs.Arg(0) + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return xerrors.Errorf("replace: %w", err)
	}
	gamebundle.RegisterAtExit(f.Close)
	if _, err := f.Write(out); err != nil {
		return xerrors.Errorf("replace: %w", err)
	}
	if err := os.Rename(tmpPath, fs.Arg(0)); err != nil {
		return xerrors.Errorf("replace: %w", err)
	}
	return nil
}

func info(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return xerrors.New("syntax: gamebundlecat info <archive>")
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return xerrors.Errorf("info: %w", err)
	}
	b, err := gamebundle.Open(data)
	if err != nil {
		return xerrors.Errorf("info: %w", err)
	}
	switch b.Kind() {
	case gamebundle.KindBig:
		fmt.Printf("variant: %s\nentries: %d\n", b.Big().Variant(), len(b.Big().ListEntries()))
	case gamebundle.KindBnd2:
		a := b.Bnd2()
		fmt.Printf("big-endian: %v\ncompressed: %v\nresource string table: %v\nentries: %d\n",
			a.BigEndian(), a.IsCompressed(), a.HasResourceStringTable(), len(a.ListEntries()))
	}
	return nil
}

func funcmain() error {
	flag.Parse()

	type cmd struct {
		fn func(ctx context.Context, args []string) error
	}
	verbs := map[string]cmd{
		"list":    {list},
		"cat":     {cat},
		"info":    {info},
		"replace": {replace},
	}

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "syntax: gamebundlecat <command> [options] <archive> [args]\n")
		fmt.Fprintf(os.Stderr, "commands: list, cat, info, replace\n")
		os.Exit(2)
	}
	verb, rest := args[0], args[1:]

	ctx, canc := gamebundle.InterruptibleContext()
	defer canc()

	v, ok := verbs[verb]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", verb)
		os.Exit(2)
	}
	if err := v.fn(ctx, rest); err != nil {
		if *debug {
			return fmt.Errorf("%s: %+v", verb, err)
		}
		return fmt.Errorf("%s: %v", verb, err)
	}
	return gamebundle.RunAtExit()
}

func main() {
	if err := funcmain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
