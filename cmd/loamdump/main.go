// Package main provides loamdump, an offline inspector for loamkv data
// directories.
//
// Usage:
//
//	loamdump wal <segment-file>       Print every record in a WAL segment
//	loamdump sst <meta-file>          Print table footer and contents
//	loamdump manifest <manifest-file> Print the level layout
//
// Common flags:
//
//	--hex      print keys and values as hex
//	--limit=N  stop after N records (0 = unlimited)
package main

import (
	"fmt"
	"os"

	flags "github.com/jessevdk/go-flags"
)

type options struct {
	Hex   bool `long:"hex" description:"Print keys and values as hex"`
	Limit int  `long:"limit" default:"0" description:"Stop after N records (0 = unlimited)"`

	WAL struct {
		Args struct {
			Path string `positional-arg-name:"segment-file" required:"true"`
		} `positional-args:"true"`
	} `command:"wal" description:"Print every record in a WAL segment"`

	SST struct {
		Footer bool `long:"footer" description:"Print only the footer"`
		Args   struct {
			Path string `positional-arg-name:"meta-file" required:"true"`
		} `positional-args:"true"`
	} `command:"sst" description:"Print an SSTable's footer and contents"`

	Manifest struct {
		Args struct {
			Path string `positional-arg-name:"manifest-file" required:"true"`
		} `positional-args:"true"`
	} `command:"manifest" description:"Print the manifest level layout"`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	var err error
	switch parser.Active.Name {
	case "wal":
		err = dumpWAL(opts.WAL.Args.Path, opts.Hex, opts.Limit)
	case "sst":
		err = dumpSST(opts.SST.Args.Path, opts.Hex, opts.Limit, opts.SST.Footer)
	case "manifest":
		err = dumpManifest(opts.Manifest.Args.Path)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
