/*
Copyright (C) 2026  MemCP Contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Command xlogcat dumps the rows of an xlog or snap file to stdout, one
// line per row, optionally decoding the informative inner framings
// (run_crc, snap_initial, raft_append/raft_commit, raft_vote,
// shard_create/shard_alter) that the core storage log treats as opaque
// payload bytes.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/launix-de/octolog/logx"
	"github.com/launix-de/octolog/row"
	"github.com/launix-de/octolog/xlog"
	"github.com/launix-de/octolog/xlogdir"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: xlogcat <file.xlog|file.snap>\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	path := flag.Arg(0)
	filetype := xlogdir.FileTypeXLog
	if hasSuffix(path, ".snap") {
		filetype = xlogdir.FileTypeSnap
	}

	r, err := xlog.Open(path, filetype, logx.Nop{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "xlogcat: open %s: %v\n", path, err)
		os.Exit(1)
	}
	defer r.Close()

	fmt.Printf("filetype=%s version=%s\n", trimNL(r.Header.Filetype), trimNL(r.Header.Version))
	for k, v := range r.Header.Headers {
		fmt.Printf("header %s: %s\n", k, v)
	}

	showHeader := os.Getenv("OCTOPUS_CAT_ROW_HEADER") == "1"
	showRunCRC := os.Getenv("OCTOPUS_CAT_RUN_CRC") == "1"

	for {
		rec, err := r.ReadRow()
		if err != nil {
			fmt.Fprintf(os.Stderr, "xlogcat: %v\n", err)
			os.Exit(1)
		}
		if rec == nil {
			break
		}
		printRow(rec, showHeader, showRunCRC)
	}
}

func printRow(r *row.Row, showHeader, showRunCRC bool) {
	kind := r.Kind()
	if showHeader {
		fmt.Printf("lsn=%d scn=%d shard=%d cat=%d kind=%d tm=%.6f len=%d\n",
			r.LSN, r.SCN, r.ShardID, r.Category(), kind, r.Tm, len(r.Payload))
	} else {
		fmt.Printf("lsn=%d kind=%d len=%d\n", r.LSN, kind, len(r.Payload))
	}

	if kind == row.KindRunCRC && !showRunCRC {
		return
	}
	if desc, ok := decodeInner(kind, r.Payload); ok {
		fmt.Printf("  %s\n", desc)
	}
}

func hasSuffix(s, suf string) bool {
	return len(s) >= len(suf) && s[len(s)-len(suf):] == suf
}

func trimNL(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
