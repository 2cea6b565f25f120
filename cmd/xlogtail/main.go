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

// Command xlogtail is an interactive follow viewer over a single xlog
// file: a readline prompt accepting :tail, :seek <lsn>, and :quit.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/launix-de/octolog/logx"
	"github.com/launix-de/octolog/xlog"
	"github.com/launix-de/octolog/xlogdir"
)

const prompt = "\033[32mxlogtail>\033[0m "

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: xlogtail <file.xlog>\n")
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	path := flag.Arg(0)
	r, err := xlog.Open(path, xlogdir.FileTypeXLog, logx.Nop{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "xlogtail: open %s: %v\n", path, err)
		os.Exit(1)
	}
	defer r.Close()

	l, err := readline.NewEx(&readline.Config{
		Prompt:            prompt,
		HistoryFile:       ".xlogtail-history.tmp",
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		panic(err)
	}
	defer l.Close()
	l.CaptureExitSignal()

	fmt.Printf("xlogtail: %s (filetype=%s)\n", path, trimNL(r.Header.Filetype))
	fmt.Println("commands: :tail, :seek <lsn>, :quit")

	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err == io.EOF {
			return
		} else if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch {
		case line == ":quit":
			return
		case line == ":tail":
			runTail(r, l)
		case strings.HasPrefix(line, ":seek "):
			runSeek(r, strings.TrimSpace(strings.TrimPrefix(line, ":seek ")))
		default:
			drainOnce(r)
		}
	}
}

// drainOnce prints every row currently available without entering
// follow mode.
func drainOnce(r *xlog.Reader) {
	for {
		row, err := r.ReadRow()
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		if row == nil {
			return
		}
		fmt.Printf("lsn=%d scn=%d shard=%d len=%d\n", row.LSN, row.SCN, row.ShardID, len(row.Payload))
	}
}

// runTail drains what's available, then enters follow mode until the
// user presses Enter again. l is the same readline instance driving the
// outer command loop: reusing its Readline call to wait for the
// keystroke means stdin has exactly one reader at a time, rather than a
// second goroutine racing the prompt for input.
func runTail(r *xlog.Reader, l *readline.Instance) {
	drainOnce(r)
	fmt.Println("(following; press enter to stop)")

	if err := r.Follow(5*time.Second, func() {
		drainOnce(r)
	}); err != nil {
		fmt.Printf("follow: %v\n", err)
		return
	}

	l.SetPrompt("")
	l.Readline()
	l.SetPrompt(prompt)
	r.Follow(0, nil)
}

func runSeek(r *xlog.Reader, arg string) {
	lsn, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		fmt.Printf("seek: %v\n", err)
		return
	}
	for {
		row, err := r.ReadRow()
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		if row == nil {
			fmt.Printf("reached end of stream before lsn=%d\n", lsn)
			return
		}
		if row.LSN >= lsn {
			fmt.Printf("lsn=%d scn=%d shard=%d len=%d\n", row.LSN, row.SCN, row.ShardID, len(row.Payload))
			return
		}
	}
}

func trimNL(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
