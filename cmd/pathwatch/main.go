// Command pathwatch watches the paths given on the command line and prints a
// line for each change until interrupted. The paths do not need to exist.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/benesch/pathwatch"
)

func main() {
	log.SetPrefix("[pathwatch] ")
	log.SetFlags(0)
	debug := flag.Bool("debug", false, "log internal diagnostics to stderr")
	flag.Parse()
	if flag.NArg() == 0 {
		log.Fatal("usage: pathwatch [-debug] path...")
	}
	if *debug {
		pathwatch.SetDebugOutput(os.Stderr)
	}

	srv, err := pathwatch.NewServer()
	if err != nil {
		log.Fatal(err)
	}

	var watches []*pathwatch.Watch
	for _, arg := range flag.Args() {
		path, err := filepath.Abs(arg)
		if err != nil {
			log.Fatal(err)
		}
		w, err := srv.Watch(path, func(flags pathwatch.Flags, newPath string) {
			if newPath != "" {
				fmt.Printf("%s: %s -> %s\n", path, flags, newPath)
			} else {
				fmt.Printf("%s: %s\n", path, flags)
			}
		})
		if err != nil {
			log.Fatal(err)
		}
		watches = append(watches, w)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	go func() {
		<-sigs
		for _, w := range watches {
			w.Close()
		}
		srv.Close()
	}()

	// Deliver callbacks on the main goroutine until the server shuts down.
	srv.DispatchLoop()
}
