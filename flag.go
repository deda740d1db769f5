package main

import (
	"flag"
	"fmt"
	"os"
)

var (
	hf         bool
	configPath string
	logLevel   string
	noStdin    bool
)

func InitFlag() {
	flag.BoolVar(&hf, "h", false, "this help")
	flag.StringVar(&configPath, "c", "./conf/conf.toml", "set config `file`")
	flag.StringVar(&logLevel, "l", "info", "set log level (default: info)")
	flag.BoolVar(&noStdin, "d", false, "do not read commands from stdin, serve the websocket UI only")
	flag.Usage = usage
	flag.Parse()

	if hf {
		flag.Usage()
		os.Exit(0)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `tileview version: tileview/v0.1.0
Usage: tileview [-h] [-c filename] [-l logLevel] [-d]

Commands (stdin):
  +, in          zoom in
  -, out         zoom out
  pan <dx> <dy>  translate the view
  wheel <dy>     wheel zoom (zoom 0 only)
  state          print the viewport state
  q, quit        exit
`)
	flag.PrintDefaults()
}
