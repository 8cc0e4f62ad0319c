package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/docopt/docopt-go"

	"eezz.org/rui/rui"
)

const RuiCtlVersion = "0.0.1"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := `Remote ui control.

Usage:
    ruictl parse <binding>
    ruictl decode <file>
    ruictl shelf [--document_path=<document_path>] [<title>]
    ruictl connect [--config=<config>] --page=<page> [--title=<title>]

Options:
    -h --help                        Show this screen.
    --version                        Show version.
    --document_path=<document_path>  Document shelf directory.
    --config=<config>                Service config yaml.
    --page=<page>                    Initial page markup file.
    --title=<title>                  Session title.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], RuiCtlVersion)
	if err != nil {
		panic(err)
	}

	if parse_, _ := opts.Bool("parse"); parse_ {
		parse(opts)
	} else if decode_, _ := opts.Bool("decode"); decode_ {
		decode(opts)
	} else if shelf_, _ := opts.Bool("shelf"); shelf_ {
		shelf(opts)
	} else if connect_, _ := opts.Bool("connect"); connect_ {
		connect(opts)
	}
}

// parse a binding expression and print the compiled descriptor
func parse(opts docopt.Opts) {
	binding, _ := opts.String("<binding>")

	statements, err := rui.ParseBinding(binding)
	if err != nil {
		Err.Printf("Invalid binding (%s).\n", err)
		os.Exit(1)
	}
	compiled := rui.CompileBinding(statements, rui.NewElementId())
	b, err := json.MarshalIndent(compiled, "", "    ")
	if err != nil {
		panic(err)
	}
	Out.Printf("%s\n", b)
}

// decode a protocol message file and print a short description
func decode(opts docopt.Opts) {
	path, _ := opts.String("<file>")

	b, err := os.ReadFile(path)
	if err != nil {
		Err.Printf("Cannot read file (%s).\n", err)
		os.Exit(1)
	}
	message, err := rui.DecodeMessage(b)
	if err != nil {
		Err.Printf("Cannot decode message (%s).\n", err)
		os.Exit(1)
	}
	switch v := message.(type) {
	case *rui.UpdateMessage:
		Out.Printf("update operations=%d\n", len(v.Update))
		for _, operation := range v.Update {
			Out.Printf("    %s (%s) = %.60s\n", operation.Target, operation.Type, operation.ValueString())
		}
	case *rui.CallMessage:
		Out.Printf("call %s id=%s\n", v.Call.Function, v.Call.Id)
	case *rui.ChunkMessage:
		Out.Printf("chunk %s sequence=%d size=%d source=%s\n", v.Name, v.Sequence, v.Size, v.Source)
	case *rui.FinishMessage:
		Out.Printf("finished source=%s volume=%d\n", v.Source, v.Volume)
	case *rui.InitializeMessage:
		Out.Printf("initialize title=%s markup_bytes=%d\n", v.Title, len(v.Initialize))
	default:
		Out.Printf("%T\n", v)
	}
}

// list shelf titles, or print one manifest
func shelf(opts docopt.Opts) {
	documentPath, err := opts.String("--document_path")
	if err != nil || documentPath == "" {
		documentPath = rui.DefaultServiceConfig().DocumentPath
	}

	documentShelf, err := rui.OpenDocumentShelf(documentPath)
	if err != nil {
		Err.Printf("Cannot open shelf (%s).\n", err)
		os.Exit(1)
	}
	defer documentShelf.Close()

	if title, err := opts.String("<title>"); err == nil && title != "" {
		manifest, err := documentShelf.Manifest(title)
		if err != nil {
			Err.Printf("%s\n", err)
			os.Exit(1)
		}
		b, err := json.MarshalIndent(manifest, "", "    ")
		if err != nil {
			panic(err)
		}
		Out.Printf("%s\n", b)
	} else {
		titles, err := documentShelf.Titles()
		if err != nil {
			Err.Printf("%s\n", err)
			os.Exit(1)
		}
		for _, title := range titles {
			Out.Printf("%s\n", title)
		}
	}
}

// connect to a service with the given page and print the updated root ids
func connect(opts docopt.Opts) {
	config := rui.DefaultServiceConfig()
	if configPath, err := opts.String("--config"); err == nil && configPath != "" {
		var err error
		config, err = rui.LoadServiceConfig(configPath)
		if err != nil {
			Err.Printf("Cannot load config (%s).\n", err)
			os.Exit(1)
		}
	}

	pagePath, _ := opts.String("--page")
	markup, err := os.ReadFile(pagePath)
	if err != nil {
		Err.Printf("Cannot read page (%s).\n", err)
		os.Exit(1)
	}
	title, err := opts.String("--title")
	if err != nil || title == "" {
		title = "ruictl"
	}

	tree, err := rui.NewMemoryTree(string(markup))
	if err != nil {
		Err.Printf("Invalid page markup (%s).\n", err)
		os.Exit(1)
	}

	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	settings := rui.DefaultConnectionSettings()
	settings.ChunkSize = config.ChunkSize

	registry := rui.NewRegistry()
	registry.Register("window.location.reload", func(operation *rui.UpdateOperation) {
		Out.Printf("reload requested\n")
	})

	connection := rui.NewConnection(
		cancelCtx,
		rui.WsDialFunc(config.WebSocketUrl(), settings),
		tree,
		registry,
		title,
		"",
		func(rootId string) {
			Out.Printf("updated %s\n", rootId)
		},
		settings,
	)
	defer connection.Close()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
}
