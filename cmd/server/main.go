package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/mywarranties/internal/buildinfo"
	"github.com/dmitrijs2005/mywarranties/internal/flagx"
	"github.com/dmitrijs2005/mywarranties/internal/server"
	"github.com/dmitrijs2005/mywarranties/internal/server/config"
)

// Usage:
//
//	server [serve] [flags]          run the remote store (default)
//	server token -owner <id> [-s]   print an access token for a device
func main() {
	cfg := config.LoadConfig()

	command := "serve"
	if len(os.Args) > 1 && os.Args[1] != "" && os.Args[1][0] != '-' {
		command = os.Args[1]
	}

	switch command {
	case "serve":
		serve(cfg)
	case "token":
		token(cfg)
	default:
		log.Fatalf("unknown command %q (want serve or token)", command)
	}
}

func serve(cfg *config.Config) {
	buildinfo.PrintBuildData(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := app.Run(ctx); err != nil {
		log.Printf("%v", err)
	}
}

func token(cfg *config.Config) {
	var ownerID string
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.StringVar(&ownerID, "owner", "", "owner id the token is issued for")
	if err := flagx.ParseKnown(fs, os.Args[2:]); err != nil {
		log.Fatalf("%v", err)
	}

	tok, err := server.IssueToken(cfg, ownerID)
	if err != nil {
		log.Fatalf("%v", err)
	}
	fmt.Println(tok)
}
