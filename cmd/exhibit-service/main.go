package main

import (
	"errors"
	"log"
	"os"

	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/app"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/config"
)

func main() {
	if err := config.ParseFlags("exhibit-service", os.Args[1:], os.Stderr); err != nil {
		if errors.Is(err, config.ErrHelp) {
			return
		}
		log.Fatalf("exhibit service: %v", err)
	}
	if err := app.Run(); err != nil {
		log.Fatalf("exhibit service failed: %v", err)
	}
}
