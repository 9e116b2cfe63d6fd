package main

import (
	"errors"
	"log"
	"os"

	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/config"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/notifyworker"
)

func main() {
	if err := config.ParseFlags("notification-worker", os.Args[1:], os.Stderr); err != nil {
		if errors.Is(err, config.ErrHelp) {
			return
		}
		log.Fatalf("notification worker: %v", err)
	}
	if err := notifyworker.Run(); err != nil {
		log.Fatalf("notification worker failed: %v", err)
	}
}
