// Command podforged runs the podforge daemon in the foreground. It is the
// same process `podforge serve` starts, packaged for service managers that
// expect a dedicated binary.
package main

import (
	"context"
	"flag"
	"log"

	"podforge/internal/config"
	"podforge/internal/daemonrun"
)

func main() {
	configPath := flag.String("config", "", "Configuration file path (defaults to $PODFORGE_CONFIG or ~/.config/podforge/config.toml)")
	logLevel := flag.String("log-level", "", "Override logging.level")
	flag.Parse()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{LogLevel: *logLevel}); err != nil {
		log.Fatalf("podforged: %v", err)
	}
}
