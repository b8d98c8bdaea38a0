// Command sitesyncd runs the sitesync daemon for service managers that expect
// a dedicated binary. It is equivalent to "sitesync run".
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"sitesync/internal/config"
	"sitesync/internal/daemonrun"
)

func main() {
	configFlag := flag.String("config", "", "Configuration file path")
	logLevel := flag.String("log-level", "", "Override logging.level")
	flag.Parse()

	cfg, _, _, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{LogLevel: *logLevel}); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "sitesyncd: %v\n", err)
		os.Exit(1)
	}
}
