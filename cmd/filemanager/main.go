// Command filemanager is the operational CLI for the file-manager indexing
// service: crawling buckets into the index, applying schema migrations and
// inspecting the effective configuration.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	// Database drivers: "mysql" for a server-backed store, "dolt" for the
	// embedded engine used in local mode.
	_ "github.com/dolthub/driver"
	_ "github.com/go-sql-driver/mysql"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
