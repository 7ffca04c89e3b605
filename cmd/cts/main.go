// Command cts runs GPU conformance test suites.
//
//	cts list smoke:api,device:
//	cts compare smoke:api: smoke:api,device:limits
//	cts validate --coverage smoke:api,device: smoke:api,error_scope: smoke:api,queue:
//	cts run --backend null smoke:
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/gogpu/cts/internal/cli"

	_ "github.com/gogpu/cts/backend/null"
	_ "github.com/gogpu/cts/backend/wgpu"
	_ "github.com/gogpu/cts/internal/smoke"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := cli.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
