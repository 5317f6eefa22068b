// threadview browses long conversations stored by a threadview server.
package main

import (
	"fmt"
	"os"

	"github.com/wethinkt/go-threadview/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
