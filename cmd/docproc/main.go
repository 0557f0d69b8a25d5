/**
 * docproc - command line document processing.
 *
 * Runs the same pipeline as the worker against local files, without Redis
 * or Postgres, and writes JSON/CSV reports next to the inputs or into a
 * chosen output directory.
 */

package main

import (
	"fmt"
	"os"

	"github.com/docuflow/docproc-worker/cmd/docproc/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
