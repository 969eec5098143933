// Command dap4dump prints the schema and data of datasets served by the
// registered backends.
package main

import "github.com/robert-malhotra/go-dap4/cmd/dap4dump/cmd"

func main() {
	cmd.Execute()
}
