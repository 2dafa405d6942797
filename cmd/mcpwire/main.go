// Command mcpwire runs the demo MCP server shipped with the runtime.
package main

import "github.com/mcpwire/mcpwire/cmd/mcpwire/cmd"

func main() {
	cmd.Execute()
}
