package main

import (
	"promptshelf/cmd/promptshelf-cli/commands"
	"promptshelf/lib/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
