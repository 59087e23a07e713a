package main

import (
	"esimassist-backend/cmd/esim-cli/commands"
	"esimassist-backend/pkg/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
