// Package main is the entry point for the sylogd syslog collector agent.
package main

import (
	"github.com/sylogd/agent/cmd"
)

func main() {
	cmd.Execute()
}
