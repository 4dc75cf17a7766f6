// SPDX-License-Identifier: MPL-2.0

// Command livemod inspects and live-reloads a graph of versioned modules.
package main

import cmd "github.com/invowk/livemod/cmd/livemod"

func main() {
	cmd.Execute()
}
