// Command recoveryctl drives the recovery subsystem from the command line.
package main

import "github.com/acailic/archi-comm-sub010/internal/cli"

func main() {
	cli.Execute()
}
