package main

import "github.com/oshokin/release-mirror/cmd/mirror-sync/cmd"

func main() {
	cmd.Execute()
}
