package main

import "github.com/oshokin/release-mirror/cmd/mirror-server/cmd"

func main() {
	cmd.Execute()
}
