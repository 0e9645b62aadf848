package main

import "github.com/oshokin/make-manifest/cmd/make-manifest/cmd"

func main() {
	cmd.Execute()
}
