package main

import "github.com/wolfitem/nostr-digest/cmd"

func main() {
	cmd.Execute()
}
