package main

import "github.com/Silvenga/KeeChallenge-Fork/cli/cmd"

func main() {
	cmd.Execute()
}
