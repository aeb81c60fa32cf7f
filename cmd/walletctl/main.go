package main

import "github.com/pandodao/wallet-core/cmd/walletctl/cmd"

func main() {
	cmd.Execute()
}
