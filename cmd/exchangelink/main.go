package main

import "github.com/rudransh-shrivastava/exchangelink/internal/client/cmd"

func main() {
	cmd.Execute()
}
