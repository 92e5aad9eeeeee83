package main

import "hostpay/internal/cli"

func main() {
	cli.Execute()
}
