package main

import "github.com/celerix-dev/celerix-attendance/cmd/celerix-attendance/arg"

func main() {
	arg.Execute()
}
