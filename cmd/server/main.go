package main

import "github.com/ams-cubing/public-calendar/cmd/server/cmd"

func main() {
	cmd.Execute()
}
