package main

import (
	"fmt"

	"github.com/flywheel-gateway/control-plane/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Println(err.Error())
		return
	}
}
