package main

import (
	"fmt"
	"os"

	"github.com/stowh/ChatRoom/cmd/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "chatroom:", err)
		os.Exit(1)
	}
}
