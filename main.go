package main

import (
	"github.com/CodeMonkeyCybersecurity/hwcert/cmd"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/logger"
)

func main() {
	logger.InitializeWithFallback()
	cmd.Execute()
}
