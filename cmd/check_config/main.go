// Command check_config validates a configuration file without starting the
// service. It is meant for CI and deploy pipelines.
package main

import (
	"fmt"
	"os"

	"soniclibrary/internal/config"
)

func main() {
	path := config.ConfigPath
	if len(os.Args) > 2 {
		fmt.Fprintf(os.Stderr, "usage: %s [config.yaml]\n", os.Args[0])
		os.Exit(2)
	}
	if len(os.Args) == 2 {
		path = os.Args[1]
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
		os.Exit(1)
	}
	fmt.Printf("%s: ok (port %s, llm provider %s)\n", path, cfg.Port, cfg.LLMProvider)
}
