package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/wpprelay/internal/config"
	"github.com/matheus3301/wpprelay/internal/daemon"
	"github.com/matheus3301/wpprelay/internal/instance"
	"go.uber.org/fx"
)

func main() {
	instanceFlag := flag.String("instance", "", "instance name (overrides config default)")
	configFlag := flag.String("config", "", "config file (default ~/.wpprelay/config.toml)")
	flag.Parse()

	cfg, err := loadConfig(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	name := *instanceFlag
	if name == "" {
		name = cfg.DefaultInstance
	}
	if name == "" {
		name = instance.DefaultName
	}
	if err := instance.ValidateName(name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{InstanceName: name, Config: cfg}),
	)

	app.Run()
}

// loadConfig reads an explicit path strictly; the default path may be absent.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadOrDefault(instance.ConfigPath())
}
