package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	yml "gopkg.in/yaml.v2"

	"github.com/redline-embedded/pmucore/bootloader"
	"github.com/redline-embedded/pmucore/core"
)

var (
	// Version is injected via ldflags at release build time.
	Version = "dev"

	// ConfigFileName is the YAML file pmud reads beside its binary.
	ConfigFileName = "pmud.yml"
	k              = koanf.New(".")
)

func setupconfig() {
	k.Load(structs.Provider(DefaultConfig(), "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		if !strings.Contains(err.Error(), "no such") {
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	fmt.Println(`pmud runs the power management unit firmware core as a host process.

Usage:
	pmud <command>

Commands:
	run
	help
	mkconf
	conf
	version`)
}

func help() {
	fmt.Println(`pmud is configured via pmud.yml next to the binary. Keys are
case-insensitive. "mkconf" writes the current (default or already
loaded) configuration back out; there is no need to run it unless you
want a starting point to edit.`)
}

func mkconf() {
	c := Config{}
	if err := k.Unmarshal("", &c); err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	if err := yml.NewEncoder(f).Encode(c); err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := Config{}
	k.Unmarshal("", &c)
	if err := yml.NewEncoder(os.Stdout).Encode(c); err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("pmud version %v\n", Version)
}

func run() {
	c := Config{}
	if err := k.Unmarshal("", &c); err != nil {
		log.Fatal(err)
	}

	u, err := build(c)
	if err != nil {
		log.Fatalf("pmud: failed to build runtime: %v", err)
	}

	onReset := func(reason string) {
		schedulerLog.Printf("watchdog reset triggered: %s", reason)
	}
	sched := u.core.BuildScheduler(core.Hooks{
		LogSample: func(nowMs int64) (uint32, []int32) {
			return uint32(nowMs), sampleValues(u.core, u.entries)
		},
	}, onReset)

	if c.StagingDir != "" {
		watcher, err := bootloader.NewStagingWatcher(u.core.Bootloader, c.StagingDir, func(path string, err error) {
			u.locker.Lock()
			defer u.locker.Unlock()
			if err != nil {
				bootLog.Printf("staged update %s rejected: %v", path, err)
				return
			}
			bootLog.Printf("staged update %s applied, will take effect on next reset", path)
		})
		if err != nil {
			bootLog.Printf("staging watch disabled: %v", err)
		} else {
			go watcher.Run()
			defer watcher.Close()
		}
	}

	sched.Start()
	defer sched.Stop()

	if c.DebugAddr == "" {
		select {}
	}
	schedulerLog.Println("debug telemetry mirror listening at", c.DebugAddr)
	log.Fatal(http.ListenAndServe(c.DebugAddr, u.debugMux))
}

func sampleValues(c *core.Core, entries []channelEntry) []int32 {
	ids := inputChannelIDs(entries)
	values := make([]int32, len(ids))
	for i, id := range ids {
		values[i] = c.Registry.GetValue(id)
	}
	return values
}

func main() {
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	switch strings.ToLower(args[1]) {
	case "help":
		help()
	case "mkconf":
		mkconf()
	case "conf":
		printconf()
	case "run":
		run()
	case "version":
		pversion()
	default:
		log.Fatal("unknown command")
	}
}
