package main

import (
	"flag"
	"fmt"
	"os"
	"os/user"
	"strconv"

	"github.com/trigs/trigs/internal/trigger"
)

var (
	devicesFile = flag.String("devices", trigger.DefaultDevicesFile, "Kernel input device list")
	group       = flag.String("group", "users", "Group to hand the device nodes to (empty to leave them alone)")
)

// trigs-discover prints the event nodes of connected shutter remotes, one
// per line, and makes them accessible to the given group. It is meant to be
// run through sudo by trigs.
func main() {
	flag.Parse()

	f, err := os.Open(*devicesFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open device list: %v\n", err)
		os.Exit(1)
	}
	paths, err := trigger.ParseDevices(f)
	f.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	gid := -1
	if *group != "" {
		g, err := user.LookupGroup(*group)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to look up group: %v\n", err)
			os.Exit(1)
		}
		if gid, err = strconv.Atoi(g.Gid); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid gid %q: %v\n", g.Gid, err)
			os.Exit(1)
		}
	}

	failed := false
	for _, path := range paths {
		fmt.Println(path)
		if gid < 0 {
			continue
		}
		if err := os.Chown(path, -1, gid); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to change group of %s: %v\n", path, err)
			failed = true
			continue
		}
		if err := os.Chmod(path, 0660); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to change mode of %s: %v\n", path, err)
			failed = true
		}
	}

	if failed {
		os.Exit(1)
	}
}
