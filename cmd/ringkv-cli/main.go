// Command ringkv-cli is a thin command-line front end over
// internal/client, for get/put/leave operations against a running
// ringkv cluster. Grounded on the teacher's client package usage
// pattern (src/client/driver.go), adapted to a flag-and-subcommand CLI
// since the teacher exposes no standalone client binary of its own.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ringkv/ringkv/internal/client"
)

func main() {
	addresses := flag.String("addresses", "http://127.0.0.1:6667", "comma-separated REST addresses of known cluster nodes")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	c := client.New(strings.Split(*addresses, ","))
	var err error
	switch args[0] {
	case "get":
		err = runGet(c, args[1:])
	case "put":
		err = runPut(c, args[1:])
	case "leave":
		err = c.Leave()
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runGet(c *client.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: ringkv-cli get <key>")
	}
	key, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("key must be an integer: %w", err)
	}
	value, err := c.Get(key)
	if err != nil {
		return err
	}
	fmt.Println(value)
	return nil
}

func runPut(c *client.Client, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: ringkv-cli put <key> <value>")
	}
	key, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("key must be an integer: %w", err)
	}
	return c.Put(key, args[1])
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: ringkv-cli [-addresses addr1,addr2,...] <get|put|leave> [args...]")
}
