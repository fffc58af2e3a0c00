package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// metricsCmd fetches the prometheus exposition of a running sim.
func metricsCmd(args []string) {
	fs := flag.NewFlagSet("metrics", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:9090", "sim metrics base url")
	filter := fs.String("filter", "leviathan_", "only print lines containing this substring (empty prints all)")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/metrics"
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		fmt.Println(string(b))
		os.Exit(1)
	}
	for _, line := range strings.Split(string(b), "\n") {
		if *filter == "" || strings.Contains(line, *filter) {
			fmt.Println(line)
		}
	}
}
