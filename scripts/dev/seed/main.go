package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
)

// Creates a recurring investment against a locally running daemon so the
// scheduler has something to execute.

var (
	host     string
	address  string
	amount   string
	interval int
)

func main() {
	flag.StringVar(&host, "host", "http://127.0.0.1:8080", "daemon base url")
	flag.StringVar(&address, "address", "", "user wallet address")
	flag.StringVar(&amount, "amount", "0.01", "source amount per execution")
	flag.IntVar(&interval, "interval", 60, "interval in minutes")
	flag.Parse()

	if address == "" {
		fmt.Fprintln(os.Stderr, "address is required")
		os.Exit(1)
	}

	body, err := json.Marshal(map[string]interface{}{
		"amount":           amount,
		"interval_minutes": interval,
		"direction":        "WETH_TO_WMON",
	})
	if err != nil {
		panic(err)
	}

	url := fmt.Sprintf("%s/api/users/%s/investments", host, address)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		panic(err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		panic(err)
	}
	fmt.Printf("POST %s -> %s\n%s\n", url, resp.Status, out)
}
