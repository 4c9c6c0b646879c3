// Package main is a smoke-test utility that verifies the platform's HTTP API
// is reachable and returning valid responses. It issues real HTTP requests to
// the health and plan catalogue endpoints and prints the status codes and
// response bodies, making it useful for quick post-deployment checks without
// needing external tooling like curl or a full integration test suite.
package main

import (
	"fmt"
	"io"
	"net/http"
)

func main() {
	for _, url := range []string{
		"http://localhost:8080/healthz",
		"http://localhost:8080/readyz",
		"http://localhost:8080/v1/plans",
	} {
		resp, err := http.Get(url)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			fmt.Printf("Error reading body: %v\n", err)
			return
		}

		fmt.Printf("GET %s\nStatus: %d\nResponse:\n%s\n\n", url, resp.StatusCode, string(body))
	}
}
