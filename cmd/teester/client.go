package main

import (
	"fmt"
	"strconv"

	"github.com/teester/teester/internal/client"
)

func newClient() (*client.Client, error) {
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("API URL required (use --api-url flag or TEESTER_API_URL env var)")
	}
	return client.NewClient(cfg.APIURL, cfg.APIKey), nil
}

// indexArgs parses positional project/collection/faker indexes.
func indexArgs(names []string, args []string) ([]int, error) {
	out := make([]int, len(args))
	for i, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%s must be a non-negative index, got %q", names[i], a)
		}
		out[i] = n
	}
	return out, nil
}
