package internal

import (
	"fmt"
	"os"
	"strconv"
)

const (
	EnvMaxDepth            = "SCHEMAFUZZ_MAX_DEPTH"
	EnvMaxItems            = "SCHEMAFUZZ_MAX_ITEMS"
	SchemafuzzdEnvMaxCount = "SCHEMAFUZZD_MAX_COUNT"

	SchemafuzzdPort        = 1234
	SchemafuzzdMetricsPort = 5678

	SchemafuzzdReadinessEndpointPath = "/readyz"
	SchemafuzzdSampleEndpointPath    = "/sample"

	SchemafuzzdDefaultMaxCount = 100
	// schemas are small; anything larger is most likely not a schema
	SchemafuzzdMaxBodySize = 1 << 20
)

// IntFromEnv reads an integer setting, def when unset or empty.
func IntFromEnv(name string, def int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return n, nil
}
