package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"os"

	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"git.cs.nctu.edu.tw/aic/infra/schemafuzz"
	"git.cs.nctu.edu.tw/aic/infra/schemafuzz/internal"
	"git.cs.nctu.edu.tw/aic/infra/schemafuzz/internal/log"
	"git.cs.nctu.edu.tw/aic/infra/schemafuzz/internal/schema"
)

func readFile(name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(name)
}

func main() {
	opts := log.BuildZapOptions(flag.CommandLine)
	schemaFile := flag.String("schema", "", "JSON Schema file to sample, - for stdin")
	hoistFile := flag.String("hoist", "", "repair the JSON values in this file instead of sampling, - for stdin")
	n := flag.Int("n", 10, "number of values to sample")
	seed := flag.Int64("seed", 0, "seed of the first sample")
	raw := flag.Bool("raw", false, "print candidates without repairing them")
	verify := flag.Bool("verify", false, "validate every value and fail on the first invalid one")

	maxDepth, depthErr := internal.IntFromEnv(internal.EnvMaxDepth, 5)
	maxItems, itemsErr := internal.IntFromEnv(internal.EnvMaxItems, 5)
	flag.IntVar(&maxDepth, "max-depth", maxDepth, "nesting level past which values stop growing")
	flag.IntVar(&maxItems, "max-items", maxItems, "length cap of arrays without maxItems")
	flag.Parse()
	log := zap.New(zap.UseFlagOptions(&opts))

	must := func(err error, op string) {
		if err != nil {
			log.Error(err, "cannot "+op)
			os.Exit(1)
		}
	}
	must(depthErr, "read max depth")
	must(itemsErr, "read max items")
	if *schemaFile == "" {
		must(errors.New("-schema is required"), "parse flags")
	}

	doc, err := readFile(*schemaFile)
	must(err, "read schema")
	f, err := schemafuzz.New(doc,
		schemafuzz.WithLogger(log),
		schemafuzz.WithMaxDepth(maxDepth),
		schemafuzz.WithMaxItems(maxItems),
	)
	must(err, "compile schema")

	check := func(v any) {}
	if *verify {
		sc, err := schema.CompileString(string(doc))
		must(err, "compile schema for verification")
		check = func(v any) {
			must(schema.Validate(sc, v), "verify sample")
		}
	}

	out := json.NewEncoder(os.Stdout)
	emit := func(v any) {
		check(v)
		must(out.Encode(v), "write value")
	}

	if *hoistFile != "" {
		in, err := readFile(*hoistFile)
		must(err, "read values")
		d := json.NewDecoder(bytes.NewReader(in))
		d.UseNumber()
		for {
			var v any
			err := d.Decode(&v)
			if errors.Is(err, io.EOF) {
				return
			}
			must(err, "decode value")
			h, err := f.Hoist(schemafuzz.Plain(v))
			must(err, "hoist value")
			emit(h)
		}
	}

	for i := 0; i < *n; i++ {
		s := *seed + int64(i)
		if *raw {
			c, err := f.Candidate(s)
			must(err, "sample")
			must(out.Encode(c.Value()), "write value")
			continue
		}
		v, err := f.Sample(s)
		must(err, "sample")
		emit(v)
	}
}
