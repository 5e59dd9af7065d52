package schemafuzz

import (
	"github.com/go-logr/logr"

	"git.cs.nctu.edu.tw/aic/infra/schemafuzz/internal/gen"
)

type config struct {
	log logr.Logger
	gen gen.Options
}

type Option func(*config)

func WithLogger(l logr.Logger) Option {
	return func(c *config) {
		c.log = l
	}
}

// WithMaxDepth sets the nesting level past which arrays and objects stop
// growing beyond what the schema requires.
func WithMaxDepth(n int) Option {
	return func(c *config) {
		c.gen.MaxDepth = n
	}
}

// WithMaxItems caps the length of arrays without maxItems.
func WithMaxItems(n int) Option {
	return func(c *config) {
		c.gen.MaxItems = n
	}
}

func WithMaxExtraProperties(n int) Option {
	return func(c *config) {
		c.gen.MaxExtraProperties = n
	}
}
