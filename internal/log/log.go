package log

import (
	"flag"
	"os"

	"go.uber.org/zap/zapcore"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

// BuildZapOptions binds the zap flags of a binary. Logs always go to
// stderr, stdout carries sampled values.
func BuildZapOptions(fs *flag.FlagSet) zap.Options {
	opts := zap.Options{
		Development: true,
		TimeEncoder: zapcore.ISO8601TimeEncoder,
		DestWriter:  os.Stderr,
	}
	opts.BindFlags(fs)
	return opts
}
