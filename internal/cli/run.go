package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/hupe1980/imagestack"
)

const helpFlag = "--help"

func commands(logger *imagestack.Logger) []*Command {
	return []*Command{
		CreateCmd(logger),
		InfoCmd(logger),
		DumpCmd(logger),
		CompactCmd(logger),
	}
}

// Run is the main entry point. args includes the program name. Returns the
// exit code.
func Run(ctx context.Context, out, errOut io.Writer, args []string) int {
	o := NewIO(out, errOut)

	rest := args[1:]
	level := slog.LevelWarn
	for len(rest) > 0 && (rest[0] == "-v" || rest[0] == "--verbose") {
		level = slog.LevelDebug
		rest = rest[1:]
	}
	logger := imagestack.NewLogger(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level}))
	cmds := commands(logger)

	if len(rest) == 0 || rest[0] == "-h" || rest[0] == helpFlag || rest[0] == "help" {
		printUsage(o, cmds)
		return 0
	}

	for _, c := range cmds {
		if c.Name() == rest[0] {
			return c.Run(ctx, o, rest[1:])
		}
	}

	o.ErrPrintln("error: unknown command:", rest[0])
	printUsage(NewIO(errOut, errOut), cmds)
	return 1
}

func printUsage(o *IO, cmds []*Command) {
	o.Println("imagestack - inspect and build image stack files")
	o.Println()
	o.Println("Usage: imagestack [-v] <command> [args]")
	o.Println()
	o.Println("Commands:")
	for _, c := range cmds {
		o.Println(c.HelpLine())
	}
}
