package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// ErrHelp is returned by ParseFlags after usage has been printed.
var ErrHelp = errors.New("help requested")

// ParseFlags handles the command-line surface shared by both binaries:
// --env-file names a dotenv file to load before the environment is read.
// Variables already present in the environment win over the file.
func ParseFlags(name string, args []string, stderr io.Writer) error {
	var envFile string

	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return ErrHelp
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		fmt.Fprintf(stderr, "Usage: %s [flags]\n\n%s", name, flagSet.FlagUsages())
		return ErrHelp
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	if err := godotenv.Load(envFile); err != nil {
		// the default file is optional, an explicit one is not
		if flagSet.Changed("env-file") || !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return nil
}
