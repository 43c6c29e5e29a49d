package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pitabwire/tracker/config"
	"github.com/pitabwire/tracker/roitracker"
	"github.com/pitabwire/tracker/telemetry"
	"github.com/pitabwire/tracker/version"
)

const (
	minArgsCommand = 2
	maxFrameBytes  = 64 << 20
)

func main() {
	if len(os.Args) < minArgsCommand {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "validate":
		exitOnErr(cmdValidate(os.Args[2:]))
	case "track":
		exitOnErr(cmdTrack(os.Args[2:]))
	case "version":
		_, _ = fmt.Fprintln(os.Stdout, version.String())
	case "help", "-h", "--help":
		usage()
	default:
		// #nosec G705 -- CLI output is not rendered in an HTML context.
		fmt.Fprintf(os.Stderr, "unknown command: %q\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stdout, "tracker <command> [args]")
	fmt.Fprintln(os.Stdout, "")
	fmt.Fprintln(os.Stdout, "Commands:")
	fmt.Fprintln(os.Stdout, "  validate <params.yaml|params.toml|params.json>")
	fmt.Fprintln(os.Stdout, "  track --params FILE [--frames FILE] [--timeout 1m]")
	fmt.Fprintln(os.Stdout, "  version")
	fmt.Fprintln(os.Stdout, "")
	fmt.Fprintln(os.Stdout, "track reads one JSON frame per line ({\"image\":{...},\"time\":0})")
	fmt.Fprintln(os.Stdout, "from --frames or stdin and prints one JSON result per line.")
}

func cmdValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errors.New("parameters file is required")
	}

	opts, err := roitracker.OptionsFromFile(fs.Arg(0))
	if err != nil {
		return err
	}
	params, err := roitracker.ApplyOptions(roitracker.DefaultParameters(), opts)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(os.Stdout, "ok: %s with %d roi(s)\n", params.XYMethod, len(params.Rois))
	return nil
}

func cmdTrack(args []string) error {
	fs := flag.NewFlagSet("track", flag.ContinueOnError)
	paramsFile := fs.String("params", "", "tracker parameters file")
	framesFile := fs.String("frames", "", "frames file, stdin when empty")
	timeout := fs.Duration("timeout", time.Minute, "maximum time to wait for processing")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *paramsFile == "" {
		return errors.New("--params is required")
	}

	cfg, err := config.FromEnv[config.ConfigurationDefault]()
	if err != nil {
		return err
	}
	ctx, _ := config.Logger(context.Background(), &cfg)
	ctx, providers, err := telemetry.Setup(ctx, "tracker", &cfg, telemetry.WithVersion(version.Version))
	if err != nil {
		return err
	}
	defer func() { _ = providers.Shutdown(context.Background()) }()

	opts, err := roitracker.OptionsFromFile(*paramsFile)
	if err != nil {
		return err
	}

	tr, err := roitracker.New(ctx, &cfg)
	if err != nil {
		return err
	}
	defer func() { _ = tr.Close(context.Background()) }()

	if err = tr.SetParameters(ctx, opts); err != nil {
		return err
	}

	in := io.Reader(os.Stdin)
	if *framesFile != "" {
		f, openErr := os.Open(*framesFile)
		if openErr != nil {
			return openErr
		}
		defer f.Close()
		in = f
	}

	if err = pushFrames(ctx, tr, in); err != nil {
		return err
	}
	// with auto start off the frames only queue up
	if !cfg.AutoStart() {
		if err = tr.Resume(ctx); err != nil {
			return err
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	if err = tr.WaitIdle(waitCtx); err != nil {
		return errors.Join(err, tr.Error())
	}

	return printResults(tr, os.Stdout)
}

func pushFrames(ctx context.Context, tr *roitracker.Tracker, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 1<<20), maxFrameBytes)

	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}

		var frame roitracker.Frame
		if err := json.Unmarshal(scanner.Bytes(), &frame); err != nil {
			return fmt.Errorf("frame on line %d: %w", line, err)
		}
		if _, err := tr.Push(ctx, frame); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// printResults writes results oldest first.
func printResults(tr *roitracker.Tracker, out io.Writer) error {
	var results [][]roitracker.RoiResult
	for tr.AvailableResults() > 0 {
		res, err := tr.PopResult()
		if err != nil {
			break
		}
		results = append(results, res.Value)
	}

	enc := json.NewEncoder(out)
	for i := len(results) - 1; i >= 0; i-- {
		if err := enc.Encode(results[i]); err != nil {
			return err
		}
	}
	return nil
}

func exitOnErr(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
