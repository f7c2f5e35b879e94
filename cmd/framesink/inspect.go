package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/open-beagle/framesink/internal/recording"
)

// entityStats summarizes the records of one entity path
type entityStats struct {
	images    int
	samples   int
	keyFrames int
	bytes     int
	codec     string
	format    string
	width     uint32
	height    uint32
	firstTime int64
	lastTime  int64
	timed     bool
}

// runInspect decodes a record stream from a file, or stdin for "-", and prints a summary
func runInspect(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.SetOutput(stdout)
	verbose := fs.Bool("v", false, "Print every record")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("expected one file argument or -")
	}

	input := stdin
	if name := fs.Arg(0); name != "-" {
		file, err := os.Open(name)
		if err != nil {
			return err
		}
		defer file.Close()
		input = file
	}

	return inspect(recording.NewDecoder(input), stdout, *verbose)
}

func inspect(decoder *recording.Decoder, out io.Writer, verbose bool) error {
	entities := make(map[string]*entityStats)
	var total int

	for {
		r, err := decoder.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("record %d: %w", total+1, err)
		}
		total++

		if verbose {
			fmt.Fprintln(out, r.String())
		}

		switch r.Kind {
		case recording.RecordHello:
			fmt.Fprintf(out, "recording %s session %s\n", r.RecordingID, r.SessionID)
		case recording.RecordBye:
			fmt.Fprintf(out, "session %s closed\n", r.SessionID)
		case recording.RecordCodec:
			stats(entities, r.EntityPath).codec = r.Codec
		case recording.RecordImage:
			s := stats(entities, r.EntityPath)
			s.images++
			s.bytes += len(r.Data)
			s.format, s.width, s.height = r.Format, r.Width, r.Height
			s.observe(r)
		case recording.RecordSample:
			s := stats(entities, r.EntityPath)
			s.samples++
			s.bytes += len(r.Data)
			if r.KeyFrame {
				s.keyFrames++
			}
			s.observe(r)
		}
	}

	paths := make([]string, 0, len(entities))
	for path := range entities {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		s := entities[path]
		switch {
		case s.images > 0:
			fmt.Fprintf(out, "%s: %d images %s %dx%d, %d bytes\n", path, s.images, s.format, s.width, s.height, s.bytes)
		default:
			fmt.Fprintf(out, "%s: %d %s samples (%d key frames), %d bytes\n", path, s.samples, s.codec, s.keyFrames, s.bytes)
		}
		if s.timed {
			fmt.Fprintf(out, "%s: time %d..%d ns\n", path, s.firstTime, s.lastTime)
		}
	}
	fmt.Fprintf(out, "%d records\n", total)
	return nil
}

func stats(entities map[string]*entityStats, path string) *entityStats {
	s, ok := entities[path]
	if !ok {
		s = &entityStats{}
		entities[path] = s
	}
	return s
}

func (s *entityStats) observe(r recording.Record) {
	if r.Timeline == "" {
		return
	}
	if !s.timed {
		s.firstTime = r.Time
		s.timed = true
	}
	s.lastTime = r.Time
}
