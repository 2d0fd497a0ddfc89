package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tiroq/speechcollect/internal/audio"
	"github.com/tiroq/speechcollect/internal/fileutil"
)

func runTrim(args []string) error {
	fs := flag.NewFlagSet("trim", flag.ExitOnError)
	cfgPath := fs.String("config", "", "config file")
	in := fs.String("in", "", "input audio file")
	out := fs.String("out", "", "output WAV file (default <in>-trimmed.wav)")
	start := fs.Float64("start", 0, "region start in seconds")
	end := fs.Float64("end", 0, "region end in seconds")
	_ = fs.Parse(args)

	if *in == "" {
		return fmt.Errorf("trim: -in is required")
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(*in)
	if err != nil {
		return err
	}
	blob := &audio.Blob{Data: data, MIMEType: audio.MIMEForExtension(filepath.Ext(*in))}
	if audio.IsWAV(data) {
		blob.MIMEType = audio.MIMETypeWAV
	}

	trimmed, ok, err := audio.Trim(context.Background(), newDecoder(cfg), blob, *start, *end)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("selection too short, nothing written")
		return nil
	}

	dest := *out
	if dest == "" {
		base := filepath.Base(*in)
		dest = filepath.Join(filepath.Dir(*in), fileutil.SanitizeForFilename(base[:len(base)-len(filepath.Ext(base))])+"-trimmed.wav")
	}
	if err := fileutil.WriteFileAtomic(dest, trimmed.Data); err != nil {
		return err
	}
	fmt.Printf("Wrote: %s (%d bytes)\n", dest, len(trimmed.Data))
	return nil
}
