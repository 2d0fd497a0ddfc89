package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/tiroq/speechcollect/internal/api"
)

type queueFlags struct {
	cfgPath string
	queue   string
}

func (q *queueFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&q.cfgPath, "config", "", "config file")
	fs.StringVar(&q.queue, "queue", "", "queue resource (default from config)")
}

func (q *queueFlags) client() (*api.Client, api.Queue, bool, error) {
	cfg, err := loadConfig(q.cfgPath)
	if err != nil {
		return nil, "", false, err
	}
	name := q.queue
	if name == "" {
		name = cfg.Queue
	}
	c := newClient(cfg, openDiagLog(cfg))
	return c, api.Queue(name), cfg.API.Token == "", nil
}

func prompt(r *bufio.Reader, label string) string {
	fmt.Print(label)
	line, _ := r.ReadString('\n')
	return strings.TrimSpace(line)
}

// runLabel fetches one clip waiting for a transcript and submits what the
// user types. An empty answer skips; "-" deletes the clip.
func runLabel(args []string) error {
	var qf queueFlags
	fs := flag.NewFlagSet("label", flag.ExitOnError)
	qf.register(fs)
	_ = fs.Parse(args)

	c, q, anon, err := qf.client()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	clip, msg, err := c.NextToLabel(ctx, q)
	if err != nil {
		return err
	}
	if clip == nil {
		fmt.Println(orDefault(msg, "Nothing to label."))
		return nil
	}
	fmt.Printf("clip %s: %s\n", clip.ID, clip.AudioURL)

	text := prompt(bufio.NewReader(os.Stdin), "transcript (empty skips, - deletes): ")
	switch text {
	case "":
		fmt.Println("skipped")
		return nil
	case "-":
		return deleteClip(ctx, c, q, string(clip.ID))
	}
	msg, err = c.SubmitLabel(ctx, q, api.LabelRequest{ID: string(clip.ID), Text: text}, anon)
	if err != nil {
		return err
	}
	fmt.Println(orDefault(msg, "Label saved."))
	return nil
}

// runValidate shows one labeled clip and records a yes/no verdict. A "no"
// may carry a corrected transcript.
func runValidate(args []string) error {
	var qf queueFlags
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	qf.register(fs)
	_ = fs.Parse(args)

	c, q, anon, err := qf.client()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	clip, msg, err := c.NextToValidate(ctx, q)
	if err != nil {
		return err
	}
	if clip == nil {
		fmt.Println(orDefault(msg, "Nothing to validate."))
		return nil
	}
	fmt.Printf("clip %s: %s\nlabel: %q\n", clip.ID, clip.AudioURL, clip.Label)

	r := bufio.NewReader(os.Stdin)
	req := api.ValidationRequest{ID: string(clip.ID)}
	switch strings.ToLower(prompt(r, "correct? [y/n/-] ")) {
	case "y", "yes":
		req.IsValid = true
	case "n", "no":
		req.Text = prompt(r, "corrected transcript (optional): ")
	case "-":
		return deleteClip(ctx, c, q, string(clip.ID))
	default:
		fmt.Println("skipped")
		return nil
	}
	msg, err = c.SubmitValidation(ctx, q, req, anon)
	if err != nil {
		return err
	}
	fmt.Println(orDefault(msg, "Validation saved."))
	return nil
}

func deleteClip(ctx context.Context, c *api.Client, q api.Queue, id string) error {
	msg, err := c.DeleteClip(ctx, q, id)
	if err != nil {
		return err
	}
	fmt.Println(orDefault(msg, "Clip deleted."))
	return nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
