package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hafarna03aja-droid/khutbah-jumat/internal/capture"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/failure"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/history"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/playback"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/transcriber"
)

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func (a *app) sermon(ctx context.Context, args []string) error {
	fs := newFlagSet("sermon", a.stderr)
	topic := fs.String("topic", "", "sermon topic")
	language := fs.String("language", "", "sermon language (default from prompt catalog)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *topic == "" {
		*topic = strings.Join(fs.Args(), " ")
	}

	text, err := a.stack.Sermons.Generate(ctx, *topic, *language)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, text)
	return nil
}

func (a *app) topics() error {
	fmt.Fprintln(a.stdout, "Languages:")
	for _, l := range a.stack.Sermons.Languages() {
		fmt.Fprintf(a.stdout, "  %s\n", l)
	}
	fmt.Fprintln(a.stdout, "Example topics:")
	for _, t := range a.stack.Sermons.ExampleTopics() {
		fmt.Fprintf(a.stdout, "  %s\n", t)
	}
	return nil
}

func (a *app) chat(ctx context.Context) error {
	id, messages, err := a.stack.Chats.Start(ctx)
	if err != nil {
		return err
	}
	for _, m := range messages {
		fmt.Fprintf(a.stdout, "%s: %s\n", m.Sender, m.Text)
	}

	scanner := bufio.NewScanner(a.stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		messages, err := a.stack.Chats.Send(ctx, id, line)
		if err != nil {
			if errors.Is(err, failure.ErrValidation) {
				continue
			}
			return err
		}
		last := messages[len(messages)-1]
		fmt.Fprintf(a.stdout, "%s: %s\n", last.Sender, last.Text)
		if ctx.Err() != nil {
			return nil
		}
	}
	return scanner.Err()
}

func (a *app) speak(ctx context.Context, args []string) error {
	fs := newFlagSet("speak", a.stderr)
	text := fs.String("text", "", "text to speak (default: remaining args or stdin)")
	out := fs.String("out", "-", "raw PCM destination, - for stdout")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *text == "" {
		*text = strings.Join(fs.Args(), " ")
	}
	if *text == "" {
		raw, err := io.ReadAll(a.stdin)
		if err != nil {
			return fmt.Errorf("read text: %w", err)
		}
		*text = string(raw)
	}

	w := a.stdout
	if *out != "-" {
		f, err := os.Create(*out)
		if err != nil {
			return fmt.Errorf("open output: %w", err)
		}
		defer f.Close()
		w = f
	}

	device := playback.NewWriterDevice(w)
	player := a.stack.NewPlayer(device)
	playing, err := player.Toggle(ctx, *text)
	if err != nil {
		return err
	}
	if !playing {
		fmt.Fprintln(a.stderr, "No audio returned.")
		return nil
	}

	finished := make(chan struct{})
	go func() {
		device.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
		player.Stop()
		<-finished
	}
	format := a.stack.PlaybackFormat
	fmt.Fprintf(a.stderr, "Wrote s16le PCM at %d Hz, %d channel(s).\n", int(format.SampleRate), format.NumChannels)
	return nil
}

func (a *app) transcribe(ctx context.Context, args []string) error {
	fs := newFlagSet("transcribe", a.stderr)
	rate := fs.Int("rate", 48000, "sample rate of the f32le input")
	client := fs.String("client", "", "history namespace")
	linger := fs.Duration("linger", 2*time.Second, "time to wait for final results after input ends")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *client != "" && !history.ValidClientID(*client) {
		return failure.New(failure.ErrValidation, "transcribe", "", fmt.Errorf("invalid client id %q", *client))
	}

	var (
		mu       sync.Mutex
		last     string
		idleOnce sync.Once
		opened   bool
	)
	idle := make(chan struct{})
	listener := func(ev transcriber.Event) {
		mu.Lock()
		defer mu.Unlock()
		switch ev.Type {
		case transcriber.EventTranscript:
			last = ev.Text
		case transcriber.EventError:
			fmt.Fprintln(a.stderr, ev.Message)
		case transcriber.EventState:
			if ev.State == transcriber.StateOpen {
				opened = true
				fmt.Fprintln(a.stderr, "Listening...")
			}
			if ev.State == transcriber.StateIdle && opened {
				idleOnce.Do(func() { close(idle) })
			}
		}
	}

	mic := capture.NewReaderMicrophone(a.stdin, *rate)
	store := a.stack.History.For(ctx, *client)
	session := transcriber.NewSession(mic, a.stack.Transcription, store, a.stack.Capture, listener)
	if err := session.Start(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-idle:
	case <-mic.Ended():
		select {
		case <-time.After(*linger):
		case <-ctx.Done():
		case <-idle:
		}
	}
	session.Stop()

	mu.Lock()
	defer mu.Unlock()
	if text := strings.TrimSpace(last); text != "" {
		fmt.Fprintln(a.stdout, text)
	}
	return nil
}

func (a *app) history(ctx context.Context, args []string) error {
	fs := newFlagSet("history", a.stderr)
	client := fs.String("client", "", "history namespace")
	clearAll := fs.Bool("clear", false, "remove every entry")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *client != "" && !history.ValidClientID(*client) {
		return failure.New(failure.ErrValidation, "history", "", fmt.Errorf("invalid client id %q", *client))
	}

	store := a.stack.History.For(ctx, *client)
	if *clearAll {
		store.Clear(ctx)
		fmt.Fprintln(a.stdout, "History cleared.")
		return nil
	}
	entries := store.Entries()
	if len(entries) == 0 {
		fmt.Fprintln(a.stdout, "No history.")
		return nil
	}
	for i, e := range entries {
		fmt.Fprintf(a.stdout, "%d. %s\n", i+1, e)
	}
	return nil
}
