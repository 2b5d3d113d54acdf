// Command khutbah drives the assistant from a terminal: draft sermons, chat,
// speak text to a raw PCM sink and transcribe raw microphone audio.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/hafarna03aja-droid/khutbah-jumat/internal/config"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/failure"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/observability"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/provider"
)

const usage = `usage: khutbah <command> [flags]

commands:
  sermon      draft a sermon (-topic, -language)
  topics      list example topics and languages
  chat        chat with the assistant, one message per line on stdin
  speak       synthesize text and write s16le PCM (-text, -out)
  transcribe  transcribe f32le mono audio from stdin (-rate, -client)
  history     show or clear transcript history (-client, -clear)
`

var errUsage = errors.New("usage")

func main() {
	if len(os.Args) < 2 || os.Args[1] == "-h" || os.Args[1] == "help" {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	// stdout may carry audio, so logs go to stderr
	observability.InitLoggerTo(os.Stderr, cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stack, err := provider.Build(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		os.Exit(1)
	}
	defer stack.Close()

	a := &app{stack: stack, stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	if err := a.run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, failure.UserMessage(err))
		logger := observability.GetLogger()
		logger.Debug().Err(err).Msg("Command failed")
		stack.Close()
		os.Exit(1)
	}
}

type app struct {
	stack  *provider.Stack
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "sermon":
		return a.sermon(ctx, rest)
	case "topics":
		return a.topics()
	case "chat":
		return a.chat(ctx)
	case "speak":
		return a.speak(ctx, rest)
	case "transcribe":
		return a.transcribe(ctx, rest)
	case "history":
		return a.history(ctx, rest)
	default:
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
}
