package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	realtime "github.com/voicewire/realtime-go"
	"github.com/voicewire/realtime-go/events"
)

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		debug       = false
		model       = "gpt-4o-realtime-preview-2025-06-03"
		instruction = "You are a helpful voice assistant."
	)

	flag.StringVar(&model, "model", model, "upstream model id")
	flag.StringVar(&instruction, "instruction", instruction, "instructions for the assistant")
	flag.BoolVar(&debug, "debug", false, "enable debug logs")
	flag.Parse()

	slog.SetLogLoggerLevel(slog.LevelError)
	if debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	client := realtime.New(
		realtime.WithModel(model),
		realtime.WithInstructions(instruction),
		realtime.WithModalities(events.ModalityText),
		realtime.WithDefaultLogger(),
		realtime.FromEnv(),
	)

	done := make(chan struct{}, 1)

	client.On(events.TypeResponseTextDelta, func(evt realtime.Event) {
		if p, err := events.Parse[events.ResponseTextDeltaEvent](evt.Data); err == nil {
			fmt.Print(p.Delta)
		}
	})
	client.On(events.TypeResponseDone, func(realtime.Event) {
		fmt.Println()
		done <- struct{}{}
	})
	client.On(realtime.TypeAuthenticationError, func(evt realtime.Event) {
		fmt.Fprintln(os.Stderr, "authentication failed:", evt.Err)
		os.Exit(1)
	})
	client.On(realtime.TypeError, func(evt realtime.Event) {
		fmt.Fprintln(os.Stderr, "error:", evt.Err)
	})

	must(client.Connect(ctx))
	must(client.UpdateSession(client.DefaultSessionUpdate()))

	fmt.Println("connected. type a message, ctrl-d to quit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		must(client.UserInput(line, true))
		<-done
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	_ = client.Disconnect(closeCtx)
}
