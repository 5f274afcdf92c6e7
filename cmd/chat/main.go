package main

import (
	"chat-link/api"
	"chat-link/channel"
	"chat-link/contract"
	"chat-link/credential"
	"chat-link/domain"
	"chat-link/domain/event"
	"chat-link/internal"
	"chat-link/notify"
	"chat-link/repositories"
	"chat-link/runtime/workers"
	"chat-link/session"
	"chat-link/transport"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const historySize = 20

func main() {
	// The main function manages the OS exit code based on run()'s return.
	code, err := run(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run wires the session, then either prints the conversations of the user
// or opens one conversation and sends what is typed on stdin.
func run(args []string) (int, error) {
	flags := flag.NewFlagSet("chat", flag.ContinueOnError)
	conversationID := flags.String("conversation", "", "conversation to open")
	if err := flags.Parse(args); err != nil {
		return exitConfig, err
	}

	// 1. Configuration & Logger
	config, err := internal.Load()
	if err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	channelURL, err := config.ChannelURL()
	if err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	restURL, err := config.RestURL()
	if err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	names, err := config.TransportNames()
	if err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	dialers, err := transport.FromNames(names, &http.Client{Timeout: config.HandshakeTimeout}, config.WriteTimeout)
	if err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	// 2. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Conversation cache (BadgerDB, in memory unless CHAT_CACHE_PATH is set)
	db, err := repositories.OpenDB(config.CachePath)
	if err != nil {
		return exitRuntime, fmt.Errorf("cache opening failed: %w", err)
	}
	defer func() {
		log.Debug("Closing cache...")
		_ = db.Close()
	}()
	cache := repositories.NewConversationRepository(db, log, config.CacheTTL, config.LimitMessages)

	// 4. Session
	console := notify.NewConsole(os.Stdout, config.Colours)
	printer := newPrinter(console)
	var sess *session.Session
	provider, watcher, err := credentials(log, config, func(c domain.Credential) {
		if err := sess.SetCredential(ctx, c); err != nil {
			log.Warn("Credential change ignored", "error", err)
		}
	})
	if err != nil {
		return exitConfig, fmt.Errorf("credential error: %w", err)
	}

	codec := event.NewCodec(config.EventPrefix)
	manager := channel.NewManager(log, dialers, channel.Options{
		BaseURL:           channelURL,
		Path:              config.SocketPath,
		ReconnectAttempts: config.ReconnectAttempts,
		ReconnectDelay:    config.ReconnectDelay,
		HandshakeTimeout:  config.HandshakeTimeout,
		Codec:             codec,
	})
	apiClient := api.NewClient(log, restURL, &http.Client{Timeout: config.RequestTimeout}, provider)
	sess = session.New(log, manager, apiClient, cache, console, session.Options{
		Codec:            codec,
		MaxContentLength: config.MaxContentLength,
		SinkTimeout:      config.SinkTimeout,
	}, printer)
	printer.current = sess.Current
	// Closing on every exit path, no callback runs once this returns
	defer sess.Close()

	if flags.Arg(0) == "conversations" {
		conversations, err := sess.Conversations(ctx)
		if err != nil {
			return exitRuntime, err
		}
		writeConversations(os.Stdout, conversations)
		return exitOK, nil
	}

	current, err := provider.Credential(ctx)
	if err != nil {
		return exitRuntime, err
	}
	if current.Empty() {
		console.Notify(domain.Notice{Level: domain.WARNING, Message: "No session, messages go through the rest api"})
	}
	if err = sess.SetCredential(ctx, current); err != nil {
		return exitRuntime, err
	}

	if *conversationID != "" {
		if _, err = sess.Open(ctx, domain.ConversationID(*conversationID)); err != nil {
			return exitRuntime, err
		}
		printer.history(sess.Recent(historySize))
	}

	// 5. Workers
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(
		newComposer(log, os.Stdin, sess, printer, stop),
		workers.NewHeartbeatWorker(log, sess, config.HeartbeatInterval),
	)
	if watcher != nil {
		sup.Add(watcher)
	}
	log.Info("Chat ready (Ctrl+C to quit)", "conversation_id", sess.Current())
	sup.Run(ctx)

	log.Info("Stopping client...")
	return exitOK, nil
}

// credentials picks the token file when configured, the static token otherwise.
// The returned worker watches the file, it is nil for a static token.
func credentials(log *slog.Logger, config internal.Config,
	onChange func(domain.Credential)) (contract.CredentialProvider, contract.Worker, error) {
	if config.TokenFile == "" {
		return credential.NewStatic(domain.Credential(config.Token)), nil, nil
	}
	file, err := credential.NewFile(log, config.TokenFile, onChange)
	if err != nil {
		return nil, nil, err
	}
	return file, file, nil
}
