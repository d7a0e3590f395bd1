package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"golang.org/x/sys/unix"

	"github.com/supplychain/notifyconsole/internal/config"
	"github.com/supplychain/notifyconsole/internal/notify"
	"github.com/supplychain/notifyconsole/internal/snapshot"
	"github.com/supplychain/notifyconsole/internal/stream"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file (defaults to NOTIFYCONSOLE_CONFIG)")
	once := flag.Bool("once", false, "drain the spool directory once and exit")
	publish := flag.String("publish", "", "enqueue a JSON message into the spool directory (file path or - for stdin) and exit")
	list := flag.Bool("list", false, "print the stored notifications and exit")
	search := flag.String("q", "", "search filter for --list")
	unreadOnly := flag.Bool("unread", false, "only unread entries for --list")
	typeFilter := flag.String("type", notify.AllTypes, "type filter for --list")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.SetPrefix("notifytail: ")

	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, reading from environment")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if strings.TrimSpace(*publish) != "" {
		path, err := publishMessage(cfg.Stream.SpoolDir, *publish, os.Stdin)
		if err != nil {
			log.Fatalf("publish failed: %v", err)
		}
		log.Printf("queued %s", path)
		return
	}

	backend, err := snapshot.BuildFromDSN(cfg.SnapshotTarget())
	if err != nil {
		log.Fatalf("failed to initialize snapshot backend: %v", err)
	}
	defer func() {
		if err := snapshot.Close(backend); err != nil {
			log.Printf("close snapshot backend: %v", err)
		}
	}()
	var persistence notify.Persistence
	if backend != nil {
		persistence = backend
	}
	store := notify.NewStore(notify.StoreOptions{
		Persistence:     persistence,
		MaxStored:       cfg.Store.MaxStored,
		HighlightWindow: cfg.Store.HighlightWindow,
		Logger:          log.Default(),
	})

	if *list {
		printView(os.Stdout, store.View(notify.Query{Search: *search, UnreadOnly: *unreadOnly, Type: *typeFilter}))
		return
	}

	normalizer := notify.NewNormalizer(notify.NormalizerOptions{})
	if *once {
		inserted, err := drainOnce(cfg.Stream.SpoolDir, cfg.Stream.Topic, normalizer, store, os.Stdout)
		if err != nil {
			log.Fatalf("drain spool failed: %v", err)
		}
		log.Printf("drained spool: %d new notifications", inserted)
		return
	}

	transport, err := cfg.Stream.NewTransport()
	if err != nil {
		log.Fatalf("failed to initialize transport: %v", err)
	}
	opts := cfg.Stream.ConnectorOptions(transport)
	opts.Normalizer = normalizer
	opts.Logger = log.Default()
	connector, err := stream.NewConnector(opts)
	if err != nil {
		log.Fatalf("failed to initialize connector: %v", err)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)
	defer stop()

	events, unsubscribe := connector.Subscribe(64)
	defer unsubscribe()
	if err := connector.Start(rootCtx); err != nil {
		log.Fatalf("failed to start connector: %v", err)
	}
	defer connector.Stop()
	log.Printf("tailing %s over %s", connector.Topic(), cfg.Stream.Transport)

	tail(rootCtx, events, store, os.Stdout)
	log.Printf("tail stopping: %v", rootCtx.Err())
}

// tail merges each event into the store and prints the ones that were new.
func tail(ctx context.Context, events <-chan stream.Event, store *notify.Store, out io.Writer) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if len(store.Ingest(ev.Normalized)) > 0 {
				printLine(out, notify.Describe(notify.StoredNotification{NormalizedEvent: ev.Normalized}, true))
			}
		}
	}
}

func drainOnce(dir, topic string, normalizer *notify.Normalizer, store *notify.Store, out io.Writer) (int, error) {
	messages, err := stream.Drain(dir, topic)
	if err != nil && len(messages) == 0 {
		return 0, err
	}
	events := make([]notify.NormalizedEvent, 0, len(messages))
	for _, msg := range messages {
		raw, decodeErr := notify.DecodeRawEvent(msg.Body)
		if decodeErr != nil {
			log.Printf("skipping undecodable spool message: %v", decodeErr)
			continue
		}
		events = append(events, normalizer.Normalize(raw))
	}
	inserted := store.Ingest(events...)
	fresh := make(map[string]struct{}, len(inserted))
	for _, id := range inserted {
		fresh[id] = struct{}{}
	}
	for _, ev := range events {
		if _, ok := fresh[ev.ID]; ok {
			printLine(out, notify.Describe(notify.StoredNotification{NormalizedEvent: ev}, true))
			delete(fresh, ev.ID)
		}
	}
	return len(inserted), err
}

func publishMessage(dir, source string, stdin io.Reader) (string, error) {
	var (
		body []byte
		err  error
	)
	if source == "-" {
		body, err = io.ReadAll(stdin)
	} else {
		body, err = os.ReadFile(source)
	}
	if err != nil {
		return "", err
	}
	if _, err := notify.DecodeRawEvent(body); err != nil {
		return "", fmt.Errorf("message is not valid json: %w", err)
	}
	return stream.Enqueue(dir, body)
}

func printView(out io.Writer, view notify.View) {
	fmt.Fprintf(out, "%d stored, %d unread, %d shown\n", view.Total, view.Unread, len(view.Items))
	for _, row := range view.Items {
		printLine(out, row)
	}
}

func printLine(out io.Writer, row notify.ViewItem) {
	n := row.Notification
	marker := " "
	switch {
	case row.Highlighted:
		marker = "+"
	case !n.Read:
		marker = "*"
	}
	recipient := n.Recipient
	if recipient == "" {
		recipient = "-"
	}
	fmt.Fprintf(out, "%s %s %-7s [%s] %s %s (%s)\n", marker, n.Timestamp, row.Severity, n.Type, recipient, row.Summary, n.ID)
}
