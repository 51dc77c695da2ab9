package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/georgepadayatti/signflow/compositor"
	"github.com/georgepadayatti/signflow/config"
	"github.com/georgepadayatti/signflow/docstore"
	"github.com/georgepadayatti/signflow/notify"
	"github.com/georgepadayatti/signflow/signlink"
	"github.com/georgepadayatti/signflow/store"
	"github.com/georgepadayatti/signflow/web"
	"github.com/georgepadayatti/signflow/workflow"
)

// ServeCommand implements the 'serve' command.
func ServeCommand(args []string) {
	serveFlags := flag.NewFlagSet("serve", flag.ExitOnError)

	configPath := serveFlags.String("config", "signflow.yaml", "Path to the configuration file")

	serveFlags.Usage = func() {
		fmt.Printf("Usage: %s serve [options]\n\n", os.Args[0])
		fmt.Println("Start the HTTP signing service.")
		fmt.Println("")
		fmt.Println("Options:")
		serveFlags.PrintDefaults()
	}
	if err := serveFlags.Parse(args[2:]); err != nil {
		osExit(2)
		return
	}

	conf, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
		return
	}

	if err := serve(conf); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

func serve(conf *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	docs, err := docstore.NewFileStore(conf.Storage.DocumentsDir)
	if err != nil {
		return err
	}

	var sessions interface {
		store.SessionStore
		store.TemplateStore
	}
	switch conf.Storage.Backend {
	case "postgres":
		pool, err := store.Connect(ctx, conf.Storage.DSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		sessions = store.NewPGStore(pool)
	default:
		sessions, err = store.NewFileStore(
			filepath.Join(conf.Storage.StateDir, "sessions"),
			filepath.Join(conf.Storage.StateDir, "templates"),
		)
		if err != nil {
			return err
		}
	}

	notifier := notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:     conf.SMTP.Host,
		Port:     conf.SMTP.Port,
		Username: conf.SMTP.Username,
		Password: conf.SMTP.Password,
		From:     conf.SMTP.From,
		Timeout:  conf.SMTP.Timeout(),
	})

	var queue notify.Queue
	if conf.Redis.Enabled() {
		rq := notify.NewRedisQueue(notify.RedisConfig{
			Host:     conf.Redis.Host,
			Port:     conf.Redis.Port,
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
			Key:      conf.Redis.Key,
		}, notifier)
		defer rq.Close()
		go rq.Run(ctx)
		queue = rq
	} else {
		mq := notify.NewMemoryQueue(notifier)
		defer mq.Close()
		queue = mq
	}

	engine := workflow.New(workflow.Config{
		Sessions:  sessions,
		Templates: sessions,
		Docs:      docs,
		Comp:      compositor.New(docs),
		Queue:     queue,
		Links:     signlink.NewIssuer([]byte(conf.Links.Secret), conf.Links.TTL(), nil),
		BaseURL:   conf.HTTP.BaseURL,
	})

	server := &http.Server{
		Addr:              conf.HTTP.Listen,
		Handler:           web.NewServer(engine, docs).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[INFO] signflow: listening on %s", conf.HTTP.Listen)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Printf("[INFO] signflow: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
