package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/cfphub/cfpserver/internal/app"
	"github.com/cfphub/cfpserver/internal/config"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	if err := run(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func run() error {
	args := os.Args[1:]
	command := "serve"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		command = args[0]
		args = args[1:]
	}

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to config file")
	username := fs.String("username", "", "admin username (create-admin)")
	password := fs.String("password", "", "admin password (create-admin)")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}

	cfg, errLoad := config.Load(*configPath)
	if errLoad != nil {
		return errLoad
	}
	setupLogging(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "serve":
		return app.RunServer(ctx, cfg)
	case "migrate":
		if errMigrate := app.Migrate(ctx, cfg); errMigrate != nil {
			return errMigrate
		}
		log.Info("migrations applied")
		return nil
	case "create-admin":
		if errCreate := app.CreateAdmin(ctx, cfg, *username, *password); errCreate != nil {
			return errCreate
		}
		log.Infof("admin %s ready", *username)
		return nil
	default:
		return fmt.Errorf("unknown command %q (want serve, migrate or create-admin)", command)
	}
}

// setupLogging configures logrus level, format and rotating file output.
func setupLogging(cfg config.LoggingConfig) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
	if cfg.File == "" {
		return
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, rotator))
}
