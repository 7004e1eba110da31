// Command relay-client is a line-mode client for the relay. Each input
// line is sent as text; "/file <path>" sends a file. Incoming text is
// printed and incoming files are saved to the download directory.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/orchestra-mcp/relay/src/client"
	"github.com/orchestra-mcp/relay/src/types"
	"github.com/rs/zerolog"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:4444", "relay address")
	name := flag.String("name", os.Getenv("USER"), "display name")
	downloads := flag.String("downloads", client.DefaultDownloadDir, "directory for received files")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()

	store := client.NewDownloads(*downloads)
	if err := store.EnsureDir(); err != nil {
		logger.Fatal().Err(err).Str("dir", store.Dir).Msg("cannot create download directory")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	conn, err := client.Dial(ctx, *addr, client.WithLogger(logger))
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("connect failed")
	}
	defer conn.Close()
	logger.Info().Str("addr", *addr).Str("name", *name).Msg("connected")

	go receive(conn, store, logger)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if err := handleLine(conn, *name, line); err != nil {
			if errors.Is(err, client.ErrConnectionClosed) {
				logger.Error().Msg("connection closed")
				return
			}
			logger.Error().Err(err).Msg("send failed")
		}
	}
}

func handleLine(conn *client.Conn, name, line string) error {
	if path, ok := strings.CutPrefix(line, "/file "); ok {
		path = strings.TrimSpace(path)
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return conn.SendFile(filepath.Base(path), data)
	}
	if strings.TrimSpace(line) == "" {
		return nil
	}
	return conn.SendText(name, line)
}

func receive(conn *client.Conn, store *client.Downloads, logger zerolog.Logger) {
	for {
		msg, err := conn.Next()
		if err != nil {
			logger.Error().Err(err).Msg("stream ended")
			os.Exit(1)
		}
		switch m := msg.(type) {
		case types.Text:
			fmt.Printf("%s: %s\n", m.Author, m.Body)
		case types.File:
			path, err := store.Save(m)
			if err != nil {
				logger.Error().Err(err).Str("name", m.Name).Msg("save failed")
				continue
			}
			fmt.Printf("* received file %s (%d bytes)\n", path, len(m.Data))
		case types.Handshake:
			logger.Debug().Msg("handshake")
		}
	}
}
