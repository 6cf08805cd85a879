package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/WBHankins93/messaging-app/internal/client"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const usage = `usage: chatclient [flags] <command>

commands:
  signup    create an account (-u, -p)
  login     print an access/refresh token pair (-u, -p)
  refresh   exchange -refresh for a new access token
  users     list usernames (admin token required)
  history   print the history of -room
  chat      join -room; stdin lines are sent, broadcasts are printed

flags:
`

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	var (
		server   = flag.String("server", envOr("CHAT_SERVER", "http://localhost:8080"), "server base URL")
		token    = flag.String("token", os.Getenv("CHAT_TOKEN"), "access token")
		username = flag.String("u", "", "username")
		password = flag.String("p", "", "password")
		refresh  = flag.String("refresh", "", "refresh token")
		room     = flag.String("room", "global", "room id")
	)
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := client.New(client.Config{BaseURL: *server})
	c.SetToken(*token)

	var err error
	switch flag.Arg(0) {
	case "signup":
		if err = c.Signup(ctx, *username, *password); err == nil {
			fmt.Println("User created successfully")
		}
	case "login":
		var pair client.TokenPair
		if pair, err = c.Login(ctx, *username, *password); err == nil {
			fmt.Printf("access_token=%s\nrefresh_token=%s\n", pair.AccessToken, pair.RefreshToken)
		}
	case "refresh":
		var pair client.TokenPair
		if pair, err = c.Refresh(ctx, *refresh); err == nil {
			fmt.Printf("access_token=%s\n", pair.AccessToken)
		}
	case "users":
		var names []string
		if names, err = c.Users(ctx); err == nil {
			for _, n := range names {
				fmt.Println(n)
			}
		}
	case "history":
		var entries []client.HistoryEntry
		if entries, err = c.History(ctx, *room); err == nil {
			for _, e := range entries {
				fmt.Printf("[%s] %s: %s\n", e.Timestamp.Local().Format(time.DateTime), e.User, e.Content)
			}
		}
	case "chat":
		err = c.Chat(ctx, *room, os.Stdin, os.Stdout)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal().Err(err).Msg(flag.Arg(0))
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
