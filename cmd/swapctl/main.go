package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pveiga/skillswap/internal/backend"
	"github.com/pveiga/skillswap/internal/bus"
	"github.com/pveiga/skillswap/internal/config"
	"github.com/pveiga/skillswap/internal/connections"
	"github.com/pveiga/skillswap/internal/messaging"
	"github.com/pveiga/skillswap/internal/profiles"
	"github.com/pveiga/skillswap/internal/session"
	"github.com/pveiga/skillswap/internal/store"
	"go.uber.org/zap"
)

// env holds the headless client the commands run against.
type env struct {
	auth   *backend.Auth
	client *backend.Client
	bus    *bus.Bus
	rt     *backend.Feed
}

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.LoadOrDefault(session.ConfigPath())
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := session.EnsureDir(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	b := bus.New()
	auth := backend.NewAuth(cfg.Backend.URL, cfg.Backend.APIKey, session.TokenPath(sessionName))
	e := &env{
		auth:   auth,
		client: backend.NewClient(cfg.Backend.URL, cfg.Backend.APIKey, auth),
		bus:    b,
		rt:     backend.NewFeed(cfg.Backend.URL, cfg.Backend.APIKey, auth, b, zap.NewNop()),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch args[0] {
	case "login":
		cmdLogin(ctx, e, args[1:])
	case "logout":
		cmdLogout(e)
	case "whoami":
		cmdWhoami(e, *jsonFlag)
	case "send":
		cmdSend(ctx, e, args[1:])
	case "sendfile":
		cmdSendFile(ctx, e, args[1:])
	case "recents":
		cmdRecents(ctx, e, *jsonFlag)
	case "profile":
		cmdProfile(ctx, e, sessionName, args[1:], *jsonFlag)
	case "verify":
		cmdVerify(ctx, e, sessionName, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: swapctl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  login <email>            Sign in (password read from stdin)")
	fmt.Fprintln(os.Stderr, "  logout                   Drop the stored session")
	fmt.Fprintln(os.Stderr, "  whoami                   Show the signed-in identity")
	fmt.Fprintln(os.Stderr, "  send <user-id> <text>    Send a text message")
	fmt.Fprintln(os.Stderr, "  sendfile <user-id> <path>  Send a file attachment")
	fmt.Fprintln(os.Stderr, "  recents                  List recent chats")
	fmt.Fprintln(os.Stderr, "  profile [<user-id>]      Show a profile (default: own)")
	fmt.Fprintln(os.Stderr, "  verify <skill> <score>   Record a skill test result")
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func requireSignIn(e *env) string {
	if !e.auth.SignedIn() {
		fmt.Fprintln(os.Stderr, "error: not signed in, run: swapctl login <email>")
		os.Exit(1)
	}
	return e.auth.UserID()
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func cmdLogin(ctx context.Context, e *env, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: swapctl login <email>")
		os.Exit(1)
	}
	fmt.Fprint(os.Stderr, "Password: ")
	reader := bufio.NewReader(os.Stdin)
	password, err := reader.ReadString('\n')
	if err != nil {
		fail(err)
	}
	password = strings.TrimRight(password, "\r\n")

	if err := e.auth.SignIn(ctx, args[0], password); err != nil {
		fail(err)
	}
	fmt.Printf("Signed in as %s (%s)\n", e.auth.Email(), e.auth.UserID())
}

func cmdLogout(e *env) {
	if err := e.auth.SignOut(); err != nil {
		fail(err)
	}
	fmt.Println("Signed out")
}

func cmdWhoami(e *env, jsonOut bool) {
	me := requireSignIn(e)
	if jsonOut {
		outputJSON(map[string]string{"user_id": me, "email": e.auth.Email()})
		return
	}
	fmt.Printf("User:  %s\n", me)
	fmt.Printf("Email: %s\n", e.auth.Email())
}

func cmdSend(ctx context.Context, e *env, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: swapctl send <user-id> <text>")
		os.Exit(1)
	}
	me := requireSignIn(e)
	receiver := args[0]
	text := strings.Join(args[1:], " ")

	if _, err := connections.Ensure(ctx, e.client, me, receiver, text); err != nil {
		fail(err)
	}
	thread, err := messaging.NewThread(e.bus, e.client, e.rt, me, receiver, zap.NewNop())
	if err != nil {
		fail(err)
	}
	defer thread.Close()

	sent, err := thread.Send(ctx, text, store.KindText, "", "")
	if err != nil {
		fail(err)
	}
	fmt.Printf("Sent %s\n", sent.ID)
}

func cmdSendFile(ctx context.Context, e *env, args []string) {
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: swapctl sendfile <user-id> <path>")
		os.Exit(1)
	}
	me := requireSignIn(e)
	receiver, path := args[0], args[1]

	f, err := os.Open(path)
	if err != nil {
		fail(err)
	}
	defer func() { _ = f.Close() }()

	kind := store.KindFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		kind = store.KindImage
	case ".ogg", ".mp3", ".webm", ".wav", ".m4a":
		kind = store.KindVoice
	}

	up := messaging.NewUploader(backend.NewStorage(e.client))
	url, name, err := up.Upload(ctx, kind, filepath.Base(path), f)
	if err != nil {
		fail(err)
	}

	if _, err := connections.Ensure(ctx, e.client, me, receiver, ""); err != nil {
		fail(err)
	}
	thread, err := messaging.NewThread(e.bus, e.client, e.rt, me, receiver, zap.NewNop())
	if err != nil {
		fail(err)
	}
	defer thread.Close()

	sent, err := thread.Send(ctx, "", kind, url, name)
	if err != nil {
		fail(err)
	}
	fmt.Printf("Sent %s (%s)\n", sent.ID, sent.Content)
}

func cmdRecents(ctx context.Context, e *env, jsonOut bool) {
	me := requireSignIn(e)

	recents, err := connections.NewRecents(e.bus, e.client, e.rt, me, zap.NewNop())
	if err != nil {
		fail(err)
	}
	defer recents.Close()
	if err := recents.Start(ctx); err != nil {
		fail(err)
	}

	list := recents.List()
	if jsonOut {
		outputJSON(list)
		return
	}
	if len(list) == 0 {
		fmt.Println("No recent chats")
		return
	}
	for _, c := range list {
		fmt.Printf("%-40s %-30s %s\n", c.Other(me), c.LastMessage, c.UpdatedAt.Format(time.RFC3339))
	}
}

func profileService(e *env, sessionName string) *profiles.Service {
	db, err := store.Open(session.CacheDBPath(sessionName))
	if err != nil {
		fail(err)
	}
	if _, err := db.Migrate(); err != nil {
		fail(err)
	}
	return profiles.NewService(e.client, backend.NewStorage(e.client), db, zap.NewNop())
}

func cmdProfile(ctx context.Context, e *env, sessionName string, args []string, jsonOut bool) {
	me := requireSignIn(e)
	target := me
	if len(args) > 0 {
		target = args[0]
	}

	p, err := profileService(e, sessionName).Get(ctx, target)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(p)
		return
	}
	fmt.Printf("Name:     %s\n", p.FullName)
	fmt.Printf("Bio:      %s\n", p.Bio)
	fmt.Printf("Location: %s\n", p.Location)
	fmt.Printf("Teaches:  %s\n", strings.Join(p.SkillsTeach, ", "))
	fmt.Printf("Learns:   %s\n", strings.Join(p.SkillsLearn, ", "))
	for skill, v := range p.VerifiedSkills {
		fmt.Printf("Verified: %s (%s, %d)\n", skill, v.Level, v.Score)
	}
}

func cmdVerify(ctx context.Context, e *env, sessionName string, args []string) {
	me := requireSignIn(e)
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: swapctl verify <skill> <score>")
		os.Exit(1)
	}
	score, err := strconv.Atoi(args[1])
	if err != nil {
		fail(fmt.Errorf("score must be a number: %w", err))
	}

	v, err := profileService(e, sessionName).RecordVerification(ctx, me, args[0], score)
	if err != nil {
		fail(err)
	}
	fmt.Printf("%s verified at %s (score %d)\n", args[0], v.Level, v.Score)
}
