package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/matheus3301/dmserver/internal/auth"
	"github.com/matheus3301/dmserver/internal/config"
	"github.com/matheus3301/dmserver/internal/daemon"
	"github.com/matheus3301/dmserver/internal/store"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	configFlag := flag.String("config", config.DefaultPath(), "path to config.toml")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	_ = godotenv.Load()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Read(context.Background(), *configFlag, nil)
	if err != nil {
		fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "health":
		cmdHealth(ctx, cfg, *jsonFlag)
	case "token":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: dmctl token <user-id> [ttl]")
			os.Exit(1)
		}
		ttl := 24 * time.Hour
		if len(args) >= 3 {
			if ttl, err = time.ParseDuration(args[2]); err != nil {
				fatal(fmt.Errorf("ttl: %w", err))
			}
		}
		cmdToken(cfg, args[1], ttl)
	case "user":
		if len(args) == 5 && args[1] == "add" {
			cmdUserAdd(ctx, cfg, &store.User{ID: args[2], Name: args[3], Email: args[4]}, *jsonFlag)
		} else {
			fmt.Fprintln(os.Stderr, "usage: dmctl user add <id> <name> <email>")
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: dmctl [--config <path>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  health                      Query daemon health over the admin socket")
	fmt.Fprintln(os.Stderr, "  token <user-id> [ttl]       Mint a bearer token (default ttl 24h)")
	fmt.Fprintln(os.Stderr, "  user add <id> <name> <email>  Add or refresh a directory entry")
}

func cmdHealth(ctx context.Context, cfg *config.Config, jsonOut bool) {
	conn, err := grpc.NewClient(
		"unix://"+cfg.AdminSocketPath(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		fatal(fmt.Errorf("cannot connect to daemon: %w", err))
	}
	defer func() { _ = conn.Close() }()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: daemon.ServiceName})
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(map[string]string{"status": resp.GetStatus().String()})
	} else {
		fmt.Printf("Status: %s\n", resp.GetStatus())
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		os.Exit(2)
	}
}

func cmdToken(cfg *config.Config, userID string, ttl time.Duration) {
	j, err := auth.NewJWT(cfg.JWTSecret)
	if err != nil {
		fatal(err)
	}
	token, err := j.Sign(userID, ttl)
	if err != nil {
		fatal(err)
	}
	fmt.Println(token)
}

func cmdUserAdd(ctx context.Context, cfg *config.Config, u *store.User, jsonOut bool) {
	db, err := store.Open(cfg.DBPath())
	if err != nil {
		fatal(err)
	}
	defer func() { _ = db.Close() }()

	if _, err := db.Migrate(); err != nil {
		fatal(err)
	}
	if err := db.UpsertUser(ctx, u); err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(map[string]string{"id": u.ID, "name": u.Name, "email": u.Email})
		return
	}
	fmt.Printf("User %s saved.\n", u.ID)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
