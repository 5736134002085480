// Package main provides a CLI for inspecting and creating rooms through the
// admin gRPC API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/cory-johannsen/mimic/internal/admin"
	"github.com/cory-johannsen/mimic/internal/config"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	addr := flag.String("addr", "", "admin gRPC address (default: admin.grpc_host:admin.grpc_port from config)")
	timeout := flag.Duration("timeout", 10*time.Second, "request timeout")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: roomctl [flags] get <ROOMID> | list | create\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	target := *addr
	if target == "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("loading config: %v", err)
		}
		target = cfg.Admin.Addr()
	}

	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("connecting to %s: %v", target, err)
	}
	defer conn.Close()
	client := admin.NewClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var out proto.Message
	switch args[0] {
	case "get":
		if len(args) != 2 {
			flag.Usage()
			os.Exit(1)
		}
		out, err = client.GetRoom(ctx, args[1])
	case "list":
		out, err = client.ListRooms(ctx)
	case "create":
		out, err = client.CreateRoom(ctx)
	default:
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("%s: %v", args[0], err)
	}

	data, err := protojson.MarshalOptions{Multiline: true}.Marshal(out)
	if err != nil {
		log.Fatalf("encoding response: %v", err)
	}
	fmt.Fprintf(os.Stdout, "%s\n", data)
	fmt.Fprintf(os.Stderr, "[%s]\n", time.Since(start))
}
