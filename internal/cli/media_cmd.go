// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/nostria-app/nostria-go/internal/account"
	"github.com/nostria-app/nostria-go/internal/config"
	"github.com/nostria-app/nostria-go/internal/media"
	"github.com/nostria-app/nostria-go/internal/nostr"
	"github.com/nostria-app/nostria-go/internal/settings"
	"github.com/nostria-app/nostria-go/internal/util"
)

// HandleMedia implements the media subcommands: upload, download, mirror,
// servers.
func HandleMedia(args Args) error {
	switch args.Subcommand {
	case "upload":
		return mediaUpload(args)
	case "download", "get":
		return mediaDownload(args)
	case "mirror":
		return mediaMirror(args)
	case "servers":
		return mediaServers(args)
	case "":
		return errorf("usage: nostria media upload|download|mirror|servers")
	default:
		return errorf("unknown media subcommand: %s", args.Subcommand)
	}
}

// mediaServerList resolves the server list: --server flag, then the
// published kind-10063 list, then local settings.
func mediaServerList(ctx context.Context, args Args, acct *account.Account) ([]string, error) {
	if s := args.Options["server"]; s != "" {
		return []string{s}, nil
	}

	var listEvent *nostr.Event
	if pool, err := connectPool(ctx, args); err == nil {
		listEvent = fetchNewest(ctx, pool, nostr.Filter{
			Authors: []string{acct.PubKey},
			Kinds:   []int{nostr.KindMediaServers},
			Limit:   1,
		})
		pool.Close()
	}

	var local *settings.Settings
	if path, err := settings.DefaultPath(); err == nil {
		if st, err := settings.Open(path); err == nil {
			local = st.Get()
			st.Close()
		}
	}

	servers, err := media.Servers(listEvent, local)
	if err != nil {
		if fallback := config.Global().Media.Servers; len(fallback) > 0 {
			return fallback, nil
		}
		return nil, err
	}
	return servers, nil
}

func mediaUpload(args Args) error {
	ctx := context.Background()

	if len(args.Raw) == 0 {
		return errorf("usage: nostria media upload <file>")
	}
	path := args.Raw[0]

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if limit := util.MBToBytes(config.Global().Media.MaxUploadMB); limit > 0 && int64(len(data)) > limit {
		return errorf("%s is %d bytes; the configured upload limit is %d MB",
			filepath.Base(path), len(data), config.Global().Media.MaxUploadMB)
	}
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	acct, err := loadAccount()
	if err != nil {
		return err
	}

	servers, err := mediaServerList(ctx, args, acct)
	if err != nil {
		return err
	}

	// Upload to the first server that takes it, then mirror to the rest.
	var desc *media.Descriptor
	var primary string
	var lastErr error
	for _, server := range servers {
		client, cerr := media.NewClient(server, acct)
		if cerr != nil {
			lastErr = cerr
			continue
		}
		desc, lastErr = client.Upload(ctx, data, contentType)
		if lastErr == nil {
			primary = server
			break
		}
		if args.Verbose {
			fmt.Fprintf(os.Stderr, "upload to %s failed: %v\n", server, lastErr)
		}
	}
	if desc == nil {
		return fmt.Errorf("upload failed on every server: %w", lastErr)
	}

	mirrored := 0
	for _, server := range servers {
		if server == primary {
			continue
		}
		client, cerr := media.NewClient(server, acct)
		if cerr != nil {
			continue
		}
		if _, merr := client.Mirror(ctx, desc.URL, desc.SHA256); merr != nil {
			if args.Verbose {
				fmt.Fprintf(os.Stderr, "mirror to %s failed: %v\n", server, merr)
			}
			continue
		}
		mirrored++
	}

	if args.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(desc)
	}
	if !args.Quiet {
		fmt.Printf("Uploaded %s (%d bytes)\n", filepath.Base(path), len(data))
		fmt.Printf("  URL:    %s\n", desc.URL)
		fmt.Printf("  SHA256: %s\n", desc.SHA256)
		if mirrored > 0 {
			fmt.Printf("  Mirrored to %d other server(s)\n", mirrored)
		}
	}
	return nil
}

func mediaDownload(args Args) error {
	ctx := context.Background()

	if len(args.Raw) == 0 {
		return errorf("usage: nostria media download <sha256> [--out <file>]")
	}
	sha := strings.ToLower(args.Raw[0])
	if len(sha) != 64 {
		return errorf("not a sha-256 hash: %q", args.Raw[0])
	}

	acct, err := loadAccount()
	if err != nil {
		return err
	}

	servers, err := mediaServerList(ctx, args, acct)
	if err != nil {
		return err
	}

	var data []byte
	var lastErr error
	for _, server := range servers {
		client, cerr := media.NewClient(server, acct)
		if cerr != nil {
			lastErr = cerr
			continue
		}
		data, lastErr = client.Download(ctx, sha)
		if lastErr == nil {
			break
		}
		if args.Verbose {
			fmt.Fprintf(os.Stderr, "download from %s failed: %v\n", server, lastErr)
		}
	}
	if data == nil {
		return fmt.Errorf("blob not found on any server: %w", lastErr)
	}

	out := args.Options["out"]
	if out == "" {
		out = sha
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return err
	}
	if !args.Quiet {
		fmt.Printf("Wrote %d bytes to %s\n", len(data), out)
	}
	return nil
}

func mediaMirror(args Args) error {
	ctx := context.Background()

	if len(args.Raw) < 2 {
		return errorf("usage: nostria media mirror <url> <sha256> [--server <url>]")
	}
	sourceURL := args.Raw[0]
	sha := strings.ToLower(args.Raw[1])
	if len(sha) != 64 {
		return errorf("not a sha-256 hash: %q", args.Raw[1])
	}

	acct, err := loadAccount()
	if err != nil {
		return err
	}

	servers, err := mediaServerList(ctx, args, acct)
	if err != nil {
		return err
	}

	var failed int
	for _, server := range servers {
		client, cerr := media.NewClient(server, acct)
		if cerr != nil {
			failed++
			continue
		}
		if _, merr := client.Mirror(ctx, sourceURL, sha); merr != nil {
			failed++
			if !args.Quiet {
				fmt.Fprintf(os.Stderr, "  %s: %v\n", server, merr)
			}
			continue
		}
		if !args.Quiet {
			fmt.Printf("Mirrored to %s\n", server)
		}
	}
	if failed == len(servers) {
		return errorf("mirror failed on every server")
	}
	return nil
}

// mediaServers shows or publishes the server list.
func mediaServers(args Args) error {
	ctx := context.Background()

	acct, err := loadAccount()
	if err != nil {
		return err
	}

	if args.Options["publish"] == "true" {
		servers, err := mediaServerList(ctx, args, acct)
		if err != nil {
			return err
		}
		ev, err := media.ServerListEvent(acct, servers)
		if err != nil {
			return err
		}
		pool, err := connectPool(ctx, args)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := publish(ctx, pool, ev, args.Quiet); err != nil {
			return err
		}
		if !args.Quiet {
			fmt.Printf("Published server list (%d servers)\n", len(servers))
		}
		return nil
	}

	servers, err := mediaServerList(ctx, args, acct)
	if err != nil {
		return err
	}
	if args.JSON {
		return json.NewEncoder(os.Stdout).Encode(servers)
	}
	for _, s := range servers {
		fmt.Println(s)
	}
	return nil
}
