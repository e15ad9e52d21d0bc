package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/trendsift/viral-engine/api/types"
	"github.com/trendsift/viral-engine/internal/api"
	"github.com/trendsift/viral-engine/internal/config"
	"github.com/trendsift/viral-engine/internal/engine"
	"github.com/trendsift/viral-engine/internal/storage"
)

func main() {
	query := flag.String("query", "", "run one search and exit instead of serving")
	platforms := flag.String("platforms", "", "comma separated platforms for -query (default: all)")
	maxResults := flag.Int("max-results", 0, "result cap for -query (default: MAX_IMAGES)")
	skipMedia := flag.Bool("skip-media", false, "with -query, collect metadata only")
	flag.Parse()

	ec := config.ReadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := engine.New(ctx, ec)
	if err != nil {
		logrus.Fatal(err)
	}
	defer eng.Close()

	if *query != "" {
		if err := runOnce(ctx, eng, ec, oneShotRequest(*query, *platforms, *maxResults, *skipMedia)); err != nil {
			logrus.Fatal(err)
		}
		return
	}

	if err := api.Start(ctx, eng, ec); err != nil {
		logrus.Fatal(err)
	}
}

func oneShotRequest(query, platforms string, maxResults int, skipMedia bool) types.SearchRequest {
	req := types.SearchRequest{Query: query, MaxResults: maxResults, SkipMedia: skipMedia}
	for _, p := range strings.Split(platforms, ",") {
		if p = strings.TrimSpace(p); p != "" {
			req.Platforms = append(req.Platforms, p)
		}
	}
	return req
}

func runOnce(ctx context.Context, eng *engine.Engine, ec config.EngineConfig, req types.SearchRequest) error {
	manifest, err := eng.Search(ctx, req)
	if err != nil {
		return err
	}

	path := storage.ManifestPath(ec.GetString("output_dir", ""), manifest)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("manifest was not persisted: %w", err)
	}

	fmt.Printf("%d posts collected, %d viral\n", manifest.TotalContent, manifest.ViralContent)
	fmt.Println(path)
	return nil
}
