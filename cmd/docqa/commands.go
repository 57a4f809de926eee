package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/config"
	"github.com/xxxsen/docqa/internal/handler"
	"github.com/xxxsen/docqa/internal/job"
	"github.com/xxxsen/docqa/internal/middleware"
	"github.com/xxxsen/docqa/internal/pkg/jwt"
	"github.com/xxxsen/docqa/internal/pkg/textwrap"
	"github.com/xxxsen/docqa/internal/schedule"
	"github.com/xxxsen/docqa/internal/service"
)

const answerWidth = 100

type configLoader func() (*config.Config, error)

func collectionOf(cfg *config.Config, override string) string {
	if override != "" {
		return override
	}
	return cfg.Pipeline.CollectionName
}

func newIngestCmd(load configLoader) *cobra.Command {
	var collection string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "load the configured source and index it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			l, err := a.loader()
			if err != nil {
				return err
			}
			docs, err := l.Load(ctx)
			if err != nil {
				return fmt.Errorf("load documents: %w", err)
			}
			report, err := a.ingest.Ingest(ctx, collectionOf(cfg, collection), docs)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, res := range report.Results {
				if res.Err != nil {
					fmt.Fprintf(out, "FAIL %s: %v\n", res.DocumentID, res.Err)
					continue
				}
				fmt.Fprintf(out, "OK   %s (%d chunks)\n", res.DocumentID, res.Chunks)
			}
			fmt.Fprintf(out, "run %s: %d succeeded, %d failed\n", report.RunID, report.Succeeded, report.Failed)
			if report.Failed > 0 {
				return fmt.Errorf("%d documents failed", report.Failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&collection, "collection", "", "collection name, defaults to pipeline.collection_name")
	return cmd
}

func newSearchCmd(load configLoader) *cobra.Command {
	var (
		collection string
		topK       int
	)
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "print the chunks closest to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			results, err := a.query.Search(cmd.Context(), service.SearchRequest{
				Query:      strings.Join(args, " "),
				Collection: collectionOf(cfg, collection),
				TopK:       topK,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, item := range results {
				fmt.Fprintf(out, "%.4f  %s\n", item.Score, item.ID)
				fmt.Fprintln(out, textwrap.Fill(item.Text, answerWidth))
				fmt.Fprintln(out)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&collection, "collection", "", "collection name, defaults to pipeline.collection_name")
	cmd.Flags().IntVar(&topK, "top-k", 0, "number of chunks, defaults to pipeline.top_k")
	return cmd
}

func newAskCmd(load configLoader) *cobra.Command {
	var (
		collection string
		topK       int
	)
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "answer a question from the indexed documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			answer, err := a.query.Answer(cmd.Context(), service.AnswerRequest{
				SearchRequest: service.SearchRequest{
					Query:      strings.Join(args, " "),
					Collection: collectionOf(cfg, collection),
					TopK:       topK,
				},
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, textwrap.Fill(answer.Text, answerWidth))
			if len(answer.SourceIDs) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Sources:")
				for _, id := range answer.SourceIDs {
					fmt.Fprintf(out, "  %s\n", id)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&collection, "collection", "", "collection name, defaults to pipeline.collection_name")
	cmd.Flags().IntVar(&topK, "top-k", 0, "number of chunks, defaults to pipeline.top_k")
	return cmd
}

func newTokenCmd(load configLoader) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "issue an api token signed with server.jwt_secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.Server.JWTSecret == "" {
				return fmt.Errorf("server.jwt_secret is not configured")
			}
			token, err := jwt.GenerateToken(subject, []byte(cfg.Server.JWTSecret), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "client name recorded in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func newServeCmd(load configLoader) *cobra.Command {
	var ingestOnStart bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the http api and scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return runServer(ctx, a, ingestOnStart)
		},
	}
	cmd.Flags().BoolVar(&ingestOnStart, "ingest-on-start", false, "run the source ingest job once before serving")
	return cmd
}

func runServer(ctx context.Context, a *app, ingestOnStart bool) error {
	cfg := a.cfg
	logger := logutil.GetLogger(ctx)
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Server.Port)

	l, err := a.loader()
	if err != nil {
		return err
	}
	scheduler := schedule.NewCronScheduler()
	ingestJob := job.NewSourceIngestJob(l, a.ingest, cfg.Pipeline.CollectionName)
	if cfg.Schedule.IngestCron != "" {
		if err := scheduler.AddJob(ingestJob, cfg.Schedule.IngestCron); err != nil {
			return fmt.Errorf("schedule ingest: %w", err)
		}
	}
	if cfg.Schedule.CacheCleanupCron != "" && a.cacheRepo != nil {
		cleanup := job.NewEmbeddingCacheCleanupJob(a.cacheRepo, cfg.AI.EmbedCache.MaxAgeDays)
		if err := scheduler.AddJob(cleanup, cfg.Schedule.CacheCleanupCron); err != nil {
			return fmt.Errorf("schedule cache cleanup: %w", err)
		}
	}
	if ingestOnStart {
		var runErr error
		if cfg.Schedule.IngestCron != "" {
			runErr = scheduler.RunNow(ctx, ingestJob.Name())
		} else {
			runErr = ingestJob.Run(ctx)
		}
		if runErr != nil {
			logger.Error("initial ingest failed", zap.Error(runErr))
		}
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	deps := handler.RouterDeps{
		Collections:     handler.NewCollectionHandler(a.ingest, a.query, l),
		JWTSecret:       []byte(cfg.Server.JWTSecret),
		RateLimitWindow: time.Duration(cfg.Server.RateLimitWindowMs) * time.Millisecond,
	}
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.Server.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logger.Info("http server listening", zap.String("addr", addr))

	go func() {
		if err := engine.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("server stopping...")
	return nil
}
