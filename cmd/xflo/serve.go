package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/xflo/ai"
	"github.com/hrygo/xflo/ai/metrics"
	"github.com/hrygo/xflo/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the title generation service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, err := loadProfile()
		if err != nil {
			return err
		}
		p.TitleRPS = viper.GetFloat64("title-rps")
		p.TitleBurst = viper.GetInt("title-burst")
		if err := p.Validate(); err != nil {
			return err
		}
		if p.LLMAPIKey == "" {
			return errors.New("serve requires XFLO_LLM_API_KEY")
		}

		prompt, err := ai.LoadTitlePromptConfig(p.PromptDir)
		if err != nil {
			return err
		}
		titles := ai.NewTitleGenerator(ai.TitleGeneratorConfig{
			APIKey:  p.LLMAPIKey,
			BaseURL: p.LLMBaseURL,
			Model:   p.LLMTitleModel,
			Prompt:  prompt,
		})

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		s, err := server.NewServer(ctx, p, titles, metrics.NewPrometheusExporter(metrics.DefaultConfig()))
		if err != nil {
			return errors.Wrap(err, "failed to create server")
		}

		// Trigger graceful shutdown on SIGINT or SIGTERM.
		c := make(chan os.Signal, 1)
		signal.Notify(c, terminationSignals...)
		defer signal.Stop(c)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			select {
			case <-c:
				cancel()
			case <-gctx.Done():
			}
			return nil
		})
		g.Go(func() error {
			if err := s.Start(gctx); err != nil {
				return err
			}
			printGreetings(p, s.Addr())

			<-gctx.Done()
			shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
			defer stop()
			s.Shutdown(shutdownCtx)
			return nil
		})
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().Float64("title-rps", 2, "title requests per second allowed per client")
	serveCmd.Flags().Int("title-burst", 5, "title request burst allowed per client")
	for _, key := range []string{"title-rps", "title-burst"} {
		if err := viper.BindPFlag(key, serveCmd.Flags().Lookup(key)); err != nil {
			panic(err)
		}
	}
}
