package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/papernest/internal/domain"
	"github.com/kailas-cloud/papernest/internal/extract"
	logpkg "github.com/kailas-cloud/papernest/internal/logger"
	"github.com/kailas-cloud/papernest/internal/metrics"
	paperuc "github.com/kailas-cloud/papernest/internal/usecase/paper"
	"github.com/kailas-cloud/papernest/internal/usecase/retrieval"
)

var (
	askFile     string
	askTopK     int
	askGenerate bool
	askVerbose  bool
)

var askCmd = &cobra.Command{
	Use:   "ask [query]",
	Short: "Retrieve context for a query from a local PDF, DOCX or text file",
	Long: `Chunks and ranks the file with the configured embedding provider and prints
the assembled context. With --generate the context is sent to the chat model
and the answer is printed instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askFile, "file", "f", "", "document to search (pdf, docx or txt)")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "number of chunks to retrieve (default from config)")
	askCmd.Flags().BoolVar(&askGenerate, "generate", false, "answer the query with the chat model")
	askCmd.Flags().BoolVarP(&askVerbose, "verbose", "v", false, "print chunk scores")
	_ = askCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	query := args[0]

	cfg, env, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	level := cfg.Logging.Level
	if level == "" {
		level = "warn"
	}
	logger, err := logpkg.NewLogger(env, level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	metrics.Register()

	data, err := os.ReadFile(filepath.Clean(askFile))
	if err != nil {
		return fmt.Errorf("read %s: %w", askFile, err)
	}
	doc, err := extract.New(logpkg.NewSlog(logger.Named("extract"))).Extract(filepath.Base(askFile), data)
	if err != nil {
		return fmt.Errorf("extract %s: %w", askFile, err)
	}

	provider, err := buildProvider(cfg.Embedding, logger)
	if err != nil {
		return fmt.Errorf("create embedding provider: %w", err)
	}
	if c, ok := provider.(domain.Closer); ok {
		defer func() { _ = c.Close() }()
	}

	retriever, err := buildRetriever(cfg, provider, logger)
	if err != nil {
		return fmt.Errorf("create retriever: %w", err)
	}

	ctx := cmd.Context()
	res, err := retriever.Context(ctx, doc.Text, query, askTopK)
	if err != nil {
		return fmt.Errorf("retrieve: %w", err)
	}
	if askVerbose {
		printRanking(cmd, res)
	}

	if !askGenerate {
		fmt.Fprintln(cmd.OutOrStdout(), res.Context)
		return nil
	}

	gen := buildGenerator(cfg.Chat, logger)
	if gen == nil {
		return errors.New("chat.api_key is not configured")
	}
	answer, err := gen.Generate(ctx, paperuc.ChatRequest(res.Context, query))
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	logger.Debug("Answer generated", zap.Int("chunks", len(res.Chunks)))
	fmt.Fprintln(cmd.OutOrStdout(), answer)
	return nil
}

func printRanking(cmd *cobra.Command, res retrieval.Result) {
	label := res.Provider.String()
	if res.Fallback {
		label += " (fallback)"
	}
	cmd.PrintErrf("provider: %s, %d of %d chunks\n", label, len(res.Chunks), res.Scored)
	if res.TotalChunks > res.Scored {
		cmd.PrintErrf("max_chunks: %d of %d document chunks were not searched\n", res.TotalChunks-res.Scored, res.TotalChunks)
	}
	for i, c := range res.Chunks {
		cmd.PrintErrf("  [%d] chunk %d, runes %d-%d, score %.4f\n", i+1, c.Chunk.Index, c.Chunk.Start, c.Chunk.End, c.Score)
	}
	cmd.PrintErrln()
}
