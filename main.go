package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/foliolabs/portfolio-assistant/api"
	"github.com/foliolabs/portfolio-assistant/chat"
	"github.com/foliolabs/portfolio-assistant/config"
	"github.com/foliolabs/portfolio-assistant/content"
	"github.com/foliolabs/portfolio-assistant/database"
	"github.com/foliolabs/portfolio-assistant/docstore"
	"github.com/foliolabs/portfolio-assistant/embeddings"
	"github.com/foliolabs/portfolio-assistant/llm"
	"github.com/foliolabs/portfolio-assistant/rag"
	"github.com/foliolabs/portfolio-assistant/settings"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.Load()

	switch os.Args[1] {
	case "serve":
		serveCmd(cfg, logger, os.Args[2:])
	case "sync":
		syncCmd(cfg, logger, os.Args[2:])
	case "ingest":
		ingestCmd(cfg, logger, os.Args[2:])
	case "ingest-cv":
		ingestCVCmd(cfg, logger, os.Args[2:])
	case "chat":
		chatCmd(cfg, logger, os.Args[2:])
	case "clear":
		clearCmd(cfg, logger, os.Args[2:])
	default:
		logger.Printf("unknown command: %s", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// services bundles the wired-up application. close releases the pool when one
// was opened.
type services struct {
	docs     docstore.Store
	projects content.Repository
	settings settings.Store
	sessions chat.SessionStore
	rag      *rag.Service
	chat     *chat.Service
	close    func()
}

func buildServices(ctx context.Context, cfg config.Config, logger *log.Logger) (*services, error) {
	svcs := &services{close: func() {}}

	switch cfg.DocStore {
	case config.StoreMemory:
		svcs.docs = docstore.NewMemoryStore()
		svcs.settings = settings.NewMemoryStore()
		svcs.sessions = chat.NewMemorySessionStore()
	case config.StorePostgres:
		pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres connection: %w", err)
		}
		if err := database.EnsureSchema(ctx, pool, cfg.Embeddings.Dimension); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		svcs.docs = docstore.NewPostgresStore(pool)
		svcs.projects = content.NewPostgresRepository(pool)
		svcs.settings = settings.NewPostgresStore(pool)
		svcs.sessions = chat.NewPostgresSessionStore(pool)
		svcs.close = pool.Close
	default:
		return nil, fmt.Errorf("unknown doc store: %s", cfg.DocStore)
	}

	// An unconfigured embedder keeps the server usable: ingest and search
	// report the configuration error, chat degrades to its canned reply.
	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		logger.Printf("embedder unavailable: %v", err)
		embedder = nil
	}

	svcs.rag = rag.NewService(svcs.docs, embedder, logger)

	llmClient, err := llm.NewClient(cfg)
	if err != nil {
		svcs.close()
		return nil, fmt.Errorf("llm setup: %w", err)
	}

	svcs.chat = chat.NewService(svcs.sessions, llmClient, svcs.settings, cfg.ChatModels, cfg.ChatAPIKey(), svcs.rag, logger)

	return svcs, nil
}

func serveCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := flags.String("addr", cfg.ListenAddr, "address to listen on")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse serve flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svcs, err := buildServices(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup: %v", err)
	}
	defer svcs.close()

	server := api.New(svcs.rag, svcs.chat, svcs.projects, svcs.settings, logger)
	logger.Printf("listening on %s", *addr)
	if err := server.ListenAndServe(ctx, *addr); err != nil {
		logger.Fatalf("server: %v", err)
	}
}

func syncCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("sync", flag.ExitOnError)
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse sync flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svcs, err := buildServices(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup: %v", err)
	}
	defer svcs.close()

	if svcs.projects == nil {
		logger.Fatalf("sync requires the postgres doc store")
	}

	projects, err := svcs.projects.List(ctx)
	if err != nil {
		logger.Fatalf("list projects: %v", err)
	}

	report := svcs.rag.SyncProjects(ctx, projects)
	logger.Printf("synced %d of %d projects", report.Synced, len(projects))
	for id, ferr := range report.Failures {
		logger.Printf("  %s: %v", id, ferr)
	}
	if len(report.Failures) > 0 {
		os.Exit(1)
	}
}

func ingestCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("ingest", flag.ExitOnError)
	title := flags.String("title", "", "document title")
	text := flags.String("text", "", "document text")
	docType := flags.String("type", "note", "document type tag")
	sourceID := flags.String("source", "", "stable source id (optional)")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse ingest flags: %v", err)
	}

	if strings.TrimSpace(*text) == "" {
		logger.Fatalf("--text is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svcs, err := buildServices(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup: %v", err)
	}
	defer svcs.close()

	id, err := svcs.rag.Ingest(ctx, *title, *text, *docType, *sourceID)
	if err != nil {
		logger.Fatalf("ingest failed: %v", err)
	}
	logger.Printf("ingested document %s", id)
}

func ingestCVCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("ingest-cv", flag.ExitOnError)
	path := flags.String("file", "", "path to the CV pdf")
	title := flags.String("title", "CV", "document title")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse ingest-cv flags: %v", err)
	}

	if strings.TrimSpace(*path) == "" {
		logger.Fatalf("--file is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svcs, err := buildServices(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup: %v", err)
	}
	defer svcs.close()

	id, err := svcs.rag.IngestPDF(ctx, *title, *path, rag.TypeCV, "cv")
	if err != nil {
		logger.Fatalf("ingest cv failed: %v", err)
	}
	logger.Printf("ingested cv as document %s", id)
}

func chatCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("chat", flag.ExitOnError)
	message := flags.String("message", "", "message to send")
	session := flags.String("session", "", "session token (generated when empty)")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse chat flags: %v", err)
	}

	if strings.TrimSpace(*message) == "" {
		fmt.Print("Enter your message: ")
		scanner := bufio.NewScanner(os.Stdin)
		if scanner.Scan() {
			*message = scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			logger.Fatalf("read message: %v", err)
		}
	}

	sessionID := strings.TrimSpace(*session)
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svcs, err := buildServices(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup: %v", err)
	}
	defer svcs.close()

	reply, err := svcs.chat.Send(ctx, sessionID, *message)
	if err != nil {
		logger.Fatalf("chat failed: %v", err)
	}

	fmt.Println(reply)
	logger.Printf("session: %s", sessionID)
}

func clearCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("clear", flag.ExitOnError)
	confirmed := flags.Bool("confirm", false, "skip confirmation prompt")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse clear flags: %v", err)
	}

	if !*confirmed {
		fmt.Print("This will permanently delete all indexed documents. Chat transcripts are kept. Continue? [y/N]: ")
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				logger.Fatalf("read confirmation: %v", err)
			}
			logger.Println("clear aborted")
			return
		}
		answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if answer != "y" && answer != "yes" {
			logger.Println("clear aborted")
			return
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := clearDocuments(ctx, cfg); err != nil {
		logger.Fatalf("clear: %v", err)
	}

	logger.Println("indexed documents removed")
}

// clearDocuments truncates the indexed documents. The memory store lives and
// dies with its process, so only the postgres store can be cleared.
func clearDocuments(ctx context.Context, cfg config.Config) error {
	if cfg.DocStore != config.StorePostgres {
		return fmt.Errorf("clear requires the postgres document store, DOC_STORE is %q", cfg.DocStore)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("postgres connection: %w", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, "TRUNCATE documents"); err != nil {
		return fmt.Errorf("truncate documents: %w", err)
	}

	return nil
}

func printUsage() {
	fmt.Println("Usage: portfolio-assistant <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  serve      Run the HTTP API")
	fmt.Println("  sync       Re-index every project into the document store")
	fmt.Println("  ingest     Ingest a single text passage")
	fmt.Println("  ingest-cv  Extract and ingest a CV pdf")
	fmt.Println("  chat       Send a one-off chat message")
	fmt.Println("  clear      Remove all indexed documents, postgres store only (transcripts are kept)")
}
