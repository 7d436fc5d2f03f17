package cmd

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/inboxpilot/inboxpilot/internal/classify"
	"github.com/inboxpilot/inboxpilot/internal/extract"
	"github.com/inboxpilot/inboxpilot/internal/instrumentation"
	"github.com/inboxpilot/inboxpilot/internal/link"
	"github.com/inboxpilot/inboxpilot/internal/nlu"
	"github.com/inboxpilot/inboxpilot/internal/notify"
	"github.com/inboxpilot/inboxpilot/internal/resources"
	"github.com/inboxpilot/inboxpilot/internal/server"
	"github.com/inboxpilot/inboxpilot/internal/sortcmd"
	"github.com/inboxpilot/inboxpilot/internal/store"
	"github.com/inboxpilot/inboxpilot/internal/tenant"
	"github.com/inboxpilot/inboxpilot/internal/tools/account_tools"
	"github.com/inboxpilot/inboxpilot/internal/tools/inbox_tools"
	"github.com/inboxpilot/inboxpilot/internal/tools/schema_tools"
	"github.com/inboxpilot/inboxpilot/internal/tools/sort_tools"
)

// googleAuthURL and googleTokenURL are Google's OAuth 2.0 endpoints,
// used for the built-in "google" link provider.
const (
	googleAuthURL  = "https://accounts.google.com/o/oauth2/auth"
	googleTokenURL = "https://oauth2.googleapis.com/token"
)

// StoreConfig holds tenant store backend configuration
type StoreConfig struct {
	// Type is the storage backend type: "memory" or "valkey" (default: "memory")
	Type string

	// Valkey configuration (used when Type is "valkey")
	Valkey ValkeyStoreConfig
}

// ValkeyStoreConfig holds configuration for the Valkey storage backend
type ValkeyStoreConfig struct {
	// URL is the Valkey server address (e.g., "valkey.namespace.svc:6379")
	URL string

	// Password is the optional password for Valkey authentication
	Password string

	// TLSEnabled enables TLS for Valkey connections
	TLSEnabled bool

	// KeyPrefix is the prefix for all Valkey keys (default: "ip:")
	KeyPrefix string

	// DB is the Valkey database number (default: 0)
	DB int
}

// NLUConfig holds configuration for the language model backend
type NLUConfig struct {
	// APIKey authenticates against the Gemini API
	APIKey string

	// Model is the Gemini model identifier (e.g., "gemini-2.0-flash")
	Model string
}

// LinkConfig holds account link configuration
type LinkConfig struct {
	// Secret signs single-use link tokens (at least 32 bytes)
	Secret []byte

	// GoogleClientID and GoogleClientSecret are the OAuth client
	// credentials for the "google" provider
	GoogleClientID     string
	GoogleClientSecret string

	// RedirectURL receives the provider callback
	RedirectURL string
}

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

func newServeCmd() *cobra.Command {
	var (
		debugMode bool
		transport string
		httpAddr  string
		yolo      bool
		// Store backend
		storeType       string
		valkeyURL       string
		valkeyPassword  string
		valkeyTLS       bool
		valkeyKeyPrefix string
		valkeyDB        int
		// NLU backend
		geminiAPIKey string
		geminiModel  string
		// Account linking
		linkSecret         string
		googleClientID     string
		googleClientSecret string
		linkRedirectURL    string
		// Metrics server configuration
		metricsEnabled bool
		metricsAddr    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server providing the inbox
assistant tools for AI assistants: email classification, sponsorship
extraction, sort command compilation, schema validation and account
linking.

Supports multiple transport types:
  - stdio: Standard input/output (default)
  - streamable-http: Streamable HTTP transport

Safety Mode:
  By default, the server operates in read-only mode, providing only safe
  operations. Use --yolo to enable write operations (marking emails read,
  linking and unlinking accounts).

Configuration:
  Gemini (required):
    --gemini-api-key flag OR GEMINI_API_KEY env var

  Store backend:
    --store-type memory (default) keeps all tenant data in process.
    --store-type valkey persists tenant data; configure with the
    --valkey-* flags or VALKEY_URL, VALKEY_PASSWORD, VALKEY_TLS_ENABLED,
    VALKEY_KEY_PREFIX and VALKEY_DB env vars.

  Account linking (optional):
    --link-secret (base64, 32+ bytes) OR LINK_SECRET env var enables the
    account link tools. The Google provider additionally needs
    --google-client-id and --google-client-secret flags or the
    GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET env vars.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Parse link secret from base64 if provided
			var linkSecretBytes []byte
			if linkSecret != "" {
				decoded, err := base64.StdEncoding.DecodeString(linkSecret)
				if err != nil {
					return fmt.Errorf("invalid link secret (must be base64 encoded): %w", err)
				}
				linkSecretBytes = decoded
			}

			storeConfig := StoreConfig{
				Type: storeType,
				Valkey: ValkeyStoreConfig{
					URL:        valkeyURL,
					Password:   valkeyPassword,
					TLSEnabled: valkeyTLS,
					KeyPrefix:  valkeyKeyPrefix,
					DB:         valkeyDB,
				},
			}

			// Load store config from environment variables if not set via flags
			loadStoreEnvVars(cmd, &storeConfig)

			nluConfig := NLUConfig{
				APIKey: geminiAPIKey,
				Model:  geminiModel,
			}

			linkConfig := LinkConfig{
				Secret:             linkSecretBytes,
				GoogleClientID:     googleClientID,
				GoogleClientSecret: googleClientSecret,
				RedirectURL:        linkRedirectURL,
			}

			metricsConfig := MetricsConfig{
				Enabled: metricsEnabled,
				Addr:    metricsAddr,
			}

			return runServe(transport, debugMode, httpAddr, yolo, storeConfig, nluConfig, linkConfig, metricsConfig)
		},
	}

	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport type: stdio or streamable-http")
	cmd.Flags().StringVar(&httpAddr, "http-addr", ":8080", "HTTP server address (for streamable-http transport)")
	cmd.Flags().BoolVar(&yolo, "yolo", false, "Enable write operations (marking emails read, account linking). Default is read-only mode.")

	// Store backend flags
	cmd.Flags().StringVar(&storeType, "store-type", store.StoreTypeMemory, "Tenant store type: memory or valkey. Can also use STORE_TYPE env var.")
	cmd.Flags().StringVar(&valkeyURL, "valkey-url", "", "Valkey server address (e.g., valkey.namespace.svc:6379). Can also use VALKEY_URL env var.")
	cmd.Flags().StringVar(&valkeyPassword, "valkey-password", "", "Valkey authentication password. Can also use VALKEY_PASSWORD env var.")
	cmd.Flags().BoolVar(&valkeyTLS, "valkey-tls", false, "Enable TLS for Valkey connections. Can also use VALKEY_TLS_ENABLED env var.")
	cmd.Flags().StringVar(&valkeyKeyPrefix, "valkey-key-prefix", store.DefaultKeyPrefix, "Prefix for all Valkey keys. Can also use VALKEY_KEY_PREFIX env var.")
	cmd.Flags().IntVar(&valkeyDB, "valkey-db", 0, "Valkey database number. Can also use VALKEY_DB env var.")

	// NLU backend flags
	cmd.Flags().StringVar(&geminiAPIKey, "gemini-api-key", "", "Gemini API key. Can also use GEMINI_API_KEY env var.")
	cmd.Flags().StringVar(&geminiModel, "gemini-model", "", "Gemini model identifier. Can also use GEMINI_MODEL env var.")

	// Account link flags
	cmd.Flags().StringVar(&linkSecret, "link-secret", "", "Secret for signing link tokens (32+ bytes, base64 encoded). Can also use LINK_SECRET env var. Generate with: openssl rand -base64 32")
	cmd.Flags().StringVar(&googleClientID, "google-client-id", "", "Google OAuth Client ID for account linking. Can also use GOOGLE_CLIENT_ID env var.")
	cmd.Flags().StringVar(&googleClientSecret, "google-client-secret", "", "Google OAuth Client Secret for account linking. Can also use GOOGLE_CLIENT_SECRET env var.")
	cmd.Flags().StringVar(&linkRedirectURL, "link-redirect-url", "", "Redirect URL registered with the link providers. Can also use LINK_REDIRECT_URL env var.")

	// Metrics server flags
	cmd.Flags().BoolVar(&metricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

// loadStoreEnvVars fills store settings from the environment for flags
// the user did not set explicitly.
func loadStoreEnvVars(cmd *cobra.Command, config *StoreConfig) {
	if !cmd.Flags().Changed("store-type") {
		if v := os.Getenv("STORE_TYPE"); v != "" {
			config.Type = v
		}
	}
	if !cmd.Flags().Changed("valkey-url") {
		if v := os.Getenv("VALKEY_URL"); v != "" {
			config.Valkey.URL = v
		}
	}
	if !cmd.Flags().Changed("valkey-password") {
		if v := os.Getenv("VALKEY_PASSWORD"); v != "" {
			config.Valkey.Password = v
		}
	}
	if !cmd.Flags().Changed("valkey-tls") {
		if v := os.Getenv("VALKEY_TLS_ENABLED"); v != "" {
			if parsed, err := strconv.ParseBool(v); err == nil {
				config.Valkey.TLSEnabled = parsed
			}
		}
	}
	if !cmd.Flags().Changed("valkey-key-prefix") {
		if v := os.Getenv("VALKEY_KEY_PREFIX"); v != "" {
			config.Valkey.KeyPrefix = v
		}
	}
	if !cmd.Flags().Changed("valkey-db") {
		if v := os.Getenv("VALKEY_DB"); v != "" {
			if db, err := strconv.Atoi(v); err == nil {
				config.Valkey.DB = db
			}
		}
	}
}

func runServe(transport string, debugMode bool, httpAddr string, yolo bool, storeConfig StoreConfig, nluConfig NLUConfig, linkConfig LinkConfig, metricsConfig MetricsConfig) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := setupLogger(debugMode)

	// Load metrics config from environment if not set via flags
	if !metricsConfig.Enabled {
		if os.Getenv("METRICS_ENABLED") == "true" {
			metricsConfig.Enabled = true
		}
	}
	if metricsConfig.Addr == "" || metricsConfig.Addr == ":9090" {
		if addr := os.Getenv("METRICS_ADDR"); addr != "" {
			metricsConfig.Addr = addr
		}
	}

	// NLU config from environment if not provided via flags
	if nluConfig.APIKey == "" {
		nluConfig.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if nluConfig.Model == "" {
		nluConfig.Model = os.Getenv("GEMINI_MODEL")
	}

	// Link config from environment if not provided via flags
	if len(linkConfig.Secret) == 0 {
		if secretStr := os.Getenv("LINK_SECRET"); secretStr != "" {
			decoded, err := base64.StdEncoding.DecodeString(secretStr)
			if err != nil {
				log.Printf("Warning: Invalid link secret in LINK_SECRET (must be base64): %v", err)
			} else {
				linkConfig.Secret = decoded
			}
		}
	}
	if linkConfig.GoogleClientID == "" {
		linkConfig.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	}
	if linkConfig.GoogleClientSecret == "" {
		linkConfig.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	}
	if linkConfig.RedirectURL == "" {
		linkConfig.RedirectURL = os.Getenv("LINK_REDIRECT_URL")
	}

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(shutdownCtx); err != nil {
			if transport != "stdio" {
				log.Printf("Error during instrumentation shutdown: %v", err)
			}
		}
	}()

	// Build the tenant store
	st, err := buildStore(storeConfig)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}

	// Build the NLU capability and the engines on top of it
	capability, err := nlu.NewGemini(shutdownCtx, nlu.GeminiConfig{
		APIKey: nluConfig.APIKey,
		Model:  nluConfig.Model,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create Gemini capability: %w", err)
	}

	notifier := notify.NewSlog(logger)

	classifier := classify.NewEngine(capability, logger)
	classifier.Notifier = notifier

	extractor := extract.NewEngine(capability, logger)
	extractor.Notifier = notifier

	compiler := sortcmd.NewCompiler(capability, logger)

	resolver := tenant.NewResolver(st, logger)

	// Account link manager, if a signing secret was configured
	var links *link.Manager
	if len(linkConfig.Secret) > 0 {
		links, err = link.NewManager(st, linkConfig.Secret, buildLinkProviders(linkConfig), logger)
		if err != nil {
			return fmt.Errorf("failed to create link manager: %w", err)
		}
	} else if transport != "stdio" {
		log.Println("No link secret configured; account link tools are disabled")
	}

	// Assemble the server context
	deps := server.Deps{
		Store:      st,
		Resolver:   resolver,
		Classifier: classifier,
		Extractor:  extractor,
		Compiler:   compiler,
		Links:      links,
		Logger:     logger,
	}
	if provider.Enabled() {
		deps.Provider = provider
		deps.Audit = instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.AuditLogging)
	}

	serverContext := server.NewServerContext(shutdownCtx, deps)
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			if transport != "stdio" {
				log.Printf("Error during server context shutdown: %v", err)
			}
		}
	}()

	// Start metrics server if enabled and not in stdio mode
	var metricsServer *server.MetricsServer
	if transport != "stdio" && metricsConfig.Enabled && provider.Enabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    metricsConfig.Addr,
			Enabled:                 true,
			InstrumentationProvider: provider,
			Health:                  server.NewHealthChecker(serverContext),
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}

		// Use ready channel to confirm metrics server started successfully
		metricsReady := make(chan struct{})
		metricsErr := make(chan error, 1)
		go func() {
			if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && err != http.ErrServerClosed {
				metricsErr <- err
			}
			close(metricsErr)
		}()

		// Wait for metrics server to be ready or fail
		select {
		case <-metricsReady:
			log.Printf("Metrics server started on %s", metricsServer.Addr())
		case err := <-metricsErr:
			return fmt.Errorf("metrics server failed to start: %w", err)
		case <-time.After(5 * time.Second):
			return fmt.Errorf("metrics server startup timed out")
		}

		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				log.Printf("Error during metrics server shutdown: %v", err)
			}
		}()
	}

	// Create MCP server
	mcpSrv := mcpserver.NewMCPServer("inboxpilot", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false), // Subscribe and listChanged
	)

	// readOnly is the inverse of yolo
	readOnly := !yolo

	// Log the mode for visibility (only for non-stdio transports)
	if transport != "stdio" {
		if readOnly {
			log.Println("Starting server in READ-ONLY mode (use --yolo to enable write operations)")
		} else {
			log.Println("Starting server with WRITE operations enabled (--yolo flag is set)")
		}
	}

	// Register all tools and resources
	if err := registerAllTools(mcpSrv, serverContext, readOnly); err != nil {
		return err
	}

	// Start the appropriate server based on transport type
	switch transport {
	case "stdio":
		return runStdioServer(mcpSrv)
	case "streamable-http":
		fmt.Printf("Starting inboxpilot MCP server with %s transport...\n", transport)
		return runStreamableHTTPServer(shutdownCtx, mcpSrv, serverContext, httpAddr, logger)
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http)", transport)
	}
}

// setupLogger configures the process-wide logger. Logs go to stderr so
// the stdio transport keeps stdout clean for the protocol.
func setupLogger(debugMode bool) *slog.Logger {
	level := slog.LevelInfo
	if debugMode {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// buildStore creates the tenant store described by the config.
func buildStore(config StoreConfig) (store.Store, error) {
	switch config.Type {
	case "", store.StoreTypeMemory:
		return store.NewMemoryStore(), nil
	case store.StoreTypeValkey:
		return store.NewValkeyStore(store.ValkeyConfig{
			URL:        config.Valkey.URL,
			Password:   config.Valkey.Password,
			TLSEnabled: config.Valkey.TLSEnabled,
			KeyPrefix:  config.Valkey.KeyPrefix,
			DB:         config.Valkey.DB,
		})
	default:
		return nil, fmt.Errorf("unsupported store type: %s (supported: memory, valkey)", config.Type)
	}
}

// buildLinkProviders assembles the identity provider configs for the
// link manager. Providers lacking credentials are skipped.
func buildLinkProviders(config LinkConfig) []link.ProviderConfig {
	var providers []link.ProviderConfig
	if config.GoogleClientID != "" && config.GoogleClientSecret != "" {
		providers = append(providers, link.ProviderConfig{
			Name:         "google",
			ClientID:     config.GoogleClientID,
			ClientSecret: config.GoogleClientSecret,
			AuthURL:      googleAuthURL,
			TokenURL:     googleTokenURL,
			RedirectURL:  config.RedirectURL,
			Scopes:       []string{"openid", "email"},
		})
	}
	return providers
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	err := <-serverDone
	if err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

// registerAllTools registers all MCP tools and resources
func registerAllTools(mcpSrv *mcpserver.MCPServer, ctx *server.ServerContext, readOnly bool) error {
	// Define all tool registrations
	type toolRegistration struct {
		name     string
		register func() error
	}

	registrations := []toolRegistration{
		{
			name: "Inbox",
			register: func() error {
				return inbox_tools.RegisterInboxTools(mcpSrv, ctx, readOnly)
			},
		},
		{
			name: "Sort",
			register: func() error {
				return sort_tools.RegisterSortTools(mcpSrv, ctx)
			},
		},
		{
			name: "Account",
			register: func() error {
				return account_tools.RegisterAccountTools(mcpSrv, ctx, readOnly)
			},
		},
		{
			name: "Schema",
			register: func() error {
				return schema_tools.RegisterSchemaTools(mcpSrv, ctx)
			},
		},
		{
			name: "Catalog Resources",
			register: func() error {
				return resources.RegisterCatalogResources(mcpSrv)
			},
		},
	}

	// Register all tools
	for _, reg := range registrations {
		if err := reg.register(); err != nil {
			return fmt.Errorf("failed to register %s: %w", reg.name, err)
		}
	}

	return nil
}

func runStreamableHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, serverContext *server.ServerContext, addr string, logger *slog.Logger) error {
	httpServer := server.NewHTTPServer(mcpSrv, serverContext, server.HTTPServerConfig{
		Addr:   addr,
		Logger: logger,
	})

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.Start(); err != nil && err != http.ErrServerClosed {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	}
}
