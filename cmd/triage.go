package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/inboxpilot/inboxpilot/internal/classify"
	"github.com/inboxpilot/inboxpilot/internal/extract"
	"github.com/inboxpilot/inboxpilot/internal/inbox"
	"github.com/inboxpilot/inboxpilot/internal/nlu"
	"github.com/inboxpilot/inboxpilot/internal/store"
	"github.com/inboxpilot/inboxpilot/internal/tenant"
)

func newTriageCmd() *cobra.Command {
	var (
		user            string
		limit           int
		storeType       string
		valkeyURL       string
		valkeyPassword  string
		valkeyTLS       bool
		valkeyKeyPrefix string
		valkeyDB        int
		geminiAPIKey    string
		geminiModel     string
	)

	cmd := &cobra.Command{
		Use:   "triage",
		Short: "Classify a tenant's recent unclassified emails",
		Long: `Scan a tenant's most recent emails and classify any that do not have
a label yet. Emails classified as sponsorship additionally get their
deal terms extracted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if user == "" {
				return fmt.Errorf("--user is required")
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
			loadStoreEnvVars(cmd, &storeConfig)

			if geminiAPIKey == "" {
				geminiAPIKey = os.Getenv("GEMINI_API_KEY")
			}
			if geminiModel == "" {
				geminiModel = os.Getenv("GEMINI_MODEL")
			}

			return runTriage(user, limit, storeConfig, NLUConfig{APIKey: geminiAPIKey, Model: geminiModel})
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "External identity of the tenant to triage (required)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of recent emails to scan")
	cmd.Flags().StringVar(&storeType, "store-type", store.StoreTypeMemory, "Tenant store type: memory or valkey. Can also use STORE_TYPE env var.")
	cmd.Flags().StringVar(&valkeyURL, "valkey-url", "", "Valkey server address. Can also use VALKEY_URL env var.")
	cmd.Flags().StringVar(&valkeyPassword, "valkey-password", "", "Valkey authentication password. Can also use VALKEY_PASSWORD env var.")
	cmd.Flags().BoolVar(&valkeyTLS, "valkey-tls", false, "Enable TLS for Valkey connections. Can also use VALKEY_TLS_ENABLED env var.")
	cmd.Flags().StringVar(&valkeyKeyPrefix, "valkey-key-prefix", store.DefaultKeyPrefix, "Prefix for all Valkey keys. Can also use VALKEY_KEY_PREFIX env var.")
	cmd.Flags().IntVar(&valkeyDB, "valkey-db", 0, "Valkey database number. Can also use VALKEY_DB env var.")
	cmd.Flags().StringVar(&geminiAPIKey, "gemini-api-key", "", "Gemini API key. Can also use GEMINI_API_KEY env var.")
	cmd.Flags().StringVar(&geminiModel, "gemini-model", "", "Gemini model identifier. Can also use GEMINI_MODEL env var.")

	return cmd
}

func runTriage(user string, limit int, storeConfig StoreConfig, nluConfig NLUConfig) error {
	ctx := context.Background()

	st, err := buildStore(storeConfig)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}

	capability, err := nlu.NewGemini(ctx, nlu.GeminiConfig{
		APIKey: nluConfig.APIKey,
		Model:  nluConfig.Model,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to create Gemini capability: %w", err)
	}

	classifier := classify.NewEngine(capability, nil)
	extractor := extract.NewEngine(capability, nil)
	resolver := tenant.NewResolver(st, nil)

	res, err := resolver.Resolve(ctx, user)
	if err != nil {
		return fmt.Errorf("failed to resolve tenant for %s: %w", user, err)
	}
	ns := res.Namespace

	docs, err := ns.Query(ctx, store.Query{
		Collection: store.CollectionEmails,
		OrderBy:    "receivedAt",
		Descending: true,
		Limit:      limit,
	})
	if err != nil {
		return fmt.Errorf("failed to list emails: %w", err)
	}

	n := 0
	for _, doc := range docs {
		if doc.Has(inbox.FieldClassification) {
			continue
		}
		label, err := classifier.Classify(ctx, ns, doc.ID)
		if err != nil {
			return fmt.Errorf("failed to classify email %s: %w", doc.ID, err)
		}
		n++
		log.Printf("Email %s classified as %s", doc.ID, label)

		if label == classify.LabelSponsorship {
			info, err := extractor.Extract(ctx, ns, doc.ID)
			if err != nil {
				log.Printf("  ... extraction failed: %v", err)
				continue
			}
			if info.Amount != nil {
				log.Printf("  ... sponsorship terms: %.2f %s, %d deliverables", *info.Amount, info.Currency, len(info.Deliverables))
			} else {
				log.Printf("  ... sponsorship terms: %d deliverables", len(info.Deliverables))
			}
		}
	}

	log.Printf("Classified %d of %d emails", n, len(docs))
	return nil
}
