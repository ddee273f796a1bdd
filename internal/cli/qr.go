package cli

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"qrquest/internal/config"
	"qrquest/internal/infra/file"
	"qrquest/internal/logging"
)

// Telegram accepts up to 64 characters from this set in a /start payload.
var startPayloadPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// NewQRCmd renders one PNG per catalog question, each encoding the bot deep link
// that starts the conversation at that question.
func NewQRCmd(configPath *string) *cobra.Command {
	var (
		outDir string
		size   int
	)
	cmd := &cobra.Command{
		Use:   "qr",
		Short: "Generate QR code images for every question",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Bot.Username == "" {
				return fmt.Errorf("bot username not configured")
			}
			if cfg.Quest.Catalog == "" {
				return fmt.Errorf("catalog path not configured")
			}
			questions, err := file.NewCatalogLoader(cfg.Quest.Catalog).LoadCatalog(cmd.Context())
			if err != nil {
				return err
			}
			ids := make([]string, 0, len(questions))
			for _, q := range questions {
				ids = append(ids, q.ID)
			}

			paths, err := writeQRCodes(cfg.Bot.Username, ids, outDir, size)
			if err != nil {
				return err
			}
			logger := logging.New(cfg.Log.Level, cfg.Log.Format)
			for i, p := range paths {
				logger.WithField("question_id", ids[i]).WithField("file", p).Info("qr code written")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "qr", "output directory")
	cmd.Flags().IntVar(&size, "size", 512, "image size in pixels")
	return cmd
}

// DeepLink is the URL a question's QR code encodes.
func DeepLink(botUsername, questionID string) string {
	return "https://t.me/" + url.PathEscape(botUsername) + "?start=" + url.QueryEscape(questionID)
}

func writeQRCodes(botUsername string, ids []string, dir string, size int) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	paths := make([]string, 0, len(ids))
	for _, id := range ids {
		if !startPayloadPattern.MatchString(id) {
			return nil, fmt.Errorf("question %q: id cannot be used as a start payload", id)
		}
		path := filepath.Join(dir, id+".png")
		if err := qrcode.WriteFile(DeepLink(botUsername, id), qrcode.Medium, size, path); err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
